// internal/stages/synthesize/config.go
package synthesize

import "time"

type Config struct {
	Timeout time.Duration

	// RowCap bounds how many result rows are serialized into the prompt.
	RowCap int
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		RowCap:  50,
	}
}
