// internal/stages/generatesql/config.go
package generatesql

import "time"

type Config struct {
	Timeout time.Duration

	// MaxAttempts bounds the generate-validate-execute loop per request.
	MaxAttempts int

	// SampleRowLimit is how many rows per table go into the prompt.
	SampleRowLimit int

	CacheTTL time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        60 * time.Second,
		MaxAttempts:    3,
		SampleRowLimit: 3,
		CacheTTL:       5 * time.Minute,
	}
}
