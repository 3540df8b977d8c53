// internal/stages/resolvefeatures/config.go
package resolvefeatures

import "time"

type Config struct {
	Timeout time.Duration

	// ReferenceMonth is the fixed transaction month used when the query
	// does not name one. Pinned so identical queries resolve identically.
	ReferenceMonth string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		ReferenceMonth: "2025-01",
	}
}
