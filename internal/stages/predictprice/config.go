// internal/stages/predictprice/config.go
package predictprice

import "time"

type Config struct {
	Timeout time.Duration

	// BTODiscountRate is the fixed fraction taken off the resale estimate
	// for build-to-order questions.
	BTODiscountRate float64

	// ReferenceMonth anchors remaining-lease arithmetic, YYYY-MM.
	ReferenceMonth string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		BTODiscountRate: 0.25,
		ReferenceMonth:  "2025-01",
	}
}
