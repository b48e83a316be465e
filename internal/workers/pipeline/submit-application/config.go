// internal/workers/pipeline/submit-application/config.go
package submitapplication

import "time"

type Config struct {
	Timeout time.Duration
	// AllowedBuckets restricts document references; empty allows any bucket.
	AllowedBuckets []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
