// internal/workers/pipeline/resume-pipeline/config.go
package resumepipeline

import "time"

type Config struct {
	Timeout           time.Duration
	WaitForCompletion bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
