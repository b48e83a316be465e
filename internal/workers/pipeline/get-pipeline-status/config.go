// internal/workers/pipeline/get-pipeline-status/config.go
package getpipelinestatus

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
	}
}
