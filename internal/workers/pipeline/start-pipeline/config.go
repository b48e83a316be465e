// internal/workers/pipeline/start-pipeline/config.go
package startpipeline

import "time"

type Config struct {
	Timeout time.Duration
	// WaitForCompletion runs the whole pipeline inside the job. Otherwise the
	// job completes once the run is claimed.
	WaitForCompletion bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
