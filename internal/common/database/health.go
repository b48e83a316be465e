package database

import "context"

// Pinger is a dependency that can report readiness.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// CheckAll pings every dependency and returns the failures keyed by name.
func CheckAll(ctx context.Context, deps ...Pinger) map[string]error {
	failures := make(map[string]error)
	for _, d := range deps {
		if d == nil {
			continue
		}
		if err := d.Ping(ctx); err != nil {
			failures[d.Name()] = err
		}
	}
	return failures
}
