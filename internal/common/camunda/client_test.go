package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecuteWithRetry_RetriesTransient(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	calls := 0
	err := ExecuteWithRetry(context.Background(), rc, "topology", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("rpc error: code = Unavailable")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanent(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	calls := 0
	err := ExecuteWithRetry(context.Background(), rc, "deploy", func(context.Context) error {
		calls++
		return errors.New("permission denied")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "deploy")
	assert.Equal(t, 1, calls)
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(errors.New("context deadline exceeded")))
	assert.True(t, isRetryableZeebeError(errors.New("dial tcp: connection refused")))
	assert.False(t, isRetryableZeebeError(errors.New("NOT_FOUND: process")))
}
