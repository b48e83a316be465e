// internal/workers/pipeline/start-pipeline/handler_test.go
package startpipeline

import (
	"context"
	"fmt"
	"testing"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"
	"admissions-workers/internal/pipeline/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	startErr error
	result   *orchestrator.RunResult
	async    []string
}

func (f *fakePipeline) Start(_ context.Context, id string) (*orchestrator.RunResult, error) {
	return f.result, f.startErr
}

func (f *fakePipeline) StartAsync(_ context.Context, id string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.async = append(f.async, id)
	return "run-" + id, nil
}

func TestHandler_Execute_Async(t *testing.T) {
	p := &fakePipeline{}
	h := NewHandler(LoadConfig(), p, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, "run-app-1", out.RunID)
	assert.Equal(t, string(models.StatusExtracting), out.Status)
	assert.Equal(t, []string{"app-1"}, p.async)
}

func TestHandler_Execute_WaitForCompletion(t *testing.T) {
	p := &fakePipeline{result: &orchestrator.RunResult{
		ApplicationID: "app-1",
		RunID:         "run-9",
		Status:        models.StatusComplete,
		Decision:      models.DecisionWaitlist,
		Report:        "s3://reports/reports/app-1/report.html",
	}}
	cfg := LoadConfig()
	cfg.WaitForCompletion = true
	h := NewHandler(cfg, p, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", out.Status)
	assert.Equal(t, "WAITLIST", out.FinalDecision)
	assert.Empty(t, p.async)
}

func TestHandler_Execute_ErrorsMapToBPMNCodes(t *testing.T) {
	tests := []struct {
		err  error
		code errors.ErrorCode
	}{
		{fmt.Errorf("%w: app-1", errors.ErrNotFound), errors.ErrCodeNotFound},
		{fmt.Errorf("%w: app-1 is EXTRACTING", errors.ErrAlreadyRunning), errors.ErrCodeAlreadyRunning},
		{fmt.Errorf("%w: app-1 is COMPLETE", errors.ErrInvalidTransition), errors.ErrCodeInvalidTransition},
		{errors.NewStageFailure("EVALUATION", fmt.Errorf("oracle down")), errors.ErrCodeStageFailed},
	}
	for _, tt := range tests {
		h := NewHandler(LoadConfig(), &fakePipeline{startErr: tt.err}, logger.NewNoOpLogger())
		_, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1"})
		require.Error(t, err)
		assert.Equal(t, tt.code, errors.ToStandardError(err).Code)
		assert.Zero(t, errors.ConvertToBPMNError(errors.ToStandardError(err)).Retries)
	}
}

func TestParseInput(t *testing.T) {
	in, err := parseInput(`{"applicationId":"app-1","otherVar":true}`)
	require.NoError(t, err)
	assert.Equal(t, "app-1", in.ApplicationID)

	for _, vars := range []string{`{}`, `{"applicationId":""}`, `{"applicationId":7}`, `not json`} {
		_, err := parseInput(vars)
		require.Error(t, err, vars)
		assert.Equal(t, errors.ErrCodeValidationFailed, errors.ToStandardError(err).Code)
	}
}
