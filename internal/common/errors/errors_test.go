package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToStandardError_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"not found", fmt.Errorf("get app-1: %w", ErrNotFound), ErrCodeNotFound},
		{"already running", ErrAlreadyRunning, ErrCodeAlreadyRunning},
		{"invalid transition", fmt.Errorf("resume: %w", ErrInvalidTransition), ErrCodeInvalidTransition},
		{"duplicate", ErrDuplicateApplication, ErrCodeDuplicateApplication},
		{"oracle", NewStageFailure("EVALUATION", NewOracleError(OracleReasonTimeout, context.DeadlineExceeded)), ErrCodeOracleFailed},
		{"stage", NewStageFailure("EXTRACTION", stderrors.New("persist failed")), ErrCodeStageFailed},
		{"unknown", stderrors.New("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			std := ToStandardError(tt.err)
			assert.Equal(t, tt.code, std.Code)
			assert.NotEmpty(t, std.Details)
			assert.False(t, std.Timestamp.IsZero())
		})
	}
}

func TestToStandardError_StageMetadata(t *testing.T) {
	std := ToStandardError(NewStageFailure("REPORT", stderrors.New("s3 down")))
	require.NotNil(t, std.Metadata)
	assert.Equal(t, "REPORT", std.Metadata["stage"])
}

func TestNewExtractionError_Codes(t *testing.T) {
	assert.Equal(t, ExtractionCodeTimeout, NewExtractionError("sop", context.DeadlineExceeded).Code)
	assert.Equal(t, ExtractionCodeInvalidReference, NewExtractionError("sop", fmt.Errorf("bad: %w", ErrInvalidReference)).Code)
	assert.Equal(t, ExtractionCodeFailed, NewExtractionError("sop", stderrors.New("textract")).Code)
}

func TestConvertToBPMNError_NoRetryForPipelineErrors(t *testing.T) {
	bpmn := ConvertToBPMNError(ToStandardError(NewStageFailure("EXTRACTION", stderrors.New("x"))))
	assert.Equal(t, string(ErrCodeStageFailed), bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries)
	assert.Equal(t, "EXTRACTION", bpmn.ToErrorVariables()["stage"])

	db := ConvertToBPMNError(NewDatabaseError("get", stderrors.New("conn reset")))
	assert.Equal(t, 3, db.Retries)
	assert.True(t, db.Retryable)
}

func TestUnwrapChains(t *testing.T) {
	inner := NewOracleError(OracleReasonMalformedResponse, stderrors.New("missing level2"))
	err := NewStageFailure("EVALUATION", inner)

	var oe *OracleError
	require.True(t, stderrors.As(err, &oe))
	assert.Equal(t, OracleReasonMalformedResponse, oe.Reason)
	assert.Contains(t, err.Error(), "EVALUATION")
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "LIFECYCLE", GetErrorCategory(ErrCodeAlreadyRunning))
	assert.Equal(t, "PIPELINE", GetErrorCategory(ErrCodeOracleFailed))
	assert.Equal(t, "RECORD", GetErrorCategory(ErrCodeNotFound))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
