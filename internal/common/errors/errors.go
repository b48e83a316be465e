// Package errors provides the pipeline error taxonomy and its mapping onto BPMN job errors.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Sentinels
// ==========================

var (
	ErrNotFound             = stderrors.New("NOT_FOUND")
	ErrAlreadyRunning       = stderrors.New("ALREADY_RUNNING")
	ErrInvalidTransition    = stderrors.New("INVALID_TRANSITION")
	ErrConflict             = stderrors.New("STATUS_CONFLICT")
	ErrStaleRun             = stderrors.New("STALE_RUN")
	ErrDuplicateApplication = stderrors.New("DUPLICATE_APPLICATION")
	ErrInvalidReference     = stderrors.New("INVALID_REFERENCE")
)

// Is and As forward to the standard library so callers need one errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyRunning       ErrorCode = "ALREADY_RUNNING"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCodeDuplicateApplication ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeStageFailed          ErrorCode = "STAGE_FAILED"
	ErrCodeOracleFailed         ErrorCode = "ORACLE_FAILED"
	ErrCodeExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeDatabaseFailed       ErrorCode = "DATABASE_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Extraction failure codes recorded on per-document markers.
const (
	ExtractionCodeInvalidReference = "INVALID_REFERENCE"
	ExtractionCodeFailed           = "EXTRACTION_FAILED"
	ExtractionCodeTimeout          = "EXTRACTION_TIMEOUT"
)

// Oracle failure reasons.
const (
	OracleReasonTimeout           = "TIMEOUT"
	OracleReasonMalformedResponse = "MALFORMED_RESPONSE"
	OracleReasonUpstreamStatus    = "UPSTREAM_STATUS"
	OracleReasonTransport         = "TRANSPORT"
)

// ==========================
// 2. Typed errors
// ==========================

// StageFailure is a stage-level fault that moves the application to FAILED(stage).
type StageFailure struct {
	Stage string
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// NewStageFailure wraps err with the failing stage name.
func NewStageFailure(stage string, err error) *StageFailure {
	return &StageFailure{Stage: stage, Err: err}
}

// ExtractionError is a per-document failure. It never aborts the extraction stage.
type ExtractionError struct {
	DocumentKey string
	Code        string
	Err         error
}

func (e *ExtractionError) Error() string {
	if e.DocumentKey == "" {
		return fmt.Sprintf("extraction %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("extraction %s for %s: %v", e.Code, e.DocumentKey, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError classifies err; deadline errors become EXTRACTION_TIMEOUT.
func NewExtractionError(documentKey string, err error) *ExtractionError {
	code := ExtractionCodeFailed
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		code = ExtractionCodeTimeout
	case stderrors.Is(err, ErrInvalidReference):
		code = ExtractionCodeInvalidReference
	}
	return &ExtractionError{DocumentKey: documentKey, Code: code, Err: err}
}

// OracleError is a failed or unusable evaluation oracle call.
type OracleError struct {
	Reason string
	Err    error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Reason, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

func NewOracleError(reason string, err error) *OracleError {
	return &OracleError{Reason: reason, Err: err}
}

// ==========================
// 3. Standard error
// ==========================

// StandardError represents a structured error surfaced to job callers.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func newStandard(code ErrorCode, message string, err error, retryable bool) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// ToStandardError classifies any pipeline error into a StandardError.
func ToStandardError(err error) *StandardError {
	var std *StandardError
	if stderrors.As(err, &std) {
		return std
	}

	var stage *StageFailure
	var oracle *OracleError
	var extraction *ExtractionError

	switch {
	case stderrors.Is(err, ErrNotFound):
		return newStandard(ErrCodeNotFound, "Application or evaluation record not found", err, false)
	case stderrors.Is(err, ErrAlreadyRunning):
		return newStandard(ErrCodeAlreadyRunning, "A pipeline run is already active for this application", err, false)
	case stderrors.Is(err, ErrInvalidTransition):
		return newStandard(ErrCodeInvalidTransition, "Requested transition is not allowed from the current status", err, false)
	case stderrors.Is(err, ErrDuplicateApplication):
		return newStandard(ErrCodeDuplicateApplication, "Application already exists", err, false)
	case stderrors.As(err, &oracle):
		s := newStandard(ErrCodeOracleFailed, "Evaluation oracle call failed", err, false)
		s.Metadata = map[string]interface{}{"reason": oracle.Reason, "stage": "EVALUATION"}
		return s
	case stderrors.As(err, &stage):
		s := newStandard(ErrCodeStageFailed, "Pipeline stage failed", err, false)
		s.Metadata = map[string]interface{}{"stage": stage.Stage}
		return s
	case stderrors.As(err, &extraction):
		s := newStandard(ErrCodeExtractionFailed, "Document extraction failed", err, false)
		s.Metadata = map[string]interface{}{"documentKey": extraction.DocumentKey, "reason": extraction.Code}
		return s
	default:
		return newStandard(ErrCodeInternal, "Unexpected error", err, false)
	}
}

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError creates a retryable record-store error.
func NewDatabaseError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseFailed,
		Message:   "Record store operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %v", operation, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. BPMN error integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// GetRetryCount is the Zeebe retry budget per code. Pipeline stage failures are
// never retried by the engine; retry is an explicit start or resume.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseFailed:
		return 3
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "NOT_FOUND"), strings.Contains(codeStr, "DUPLICATE"):
		return "RECORD"
	case strings.Contains(codeStr, "RUNNING"), strings.Contains(codeStr, "TRANSITION"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "STAGE"), strings.Contains(codeStr, "ORACLE"), strings.Contains(codeStr, "EXTRACTION"):
		return "PIPELINE"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
