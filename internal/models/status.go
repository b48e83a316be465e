// internal/models/status.go
package models

import "fmt"

// Status is the lifecycle state of an application's pipeline run.
type Status string

const (
	StatusNew               Status = "NEW"
	StatusExtracting        Status = "EXTRACTING"
	StatusExtracted         Status = "EXTRACTED"
	StatusEvaluating        Status = "EVALUATING"
	StatusEvaluated         Status = "EVALUATED"
	StatusReporting         Status = "REPORTING"
	StatusComplete          Status = "COMPLETE"
	StatusFailed            Status = "FAILED"
	StatusAwaitingDocuments Status = "AWAITING_DOCUMENTS"
)

// InProgressStatuses are the states held while a run owns the application.
var InProgressStatuses = []Status{
	StatusExtracting,
	StatusExtracted,
	StatusEvaluating,
	StatusEvaluated,
	StatusReporting,
}

// IsInProgress reports whether a run currently owns the application.
func (s Status) IsInProgress() bool {
	for _, st := range InProgressStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no run is active and the status is final for now.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusAwaitingDocuments
}

// Stage names one independently retriable unit of the pipeline.
type Stage string

const (
	StageExtraction Stage = "EXTRACTION"
	StageEvaluation Stage = "EVALUATION"
	StageReport     Stage = "REPORT"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageExtraction, StageEvaluation, StageReport}

// ParseStage accepts the stage name in any of its common spellings.
func ParseStage(s string) (Stage, error) {
	switch s {
	case "EXTRACTION", "extraction", "extract":
		return StageExtraction, nil
	case "EVALUATION", "evaluation", "evaluate":
		return StageEvaluation, nil
	case "REPORT", "report":
		return StageReport, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Index returns the position of the stage in execution order, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// RunningStatus is the in-progress status held while the stage executes.
func (s Stage) RunningStatus() Status {
	switch s {
	case StageExtraction:
		return StatusExtracting
	case StageEvaluation:
		return StatusEvaluating
	case StageReport:
		return StatusReporting
	}
	return ""
}

// DoneStatus is the status recorded once the stage has succeeded.
func (s Stage) DoneStatus() Status {
	switch s {
	case StageExtraction:
		return StatusExtracted
	case StageEvaluation:
		return StatusEvaluated
	case StageReport:
		return StatusComplete
	}
	return ""
}

// Next returns the stage after s, or false when s is the last one.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(Stages) {
		return "", false
	}
	return Stages[i+1], true
}
