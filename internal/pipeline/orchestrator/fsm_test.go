package orchestrator

import (
	"testing"

	"admissions-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.Status
		want     bool
	}{
		{models.StatusNew, models.StatusExtracting, true},
		{models.StatusExtracting, models.StatusExtracted, true},
		{models.StatusEvaluating, models.StatusAwaitingDocuments, true},
		{models.StatusReporting, models.StatusComplete, true},
		{models.StatusFailed, models.StatusEvaluating, true},
		{models.StatusAwaitingDocuments, models.StatusExtracting, true},
		{models.StatusNew, models.StatusEvaluating, false},
		{models.StatusEvaluated, models.StatusExtracting, false},
		{models.StatusAwaitingDocuments, models.StatusEvaluating, false},
		{models.StatusNew, models.StatusFailed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransition_CompleteIsFinal(t *testing.T) {
	for from := range allowedTransitions {
		assert.False(t, CanTransition(models.StatusComplete, from), "COMPLETE -> %s", from)
	}
}

func TestCanTransition_InProgressMayFail(t *testing.T) {
	for _, s := range models.InProgressStatuses {
		assert.True(t, CanTransition(s, models.StatusFailed), s)
	}
}
