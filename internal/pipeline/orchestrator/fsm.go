package orchestrator

import "admissions-workers/internal/models"

// allowedTransitions is the application lifecycle. FAILED and
// AWAITING_DOCUMENTS are left only by an explicit start or resume; COMPLETE
// is never left.
var allowedTransitions = map[models.Status][]models.Status{
	models.StatusNew:        {models.StatusExtracting},
	models.StatusExtracting: {models.StatusExtracted, models.StatusFailed},
	models.StatusExtracted:  {models.StatusEvaluating, models.StatusFailed},
	models.StatusEvaluating: {models.StatusEvaluated, models.StatusAwaitingDocuments, models.StatusFailed},
	models.StatusEvaluated:  {models.StatusReporting, models.StatusFailed},
	models.StatusReporting:  {models.StatusComplete, models.StatusFailed},
	models.StatusFailed: {
		models.StatusExtracting,
		models.StatusEvaluating,
		models.StatusReporting,
	},
	models.StatusAwaitingDocuments: {models.StatusExtracting},
	models.StatusComplete:          {},
}

// CanTransition reports whether from -> to is a lifecycle edge.
func CanTransition(from, to models.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// startable are the statuses a full run may start from.
var startable = []models.Status{
	models.StatusNew,
	models.StatusFailed,
	models.StatusAwaitingDocuments,
}
