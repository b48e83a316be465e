// internal/models/application.go
package models

import "time"

// Application is the submitted admission application and its pipeline state.
type Application struct {
	ApplicationID    string                       `json:"application_id"`
	Status           Status                       `json:"status"`
	FailedStage      Stage                        `json:"failed_stage,omitempty"`
	FailureReason    string                       `json:"failure_reason,omitempty"`
	RunID            string                       `json:"run_id,omitempty"`
	Documents        map[string]string            `json:"documents"`
	ExtractedContent map[string]ExtractedDocument `json:"extracted_content,omitempty"`
	Profile          map[string]interface{}       `json:"profile,omitempty"`
	Report           string                       `json:"report,omitempty"`
	SubmittedAt      time.Time                    `json:"submitted_at"`
	LastUpdated      time.Time                    `json:"last_updated"`
}

// Clone returns a deep copy so callers never share maps with a store.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := *a
	if a.Documents != nil {
		out.Documents = make(map[string]string, len(a.Documents))
		for k, v := range a.Documents {
			out.Documents[k] = v
		}
	}
	if a.ExtractedContent != nil {
		out.ExtractedContent = make(map[string]ExtractedDocument, len(a.ExtractedContent))
		for k, v := range a.ExtractedContent {
			out.ExtractedContent[k] = v.Clone()
		}
	}
	if a.Profile != nil {
		out.Profile = cloneValue(a.Profile).(map[string]interface{})
	}
	return &out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// StatusUpdate describes a conditional status transition.
type StatusUpdate struct {
	Status        Status
	FailedStage   Stage
	FailureReason string
	// RunID replaces the owning run when non-empty.
	RunID string
}

// StatusView is the read-only answer to a status query.
type StatusView struct {
	ApplicationID string    `json:"application_id"`
	Status        Status    `json:"status"`
	FailedStage   Stage     `json:"failed_stage,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
	Report        string    `json:"report,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
}

// View projects the application onto its status view.
func (a *Application) View() *StatusView {
	return &StatusView{
		ApplicationID: a.ApplicationID,
		Status:        a.Status,
		FailedStage:   a.FailedStage,
		FailureReason: a.FailureReason,
		RunID:         a.RunID,
		Report:        a.Report,
		LastUpdated:   a.LastUpdated,
	}
}
