package orchestrator

import (
	"context"
	"fmt"
	"html"
	"time"

	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"
)

// Pipeline event types.
const (
	EventCompleted         = "pipeline.completed"
	EventFailed            = "pipeline.failed"
	EventAwaitingDocuments = "pipeline.awaiting_documents"
)

// Event is published when a run reaches a terminal state.
type Event struct {
	Type          string          `json:"event_type"`
	ApplicationID string          `json:"application_id"`
	RunID         string          `json:"run_id"`
	Status        models.Status   `json:"status"`
	FailedStage   models.Stage    `json:"failed_stage,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Decision      models.Decision `json:"final_decision,omitempty"`
	Report        string          `json:"report,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func EventFor(res *RunResult) Event {
	t := EventCompleted
	switch res.Status {
	case models.StatusFailed:
		t = EventFailed
	case models.StatusAwaitingDocuments:
		t = EventAwaitingDocuments
	}
	return Event{
		Type:          t,
		ApplicationID: res.ApplicationID,
		RunID:         res.RunID,
		Status:        res.Status,
		FailedStage:   res.FailedStage,
		FailureReason: res.FailureReason,
		Decision:      res.Decision,
		Report:        res.Report,
		OccurredAt:    time.Now().UTC(),
	}
}

// Notifier is told about terminal states. It must not block the run for
// long and its failures never change application state.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType, subject string, event interface{}) (string, error)
}

type Mailer interface {
	SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) (string, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, locator string, ttl time.Duration) (string, error)
}

// AWSNotifier publishes every event to SNS and, when a mailer is set, emails
// a presigned report link on completion. Any field may be nil.
type AWSNotifier struct {
	Publisher  Publisher
	Mailer     Mailer
	Presigner  Presigner
	Recipient  string
	PresignTTL time.Duration
	Timeout    time.Duration
	Logger     logger.Logger
}

func (n *AWSNotifier) Notify(ctx context.Context, event Event) {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	fields := map[string]interface{}{
		"applicationId": event.ApplicationID,
		"runId":         event.RunID,
		"eventType":     event.Type,
	}

	if n.Publisher != nil {
		subject := fmt.Sprintf("Application %s: %s", event.ApplicationID, event.Status)
		if _, err := n.Publisher.PublishEvent(ctx, event.Type, subject, event); err != nil {
			n.warn("pipeline event publish failed", fields, err)
		}
	}

	if n.Mailer == nil || event.Type != EventCompleted || n.Recipient == "" {
		return
	}
	link := event.Report
	if n.Presigner != nil && event.Report != "" {
		url, err := n.Presigner.PresignGet(ctx, event.Report, n.PresignTTL)
		if err != nil {
			n.warn("report presign failed", fields, err)
		} else {
			link = url
		}
	}
	subject := fmt.Sprintf("Admission report ready: %s", event.ApplicationID)
	text := fmt.Sprintf("Decision: %s\nReport: %s\n", event.Decision, link)
	body := fmt.Sprintf(`<p>Decision: <strong>%s</strong></p><p><a href="%s">View report</a></p>`,
		html.EscapeString(string(event.Decision)), html.EscapeString(link))
	if _, err := n.Mailer.SendEmail(ctx, n.Recipient, subject, text, body); err != nil {
		n.warn("report email failed", fields, err)
	}
}

func (n *AWSNotifier) warn(msg string, fields map[string]interface{}, err error) {
	if n.Logger == nil {
		return
	}
	f := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		f[k] = v
	}
	f["error"] = err
	n.Logger.Warn(msg, f)
}
