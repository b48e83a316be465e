// Package oracle calls the external evaluation service that judges an application.
package oracle

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"admissions-workers/internal/common/errors"
	httpclient "admissions-workers/internal/common/http"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/validation"
	"admissions-workers/internal/models"
)

const evaluatePath = "/api/ai/evaluate"

//go:embed judgment.schema.json
var judgmentSchemaJSON []byte

var judgmentSchema = validation.MustCompile("oracle-judgment", judgmentSchemaJSON)

// Config configures the oracle client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Client is the HTTP evaluation oracle.
type Client struct {
	config Config
	http   *httpclient.Client
	logger logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		config: cfg,
		http:   httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
		logger: logger.Component(log, "oracle"),
	}
}

// Snapshot is the application data the oracle judges. Lifecycle fields are left out.
type Snapshot struct {
	ApplicationID    string                              `json:"application_id"`
	Documents        map[string]string                   `json:"documents"`
	ExtractedContent map[string]models.ExtractedDocument `json:"extracted_content"`
	Profile          map[string]interface{}              `json:"profile,omitempty"`
}

// SnapshotOf copies the judged fields of app. Status, run and report fields are dropped.
func SnapshotOf(app *models.Application) Snapshot {
	c := app.Clone()
	return Snapshot{
		ApplicationID:    c.ApplicationID,
		Documents:        c.Documents,
		ExtractedContent: c.ExtractedContent,
		Profile:          c.Profile,
	}
}

type evaluateRequest struct {
	Prompt      string   `json:"prompt"`
	Application Snapshot `json:"application"`
}

// Evaluate returns the validated judgment. Every failure is an *errors.OracleError.
func (c *Client) Evaluate(ctx context.Context, snapshot Snapshot) (*models.OracleJudgment, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	headers := map[string]string{}
	if c.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.config.APIKey
	}

	start := time.Now()
	resp, err := c.http.PostJSON(ctx, strings.TrimRight(c.config.BaseURL, "/")+evaluatePath, headers, evaluateRequest{
		Prompt:      buildPrompt(),
		Application: snapshot,
	})
	if err != nil {
		if httpclient.IsTimeout(err) {
			return nil, errors.NewOracleError(errors.OracleReasonTimeout, err)
		}
		return nil, errors.NewOracleError(errors.OracleReasonTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewOracleError(errors.OracleReasonUpstreamStatus, fmt.Errorf("status %d", resp.StatusCode))
	}

	judgment, err := decodeJudgment(resp.Body)
	if err != nil {
		return nil, errors.NewOracleError(errors.OracleReasonMalformedResponse, err)
	}

	c.logger.Info("oracle evaluation received", map[string]interface{}{
		"applicationId": snapshot.ApplicationID,
		"screening":     string(judgment.Level1.Status),
		"durationMs":    time.Since(start).Milliseconds(),
	})
	return judgment, nil
}

func decodeJudgment(body []byte) (*models.OracleJudgment, error) {
	if res := judgmentSchema.ValidateBytes(body); !res.Valid {
		return nil, fmt.Errorf("judgment failed validation: %s", res.Error())
	}
	var j models.OracleJudgment
	if err := json.Unmarshal(body, &j); err != nil {
		return nil, fmt.Errorf("decode judgment: %w", err)
	}
	return &j, nil
}

func buildPrompt() string {
	parts := []string{
		"Perform level 1-4 analysis and scoring for the attached application and return the structured judgment.",
		"Level 1 is eligibility screening (PASS, FAIL or INCOMPLETE). Levels 2-4 score 0-100.",
		"",
		"Instructions:",
		"- A blank or failed extracted_content entry means the document was not provided.",
		"- Do not fabricate values.",
		"- Skip the preamble and return JSON only.",
	}
	return strings.Join(parts, "\n")
}
