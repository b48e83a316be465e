// Package report renders an evaluation into an HTML report and stores it.
package report

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"path"
	"sort"
	"time"

	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/index"
	"admissions-workers/internal/models"
)

//go:embed report.html.tmpl
var reportTemplate string

var tmpl = template.Must(template.New("report").Parse(reportTemplate))

const contentType = "text/html; charset=utf-8"

type EvaluationReader interface {
	Get(ctx context.Context, applicationID string) (*models.EvaluationResult, error)
}

// ObjectWriter puts body at path and returns its locator. Writing the same
// path twice overwrites.
type ObjectWriter interface {
	Put(ctx context.Context, path string, body []byte, contentType string) (string, error)
}

type ReportRecorder interface {
	SetReport(ctx context.Context, applicationID, runID, locator string) error
}

// Cohort places an evaluation among all scored applicants. Optional.
type Cohort interface {
	Compare(ctx context.Context, entry index.Entry) (*index.Stats, error)
}

type Stage struct {
	evaluations EvaluationReader
	objects     ObjectWriter
	apps        ReportRecorder
	cohort      Cohort
	prefix      string
	logger      logger.Logger
	now         func() time.Time
}

// NewStage builds the report stage. cohort may be nil.
func NewStage(evaluations EvaluationReader, objects ObjectWriter, apps ReportRecorder, cohort Cohort, prefix string, log logger.Logger) *Stage {
	return &Stage{
		evaluations: evaluations,
		objects:     objects,
		apps:        apps,
		cohort:      cohort,
		prefix:      prefix,
		logger:      logger.Component(log, "report"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Path is the object path of the report for applicationID. It is the same
// for every run.
func (s *Stage) Path(applicationID string) string {
	return path.Join(s.prefix, applicationID, "report.html")
}

type checklistItem struct {
	Item string
	Met  bool
}

type view struct {
	Evaluation  *models.EvaluationResult
	Checklist   []checklistItem
	Strengths   []string
	Weaknesses  []string
	Cohort      *index.Stats
	GeneratedAt time.Time
}

// Run renders the latest evaluation of app, writes it and records the locator.
func (s *Stage) Run(ctx context.Context, app *models.Application) (string, error) {
	result, err := s.evaluations.Get(ctx, app.ApplicationID)
	if err != nil {
		return "", fmt.Errorf("load evaluation: %w", err)
	}

	body, err := Render(result, s.compare(ctx, result), s.now())
	if err != nil {
		return "", err
	}

	locator, err := s.objects.Put(ctx, s.Path(app.ApplicationID), body, contentType)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := s.apps.SetReport(ctx, app.ApplicationID, app.RunID, locator); err != nil {
		return "", fmt.Errorf("record report: %w", err)
	}

	s.logger.Info("report written", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"runId":         app.RunID,
		"locator":       locator,
		"bytes":         len(body),
	})
	return locator, nil
}

func (s *Stage) compare(ctx context.Context, result *models.EvaluationResult) *index.Stats {
	if s.cohort == nil {
		return nil
	}
	stats, err := s.cohort.Compare(ctx, index.EntryFor(result))
	if err != nil {
		s.logger.Warn("cohort comparison unavailable", map[string]interface{}{
			"applicationId": result.ApplicationID,
			"error":         err,
		})
		return nil
	}
	if !result.Scored() {
		return nil
	}
	return stats
}

// Render produces the HTML report. cohort may be nil.
func Render(result *models.EvaluationResult, cohort *index.Stats, generatedAt time.Time) ([]byte, error) {
	v := view{
		Evaluation:  result,
		Cohort:      cohort,
		GeneratedAt: generatedAt,
	}

	keys := make([]string, 0, len(result.Level1.Checklist))
	for k := range result.Level1.Checklist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Checklist = append(v.Checklist, checklistItem{Item: k, Met: result.Level1.Checklist[k]})
	}

	if l3 := result.Level3; l3 != nil {
		v.Strengths = append(v.Strengths, l3.Strengths...)
		v.Weaknesses = append(v.Weaknesses, l3.Weaknesses...)
	}
	if l4 := result.Level4; l4 != nil {
		v.Strengths = append(v.Strengths, l4.Strengths...)
		v.Weaknesses = append(v.Weaknesses, l4.Weaknesses...)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
