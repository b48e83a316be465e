package report

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/index"
	"admissions-workers/internal/models"
	"admissions-workers/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	err     error
}

func (m *memObjects) Put(_ context.Context, p string, body []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[p] = body
	m.puts++
	return "s3://reports/" + p, nil
}

type fakeCohort struct {
	stats *index.Stats
	err   error
	seen  []index.Entry
}

func (f *fakeCohort) Compare(_ context.Context, e index.Entry) (*index.Stats, error) {
	f.seen = append(f.seen, e)
	return f.stats, f.err
}

func scoredResult() *models.EvaluationResult {
	return &models.EvaluationResult{
		ApplicationID: "app-1",
		Level1: models.Level1Result{
			Status:    models.ScreeningPass,
			Checklist: map[string]bool{"transcript": true, "degree": true},
		},
		Level2:         &models.Level2Result{GPAScore: 80, TestScore: 80, CourseworkScore: 80, AcademicScore: 80},
		Level3:         &models.Level3Result{SOPScore: 70, LORScore: 70, ResearchScore: 70, HolisticScore: 70, Strengths: []string{"clear research agenda"}},
		Level4:         &models.Level4Result{ProgramFitScore: 90, PotentialScore: 60, CompositeScore: 76, Weaknesses: []string{"limited publications"}},
		CompositeScore: 76, FinalDecision: models.DecisionAccept,
		FundingRecommendation: models.FundingPartial,
		ComponentBreakdown:    &models.ComponentBreakdown{Academic: 32, Holistic: 24.5, ProgramFit: 13.5, Potential: 6},
		EvaluatedAt:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func setup(t *testing.T, cohort Cohort) (*Stage, *store.MemoryApplicationStore, *memObjects, *models.Application) {
	t.Helper()
	ctx := context.Background()

	apps := store.NewMemoryApplicationStore()
	require.NoError(t, apps.Create(ctx, &models.Application{ApplicationID: "app-1", Documents: map[string]string{}}))
	app, err := apps.TransitionStatus(ctx, "app-1", []models.Status{models.StatusNew},
		models.StatusUpdate{Status: models.StatusReporting, RunID: "run-1"})
	require.NoError(t, err)

	evals := store.NewMemoryEvaluationStore(apps)
	require.NoError(t, evals.Put(ctx, "run-1", scoredResult()))

	objects := &memObjects{}
	return NewStage(evals, objects, apps, cohort, "reports", logger.NewTestLogger(t)), apps, objects, app
}

func TestStage_RunWritesAndRecords(t *testing.T) {
	cohort := &fakeCohort{stats: &index.Stats{CohortSize: 12, Mean: 68.4, Percentile: 83.33}}
	stage, apps, objects, app := setup(t, cohort)

	locator, err := stage.Run(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/reports/app-1/report.html", locator)

	stored, err := apps.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, locator, stored.Report)

	html := string(objects.objects["reports/app-1/report.html"])
	assert.Contains(t, html, "ACCEPT")
	assert.Contains(t, html, "76.00")
	assert.Contains(t, html, models.FundingPartial)
	assert.Contains(t, html, "clear research agenda")
	assert.Contains(t, html, "limited publications")
	assert.Contains(t, html, "Cohort comparison")
	assert.Contains(t, html, "83.33")
	assert.Less(t, strings.Index(html, "degree"), strings.Index(html, "transcript"))

	require.Len(t, cohort.seen, 1)
	assert.True(t, cohort.seen[0].Scored)
}

func TestStage_RerunOverwritesSameLocator(t *testing.T) {
	stage, _, objects, app := setup(t, nil)

	first, err := stage.Run(context.Background(), app)
	require.NoError(t, err)
	second, err := stage.Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, objects.puts)
	assert.Len(t, objects.objects, 1)
}

func TestStage_CohortFailureDegrades(t *testing.T) {
	stage, _, objects, app := setup(t, &fakeCohort{err: stderrors.New("cluster unavailable")})

	_, err := stage.Run(context.Background(), app)
	require.NoError(t, err)
	assert.NotContains(t, string(objects.objects["reports/app-1/report.html"]), "Cohort comparison")
}

func TestStage_MissingEvaluationFails(t *testing.T) {
	stage, _, objects, app := setup(t, nil)
	app.ApplicationID = "app-2"

	_, err := stage.Run(context.Background(), app)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Zero(t, objects.puts)
}

func TestStage_StaleRunCannotRecord(t *testing.T) {
	stage, _, _, app := setup(t, nil)
	app.RunID = "run-0"

	_, err := stage.Run(context.Background(), app)
	assert.True(t, errors.Is(err, errors.ErrStaleRun))
}

func TestStage_WriteFailure(t *testing.T) {
	stage, apps, objects, app := setup(t, nil)
	objects.err = stderrors.New("access denied")

	_, err := stage.Run(context.Background(), app)
	assert.ErrorContains(t, err, "write report")

	stored, _ := apps.Get(context.Background(), "app-1")
	assert.Empty(t, stored.Report)
}

func TestRender_RejectedApplication(t *testing.T) {
	result := &models.EvaluationResult{
		ApplicationID: "app-9",
		Level1: models.Level1Result{
			Status: models.ScreeningFail,
			Notes:  "Degree not <accredited>",
		},
		FinalDecision:         models.DecisionReject,
		FundingRecommendation: models.FundingNone,
	}

	body, err := Render(result, nil, time.Now())
	require.NoError(t, err)
	html := string(body)
	assert.Contains(t, html, "REJECT")
	assert.Contains(t, html, "Degree not &lt;accredited&gt;")
	assert.NotContains(t, html, "Level 2")
	assert.NotContains(t, html, "Cohort comparison")
}
