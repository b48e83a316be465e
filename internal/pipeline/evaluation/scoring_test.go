package evaluation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"admissions-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passJudgment(gpa, test, course, sop, lor, research, fit, potential float64) *models.OracleJudgment {
	return &models.OracleJudgment{
		Level1:       models.Level1Judgment{Status: models.ScreeningPass},
		Level2:       models.Level2Judgment{GPAScore: gpa, TestScore: test, CourseworkScore: course},
		Level3:       models.Level3Judgment{SOPScore: sop, LORScore: lor, ResearchScore: research},
		Level4Inputs: models.Level4Inputs{ProgramFitScore: fit, PotentialScore: potential},
	}
}

func TestScore_EndToEndScenario(t *testing.T) {
	// academic 80, holistic 70, program fit 90, potential 60
	j := passJudgment(80, 80, 80, 70, 70, 70, 90, 60)

	res, err := Score("app-1", j, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 80.0, res.Level2.AcademicScore)
	assert.Equal(t, 70.0, res.Level3.HolisticScore)
	assert.Equal(t, 76.0, res.CompositeScore)
	assert.Equal(t, models.DecisionAccept, res.FinalDecision)
	assert.Equal(t, models.FundingPartial, res.FundingRecommendation)
	assert.Equal(t, &models.ComponentBreakdown{Academic: 32, Holistic: 24.5, ProgramFit: 13.5, Potential: 6}, res.ComponentBreakdown)
	assert.True(t, res.Scored())
}

func TestDecide_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  models.Decision
	}{
		{100, models.DecisionAccept},
		{75, models.DecisionAccept},
		{74.99, models.DecisionWaitlist},
		{55, models.DecisionWaitlist},
		{54.99, models.DecisionReject},
		{0, models.DecisionReject},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.score), "score %v", tt.score)
	}
}

func TestCompositeScore_RoundsOnce(t *testing.T) {
	// The unrounded sum is 74.991; the rounded display terms add up to more.
	score := CompositeScore(74.99, 75.01, 58.31, 99.95)
	assert.Equal(t, 74.99, score)
	assert.Equal(t, models.DecisionWaitlist, Decide(score))

	b := Breakdown(74.99, 75.01, 58.31, 99.95)
	assert.Equal(t, 30.0, b.Academic)
	assert.Equal(t, 26.25, b.Holistic)

	assert.Equal(t, 100.0, CompositeScore(100, 100, 100, 100))
	assert.Equal(t, 0.0, CompositeScore(0, 0, 0, 0))
}

func TestFunding_Bands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{85, models.FundingFull},
		{84.99, models.FundingPartial},
		{75, models.FundingPartial},
		{74.99, models.FundingConditional},
		{65, models.FundingConditional},
		{64.99, models.FundingSelf},
		{55, models.FundingSelf},
		{54.99, models.FundingNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Funding(tt.score), "score %v", tt.score)
	}
}

// Sweep the score domain: the decision depends only on the composite, the
// composite stays in range, and recomputation is stable.
func TestScore_PropertySweep(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sub := func() float64 { return math.Round(rng.Float64()*10000) / 100 }

	for i := 0; i < 5000; i++ {
		j := passJudgment(sub(), sub(), sub(), sub(), sub(), sub(), sub(), sub())
		res, err := Score("app", j, time.Time{})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, res.CompositeScore, 0.0)
		assert.LessOrEqual(t, res.CompositeScore, 100.0)
		assert.Equal(t, Decide(res.CompositeScore), res.FinalDecision)
		assert.Equal(t, Funding(res.CompositeScore), res.FundingRecommendation)

		raw := weightAcademic*res.Level2.AcademicScore + weightHolistic*res.Level3.HolisticScore +
			weightProgramFit*j.Level4Inputs.ProgramFitScore + weightPotential*j.Level4Inputs.PotentialScore
		assert.Equal(t, round2(raw), res.CompositeScore)
		assert.InDelta(t, raw, res.CompositeScore, 0.005+1e-9)

		again, err := Score("app", j, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, res.CompositeScore, again.CompositeScore)
		assert.Equal(t, res.ComponentBreakdown, again.ComponentBreakdown)
	}

	for s := 0.0; s <= 100.0; s += 0.01 {
		d := Decide(s)
		switch {
		case s >= 75:
			assert.Equal(t, models.DecisionAccept, d)
		case s >= 55:
			assert.Equal(t, models.DecisionWaitlist, d)
		default:
			assert.Equal(t, models.DecisionReject, d)
		}
	}
}

func TestScore_ScreeningShortCircuits(t *testing.T) {
	fail := &models.OracleJudgment{Level1: models.Level1Judgment{
		Status: models.ScreeningFail, Notes: "minimum GPA not met",
	}}
	res, err := Score("app", fail, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReject, res.FinalDecision)
	assert.Equal(t, models.FundingNone, res.FundingRecommendation)
	assert.Zero(t, res.CompositeScore)
	assert.Nil(t, res.Level2)
	assert.Nil(t, res.Level4)
	assert.False(t, res.Scored())

	incomplete := &models.OracleJudgment{Level1: models.Level1Judgment{
		Status: models.ScreeningIncomplete, MissingItems: []string{"lor_2"},
	}}
	res, err = Score("app", incomplete, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRequestDocuments, res.FinalDecision)
	assert.Equal(t, []string{"lor_2"}, res.Level1.MissingItems)
	assert.Nil(t, res.Level3)
}

func TestScore_RejectsOutOfRangeAndUnknownStatus(t *testing.T) {
	_, err := Score("app", passJudgment(80, 80, 80, 70, 70, 101, 90, 60), time.Time{})
	assert.ErrorContains(t, err, "research_score")

	_, err = Score("app", passJudgment(80, -1, 80, 70, 70, 70, 90, 60), time.Time{})
	assert.ErrorContains(t, err, "gre_score")

	_, err = Score("app", &models.OracleJudgment{Level1: models.Level1Judgment{Status: "MAYBE"}}, time.Time{})
	assert.Error(t, err)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, models.ConfidenceMedium, Confidence(95, models.ConfidenceMedium))
	assert.Equal(t, models.ConfidenceHigh, Confidence(95, ""))
	assert.Equal(t, models.ConfidenceHigh, Confidence(30, "unsure"))
	assert.Equal(t, models.ConfidenceMedium, Confidence(82, ""))
	assert.Equal(t, models.ConfidenceLow, Confidence(76, ""))
	assert.Equal(t, models.ConfidenceLow, Confidence(57, ""))
}
