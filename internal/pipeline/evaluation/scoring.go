package evaluation

import (
	"fmt"
	"math"
	"time"

	"admissions-workers/internal/models"
)

// Level 2 academic weights.
const (
	weightGPA        = 0.50
	weightTest       = 0.35
	weightCoursework = 0.15
)

// Level 3 holistic weights.
const (
	weightSOP      = 0.30
	weightLOR      = 0.40
	weightResearch = 0.30
)

// Level 4 composite weights.
const (
	weightAcademic   = 0.40
	weightHolistic   = 0.35
	weightProgramFit = 0.15
	weightPotential  = 0.10
)

// Decision thresholds.
const (
	AcceptThreshold   = 75.0
	WaitlistThreshold = 55.0
)

// AcademicScore is the Level 2 weighted sum.
func AcademicScore(gpa, test, coursework float64) float64 {
	return round2(weightGPA*gpa + weightTest*test + weightCoursework*coursework)
}

// HolisticScore is the Level 3 weighted sum.
func HolisticScore(sop, lor, research float64) float64 {
	return round2(weightSOP*sop + weightLOR*lor + weightResearch*research)
}

// CompositeScore is the Level 4 weighted sum, rounded once and clamped to
// [0, 100].
func CompositeScore(academic, holistic, programFit, potential float64) float64 {
	sum := weightAcademic*academic + weightHolistic*holistic +
		weightProgramFit*programFit + weightPotential*potential
	return clamp(round2(sum), 0, 100)
}

// Breakdown returns each level's weighted contribution, rounded for display.
// Its parts need not add up to CompositeScore.
func Breakdown(academic, holistic, programFit, potential float64) models.ComponentBreakdown {
	return models.ComponentBreakdown{
		Academic:   round2(weightAcademic * academic),
		Holistic:   round2(weightHolistic * holistic),
		ProgramFit: round2(weightProgramFit * programFit),
		Potential:  round2(weightPotential * potential),
	}
}

// Decide maps a composite score onto the fixed thresholds.
func Decide(score float64) models.Decision {
	switch {
	case score >= AcceptThreshold:
		return models.DecisionAccept
	case score >= WaitlistThreshold:
		return models.DecisionWaitlist
	default:
		return models.DecisionReject
	}
}

// Funding is the assistantship band for a composite score.
func Funding(score float64) string {
	switch {
	case score >= 85:
		return models.FundingFull
	case score >= 75:
		return models.FundingPartial
	case score >= 65:
		return models.FundingConditional
	case score >= 55:
		return models.FundingSelf
	default:
		return models.FundingNone
	}
}

// Confidence keeps a valid oracle-supplied level, otherwise derives one from
// the distance to the nearest decision threshold.
func Confidence(score float64, supplied string) string {
	switch supplied {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
		return supplied
	}
	d := math.Min(math.Abs(score-AcceptThreshold), math.Abs(score-WaitlistThreshold))
	switch {
	case d >= 10:
		return models.ConfidenceHigh
	case d >= 5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// Score turns an oracle judgment into an EvaluationResult. It performs no I/O.
// A failed or incomplete screening stops at Level 1.
func Score(applicationID string, j *models.OracleJudgment, evaluatedAt time.Time) (*models.EvaluationResult, error) {
	result := &models.EvaluationResult{
		ApplicationID: applicationID,
		Level1: models.Level1Result{
			Status:       j.Level1.Status,
			Checklist:    j.Level1.Checklist,
			MissingItems: j.Level1.MissingItems,
			Notes:        j.Level1.Notes,
		},
		EvaluatedAt: evaluatedAt,
	}

	switch j.Level1.Status {
	case models.ScreeningFail:
		result.FinalDecision = models.DecisionReject
		result.FundingRecommendation = models.FundingNone
		result.ConfidenceLevel = models.ConfidenceHigh
		return result, nil
	case models.ScreeningIncomplete:
		result.FinalDecision = models.DecisionRequestDocuments
		result.FundingRecommendation = models.FundingNone
		return result, nil
	case models.ScreeningPass:
	default:
		return nil, fmt.Errorf("unknown screening status %q", j.Level1.Status)
	}

	l2, l3, l4 := j.Level2, j.Level3, j.Level4Inputs
	if err := checkRange(map[string]float64{
		"gpa_score":         l2.GPAScore,
		"gre_score":         l2.TestScore,
		"coursework_score":  l2.CourseworkScore,
		"sop_score":         l3.SOPScore,
		"lor_score":         l3.LORScore,
		"research_score":    l3.ResearchScore,
		"program_fit_score": l4.ProgramFitScore,
		"potential_score":   l4.PotentialScore,
	}); err != nil {
		return nil, err
	}

	academic := AcademicScore(l2.GPAScore, l2.TestScore, l2.CourseworkScore)
	holistic := HolisticScore(l3.SOPScore, l3.LORScore, l3.ResearchScore)
	composite := CompositeScore(academic, holistic, l4.ProgramFitScore, l4.PotentialScore)
	breakdown := Breakdown(academic, holistic, l4.ProgramFitScore, l4.PotentialScore)

	result.Level2 = &models.Level2Result{
		GPAScore:         l2.GPAScore,
		TestScore:        l2.TestScore,
		CourseworkScore:  l2.CourseworkScore,
		AcademicScore:    academic,
		DetailedAnalysis: l2.DetailedAnalysis,
	}
	result.Level3 = &models.Level3Result{
		SOPScore:         l3.SOPScore,
		LORScore:         l3.LORScore,
		ResearchScore:    l3.ResearchScore,
		HolisticScore:    holistic,
		Strengths:        l3.Strengths,
		Weaknesses:       l3.Weaknesses,
		NarrativeSummary: l3.NarrativeSummary,
	}
	result.Level4 = &models.Level4Result{
		ProgramFitScore:  l4.ProgramFitScore,
		PotentialScore:   l4.PotentialScore,
		CompositeScore:   composite,
		Strengths:        l4.Strengths,
		Weaknesses:       l4.Weaknesses,
		FundingRationale: l4.FundingRationale,
	}
	result.CompositeScore = composite
	result.FinalDecision = Decide(composite)
	result.FundingRecommendation = Funding(composite)
	result.ConfidenceLevel = Confidence(composite, l4.ConfidenceLevel)
	result.ComponentBreakdown = &breakdown
	return result, nil
}

func checkRange(scores map[string]float64) error {
	for name, v := range scores {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return fmt.Errorf("%s out of range: %v", name, v)
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
