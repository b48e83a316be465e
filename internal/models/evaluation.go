// internal/models/evaluation.go
package models

import "time"

// Decision is the composite admission outcome.
type Decision string

const (
	DecisionAccept           Decision = "ACCEPT"
	DecisionWaitlist         Decision = "WAITLIST"
	DecisionReject           Decision = "REJECT"
	DecisionRequestDocuments Decision = "REQUEST_DOCUMENTS"
)

// ScreeningStatus is the Level 1 eligibility gate.
type ScreeningStatus string

const (
	ScreeningPass       ScreeningStatus = "PASS"
	ScreeningFail       ScreeningStatus = "FAIL"
	ScreeningIncomplete ScreeningStatus = "INCOMPLETE"
)

const (
	FundingFull        = "Full Assistantship"
	FundingPartial     = "Partial Assistantship"
	FundingConditional = "Conditional Assistantship"
	FundingSelf        = "Self-Funded"
	FundingNone        = "None"
)

const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// OracleJudgment is the structured answer returned by the evaluation oracle.
type OracleJudgment struct {
	Level1       Level1Judgment `json:"level1"`
	Level2       Level2Judgment `json:"level2"`
	Level3       Level3Judgment `json:"level3"`
	Level4Inputs Level4Inputs   `json:"level4_inputs"`
}

type Level1Judgment struct {
	Status       ScreeningStatus `json:"status"`
	Checklist    map[string]bool `json:"checklist,omitempty"`
	MissingItems []string        `json:"missing_items,omitempty"`
	Notes        string          `json:"processing_notes,omitempty"`
}

type Level2Judgment struct {
	GPAScore         float64 `json:"gpa_score"`
	TestScore        float64 `json:"gre_score"`
	CourseworkScore  float64 `json:"coursework_score"`
	Status           string  `json:"status,omitempty"`
	DetailedAnalysis string  `json:"detailed_analysis,omitempty"`
}

type Level3Judgment struct {
	SOPScore         float64  `json:"sop_score"`
	LORScore         float64  `json:"lor_score"`
	ResearchScore    float64  `json:"research_score"`
	Strengths        []string `json:"strengths,omitempty"`
	Weaknesses       []string `json:"weaknesses,omitempty"`
	Status           string   `json:"status,omitempty"`
	NarrativeSummary string   `json:"narrative_summary,omitempty"`
}

type Level4Inputs struct {
	ProgramFitScore  float64  `json:"program_fit_score"`
	PotentialScore   float64  `json:"potential_score"`
	ConfidenceLevel  string   `json:"confidence_level,omitempty"`
	Strengths        []string `json:"strengths,omitempty"`
	Weaknesses       []string `json:"weaknesses,omitempty"`
	FundingRationale string   `json:"funding_rationale,omitempty"`
}

// EvaluationResult is the persisted four-level evaluation of one application.
type EvaluationResult struct {
	ApplicationID         string              `json:"application_id"`
	Version               int                 `json:"version"`
	Level1                Level1Result        `json:"level1"`
	Level2                *Level2Result       `json:"level2,omitempty"`
	Level3                *Level3Result       `json:"level3,omitempty"`
	Level4                *Level4Result       `json:"level4,omitempty"`
	CompositeScore        float64             `json:"composite_score"`
	FinalDecision         Decision            `json:"final_decision"`
	ConfidenceLevel       string              `json:"confidence_level,omitempty"`
	FundingRecommendation string              `json:"funding_recommendation"`
	ComponentBreakdown    *ComponentBreakdown `json:"component_breakdown,omitempty"`
	EvaluatedAt           time.Time           `json:"evaluated_at"`
}

type Level1Result struct {
	Status       ScreeningStatus `json:"status"`
	Checklist    map[string]bool `json:"checklist,omitempty"`
	MissingItems []string        `json:"missing_items,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type Level2Result struct {
	GPAScore         float64 `json:"gpa_score"`
	TestScore        float64 `json:"test_score"`
	CourseworkScore  float64 `json:"coursework_score"`
	AcademicScore    float64 `json:"academic_score"`
	DetailedAnalysis string  `json:"detailed_analysis,omitempty"`
}

type Level3Result struct {
	SOPScore         float64  `json:"sop_score"`
	LORScore         float64  `json:"lor_score"`
	ResearchScore    float64  `json:"research_score"`
	HolisticScore    float64  `json:"holistic_score"`
	Strengths        []string `json:"strengths,omitempty"`
	Weaknesses       []string `json:"weaknesses,omitempty"`
	NarrativeSummary string   `json:"narrative_summary,omitempty"`
}

type Level4Result struct {
	ProgramFitScore  float64  `json:"program_fit_score"`
	PotentialScore   float64  `json:"potential_score"`
	CompositeScore   float64  `json:"composite_score"`
	Strengths        []string `json:"strengths,omitempty"`
	Weaknesses       []string `json:"weaknesses,omitempty"`
	FundingRationale string   `json:"funding_rationale,omitempty"`
}

// ComponentBreakdown holds each level's weighted contribution to the composite score.
type ComponentBreakdown struct {
	Academic   float64 `json:"academic"`
	Holistic   float64 `json:"holistic"`
	ProgramFit float64 `json:"program_fit"`
	Potential  float64 `json:"potential"`
}

// Scored reports whether composite scoring ran (Level 1 passed).
func (e *EvaluationResult) Scored() bool {
	return e.Level4 != nil
}
