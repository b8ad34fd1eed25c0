package analyses

import "time"

// Step is a state-machine state of the analysis pipeline.
type Step string

const (
	StepPending        Step = "pending"
	StepIngesting      Step = "ingesting"
	StepIndexing       Step = "indexing"
	StepDetecting      Step = "detecting_domain"
	StepAwaitingIntent Step = "awaiting_intent"
	StepAnalyzing      Step = "analyzing"
	StepScoring        Step = "scoring"
	StepPersisting     Step = "persisting"
	StepComplete       Step = "complete"
	StepError          Step = "error"
	StepCancelled      Step = "cancelled"
)

// Terminal reports whether no further automatic progression happens from s.
func (s Step) Terminal() bool {
	return s == StepComplete || s == StepError || s == StepCancelled
}

// KeyTerm is one explained contract term.
type KeyTerm struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
}

// RedFlag is one finding surfaced by the analysis stage. SourceText must be a
// verbatim quotation from the document.
type RedFlag struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Severity           string   `json:"severity"`
	Summary            string   `json:"summary"`
	Explanation        string   `json:"explanation"`
	SourceText         string   `json:"source_text"`
	PageNumber         int      `json:"page_number,omitempty"`
	Recommendation     string   `json:"recommendation"`
	QuestionsToAsk     []string `json:"questions_to_ask,omitempty"`
	SuggestedChanges   []string `json:"suggested_changes,omitempty"`
	ProfessionalAdvice string   `json:"professional_advice,omitempty"`
}

// Severity order, worst first.
var severityRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
	"info":     4,
}

// SeverityRank returns the sort rank for a severity; unknown severities sort
// last.
func SeverityRank(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return len(severityRank)
}

// ScoreComponents are the four scoring sub-scores.
type ScoreComponents struct {
	RedFlag      int `json:"red_flag"`
	Completeness int `json:"completeness"`
	Clarity      int `json:"clarity"`
	Fairness     int `json:"fairness"`
}

// Analysis is one document analysis job and its accumulated pipeline state.
type Analysis struct {
	ID                string           `json:"id"`
	DocumentNames     []string         `json:"documentNames"`
	Language          string           `json:"language,omitempty"`
	Domain            string           `json:"domain,omitempty"`
	DomainConfidence  float64          `json:"domainConfidence,omitempty"`
	DomainReasoning   string           `json:"domainReasoning,omitempty"`
	SelectedIntent    string           `json:"selectedIntent,omitempty"`
	CustomIntent      string           `json:"customIntent,omitempty"`
	CurrentStep       Step             `json:"currentStep"`
	OverallScore      *int             `json:"overallScore,omitempty"`
	ScoreComponents   *ScoreComponents `json:"scoreComponents,omitempty"`
	DocumentSummary   string           `json:"documentSummary,omitempty"`
	ExecutiveSummary  string           `json:"executiveSummary,omitempty"`
	OverallAssessment string           `json:"overallAssessment,omitempty"`
	KeyTerms          []KeyTerm        `json:"keyTerms,omitempty"`
	MainObligations   []string         `json:"mainObligations,omitempty"`
	RedFlags          []RedFlag        `json:"redFlags,omitempty"`
	PositiveNotes     []string         `json:"positiveNotes,omitempty"`
	Warnings          []string         `json:"warnings,omitempty"`
	CancelRequested   bool             `json:"-"`
	ErrorMessage      string           `json:"errorMessage,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
}
