package models

import "time"

// Anomaly is a statistical deviation of one metric of one service in the
// current lookback window relative to its baseline.
type Anomaly struct {
	Service        string
	Metric         Metric
	CurrentValue   float64
	BaselineMean   float64
	BaselineStddev float64
	ZScore         float64
	Severity       Severity
	DetectedAt     time.Time
	SampleCount    int
}

// CorrelatedEvent is a raw log document pulled into an incident's narrative.
type CorrelatedEvent struct {
	Timestamp  time.Time
	Service    string
	Level      Level
	Message    string
	TraceID    string
	StatusCode int
}

// RunbookMatch is a historical incident record surfaced by the document index.
type RunbookMatch struct {
	Title            string
	IncidentDate     time.Time
	ServicesAffected []string
	RootCause        string
	ResolutionSteps  []string
	Tags             []string
	Score            float64
}

// Analysis is the language model's structured enrichment of an incident
// candidate. A nil *Analysis means the analyzer produced no usable result.
type Analysis struct {
	Summary          string
	RootCause        string
	Confidence       Confidence
	AffectedServices []string
	RemediationSteps []string
}
