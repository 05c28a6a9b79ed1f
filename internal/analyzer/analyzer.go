// Package analyzer composes a structured prompt from one tick's incident
// candidate and calls an external language model for enrichment.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/adityaviki/sentinelops/internal/metrics"
	"github.com/adityaviki/sentinelops/internal/models"
)

// Config parameterizes one Analyzer call.
type Config struct {
	Model           string
	MaxTokens       int64
	Timeout         time.Duration
	EventCharBudget int
}

// Analyzer calls the language model once per incident candidate per tick.
// It never retries its own call, unlike the Observability Client's single
// retry (see DESIGN.md) — a timeout or error here just means no usable
// analysis for this incident, not a retry storm against the model API.
type Analyzer struct {
	client anthropic.Client
	cfg    Config
	logger *slog.Logger
}

// New constructs an Analyzer. apiKey comes from environment configuration
// only, never from the YAML config file.
func New(apiKey string, cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Analyzer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
		logger: logger,
	}
}

// Analyze performs a single, timeout-bounded attempt. A nil result means
// the analyzer produced no usable analysis; the incident still proceeds.
func (a *Analyzer) Analyze(ctx context.Context, anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.RunbookMatch) *models.Analysis {
	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	prompt := buildPrompt(anomalies, events, runbooks, a.cfg.EventCharBudget)

	start := time.Now()
	resp, err := a.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	metrics.ObserveAnalyzerLatency(time.Since(start))
	if err != nil {
		metrics.ObserveAnalyzerFailure()
		a.logger.Warn("analyzer call failed", "err", err)
		return nil
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	analysis := parseAnalysis(text)
	if analysis == nil {
		metrics.ObserveAnalyzerFailure()
		a.logger.Warn("analyzer returned unparseable or empty-summary response")
	}
	return analysis
}

// parseAnalysis tolerantly decodes the model's JSON response: unknown keys
// are ignored, missing optional keys default to empty lists / "low"
// confidence, and an empty summary rejects the analysis as null. Built on
// gjson path lookups rather than encoding/json so that unrecognized keys
// never cause a decode error.
func parseAnalysis(text string) *models.Analysis {
	if !gjson.Valid(text) {
		return nil
	}
	result := gjson.Parse(text)

	summary := result.Get("summary").String()
	if summary == "" {
		return nil
	}

	confidence := models.Confidence(result.Get("confidence").String())
	switch confidence {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
	default:
		confidence = models.ConfidenceLow
	}

	var affected []string
	result.Get("affected_services").ForEach(func(_, v gjson.Result) bool {
		affected = append(affected, v.String())
		return true
	})

	var steps []string
	result.Get("remediation_steps").ForEach(func(_, v gjson.Result) bool {
		steps = append(steps, v.String())
		return true
	})

	return &models.Analysis{
		Summary:          summary,
		RootCause:        result.Get("root_cause").String(),
		Confidence:       confidence,
		AffectedServices: affected,
		RemediationSteps: steps,
	}
}
