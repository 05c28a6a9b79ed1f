package analyzer

import (
	"fmt"
	"strings"

	"github.com/adityaviki/sentinelops/internal/models"
)

// buildPrompt composes a single structured request conveying anomalies,
// correlated events (truncated to a character budget), and matched runbooks
// (title + root_cause only).
func buildPrompt(anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.RunbookMatch, eventCharBudget int) string {
	var b strings.Builder

	b.WriteString("You are SentinelOps, an incident-response analyst. Given the anomalies, ")
	b.WriteString("correlated events, and historical runbooks below, produce a structured analysis.\n\n")

	b.WriteString("## Anomalies\n")
	for _, a := range anomalies {
		fmt.Fprintf(&b, "- service=%s metric=%s current=%.2f baseline_mean=%.2f baseline_stddev=%.2f z_score=%.2f severity=%s\n",
			a.Service, a.Metric, a.CurrentValue, a.BaselineMean, a.BaselineStddev, a.ZScore, a.Severity)
	}

	if len(events) > 0 {
		b.WriteString("\n## Correlated events\n")
		writeEventsWithinBudget(&b, events, eventCharBudget)
	}

	if len(runbooks) > 0 {
		b.WriteString("\n## Matched runbooks\n")
		for _, r := range runbooks {
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.RootCause)
		}
	}

	b.WriteString("\nRespond with ONLY raw JSON, no markdown fences, matching exactly this shape:\n")
	b.WriteString(`{"summary":"...","root_cause":"...","confidence":"high|medium|low","affected_services":["..."],"remediation_steps":["..."]}`)
	b.WriteString("\n")

	return b.String()
}

func writeEventsWithinBudget(b *strings.Builder, events []models.CorrelatedEvent, budget int) {
	if budget <= 0 {
		budget = 4000
	}
	spent := 0
	for _, e := range events {
		line := fmt.Sprintf("- [%s] %s %s: %s\n", e.Timestamp.Format("15:04:05"), e.Service, e.Level, e.Message)
		if spent+len(line) > budget {
			break
		}
		b.WriteString(line)
		spent += len(line)
	}
}
