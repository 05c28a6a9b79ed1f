package incidents

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/adityaviki/sentinelops/internal/models"
)

// ComputeDedupKey derives the deterministic digest of an incident
// candidate's (sorted services, sorted metrics, severity) tuple. The key is
// standardized per-incident (the whole grouped candidate), not per-anomaly.
func ComputeDedupKey(anomalies []models.Anomaly) models.DedupKey {
	services := make([]string, 0, len(anomalies))
	metrics := make([]string, 0, len(anomalies))
	seenService := make(map[string]struct{})
	seenMetric := make(map[string]struct{})

	for _, a := range anomalies {
		if _, ok := seenService[a.Service]; !ok {
			seenService[a.Service] = struct{}{}
			services = append(services, a.Service)
		}
		if _, ok := seenMetric[string(a.Metric)]; !ok {
			seenMetric[string(a.Metric)] = struct{}{}
			metrics = append(metrics, string(a.Metric))
		}
	}
	sort.Strings(services)
	sort.Strings(metrics)

	severity := models.MaxSeverity(severitiesOf(anomalies))

	digestInput := strings.Join(services, ",") + "|" + strings.Join(metrics, ",") + "|" + string(severity)
	sum := sha256.Sum256([]byte(digestInput))
	return models.DedupKey(hex.EncodeToString(sum[:]))
}

func severitiesOf(anomalies []models.Anomaly) []models.Severity {
	out := make([]models.Severity, len(anomalies))
	for i, a := range anomalies {
		out[i] = a.Severity
	}
	return out
}
