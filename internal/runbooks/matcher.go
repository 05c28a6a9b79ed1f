// Package runbooks queries a historical-incident document index for entries
// relevant to the current anomaly set.
package runbooks

import (
	"context"
	"log/slog"
	"sort"

	"github.com/adityaviki/sentinelops/internal/models"
)

// Index is the document-index collaborator the Matcher queries.
// WeaviateIndex is the concrete backend; tests use an in-memory fake.
type Index interface {
	Query(ctx context.Context, services []string, metrics []models.Metric) ([]models.RunbookMatch, error)
}

// Matcher ranks and truncates document-index results for one anomaly set.
type Matcher struct {
	index  Index
	limit  int
	logger *slog.Logger
	cache  *Cache
}

// New constructs a Matcher returning at most limit matches per query.
func New(index Index, limit int, cache *Cache, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 5
	}
	return &Matcher{index: index, limit: limit, cache: cache, logger: logger}
}

// Match queries the index for anomalies' services and metrics and returns up
// to K matches ordered by relevance score descending, then incident date
// descending as tiebreaker. A missing index or query error yields an empty
// list and never aborts the pipeline.
func (m *Matcher) Match(ctx context.Context, anomalies []models.Anomaly) []models.RunbookMatch {
	if m.index == nil || len(anomalies) == 0 {
		return nil
	}

	services := uniqueServices(anomalies)
	metrics := uniqueMetrics(anomalies)

	if m.cache != nil {
		key := cacheKey(services, metrics)
		if cached, ok := m.cache.Get(key); ok {
			return rankAndTruncate(cached, m.limit)
		}
		matches, err := m.index.Query(ctx, services, metrics)
		if err != nil {
			m.logger.Warn("runbook index query failed", "err", err)
			return nil
		}
		m.cache.Set(key, matches)
		return rankAndTruncate(matches, m.limit)
	}

	matches, err := m.index.Query(ctx, services, metrics)
	if err != nil {
		m.logger.Warn("runbook index query failed", "err", err)
		return nil
	}
	return rankAndTruncate(matches, m.limit)
}

func rankAndTruncate(matches []models.RunbookMatch, limit int) []models.RunbookMatch {
	sorted := append([]models.RunbookMatch(nil), matches...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].IncidentDate.After(sorted[j].IncidentDate)
	})
	return truncate(sorted, limit)
}

func truncate(matches []models.RunbookMatch, limit int) []models.RunbookMatch {
	if limit <= 0 || len(matches) <= limit {
		return matches
	}
	return matches[:limit]
}

func uniqueServices(anomalies []models.Anomaly) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range anomalies {
		if _, ok := seen[a.Service]; !ok {
			seen[a.Service] = struct{}{}
			out = append(out, a.Service)
		}
	}
	sort.Strings(out)
	return out
}

func uniqueMetrics(anomalies []models.Anomaly) []models.Metric {
	seen := make(map[models.Metric]struct{})
	var out []models.Metric
	for _, a := range anomalies {
		if _, ok := seen[a.Metric]; !ok {
			seen[a.Metric] = struct{}{}
			out = append(out, a.Metric)
		}
	}
	return out
}
