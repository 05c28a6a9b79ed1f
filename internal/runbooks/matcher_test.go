package runbooks

import (
	"context"
	"testing"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

type fakeIndex struct {
	matches []models.RunbookMatch
	err     error
	calls   int
}

func (f *fakeIndex) Query(ctx context.Context, services []string, metrics []models.Metric) ([]models.RunbookMatch, error) {
	f.calls++
	return f.matches, f.err
}

func TestMatchOrdersByScoreThenDateDescending(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	idx := &fakeIndex{matches: []models.RunbookMatch{
		{Title: "old-high", Score: 0.9, IncidentDate: now.AddDate(0, 0, -30)},
		{Title: "new-high", Score: 0.9, IncidentDate: now.AddDate(0, 0, -1)},
		{Title: "low", Score: 0.2, IncidentDate: now},
	}}
	m := New(idx, 2, nil, nil)

	matches := m.Match(context.Background(), []models.Anomaly{{Service: "payment", Metric: models.MetricErrorRate}})
	if len(matches) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(matches))
	}
	if matches[0].Title != "new-high" {
		t.Fatalf("expected new-high first (same score, newer date), got %s", matches[0].Title)
	}
}

func TestMatchOrdersByScoreThenDateDescendingOnCacheHit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	unsorted := []models.RunbookMatch{
		{Title: "low", Score: 0.2, IncidentDate: now},
		{Title: "old-high", Score: 0.9, IncidentDate: now.AddDate(0, 0, -30)},
		{Title: "new-high", Score: 0.9, IncidentDate: now.AddDate(0, 0, -1)},
	}
	idx := &fakeIndex{matches: unsorted}
	cache := NewCache(time.Minute)
	anomalies := []models.Anomaly{{Service: "payment", Metric: models.MetricErrorRate}}
	key := cacheKey(uniqueServices(anomalies), uniqueMetrics(anomalies))
	cache.Set(key, unsorted)

	m := New(idx, 2, cache, nil)
	matches := m.Match(context.Background(), anomalies)

	if idx.calls != 0 {
		t.Fatalf("expected cache hit to skip the index query, got %d calls", idx.calls)
	}
	if len(matches) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(matches))
	}
	if matches[0].Title != "new-high" {
		t.Fatalf("expected new-high first (same score, newer date), got %s", matches[0].Title)
	}
	if matches[1].Title != "old-high" {
		t.Fatalf("expected old-high second, got %s", matches[1].Title)
	}
}

func TestMatchReturnsEmptyOnIndexError(t *testing.T) {
	idx := &fakeIndex{err: context.DeadlineExceeded}
	m := New(idx, 5, nil, nil)
	matches := m.Match(context.Background(), []models.Anomaly{{Service: "payment"}})
	if matches != nil {
		t.Fatalf("expected nil matches on index error, got %v", matches)
	}
}

func TestMatchReturnsEmptyWithoutAnomalies(t *testing.T) {
	idx := &fakeIndex{}
	m := New(idx, 5, nil, nil)
	matches := m.Match(context.Background(), nil)
	if matches != nil {
		t.Fatalf("expected nil matches for empty anomaly set")
	}
	if idx.calls != 0 {
		t.Fatalf("expected no index query for empty anomaly set")
	}
}
