package correlator

import (
	"context"
	"testing"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

type fakeEventSource struct {
	docs []models.RawDocument
}

func (f *fakeEventSource) EventsInWindow(ctx context.Context, levels []models.Level, window models.TimeRange, limit int) ([]models.RawDocument, error) {
	return f.docs, nil
}

func TestCorrelateDeduplicatesAndOrders(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	docs := []models.RawDocument{
		{Timestamp: now.Add(2 * time.Second), Service: "gateway", Level: models.LevelError, Message: "timeout"},
		{Timestamp: now, Service: "order", Level: models.LevelError, Message: "db down"},
		{Timestamp: now, Service: "order", Level: models.LevelError, Message: "db down"}, // duplicate
		{Timestamp: now.Add(1 * time.Second), Service: "payment", Level: models.LevelWarn, Message: "slow"},
	}
	src := &fakeEventSource{docs: docs}
	c := New(src, Config{WindowMinutes: 10, MaxEvents: 200})

	anomalies := []models.Anomaly{{Service: "order", Metric: models.MetricErrorRate, DetectedAt: now}}
	events, err := c.Correlate(context.Background(), anomalies)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 deduplicated events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("events not ascending by timestamp")
		}
	}
}

func TestCorrelateTruncatesDeterministically(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	docs := make([]models.RawDocument, 0, 50)
	for i := 0; i < 50; i++ {
		docs = append(docs, models.RawDocument{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Service:   "svc",
			Level:     models.LevelError,
			Message:   "m",
		})
	}
	src := &fakeEventSource{docs: docs}
	c := New(src, Config{WindowMinutes: 10, MaxEvents: 10})

	anomalies := []models.Anomaly{{Service: "svc", DetectedAt: now}}
	events, err := c.Correlate(context.Background(), anomalies)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("expected truncation to 10 events, got %d", len(events))
	}
	if !events[0].Timestamp.Equal(now) {
		t.Fatalf("expected truncation to keep earliest events first")
	}
}
