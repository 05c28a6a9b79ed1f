// Package correlator fetches related events across services within a time
// window around a set of anomalies.
package correlator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

// EventSource is the narrow collaborator interface the Correlator needs.
type EventSource interface {
	EventsInWindow(ctx context.Context, levels []models.Level, window models.TimeRange, limit int) ([]models.RawDocument, error)
}

// Config parameterizes one Correlator invocation.
type Config struct {
	WindowMinutes int
	MaxEvents     int
}

// Correlator groups related error/warn events around an anomaly set.
type Correlator struct {
	source EventSource
	cfg    Config
}

// New constructs a Correlator.
func New(source EventSource, cfg Config) *Correlator {
	return &Correlator{source: source, cfg: cfg}
}

// Correlate issues a single bounded query and returns deduplicated,
// deterministically ordered CorrelatedEvents.
func (c *Correlator) Correlate(ctx context.Context, anomalies []models.Anomaly) ([]models.CorrelatedEvent, error) {
	if len(anomalies) == 0 {
		return nil, nil
	}

	earliest := anomalies[0].DetectedAt
	for _, a := range anomalies[1:] {
		if a.DetectedAt.Before(earliest) {
			earliest = a.DetectedAt
		}
	}

	window := time.Duration(c.cfg.WindowMinutes) * time.Minute
	wantWindow := models.TimeRange{Start: earliest.Add(-window), End: earliest.Add(window)}

	docs, err := c.source.EventsInWindow(ctx, []models.Level{models.LevelError, models.LevelWarn}, wantWindow, c.cfg.MaxEvents)
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].Timestamp.Equal(docs[j].Timestamp) {
			return docs[i].Timestamp.Before(docs[j].Timestamp)
		}
		return docs[i].Service < docs[j].Service
	})

	seen := make(map[string]struct{}, len(docs))
	events := make([]models.CorrelatedEvent, 0, len(docs))
	for _, d := range docs {
		key := fmt.Sprintf("%d|%s|%s", d.Timestamp.UnixNano(), d.Service, d.Message)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		events = append(events, models.CorrelatedEvent{
			Timestamp:  d.Timestamp,
			Service:    d.Service,
			Level:      d.Level,
			Message:    d.Message,
			TraceID:    d.TraceID,
			StatusCode: d.StatusCode,
		})
		if c.cfg.MaxEvents > 0 && len(events) >= c.cfg.MaxEvents {
			break
		}
	}
	return events, nil
}
