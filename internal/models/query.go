package models

import "time"

// TimeRange bounds a query window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SeriesPoint is one bucket of a per-minute aggregate series. Null buckets
// (no data that minute) are represented by Valid=false and must not be
// counted toward baseline statistics.
type SeriesPoint struct {
	Minute time.Time
	Value  float64
	Valid  bool
}

// RawDocument is one log/event row as returned by the observability backend.
type RawDocument struct {
	Timestamp  time.Time
	Service    string
	Level      Level
	Message    string
	TraceID    string
	StatusCode int
	DurationMs float64
}
