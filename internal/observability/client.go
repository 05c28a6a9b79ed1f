// Package observability implements the HTTP/JSON client for the document-store
// backend that SentinelOps ingests logs and metrics from.
package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
	"github.com/adityaviki/sentinelops/internal/utils"
)

// Client issues the three read operations against the observability
// backend: distinct services, bucketed series, and raw events.
type Client struct {
	baseURL      string
	servicesPath string
	seriesPath   string
	eventsPath   string
	httpClient   *http.Client
}

// Config carries the subset of internal/config needed to build a Client,
// keeping this package independent of the config package's import graph.
type Config struct {
	BaseURL             string
	ServicesPath        string
	SeriesPath          string
	EventsPath          string
	Timeout             time.Duration
	MaxIdleConnsPerHost int
}

// New constructs a Client with a bounded per-host connection pool
// (default 10 idle connections).
func New(cfg Config) *Client {
	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 10
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdle,
		MaxConnsPerHost:     maxIdle,
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		servicesPath: cfg.ServicesPath,
		seriesPath:   cfg.SeriesPath,
		eventsPath:   cfg.EventsPath,
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
	}
}

type servicesRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type servicesResponse struct {
	Services []string `json:"services"`
}

// DistinctServices returns the set of service ids with any activity in window.
func (c *Client) DistinctServices(ctx context.Context, window models.TimeRange) ([]string, error) {
	var resp servicesResponse
	if err := c.postJSONWithRetry(ctx, c.servicesPath, servicesRequest{Start: window.Start, End: window.End}, &resp); err != nil {
		return nil, utils.NewAppError("observability.distinct_services", "query failed", err)
	}
	return resp.Services, nil
}

type seriesRequest struct {
	Service string    `json:"service"`
	Metric  string    `json:"metric"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

type seriesResponse struct {
	Points []seriesPointWire `json:"points"`
}

type seriesPointWire struct {
	Minute time.Time `json:"minute"`
	Value  float64   `json:"value"`
	Null   bool      `json:"null"`
}

// BucketedSeries returns one per-minute bucket of metric for service across window.
// Null buckets are preserved as invalid points so the caller can apply the
// min_data_points rule correctly.
func (c *Client) BucketedSeries(ctx context.Context, service string, metric models.Metric, window models.TimeRange) ([]models.SeriesPoint, error) {
	var resp seriesResponse
	req := seriesRequest{Service: service, Metric: string(metric), Start: window.Start, End: window.End}
	if err := c.postJSONWithRetry(ctx, c.seriesPath, req, &resp); err != nil {
		return nil, utils.NewAppError("observability.bucketed_series", fmt.Sprintf("query failed for %s/%s", service, metric), err)
	}
	points := make([]models.SeriesPoint, 0, len(resp.Points))
	for _, p := range resp.Points {
		points = append(points, models.SeriesPoint{Minute: p.Minute, Value: p.Value, Valid: !p.Null})
	}
	return points, nil
}

type eventsRequest struct {
	Levels []string  `json:"levels"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Limit  int       `json:"limit"`
}

type eventsResponse struct {
	Documents []documentWire `json:"documents"`
}

type documentWire struct {
	Timestamp  time.Time `json:"timestamp"`
	Service    string    `json:"service"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	TraceID    string    `json:"trace_id,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMs float64   `json:"duration_ms,omitempty"`
}

// EventsInWindow returns raw documents matching levels, ordered ascending by
// timestamp and capped at limit.
func (c *Client) EventsInWindow(ctx context.Context, levels []models.Level, window models.TimeRange, limit int) ([]models.RawDocument, error) {
	wireLevels := make([]string, len(levels))
	for i, l := range levels {
		wireLevels[i] = string(l)
	}
	var resp eventsResponse
	req := eventsRequest{Levels: wireLevels, Start: window.Start, End: window.End, Limit: limit}
	if err := c.postJSONWithRetry(ctx, c.eventsPath, req, &resp); err != nil {
		return nil, utils.NewAppError("observability.events_in_window", "query failed", err)
	}
	docs := make([]models.RawDocument, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		docs = append(docs, models.RawDocument{
			Timestamp:  d.Timestamp,
			Service:    d.Service,
			Level:      models.Level(d.Level),
			Message:    d.Message,
			TraceID:    d.TraceID,
			StatusCode: d.StatusCode,
			DurationMs: d.DurationMs,
		})
	}
	return docs, nil
}

// postJSONWithRetry retries a transient backend failure exactly once within
// the tick, then gives up and lets the caller skip and continue. The
// Analyzer alone forbids retries; every other consumer of the backend gets
// this single-retry behavior.
func (c *Client) postJSONWithRetry(ctx context.Context, path string, body, out any) error {
	err := c.postJSON(ctx, path, body, out)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return c.postJSON(ctx, path, body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolvePath(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) resolvePath(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}
