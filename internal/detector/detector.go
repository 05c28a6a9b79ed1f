// Package detector computes per-service, per-metric z-scores against a
// rolling baseline and classifies the result into a severity band.
package detector

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/adityaviki/sentinelops/internal/metrics"
	"github.com/adityaviki/sentinelops/internal/models"
)

// SeriesSource is the subset of the observability client the Detector needs,
// narrowed to a small collaborator interface.
type SeriesSource interface {
	DistinctServices(ctx context.Context, window models.TimeRange) ([]string, error)
	BucketedSeries(ctx context.Context, service string, metric models.Metric, window models.TimeRange) ([]models.SeriesPoint, error)
}

// Thresholds are the descending z-score bands that determine severity.
type Thresholds struct {
	P1, P2, P3, P4 float64
}

// Config parameterizes one Detector invocation.
type Config struct {
	Thresholds            Thresholds
	BaselineWindowMinutes int
	LookbackMinutes       int
	MinDataPoints         int
}

var allMetrics = []models.Metric{models.MetricErrorRate, models.MetricLatencyP99}

// Detector evaluates every active service against baseline statistics.
type Detector struct {
	source SeriesSource
	cfg    Config
	logger *slog.Logger
}

// New constructs a Detector.
func New(source SeriesSource, cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{source: source, cfg: cfg, logger: logger}
}

// Detect runs one tick's worth of anomaly detection and returns anomalies in
// deterministic (service, metric) order.
func (d *Detector) Detect(ctx context.Context, now time.Time) ([]models.Anomaly, error) {
	lookback := models.TimeRange{Start: now.Add(-time.Duration(d.cfg.LookbackMinutes) * time.Minute), End: now}
	baselineEnd := lookback.Start
	baseline := models.TimeRange{Start: baselineEnd.Add(-time.Duration(d.cfg.BaselineWindowMinutes) * time.Minute), End: baselineEnd}

	services, err := d.source.DistinctServices(ctx, models.TimeRange{Start: baseline.Start, End: lookback.End})
	if err != nil {
		return nil, err
	}
	sort.Strings(services)

	type job struct {
		service string
		metric  models.Metric
	}
	jobs := make([]job, 0, len(services)*len(allMetrics))
	for _, svc := range services {
		for _, m := range allMetrics {
			jobs = append(jobs, job{service: svc, metric: m})
		}
	}

	results := make([]*models.Anomaly, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			anomaly, skip := d.evaluate(ctx, j.service, j.metric, baseline, lookback, now)
			if skip {
				return
			}
			results[i] = anomaly
		}(i, j)
	}
	wg.Wait()

	anomalies := make([]models.Anomaly, 0, len(results))
	for _, a := range results {
		if a != nil {
			anomalies = append(anomalies, *a)
			metrics.ObserveAnomaly(string(a.Severity))
		}
	}
	sort.Slice(anomalies, func(i, j int) bool {
		if anomalies[i].Service != anomalies[j].Service {
			return anomalies[i].Service < anomalies[j].Service
		}
		return anomalies[i].Metric < anomalies[j].Metric
	})
	return anomalies, nil
}

// evaluate computes one service+metric pair. A query failure here is logged
// and skipped; it does not abort the tick.
func (d *Detector) evaluate(ctx context.Context, service string, metric models.Metric, baseline, lookback models.TimeRange, now time.Time) (*models.Anomaly, bool) {
	baselinePoints, err := d.source.BucketedSeries(ctx, service, metric, baseline)
	if err != nil {
		d.logger.Warn("baseline series query failed", "service", service, "metric", metric, "err", err)
		return nil, true
	}
	lookbackPoints, err := d.source.BucketedSeries(ctx, service, metric, lookback)
	if err != nil {
		d.logger.Warn("lookback series query failed", "service", service, "metric", metric, "err", err)
		return nil, true
	}

	mean, stddev, count := baselineStats(baselinePoints)
	if count < d.cfg.MinDataPoints {
		return nil, true
	}

	current := aggregate(lookbackPoints, metric)
	z := 0.0
	if stddev > 0 {
		z = (current - mean) / stddev
	}
	if z < 0 {
		z = 0
	}
	if stddev == 0 {
		// A flat baseline carries no signal; discard rather than report z=0.
		return nil, true
	}

	severity, ok := d.severityFor(z)
	if !ok {
		return nil, true
	}

	return &models.Anomaly{
		Service:        service,
		Metric:         metric,
		CurrentValue:   current,
		BaselineMean:   mean,
		BaselineStddev: stddev,
		ZScore:         z,
		Severity:       severity,
		DetectedAt:     now,
		SampleCount:    count,
	}, false
}

// severityFor returns the highest threshold band z clears, or false if it
// clears none (not an anomaly).
func (d *Detector) severityFor(z float64) (models.Severity, bool) {
	switch {
	case z >= d.cfg.Thresholds.P1:
		return models.SeverityP1, true
	case z >= d.cfg.Thresholds.P2:
		return models.SeverityP2, true
	case z >= d.cfg.Thresholds.P3:
		return models.SeverityP3, true
	case z >= d.cfg.Thresholds.P4:
		return models.SeverityP4, true
	default:
		return "", false
	}
}

// baselineStats computes the mean, population stddev, and count of valid
// (non-null) buckets.
func baselineStats(points []models.SeriesPoint) (mean, stddev float64, count int) {
	var sum float64
	for _, p := range points {
		if !p.Valid {
			continue
		}
		sum += p.Value
		count++
	}
	if count == 0 {
		return 0, 0, 0
	}
	mean = sum / float64(count)

	var variance float64
	for _, p := range points {
		if !p.Valid {
			continue
		}
		d := p.Value - mean
		variance += d * d
	}
	variance /= float64(count)
	stddev = math.Sqrt(variance)
	return mean, stddev, count
}

// aggregate reduces the lookback window to a single current value: the
// latest valid bucket for latency_p99, the sum for error_rate counts.
func aggregate(points []models.SeriesPoint, metric models.Metric) float64 {
	if metric == models.MetricLatencyP99 {
		for i := len(points) - 1; i >= 0; i-- {
			if points[i].Valid {
				return points[i].Value
			}
		}
		return 0
	}
	var total float64
	for _, p := range points {
		if p.Valid {
			total += p.Value
		}
	}
	return total
}
