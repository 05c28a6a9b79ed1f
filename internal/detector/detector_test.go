package detector

import (
	"context"
	"testing"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

type fakeSource struct {
	services []string
	series   map[string][]models.SeriesPoint // key: service|metric|baseline|lookback
}

func (f *fakeSource) DistinctServices(ctx context.Context, window models.TimeRange) ([]string, error) {
	return f.services, nil
}

func (f *fakeSource) BucketedSeries(ctx context.Context, service string, metric models.Metric, window models.TimeRange) ([]models.SeriesPoint, error) {
	key := service + "|" + string(metric) + "|" + window.Start.Format(time.RFC3339)
	return f.series[key], nil
}

func baseConfig() Config {
	return Config{
		Thresholds:            Thresholds{P1: 5.0, P2: 3.5, P3: 2.5, P4: 2.0},
		BaselineWindowMinutes: 60,
		LookbackMinutes:       5,
		MinDataPoints:         10,
	}
}

func windows(now time.Time, cfg Config) (baseline, lookback models.TimeRange) {
	lookback = models.TimeRange{Start: now.Add(-time.Duration(cfg.LookbackMinutes) * time.Minute), End: now}
	baseline = models.TimeRange{Start: lookback.Start.Add(-time.Duration(cfg.BaselineWindowMinutes) * time.Minute), End: lookback.Start}
	return baseline, lookback
}

// TestZScoreCorrectness verifies z = (x - mean) / stddev for a known series.
func TestZScoreCorrectness(t *testing.T) {
	cfg := baseConfig()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	baseline, lookback := windows(now, cfg)

	baselinePoints := make([]models.SeriesPoint, 0, 60)
	for i := 0; i < 60; i++ {
		v := 2.0
		if i%2 == 0 {
			v = 0.0
		}
		baselinePoints = append(baselinePoints, models.SeriesPoint{Minute: baseline.Start.Add(time.Duration(i) * time.Minute), Value: v, Valid: true})
	}
	// mean = 1.0, population stddev = 1.0
	lookbackPoints := []models.SeriesPoint{{Minute: lookback.End, Value: 50, Valid: true}}

	src := &fakeSource{
		services: []string{"payment-service"},
		series: map[string][]models.SeriesPoint{
			"payment-service|error_rate|" + baseline.Start.Format(time.RFC3339): baselinePoints,
			"payment-service|error_rate|" + lookback.Start.Format(time.RFC3339): lookbackPoints,
			"payment-service|latency_p99|" + baseline.Start.Format(time.RFC3339): nil,
			"payment-service|latency_p99|" + lookback.Start.Format(time.RFC3339): nil,
		},
	}

	det := New(src, cfg, nil)
	anomalies, err := det.Detect(context.Background(), now)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("expected exactly one anomaly, got %d", len(anomalies))
	}
	a := anomalies[0]
	if a.Service != "payment-service" || a.Metric != models.MetricErrorRate {
		t.Fatalf("unexpected anomaly identity: %+v", a)
	}
	wantZ := (50.0 - 1.0) / 1.0
	if diff := a.ZScore - wantZ; diff > 0.01 || diff < -0.01 {
		t.Fatalf("expected z_score ~%.2f, got %.2f", wantZ, a.ZScore)
	}
	if a.Severity != models.SeverityP1 {
		t.Fatalf("expected P1 severity for z=%.2f, got %s", a.ZScore, a.Severity)
	}
}

// TestSeverityMonotonicity verifies severity bands transition exactly at the
// configured thresholds, inclusive at the higher severity.
func TestSeverityMonotonicity(t *testing.T) {
	cfg := baseConfig()
	d := New(nil, cfg, nil)

	cases := []struct {
		z    float64
		want models.Severity
		ok   bool
	}{
		{1.9, "", false},
		{2.0, models.SeverityP4, true},
		{2.49, models.SeverityP4, true},
		{2.5, models.SeverityP3, true},
		{3.49, models.SeverityP3, true},
		{3.5, models.SeverityP2, true},
		{4.99, models.SeverityP2, true},
		{5.0, models.SeverityP1, true},
		{9.0, models.SeverityP1, true},
	}
	for _, c := range cases {
		got, ok := d.severityFor(c.z)
		if ok != c.ok || got != c.want {
			t.Fatalf("z=%.2f: expected (%s,%v), got (%s,%v)", c.z, c.want, c.ok, got, ok)
		}
	}
}

// TestMinDataPoints verifies the detector stays silent when the baseline has
// fewer non-null buckets than min_data_points.
func TestMinDataPoints(t *testing.T) {
	cfg := baseConfig()
	cfg.MinDataPoints = 10
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	baseline, lookback := windows(now, cfg)

	// Only 6 non-null buckets, rest are gaps.
	baselinePoints := make([]models.SeriesPoint, 0, 60)
	for i := 0; i < 60; i++ {
		if i < 6 {
			baselinePoints = append(baselinePoints, models.SeriesPoint{Minute: baseline.Start.Add(time.Duration(i) * time.Minute), Value: 2.0, Valid: true})
			continue
		}
		baselinePoints = append(baselinePoints, models.SeriesPoint{Minute: baseline.Start.Add(time.Duration(i) * time.Minute), Valid: false})
	}
	lookbackPoints := []models.SeriesPoint{{Minute: lookback.End, Value: 500, Valid: true}}

	src := &fakeSource{
		services: []string{"payment-service"},
		series: map[string][]models.SeriesPoint{
			"payment-service|error_rate|" + baseline.Start.Format(time.RFC3339):  baselinePoints,
			"payment-service|error_rate|" + lookback.Start.Format(time.RFC3339):  lookbackPoints,
			"payment-service|latency_p99|" + baseline.Start.Format(time.RFC3339): nil,
			"payment-service|latency_p99|" + lookback.Start.Format(time.RFC3339): nil,
		},
	}

	det := New(src, cfg, nil)
	anomalies, err := det.Detect(context.Background(), now)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(anomalies) != 0 {
		t.Fatalf("expected no anomalies below min_data_points, got %d", len(anomalies))
	}
}
