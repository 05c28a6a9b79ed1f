// Command sentinelops runs the anomaly-detection and incident-response
// agent: it polls an observability backend on a fixed interval, correlates
// and enriches anomalies into deduplicated incidents, and serves a
// read-only HTTP/JSON API plus Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adityaviki/sentinelops/internal/analyzer"
	"github.com/adityaviki/sentinelops/internal/api"
	"github.com/adityaviki/sentinelops/internal/config"
	"github.com/adityaviki/sentinelops/internal/correlator"
	"github.com/adityaviki/sentinelops/internal/detector"
	"github.com/adityaviki/sentinelops/internal/incidents"
	"github.com/adityaviki/sentinelops/internal/metrics"
	"github.com/adityaviki/sentinelops/internal/models"
	"github.com/adityaviki/sentinelops/internal/notify"
	"github.com/adityaviki/sentinelops/internal/observability"
	"github.com/adityaviki/sentinelops/internal/runbooks"
	"github.com/adityaviki/sentinelops/internal/scheduler"
	"github.com/adityaviki/sentinelops/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal startup error", "err", err)
		os.Exit(2)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return utils.NewAppError("main.run", "register metrics", err)
	}

	obsClient := observability.New(observability.Config{
		BaseURL:             cfg.Observability.BaseURL,
		ServicesPath:        cfg.Observability.ServicesPath,
		SeriesPath:          cfg.Observability.SeriesPath,
		EventsPath:          cfg.Observability.EventsPath,
		Timeout:             cfg.Observability.Timeout,
		MaxIdleConnsPerHost: cfg.Observability.MaxIdleConnsPerHost,
	})

	startupCtx, cancel := context.WithTimeout(context.Background(), cfg.Observability.Timeout)
	if _, err := obsClient.DistinctServices(startupCtx, models.TimeRange{Start: time.Now().Add(-time.Minute), End: time.Now()}); err != nil {
		cancel()
		return utils.NewAppError("main.run", "observability backend unreachable at startup", err)
	}
	cancel()

	det := detector.New(obsClient, detector.Config{
		Thresholds: detector.Thresholds{
			P1: cfg.Detection.Thresholds.P1,
			P2: cfg.Detection.Thresholds.P2,
			P3: cfg.Detection.Thresholds.P3,
			P4: cfg.Detection.Thresholds.P4,
		},
		BaselineWindowMinutes: cfg.Detection.BaselineWindowMinutes,
		LookbackMinutes:       cfg.Polling.LookbackMinutes,
		MinDataPoints:         cfg.Detection.MinDataPoints,
	}, logger)

	corr := correlator.New(obsClient, correlator.Config{
		WindowMinutes: cfg.Correlation.WindowMinutes,
		MaxEvents:     cfg.Correlation.MaxEvents,
	})

	runbookCache := runbooks.NewCache(time.Duration(cfg.Indexes.RunbooksCacheTTLMinutes) * time.Minute)
	runbookIndex := runbooks.NewWeaviateIndex(
		cfg.Indexes.RunbooksEndpoint,
		cfg.Indexes.RunbooksAPIKey,
		cfg.Indexes.RunbooksClassName,
		cfg.Indexes.RunbooksTimeout,
	)
	matcher := runbooks.New(runbookIndex, cfg.Incidents.RunbookMatchLimit, runbookCache, logger)

	var analyze incidents.AnalyzerFunc = func(ctx context.Context, anomalies []models.Anomaly, events []models.CorrelatedEvent, matches []models.RunbookMatch) *models.Analysis {
		return nil
	}
	if cfg.AnalyzerAPIKey != "" {
		a := analyzer.New(cfg.AnalyzerAPIKey, analyzer.Config{
			Model:           cfg.Analyzer.Model,
			MaxTokens:       int64(cfg.Analyzer.MaxTokens),
			Timeout:         time.Duration(cfg.Analyzer.TimeoutSeconds) * time.Second,
			EventCharBudget: cfg.Analyzer.EventCharBudget,
		}, logger)
		analyze = a.Analyze
	} else {
		logger.Warn("analyzer api key not configured; incidents will use deterministic titles only")
	}

	store := incidents.NewStore(incidents.StoreConfig{
		MaxIncidents:         cfg.Incidents.MaxIncidents,
		DedupCooldownMinutes: cfg.Incidents.DedupCooldownMinutes,
	})

	chatNotifier := notify.NewChatNotifier(cfg.Notify.ChatWebhookURL, cfg.Notify.Timeout)
	pagingNotifier := notify.NewPagingNotifier(cfg.Notify.PagingWebhookURL, cfg.Notify.Timeout)

	manager := incidents.NewManager(store, analyze, matcher.Match, chatNotifier, pagingNotifier, incidents.ManagerConfig{
		DedupCooldownMinutes: cfg.Incidents.DedupCooldownMinutes,
		PagingSeverities:     cfg.PagingSeverities(),
	}, logger)

	tickLatencies := utils.NewLatencyTracker(1024)

	tick := func(ctx context.Context, now time.Time) {
		start := time.Now()
		outcome := metrics.OutcomeSuccess

		anomalies, err := det.Detect(ctx, now)
		if err != nil {
			logger.Error("detection failed", "err", err)
			outcome = metrics.OutcomeError
			metrics.ObserveTick(time.Since(start), outcome)
			return
		}

		events, err := corr.Correlate(ctx, anomalies)
		if err != nil {
			logger.Warn("correlation failed", "err", err)
		}

		if _, err := manager.ProcessTick(ctx, anomalies, events, now); err != nil {
			logger.Error("incident processing failed", "err", err)
			outcome = metrics.OutcomeError
		}

		duration := time.Since(start)
		tickLatencies.Observe(duration)
		metrics.ObserveTick(duration, outcome)
		if count := tickLatencies.Count(); count >= 20 && count%20 == 0 {
			logger.Info("tick latency snapshot", "p95", tickLatencies.Percentile(95), "samples", count)
		}
	}

	sched := scheduler.New(scheduler.Config{
		Interval:        time.Duration(cfg.Polling.IntervalSeconds) * time.Second,
		HardStopTimeout: cfg.Server.TickHardDeadline,
	}, tick, logger)

	apiHandler := api.NewHandler(store, obsClient, time.Duration(cfg.Polling.LookbackMinutes)*time.Minute, logger)
	apiServer, err := api.NewServer(cfg.Server.Address, api.NewMux(apiHandler), cfg.Server.GracefulTimeout)
	if err != nil {
		return utils.NewAppError("main.run", "start api server", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: metricsMux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api server listening", "address", apiServer.Address())
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped unexpectedly", "err", err)
		}
	}()

	go func() {
		logger.Info("metrics server listening", "address", cfg.Server.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped unexpectedly", "err", err)
		}
	}()

	go sched.Run(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	sched.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancelShutdown()
	apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	return nil
}
