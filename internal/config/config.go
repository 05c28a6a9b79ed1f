package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every setting recognized by SentinelOps, per the
// declarative key list in the external interfaces contract.
type Config struct {
	Polling       PollingConfig       `yaml:"polling"`
	Detection     DetectionConfig     `yaml:"detection"`
	Correlation   CorrelationConfig   `yaml:"correlation"`
	Incidents     IncidentsConfig     `yaml:"incidents"`
	Analyzer      AnalyzerConfig      `yaml:"analyzer"`
	Indexes       IndexesConfig       `yaml:"indexes"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
	Notify        NotifyConfig        `yaml:"notify"`
	Logging       LoggingConfig       `yaml:"logging"`

	// Secrets. Never populated from YAML; applyEnvOverrides only.
	AnalyzerAPIKey string `yaml:"-"`
}

// PollingConfig drives the tick scheduler.
type PollingConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	LookbackMinutes int `yaml:"lookback_minutes"`
}

// Thresholds holds the descending z-score severity bands.
type Thresholds struct {
	P1 float64 `yaml:"p1"`
	P2 float64 `yaml:"p2"`
	P3 float64 `yaml:"p3"`
	P4 float64 `yaml:"p4"`
}

// DetectionConfig parameterizes the Detector.
type DetectionConfig struct {
	Thresholds            Thresholds `yaml:"thresholds"`
	BaselineWindowMinutes int        `yaml:"baseline_window_minutes"`
	MinDataPoints         int        `yaml:"min_data_points"`
}

// CorrelationConfig parameterizes the Correlator.
type CorrelationConfig struct {
	WindowMinutes int `yaml:"window_minutes"`
	MaxEvents     int `yaml:"max_events"`
}

// IncidentsConfig parameterizes the Incident Manager and Store.
type IncidentsConfig struct {
	DedupCooldownMinutes int      `yaml:"dedup_cooldown_minutes"`
	PagerdutySeverities  []string `yaml:"pagerduty_severities"`
	MaxIncidents         int      `yaml:"max_incidents"`
	RunbookMatchLimit    int      `yaml:"runbook_match_limit"`
}

// AnalyzerConfig parameterizes the LLM enrichment call.
type AnalyzerConfig struct {
	Model           string `yaml:"model"`
	MaxTokens       int    `yaml:"max_tokens"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	EventCharBudget int    `yaml:"event_char_budget"`
}

// IndexesConfig names the backend indexes consulted each tick and the
// connection details for the historical-runbook document index.
type IndexesConfig struct {
	Logs                   string        `yaml:"logs"`
	Metrics                string        `yaml:"metrics"`
	Runbooks               string        `yaml:"runbooks"`
	RunbooksEndpoint       string        `yaml:"runbooks_endpoint"`
	RunbooksClassName      string        `yaml:"runbooks_class_name"`
	RunbooksTimeout        time.Duration `yaml:"runbooks_timeout"`
	RunbooksCacheTTLMinutes int          `yaml:"runbooks_cache_ttl_minutes"`

	// RunbooksAPIKey is never populated from YAML; applyEnvOverrides only.
	RunbooksAPIKey string `yaml:"-"`
}

// ServerConfig controls the thin HTTP read API and graceful shutdown.
type ServerConfig struct {
	Address          string        `yaml:"address"`
	MetricsAddress   string        `yaml:"metrics_address"`
	GracefulTimeout  time.Duration `yaml:"graceful_timeout"`
	TickHardDeadline time.Duration `yaml:"tick_hard_deadline"`
}

// ObservabilityConfig configures the backend client.
type ObservabilityConfig struct {
	BaseURL             string        `yaml:"base_url"`
	ServicesPath        string        `yaml:"services_path"`
	SeriesPath          string        `yaml:"series_path"`
	EventsPath          string        `yaml:"events_path"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
}

// NotifyConfig configures the chat/paging webhook endpoints.
type NotifyConfig struct {
	ChatWebhookURL   string        `yaml:"chat_webhook_url"`
	PagingWebhookURL string        `yaml:"paging_webhook_url"`
	Timeout          time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initializes Config from a YAML file and environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINELOPS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Polling: PollingConfig{
			IntervalSeconds: 60,
			LookbackMinutes: 5,
		},
		Detection: DetectionConfig{
			Thresholds:            Thresholds{P1: 5.0, P2: 3.5, P3: 2.5, P4: 2.0},
			BaselineWindowMinutes: 60,
			MinDataPoints:         10,
		},
		Correlation: CorrelationConfig{
			WindowMinutes: 10,
			MaxEvents:     200,
		},
		Incidents: IncidentsConfig{
			DedupCooldownMinutes: 30,
			PagerdutySeverities:  []string{"P1", "P2"},
			MaxIncidents:         1000,
			RunbookMatchLimit:    5,
		},
		Analyzer: AnalyzerConfig{
			Model:           "claude-sonnet-4-6",
			MaxTokens:       1024,
			TimeoutSeconds:  30,
			EventCharBudget: 4000,
		},
		Indexes: IndexesConfig{
			Logs:                    "logs",
			Metrics:                 "metrics",
			Runbooks:                "runbooks",
			RunbooksClassName:       "Runbook",
			RunbooksTimeout:         5 * time.Second,
			RunbooksCacheTTLMinutes: 10,
		},
		Server: ServerConfig{
			Address:          ":8080",
			MetricsAddress:   ":9090",
			GracefulTimeout:  10 * time.Second,
			TickHardDeadline: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServicesPath:        "/api/v1/services",
			SeriesPath:          "/api/v1/series",
			EventsPath:          "/api/v1/events",
			Timeout:             5 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINELOPS_POLLING_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Polling.IntervalSeconds = n
		}
	}
	if v := os.Getenv("SENTINELOPS_OBSERVABILITY_BASE_URL"); v != "" {
		cfg.Observability.BaseURL = v
	}
	if v := os.Getenv("SENTINELOPS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINELOPS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINELOPS_ANALYZER_MODEL"); v != "" {
		cfg.Analyzer.Model = v
	}
	if v := os.Getenv("SENTINELOPS_CHAT_WEBHOOK_URL"); v != "" {
		cfg.Notify.ChatWebhookURL = v
	}
	if v := os.Getenv("SENTINELOPS_PAGING_WEBHOOK_URL"); v != "" {
		cfg.Notify.PagingWebhookURL = v
	}
	if v := os.Getenv("SENTINELOPS_MAX_INCIDENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Incidents.MaxIncidents = n
		}
	}

	if v := os.Getenv("SENTINELOPS_RUNBOOKS_ENDPOINT"); v != "" {
		cfg.Indexes.RunbooksEndpoint = v
	}

	// Secrets: environment only, never the config file.
	if v := os.Getenv("SENTINELOPS_ANALYZER_API_KEY"); v != "" {
		cfg.AnalyzerAPIKey = v
	}
	if v := os.Getenv("SENTINELOPS_RUNBOOKS_API_KEY"); v != "" {
		cfg.Indexes.RunbooksAPIKey = v
	}
}

func (c Config) validate() error {
	if c.Polling.IntervalSeconds <= 0 {
		return fmt.Errorf("polling.interval_seconds must be positive")
	}
	if c.Detection.MinDataPoints <= 0 {
		return fmt.Errorf("detection.min_data_points must be positive")
	}
	if strings.TrimSpace(c.Observability.BaseURL) == "" {
		return fmt.Errorf("observability.base_url is required")
	}
	return nil
}

// PagingSeverities returns the configured paging severities as a set.
func (c Config) PagingSeverities() map[string]struct{} {
	out := make(map[string]struct{}, len(c.Incidents.PagerdutySeverities))
	for _, s := range c.Incidents.PagerdutySeverities {
		out[s] = struct{}{}
	}
	return out
}
