package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/adityaviki/sentinelops/internal/metrics"
	"github.com/adityaviki/sentinelops/internal/models"
)

// AnalyzerFunc performs the single-attempt LLM enrichment for a candidate.
// A nil result means no usable analysis; the incident still proceeds.
type AnalyzerFunc func(ctx context.Context, anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.RunbookMatch) *models.Analysis

// RunbookMatcherFunc returns matched runbooks for a candidate's anomalies.
type RunbookMatcherFunc func(ctx context.Context, anomalies []models.Anomaly) []models.RunbookMatch

// Notifier dispatches a created incident to one downstream channel.
type Notifier interface {
	Notify(ctx context.Context, incident models.Incident) error
}

// ManagerConfig parameterizes one Incident Manager.
type ManagerConfig struct {
	DedupCooldownMinutes int
	PagingSeverities     map[string]struct{}
}

// Manager grooms anomalies into incident candidates, applies dedup against
// the Store, creates Incident records, and dispatches notifications. It
// exclusively owns mutation of Incident records; the Store owns their
// storage and order.
type Manager struct {
	store        *Store
	analyze      AnalyzerFunc
	matchRunbooks RunbookMatcherFunc
	chat         Notifier
	page         Notifier
	cfg          ManagerConfig
	logger       *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(store *Store, analyze AnalyzerFunc, matchRunbooks RunbookMatcherFunc, chat, page Notifier, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:         store,
		analyze:       analyze,
		matchRunbooks: matchRunbooks,
		chat:          chat,
		page:          page,
		cfg:           cfg,
		logger:        logger,
	}
}

// ProcessTick groups anomalies, applies dedup, creates incidents for
// surviving candidates, and fans out notifications. Anomalies and candidates
// are processed in the deterministic order produced upstream.
func (m *Manager) ProcessTick(ctx context.Context, anomalies []models.Anomaly, correlatedEvents []models.CorrelatedEvent, now time.Time) ([]models.Incident, error) {
	candidates := GroupAnomalies(anomalies, correlatedEvents)

	var created []models.Incident
	for _, candidate := range candidates {
		key := ComputeDedupKey(candidate.Anomalies)
		cooldown := time.Duration(m.cfg.DedupCooldownMinutes) * time.Minute

		if _, err := m.store.FindActiveByDedupKey(key, cooldown, now); err == nil {
			m.store.TouchDedupKey(key, now)
			metrics.ObserveIncidentSuppressed()
			m.logger.Info("dedup suppressed incident", "dedup_key", key)
			continue
		}

		runbooks := m.matchRunbooks(ctx, candidate.Anomalies)
		analysis := m.analyze(ctx, candidate.Anomalies, correlatedEvents, runbooks)

		incident := m.build(candidate.Anomalies, correlatedEvents, runbooks, analysis, key, now)
		if err := m.allocateAndPut(incident); err != nil {
			return created, err
		}

		m.dispatch(ctx, incident)
		metrics.ObserveIncidentCreated(string(incident.Severity))
		created = append(created, incident)
	}
	return created, nil
}

func (m *Manager) build(anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.RunbookMatch, analysis *models.Analysis, key models.DedupKey, now time.Time) models.Incident {
	severity := models.MaxSeverity(severitiesOf(anomalies))
	services := uniqueOrderedServices(anomalies)

	title := fallbackTitle(severity, anomalies)
	if analysis != nil && analysis.Summary != "" {
		title = analysis.Summary
	}

	return models.Incident{
		CreatedAt:        now,
		Severity:         severity,
		Title:            title,
		Services:         services,
		Anomalies:        append([]models.Anomaly(nil), anomalies...),
		CorrelatedEvents: append([]models.CorrelatedEvent(nil), events...),
		MatchedRunbooks:  append([]models.RunbookMatch(nil), runbooks...),
		Analysis:         analysis,
		DedupKey:         key,
		Status:           models.StatusActive,
	}
}

// allocateAndPut assigns an id from current UTC wallclock and retries with a
// "-N" suffix on same-second collision.
func (m *Manager) allocateAndPut(incident models.Incident) error {
	base := fmt.Sprintf("INC-%s", incident.CreatedAt.UTC().Format("20060102150405"))
	incident.ID = base
	if err := m.store.Put(incident); err == nil {
		return nil
	}
	for n := 1; ; n++ {
		incident.ID = fmt.Sprintf("%s-%d", base, n)
		err := m.store.Put(incident)
		if err == nil {
			return nil
		}
	}
}

// dispatch fans out to the chat channel (always) then the paging channel
// (severity-filtered). Both are best-effort: a failure is logged and never
// fails incident creation, which has already committed to the store by
// this point.
func (m *Manager) dispatch(ctx context.Context, incident models.Incident) {
	if m.chat != nil {
		if err := m.chat.Notify(ctx, incident); err != nil {
			m.logger.Warn("chat notifier failed", "incident_id", incident.ID, "err", err)
		}
	}

	if _, page := m.cfg.PagingSeverities[string(incident.Severity)]; page && m.page != nil {
		if err := m.page.Notify(ctx, incident); err != nil {
			m.logger.Warn("paging notifier failed", "incident_id", incident.ID, "err", err)
		}
	}
}

func fallbackTitle(severity models.Severity, anomalies []models.Anomaly) string {
	if len(anomalies) == 0 {
		return fmt.Sprintf("%s: anomaly", severity)
	}
	first := anomalies[0]
	title := fmt.Sprintf("%s: %s anomaly on %s", severity, first.Metric, first.Service)
	services := uniqueOrderedServices(anomalies)
	if len(services) > 1 {
		title += fmt.Sprintf(", %s", joinRest(services))
	}
	return title
}

func joinRest(services []string) string {
	out := ""
	for i, s := range services[1:] {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func uniqueOrderedServices(anomalies []models.Anomaly) []string {
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
