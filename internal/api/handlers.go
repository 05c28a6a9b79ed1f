package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adityaviki/sentinelops/internal/incidents"
	"github.com/adityaviki/sentinelops/internal/models"
	"github.com/adityaviki/sentinelops/internal/utils"
)

// IncidentLister is the subset of the Incident Store the API needs.
type IncidentLister interface {
	Get(id string, now time.Time) (models.Incident, error)
	List(limit, offset int, now time.Time) []models.Incident
	Count() int
}

// ServiceLister is the subset of the observability client the API needs.
type ServiceLister interface {
	DistinctServices(ctx context.Context, window models.TimeRange) ([]string, error)
}

// Handler holds the dependencies the HTTP routes read from.
type Handler struct {
	store    IncidentLister
	services ServiceLister
	window   time.Duration
	logger   *slog.Logger
}

// NewHandler constructs a Handler. window bounds how far back /services
// looks when listing distinct services.
func NewHandler(store IncidentLister, services ServiceLister, window time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, services: services, window: window, logger: logger}
}

// NewMux builds the routing table for the read API.
func NewMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /services", h.handleServices)
	mux.HandleFunc("GET /incidents", h.handleIncidentsList)
	mux.HandleFunc("GET /incidents/{id}", h.handleIncidentGet)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{Status: "ok", IncidentsTracked: h.store.Count()})
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	window := models.TimeRange{Start: now.Add(-h.window), End: now}

	services, err := h.services.DistinctServices(r.Context(), window)
	if err != nil {
		h.logger.Warn("services lookup failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "services lookup failed"})
		return
	}

	rollup := make(map[string]*serviceWire, len(services))
	order := make([]string, 0, len(services))
	for _, svc := range services {
		rollup[svc] = &serviceWire{Service: svc, Anomalies: []serviceAnomalyWire{}}
		order = append(order, svc)
	}

	for _, inc := range h.store.List(0, 0, now) {
		if inc.CreatedAt.Before(window.Start) {
			continue
		}
		touched := make(map[string]struct{})
		for _, a := range inc.Anomalies {
			sw, ok := rollup[a.Service]
			if !ok {
				sw = &serviceWire{Service: a.Service, Anomalies: []serviceAnomalyWire{}}
				rollup[a.Service] = sw
				order = append(order, a.Service)
			}
			sw.Anomalies = append(sw.Anomalies, serviceAnomalyWire{Metric: string(a.Metric), ZScore: a.ZScore})
			if a.Severity.Worse(models.Severity(sw.WorstSeverity)) {
				sw.WorstSeverity = string(a.Severity)
			}
			touched[a.Service] = struct{}{}
		}
		for svc := range touched {
			rollup[svc].IncidentCount++
		}
	}

	out := make([]serviceWire, 0, len(order))
	for _, svc := range order {
		sw := rollup[svc]
		sw.Status = string(deriveServiceStatus(models.Severity(sw.WorstSeverity)))
		out = append(out, *sw)
	}
	writeJSON(w, http.StatusOK, servicesResponse{Services: out})
}

// deriveServiceStatus maps a service's worst anomaly severity in the window
// to its health rollup status: critical on any P1, warning on any P2,
// degraded on P3/P4, healthy otherwise.
func deriveServiceStatus(worst models.Severity) models.ServiceStatus {
	switch worst {
	case models.SeverityP1:
		return models.ServiceCritical
	case models.SeverityP2:
		return models.ServiceWarning
	case models.SeverityP3, models.SeverityP4:
		return models.ServiceDegraded
	default:
		return models.ServiceHealthy
	}
}

func (h *Handler) handleIncidentsList(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)
	now := time.Now().UTC()

	incidentsList := h.store.List(limit, offset, now)
	wire := make([]incidentWire, 0, len(incidentsList))
	for _, inc := range incidentsList {
		wire = append(wire, toIncidentWire(inc, now))
	}
	writeJSON(w, http.StatusOK, incidentsListResponse{
		Incidents: wire,
		Total:     h.store.Count(),
	})
}

func (h *Handler) handleIncidentGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	now := time.Now().UTC()

	inc, err := h.store.Get(id, now)
	if err != nil {
		if err == incidents.ErrNotFound {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "incident not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, toIncidentWire(inc, now))
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
}

type healthBody struct {
	Status           string `json:"status"`
	IncidentsTracked int    `json:"incidents_tracked"`
}

type servicesResponse struct {
	Services []serviceWire `json:"services"`
}

type serviceWire struct {
	Service       string               `json:"service"`
	Status        string               `json:"status"`
	WorstSeverity string               `json:"worst_severity,omitempty"`
	IncidentCount int                  `json:"incident_count"`
	Anomalies     []serviceAnomalyWire `json:"anomalies"`
}

type serviceAnomalyWire struct {
	Metric string  `json:"metric"`
	ZScore float64 `json:"z_score"`
}

type incidentsListResponse struct {
	Incidents []incidentWire `json:"incidents"`
	Total     int            `json:"total"`
}

type incidentWire struct {
	ID               string        `json:"id"`
	CreatedAt        time.Time     `json:"created_at"`
	AgeMinutes       float64       `json:"age_minutes"`
	Severity         string        `json:"severity"`
	Status           string        `json:"status"`
	Title            string        `json:"title"`
	Services         []string      `json:"services"`
	Anomalies        []anomalyWire `json:"anomalies"`
	CorrelatedEvents []eventWire   `json:"correlated_events"`
	MatchedRunbooks  []runbookWire `json:"matched_runbooks"`
	Analysis         *analysisWire `json:"analysis,omitempty"`
	DedupKey         string        `json:"dedup_key"`
}

type anomalyWire struct {
	Service        string  `json:"service"`
	Metric         string  `json:"metric"`
	CurrentValue   float64 `json:"current_value"`
	BaselineMean   float64 `json:"baseline_mean"`
	BaselineStddev float64 `json:"baseline_stddev"`
	ZScore         float64 `json:"z_score"`
	Severity       string  `json:"severity"`
}

type eventWire struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type runbookWire struct {
	Title          string  `json:"title"`
	RootCause      string  `json:"root_cause"`
	RelevanceScore float64 `json:"relevance_score"`
}

type analysisWire struct {
	Summary          string   `json:"summary"`
	Confidence       string   `json:"confidence"`
	AffectedServices []string `json:"affected_services"`
	RemediationSteps []string `json:"remediation_steps"`
}

func toIncidentWire(inc models.Incident, now time.Time) incidentWire {
	anomalies := make([]anomalyWire, 0, len(inc.Anomalies))
	for _, a := range inc.Anomalies {
		anomalies = append(anomalies, anomalyWire{
			Service:        a.Service,
			Metric:         string(a.Metric),
			CurrentValue:   a.CurrentValue,
			BaselineMean:   a.BaselineMean,
			BaselineStddev: a.BaselineStddev,
			ZScore:         a.ZScore,
			Severity:       string(a.Severity),
		})
	}
	events := make([]eventWire, 0, len(inc.CorrelatedEvents))
	for _, e := range inc.CorrelatedEvents {
		events = append(events, eventWire{
			Timestamp: e.Timestamp,
			Service:   e.Service,
			Level:     string(e.Level),
			Message:   e.Message,
		})
	}
	runbooks := make([]runbookWire, 0, len(inc.MatchedRunbooks))
	for _, rb := range inc.MatchedRunbooks {
		runbooks = append(runbooks, runbookWire{
			Title:          rb.Title,
			RootCause:      rb.RootCause,
			RelevanceScore: rb.Score,
		})
	}

	var analysis *analysisWire
	if inc.Analysis != nil {
		analysis = &analysisWire{
			Summary:          inc.Analysis.Summary,
			Confidence:       string(inc.Analysis.Confidence),
			AffectedServices: inc.Analysis.AffectedServices,
			RemediationSteps: inc.Analysis.RemediationSteps,
		}
	}

	return incidentWire{
		ID:               inc.ID,
		CreatedAt:        inc.CreatedAt,
		AgeMinutes:       utils.DurationMinutes(inc.CreatedAt, now),
		Severity:         string(inc.Severity),
		Status:           string(inc.Status),
		Title:            inc.Title,
		Services:         inc.Services,
		Anomalies:        anomalies,
		CorrelatedEvents: events,
		MatchedRunbooks:  runbooks,
		Analysis:         analysis,
		DedupKey:         string(inc.DedupKey),
	}
}
