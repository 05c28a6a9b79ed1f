// Package notify implements the chat and paging webhook notifiers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

// WebhookNotifier posts a JSON body to a configured webhook URL. Both the
// chat and paging channels are thin instances of this type built on a shared
// postJSON HTTP-POST idiom (see DESIGN.md).
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	build      func(models.Incident) any
}

// NewChatNotifier posts an incident summary with anomaly details and
// remediation steps.
func NewChatNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		build:      buildChatPayload,
	}
}

// NewPagingNotifier posts severity, dedup key, and summary.
func NewPagingNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		build:      buildPagingPayload,
	}
}

// Notify posts the incident payload. A non-2xx response or transport error
// is returned as an error; the caller treats it as best-effort (logged,
// never fatal to incident creation).
func (n *WebhookNotifier) Notify(ctx context.Context, incident models.Incident) error {
	if n.url == "" {
		return nil
	}

	payload, err := json.Marshal(n.build(incident))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier returned status %d", resp.StatusCode)
	}
	return nil
}

type chatPayload struct {
	IncidentID       string   `json:"incident_id"`
	Title            string   `json:"title"`
	Severity         string   `json:"severity"`
	Services         []string `json:"services"`
	AnomalyDetails   []string `json:"anomaly_details"`
	RemediationSteps []string `json:"remediation_steps,omitempty"`
}

func buildChatPayload(incident models.Incident) any {
	details := make([]string, 0, len(incident.Anomalies))
	for _, a := range incident.Anomalies {
		details = append(details, fmt.Sprintf("%s/%s z=%.2f", a.Service, a.Metric, a.ZScore))
	}
	var remediation []string
	if incident.Analysis != nil {
		remediation = incident.Analysis.RemediationSteps
	}
	return chatPayload{
		IncidentID:       incident.ID,
		Title:            incident.Title,
		Severity:         string(incident.Severity),
		Services:         incident.Services,
		AnomalyDetails:   details,
		RemediationSteps: remediation,
	}
}

type pagingPayload struct {
	IncidentID string `json:"incident_id"`
	Severity   string `json:"severity"`
	DedupKey   string `json:"dedup_key"`
	Summary    string `json:"summary"`
}

func buildPagingPayload(incident models.Incident) any {
	return pagingPayload{
		IncidentID: incident.ID,
		Severity:   string(incident.Severity),
		DedupKey:   string(incident.DedupKey),
		Summary:    incident.Title,
	}
}
