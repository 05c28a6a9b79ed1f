package runbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
	"github.com/adityaviki/sentinelops/internal/utils"
)

// WeaviateIndex queries a Weaviate GraphQL endpoint hosting the runbook
// corpus. Each historical incident is a "Runbook" object tagged with the
// services and metrics it was matched against.
type WeaviateIndex struct {
	endpoint   string
	apiKey     string
	className  string
	httpClient *http.Client
}

// NewWeaviateIndex constructs a WeaviateIndex.
func NewWeaviateIndex(endpoint, apiKey, className string, timeout time.Duration) *WeaviateIndex {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if className == "" {
		className = "Runbook"
	}
	return &WeaviateIndex{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		className:  className,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Query searches the runbook corpus for entries tagged with any of the
// given services or metrics.
func (w *WeaviateIndex) Query(ctx context.Context, services []string, metrics []models.Metric) ([]models.RunbookMatch, error) {
	if w.endpoint == "" {
		return nil, nil
	}

	metricStrs := make([]string, len(metrics))
	for i, m := range metrics {
		metricStrs[i] = string(m)
	}

	gql := map[string]any{
		"query": fmt.Sprintf(`{
          Get {
            %s(
              limit: 20
              where: {
                operator: Or
                operands: [
                  {path: ["services"], operator: ContainsAny, valueStringArray: %s}
                  {path: ["metrics"], operator: ContainsAny, valueStringArray: %s}
                ]
              }
            ) {
              title
              incidentDate
              services
              rootCause
              resolutionSteps
              tags
              _additional { score }
            }
          }
        }`, w.className, quotedArray(services), quotedArray(metricStrs)),
	}

	payload, err := json.Marshal(gql)
	if err != nil {
		return nil, fmt.Errorf("encode runbook query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint+"/v1/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build runbook query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query runbook index: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runbook index returned status %d", resp.StatusCode)
	}

	// The class name is dynamic, so decode into a generic map and reach for
	// the matching key rather than a static struct field.
	var raw struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode runbook response: %w", err)
	}
	getRaw, ok := raw.Data["Get"]
	if !ok {
		return nil, nil
	}
	var get map[string]json.RawMessage
	if err := json.Unmarshal(getRaw, &get); err != nil {
		return nil, fmt.Errorf("decode runbook get block: %w", err)
	}
	classRaw, ok := get[w.className]
	if !ok {
		return nil, nil
	}

	var entries []struct {
		Title           string   `json:"title"`
		IncidentDate    string   `json:"incidentDate"`
		Services        []string `json:"services"`
		RootCause       string   `json:"rootCause"`
		ResolutionSteps []string `json:"resolutionSteps"`
		Tags            []string `json:"tags"`
		Additional      struct {
			Score float64 `json:"score"`
		} `json:"_additional"`
	}
	if err := json.Unmarshal(classRaw, &entries); err != nil {
		return nil, fmt.Errorf("decode runbook entries: %w", err)
	}

	matches := make([]models.RunbookMatch, 0, len(entries))
	for _, e := range entries {
		incidentDate, err := utils.ParseRFC3339(e.IncidentDate)
		if err != nil {
			incidentDate = time.Time{}
		}
		matches = append(matches, models.RunbookMatch{
			Title:            e.Title,
			IncidentDate:     incidentDate,
			ServicesAffected: e.Services,
			RootCause:        e.RootCause,
			ResolutionSteps:  e.ResolutionSteps,
			Tags:             e.Tags,
			Score:            e.Additional.Score,
		})
	}
	return matches, nil
}

func quotedArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
