package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adityaviki/sentinelops/internal/incidents"
	"github.com/adityaviki/sentinelops/internal/models"
)

type fakeServices struct {
	out []string
	err error
}

func (f *fakeServices) DistinctServices(ctx context.Context, window models.TimeRange) ([]string, error) {
	return f.out, f.err
}

func TestHandleHealth(t *testing.T) {
	store := incidents.NewStore(incidents.StoreConfig{})
	if err := store.Put(models.Incident{ID: "INC-1", CreatedAt: time.Now(), DedupKey: "k"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	h := NewHandler(store, &fakeServices{}, time.Hour, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	NewMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.IncidentsTracked != 1 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestHandleServicesReturnsRollup(t *testing.T) {
	store := incidents.NewStore(incidents.StoreConfig{MaxIncidents: 10, DedupCooldownMinutes: 30})
	now := time.Now().UTC()
	inc := models.Incident{
		ID:        "INC-1",
		CreatedAt: now,
		Severity:  models.SeverityP1,
		Services:  []string{"payment-service"},
		DedupKey:  "k",
		Anomalies: []models.Anomaly{
			{Service: "payment-service", Metric: models.MetricErrorRate, ZScore: 6.0, Severity: models.SeverityP1},
		},
	}
	if err := store.Put(inc); err != nil {
		t.Fatalf("put: %v", err)
	}

	h := NewHandler(store, &fakeServices{out: []string{"payment-service", "gateway"}}, time.Hour, nil)
	req := httptest.NewRequest(http.MethodGet, "/services", nil)
	rec := httptest.NewRecorder()
	NewMux(h).ServeHTTP(rec, req)

	var body servicesResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(body.Services))
	}

	var payment, gateway *serviceWire
	for i := range body.Services {
		switch body.Services[i].Service {
		case "payment-service":
			payment = &body.Services[i]
		case "gateway":
			gateway = &body.Services[i]
		}
	}
	if payment == nil || gateway == nil {
		t.Fatalf("expected both services present: %+v", body.Services)
	}
	if payment.Status != string(models.ServiceCritical) || payment.WorstSeverity != string(models.SeverityP1) {
		t.Fatalf("expected payment-service critical/P1, got %+v", payment)
	}
	if payment.IncidentCount != 1 || len(payment.Anomalies) != 1 {
		t.Fatalf("expected one incident and one anomaly for payment-service, got %+v", payment)
	}
	if gateway.Status != string(models.ServiceHealthy) || gateway.IncidentCount != 0 {
		t.Fatalf("expected gateway healthy with no incidents, got %+v", gateway)
	}
}

func TestHandleIncidentGetNotFound(t *testing.T) {
	h := NewHandler(incidents.NewStore(incidents.StoreConfig{}), &fakeServices{}, time.Hour, nil)
	req := httptest.NewRequest(http.MethodGet, "/incidents/missing", nil)
	rec := httptest.NewRecorder()
	NewMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleIncidentsListReturnsStored(t *testing.T) {
	store := incidents.NewStore(incidents.StoreConfig{MaxIncidents: 10, DedupCooldownMinutes: 30})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inc := models.Incident{
		ID:        "INC-20260101120000",
		CreatedAt: now,
		Severity:  models.SeverityP1,
		Title:     "P1: error_rate anomaly on payment-service",
		Services:  []string{"payment-service"},
		DedupKey:  models.DedupKey("abc"),
		Status:    models.StatusActive,
	}
	if err := store.Put(inc); err != nil {
		t.Fatalf("put: %v", err)
	}

	h := NewHandler(store, &fakeServices{}, time.Hour, nil)
	req := httptest.NewRequest(http.MethodGet, "/incidents/INC-20260101120000", nil)
	rec := httptest.NewRecorder()
	NewMux(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body incidentWire
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != inc.ID || body.Title != inc.Title {
		t.Fatalf("unexpected body: %+v", body)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/incidents", nil)
	listRec := httptest.NewRecorder()
	NewMux(h).ServeHTTP(listRec, listReq)
	var listBody incidentsListResponse
	if err := json.NewDecoder(listRec.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listBody.Total != 1 || len(listBody.Incidents) != 1 {
		t.Fatalf("unexpected list body: %+v", listBody)
	}
}
