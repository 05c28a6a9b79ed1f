package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

func TestChatNotifierPostsJSON(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewChatNotifier(srv.URL, time.Second)
	incident := models.Incident{ID: "INC-1", Title: "P1: error_rate anomaly on payment-service", Severity: models.SeverityP1}
	if err := notifier.Notify(context.Background(), incident); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected JSON content type, got %q", gotContentType)
	}
}

func TestNotifierReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := NewPagingNotifier(srv.URL, time.Second)
	err := notifier.Notify(context.Background(), models.Incident{ID: "INC-1"})
	if err == nil {
		t.Fatalf("expected error on 500 response")
	}
}

func TestNotifierNoopWhenURLEmpty(t *testing.T) {
	notifier := NewChatNotifier("", time.Second)
	if err := notifier.Notify(context.Background(), models.Incident{ID: "INC-1"}); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}
