package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWebhookMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewWebhook(reg)

	m.ObserveRequest("deliverect", "POST", "200", 10*time.Millisecond)
	m.ObserveRequest("deliverect", "POST", "400", time.Millisecond)
	m.ObserveForward("deliverect", nil)
	m.ObserveForward("deliverect", errors.New("down"))
	done := m.InFlight()

	if got := testutil.ToFloat64(m.requests.WithLabelValues("deliverect", "POST", "200")); got != 1 {
		t.Fatalf("expected 1 ok request, got %v", got)
	}
	if got := testutil.ToFloat64(m.forwarded.WithLabelValues("deliverect", "error")); got != 1 {
		t.Fatalf("expected 1 failed forward, got %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}
	done()
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
}

func TestMonitorMetrics(t *testing.T) {
	m := NewMonitor(NewRegistry())
	all := []string{"offline", "active", "warning", "error"}

	m.SetState("warning", all, 2, 1)
	m.ObserveCheck("tick", false, time.Millisecond)
	m.RetryScheduled()

	if got := testutil.ToFloat64(m.status.WithLabelValues("warning")); got != 1 {
		t.Fatalf("expected warning gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.status.WithLabelValues("active")); got != 0 {
		t.Fatalf("expected active gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.errorCount); got != 2 {
		t.Fatalf("expected error count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.retries); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var w *Webhook
	var m *Monitor

	w.ObserveRequest("p", "POST", "200", 0)
	w.ObserveForward("p", nil)
	w.InFlight()()
	m.ObserveCheck("tick", true, 0)
	m.RetryScheduled()
	m.SetState("active", nil, 0, 0)
}

func TestHandlerExposesRegistry(t *testing.T) {
	reg := NewRegistry()
	NewWebhook(reg).ObserveRequest("deliverect", "GET", "200", 0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "webhook_requests_total") {
		t.Fatalf("expected webhook_requests_total in exposition")
	}
}
