package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveEvent(t *testing.T) {
	m := New()
	m.ObserveEvent("send-message", OutcomeOK)
	m.ObserveEvent("send-message", OutcomeOK)
	m.ObserveEvent("send-message", OutcomeInvalid)

	if got := testutil.ToFloat64(m.events.WithLabelValues("send-message", OutcomeOK)); got != 2 {
		t.Errorf("Expected 2 ok events, got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("send-message", OutcomeInvalid)); got != 1 {
		t.Errorf("Expected 1 invalid event, got %v", got)
	}
}

func TestObserveBroadcast(t *testing.T) {
	m := New()
	m.ObserveBroadcast("new-message", 3, 1)
	m.ObserveBroadcast("new-message", 0, 0)

	if got := testutil.ToFloat64(m.broadcasts.WithLabelValues("new-message", "delivered")); got != 3 {
		t.Errorf("Expected 3 deliveries, got %v", got)
	}
	if got := testutil.ToFloat64(m.broadcasts.WithLabelValues("new-message", "failed")); got != 1 {
		t.Errorf("Expected 1 failure, got %v", got)
	}
}

func TestRegisterGauge(t *testing.T) {
	m := New()
	value := 4.0
	if err := m.RegisterGauge("rooms", "Open rooms.", func() float64 { return value }); err != nil {
		t.Fatalf("RegisterGauge failed: %v", err)
	}
	if err := m.RegisterGauge("rooms", "Open rooms.", func() float64 { return 0 }); err == nil {
		t.Error("Expected duplicate gauge registration to fail")
	}

	expected := `
# HELP lessonchat_rooms Open rooms.
# TYPE lessonchat_rooms gauge
lessonchat_rooms 4
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "lessonchat_rooms"); err != nil {
		t.Error(err)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), `lessonchat_http_requests_total{code="200",method="GET"} 1`) {
		t.Errorf("Request counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Expected Go runtime metrics")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent("x", OutcomeOK)
	m.ObserveBroadcast("x", 1, 1)
	m.ObserveRequest("GET", 200)
	if err := m.RegisterGauge("x", "x", func() float64 { return 0 }); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 from nil metrics handler, got %d", rec.Code)
	}
}
