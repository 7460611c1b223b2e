package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("meiro_test")
	m.IncOnlineSessions()
	m.IncOnlineSessions()
	m.DecOnlineSessions()
	m.SetActiveRooms(3)
	m.IncRejected("NO_PATH")
	m.IncRejected("NO_PATH")
	m.IncMessagesReceived()
	m.ObserveMessageLatency(time.Millisecond)

	if got := testutil.ToFloat64(m.metrics.OnlineSessions); got != 1 {
		t.Errorf("expected 1 online session, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.ActiveRooms); got != 3 {
		t.Errorf("expected 3 rooms, got %v", got)
	}
	if got := testutil.ToFloat64(m.metrics.CommandsRejected.WithLabelValues("NO_PATH")); got != 2 {
		t.Errorf("expected 2 NO_PATH rejections, got %v", got)
	}
}

func TestMonitor_NilIsSafe(t *testing.T) {
	var m *Monitor
	m.IncOnlineSessions()
	m.SetActiveRooms(1)
	m.IncRejected("X")
	m.AddOutboundBytes(10)
	m.IncTicks()
}

func TestMonitor_TwoInstances(t *testing.T) {
	// separate registries, so no duplicate registration panic
	NewMonitor("meiro_a")
	NewMonitor("meiro_a")
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("meiro_http")
	m.IncTicks()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "meiro_http_ticks_total 1") {
		t.Fatalf("ticks metric missing from scrape:\n%s", body)
	}
}
