package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ReminderOutcome("scheduled")
	m.Response("RemindAction", "ok")
	m.Persist(nil, 3)
	m.HTTPRequest("GET /bills", 200, time.Millisecond)
	m.RateLimited()
}

func TestCounters(t *testing.T) {
	m := New()

	m.ReminderOutcome("scheduled")
	m.ReminderOutcome("scheduled")
	m.ReminderOutcome("denied")
	m.Persist(nil, 4)
	m.Persist(errors.New("disk full"), 0)

	if got := testutil.ToFloat64(m.reminderOutcomes.WithLabelValues("scheduled")); got != 2 {
		t.Errorf("scheduled = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reminderOutcomes.WithLabelValues("denied")); got != 1 {
		t.Errorf("denied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.persists.WithLabelValues("error")); got != 1 {
		t.Errorf("persist errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bills); got != 4 {
		t.Errorf("bills gauge = %v, want 4 (failed write must not reset it)", got)
	}
}

func TestHTTPRequest(t *testing.T) {
	m := New()

	m.HTTPRequest("GET /bills", 200, 5*time.Millisecond)
	m.HTTPRequest("", 404, time.Millisecond)
	m.RateLimited()

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET /bills", "200")); got != 1 {
		t.Errorf("GET /bills 200 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("unmatched", "404")); got != 1 {
		t.Errorf("unmatched 404 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rateLimited); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
}
