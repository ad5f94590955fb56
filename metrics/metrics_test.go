package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncRequest("ok")
	m.IncRequest("ok")
	m.IncRequest("retry")
	m.IncRetries()
	m.IncError("timeout")
	m.IncPage(20)
	m.IncPage(4)
	m.ObserveDuration(15 * time.Millisecond)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ok")); got != 2 {
		t.Fatalf("ok requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RetriesTotal); got != 1 {
		t.Fatalf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("timeout errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PagesTotal); got != 2 {
		t.Fatalf("pages = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ItemsScrapedTotal); got != 24 {
		t.Fatalf("items = %v, want 24", got)
	}
	if got := testutil.CollectAndCount(m.RequestDuration); got != 1 {
		t.Fatalf("duration collectors = %d, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncRequest("ok")
	m.IncRetries()
	m.IncError("other")
	m.IncPage(3)
	m.ObserveDuration(time.Second)
}
