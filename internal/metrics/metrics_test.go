package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"barscan/internal/metrics"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *metrics.Collector
	c.Accepted()
	c.Duplicate(metrics.DuplicateNotified)
	c.DecodeFault()
	c.ObserveDecode(time.Millisecond)
	c.Acquisition(metrics.AcquireFull)
	c.ReadyTimeout()
	c.StreamLost()
	c.Dropped()
	c.SetState("idle", []string{"idle"})
	if c.Registry() != nil {
		t.Fatal("nil collector should have no registry")
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil collector handler, got %d", rec.Code)
	}
}

func TestCollectorCounts(t *testing.T) {
	c := metrics.New()
	c.Accepted()
	c.Accepted()
	c.Duplicate(metrics.DuplicateSuppressed)
	c.Duplicate(metrics.DuplicateSuppressed)
	c.Duplicate(metrics.DuplicateNotified)
	c.Acquisition(metrics.AcquireFallback)
	c.SetState("scanning", []string{"idle", "scanning"})

	if got := testutil.ToFloat64(c.AcceptedTotal); got != 2 {
		t.Fatalf("accepted = %v", got)
	}
	if got := testutil.ToFloat64(c.DuplicatesTotal.WithLabelValues(metrics.DuplicateSuppressed)); got != 2 {
		t.Fatalf("suppressed = %v", got)
	}
	if got := testutil.ToFloat64(c.SessionState.WithLabelValues("idle")); got != 0 {
		t.Fatalf("idle gauge = %v", got)
	}
	if got := testutil.ToFloat64(c.SessionState.WithLabelValues("scanning")); got != 1 {
		t.Fatalf("scanning gauge = %v", got)
	}

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `barscan_stream_acquisitions_total{result="fallback"} 1`) {
		t.Fatalf("exposition missing acquisition counter:\n%s", body)
	}
}
