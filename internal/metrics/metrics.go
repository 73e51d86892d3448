// Package metrics exposes scan session counters for Prometheus.
//
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "barscan"

// Acquisition outcomes.
const (
	AcquireFull     = "full"
	AcquireFallback = "fallback"
	AcquireFailed   = "failed"
)

// Duplicate outcomes.
const (
	DuplicateSuppressed = "suppressed"
	DuplicateNotified   = "notified"
)

// Collector bundles the session metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	AcceptedTotal      prometheus.Counter
	DuplicatesTotal    *prometheus.CounterVec
	DecodeFaultsTotal  prometheus.Counter
	DecodeDuration     prometheus.Histogram
	AcquisitionsTotal  *prometheus.CounterVec
	ReadyTimeoutsTotal prometheus.Counter
	StreamsLostTotal   prometheus.Counter
	DroppedEvents      prometheus.Counter
	SessionState       *prometheus.GaugeVec
}

// New constructs and registers the collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		AcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_accepted_total",
			Help:      "Total decoded values accepted into the scan list",
		}),
		DuplicatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_duplicate_total",
				Help:      "Total repeated values by outcome",
			},
			[]string{"outcome"},
		),
		DecodeFaultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_faults_total",
			Help:      "Total decoder faults other than not-found",
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding one frame",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		AcquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_acquisitions_total",
				Help:      "Total stream acquisitions by result",
			},
			[]string{"result"},
		),
		ReadyTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_ready_timeouts_total",
			Help:      "Total acquisitions that proceeded without a first frame",
		}),
		StreamsLostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_lost_total",
			Help:      "Total live streams that ended without being released",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_events_dropped_total",
			Help:      "Total decode events dropped because the handler fell behind",
		}),
		SessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_state",
				Help:      "1 for the current scan session state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
	c.registry.MustRegister(
		c.AcceptedTotal,
		c.DuplicatesTotal,
		c.DecodeFaultsTotal,
		c.DecodeDuration,
		c.AcquisitionsTotal,
		c.ReadyTimeoutsTotal,
		c.StreamsLostTotal,
		c.DroppedEvents,
		c.SessionState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Accepted() {
	if c == nil {
		return
	}
	c.AcceptedTotal.Inc()
}

func (c *Collector) Duplicate(outcome string) {
	if c == nil {
		return
	}
	c.DuplicatesTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) DecodeFault() {
	if c == nil {
		return
	}
	c.DecodeFaultsTotal.Inc()
}

func (c *Collector) ObserveDecode(d time.Duration) {
	if c == nil {
		return
	}
	c.DecodeDuration.Observe(d.Seconds())
}

func (c *Collector) Acquisition(result string) {
	if c == nil {
		return
	}
	c.AcquisitionsTotal.WithLabelValues(result).Inc()
}

func (c *Collector) ReadyTimeout() {
	if c == nil {
		return
	}
	c.ReadyTimeoutsTotal.Inc()
}

func (c *Collector) StreamLost() {
	if c == nil {
		return
	}
	c.StreamsLostTotal.Inc()
}

func (c *Collector) Dropped() {
	if c == nil {
		return
	}
	c.DroppedEvents.Inc()
}

// SetState marks state as current and every name in all as inactive.
func (c *Collector) SetState(state string, all []string) {
	if c == nil {
		return
	}
	for _, name := range all {
		value := 0.0
		if name == state {
			value = 1
		}
		c.SessionState.WithLabelValues(name).Set(value)
	}
}
