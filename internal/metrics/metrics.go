// Package metrics exposes the hit counter's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation outcomes.
const (
	OutcomeOK                    = "ok"
	OutcomeMalformedRequest      = "malformed_request"
	OutcomeStoreUnavailable      = "store_unavailable"
	OutcomeDownstreamUnavailable = "downstream_unavailable"
	OutcomeDownstreamError       = "downstream_error"
)

// Pipeline stages timed by the duration histogram.
const (
	StageIncrement = "increment"
	StageInvoke    = "invoke"
	StageTotal     = "total"
)

// Results for increments and downstream invocations.
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultUnavailable = "unavailable"
)

// DefaultBuckets are default histogram buckets in seconds
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Collector tracks hit counter metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	invocations *prometheus.CounterVec
	increments  *prometheus.CounterVec
	downstream  *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{registry: reg}

	c.invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hitcounter_invocations_total",
		Help: "Invocations handled, by outcome",
	}, []string{"outcome"})
	reg.MustRegister(c.invocations)

	c.increments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hitcounter_increments_total",
		Help: "Counter store increments, by result",
	}, []string{"result"})
	reg.MustRegister(c.increments)

	c.downstream = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hitcounter_downstream_invocations_total",
		Help: "Downstream invocations, by result",
	}, []string{"result"})
	reg.MustRegister(c.downstream)

	c.durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hitcounter_invocation_duration_seconds",
		Help:    "Time spent per pipeline stage",
		Buckets: DefaultBuckets,
	}, []string{"stage"})
	reg.MustRegister(c.durations)

	c.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hitcounter_invocations_in_flight",
		Help: "Invocations currently being handled",
	})
	reg.MustRegister(c.inFlight)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Begin marks an invocation as in flight. The returned func records its
// outcome and total duration.
func (c *Collector) Begin() func(outcome string) {
	if c == nil {
		return func(string) {}
	}
	start := time.Now()
	c.inFlight.Inc()
	return func(outcome string) {
		c.inFlight.Dec()
		c.invocations.WithLabelValues(outcome).Inc()
		c.durations.WithLabelValues(StageTotal).Observe(time.Since(start).Seconds())
	}
}

// RecordIncrement records a counter store increment.
func (c *Collector) RecordIncrement(err error, d time.Duration) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.increments.WithLabelValues(result).Inc()
	c.durations.WithLabelValues(StageIncrement).Observe(d.Seconds())
}

// RecordDownstream records a downstream invocation with result ResultOK,
// ResultError or ResultUnavailable.
func (c *Collector) RecordDownstream(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.downstream.WithLabelValues(result).Inc()
	c.durations.WithLabelValues(StageInvoke).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
