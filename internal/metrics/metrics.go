// Package metrics exports robot reachability as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector turns bus events into Prometheus series on its own registry.
type Collector struct {
	registry    *prometheus.Registry
	online      *prometheus.GaugeVec
	latency     *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	logFailures prometheus.Counter
	probeTime   *prometheus.HistogramVec
	cycleTime   prometheus.Histogram
}

// New registers the AMRWatch metrics plus the Go and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amrwatch_target_online",
			Help: "1 when the robot answered its last probe, 0 otherwise.",
		}, []string{"robot", "ip"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amrwatch_target_latency_ms",
			Help: "Round-trip latency of the last successful probe, -1 when unknown.",
		}, []string{"robot", "ip"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amrwatch_transitions_total",
			Help: "State transitions observed per robot and new state.",
		}, []string{"robot", "to"}),
		logFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amrwatch_log_failures_total",
			Help: "Status events that could not be written to the log.",
		}),
		probeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amrwatch_probe_duration_seconds",
			Help:    "Time spent on a single probe.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"robot"}),
		cycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amrwatch_cycle_duration_seconds",
			Help:    "Time spent probing every robot once.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	c.registry.MustRegister(
		c.online, c.latency, c.transitions, c.logFailures, c.probeTime, c.cycleTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to every bus topic.
func (c *Collector) Attach(bus *event.Bus) func() {
	return bus.SubscribeAll(c.Handle)
}

// Handle updates metrics from one event.
func (c *Collector) Handle(_ context.Context, e event.Event) {
	switch p := e.Payload.(type) {
	case event.StatusUpdate:
		up := 0.0
		if p.Status == "Online" {
			up = 1
		}
		c.online.WithLabelValues(p.Name, p.Address).Set(up)
		// Absent latency removes the series instead of exporting -1.
		if p.HasLatency() {
			c.latency.WithLabelValues(p.Name, p.Address).Set(float64(p.LatencyMs))
		} else {
			c.latency.DeleteLabelValues(p.Name, p.Address)
		}
		c.probeTime.WithLabelValues(p.Name).Observe(p.Duration.Seconds())
	case event.Transition:
		c.transitions.WithLabelValues(p.Name, p.To).Inc()
	case event.LogFailureEvent:
		c.logFailures.Inc()
	case event.CycleEvent:
		c.cycleTime.Observe(p.Duration.Seconds())
	}
}
