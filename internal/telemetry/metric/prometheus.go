// Package metric provides Prometheus metrics for rafter.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rafter"

// Registry holds all application metrics.
//
// Every Registry owns a private prometheus.Registry so tests and multiple
// in-process nodes never collide on registration.
type Registry struct {
	registry *prometheus.Registry

	// Leadership metrics
	LeadershipStatus      prometheus.Gauge
	LeadershipTransitions *prometheus.CounterVec

	// Arbitration metrics
	ArbiterDecisions *prometheus.CounterVec

	// Link metrics
	LinksActive        prometheus.Gauge
	LinksEstablished   *prometheus.CounterVec
	DuplicatesResolved prometheus.Counter
	HandshakeFailures  *prometheus.CounterVec
	DispatchFailures   prometheus.Counter
	DialFailures       prometheus.Counter
}

// NewRegistry creates a registry with all rafter metrics plus the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		LeadershipStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "leadership",
			Name:      "status",
			Help:      "Local leadership belief: 0 unknown, 1 leader, 2 follower",
		}),
		LeadershipTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leadership",
			Name:      "transitions_total",
			Help:      "Leader-boundary transitions observed, by resulting status",
		}, []string{"status"}),
		ArbiterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "decisions_total",
			Help:      "Connection direction verdicts, by leadership status and verdict",
		}, []string{"status", "verdict"}),
		LinksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "links_active",
			Help:      "Currently registered peer links",
		}),
		LinksEstablished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "links_established_total",
			Help:      "Links that completed the handshake, by direction",
		}, []string{"direction"}),
		DuplicatesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "duplicates_resolved_total",
			Help:      "Links closed because a higher priority link to the same peer existed",
		}),
		HandshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "handshake_failures_total",
			Help:      "Failed handshakes, by side",
		}, []string{"side"}),
		DispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "dispatch_failures_total",
			Help:      "Links the protocol handler refused",
		}),
		DialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh",
			Name:      "dial_failures_total",
			Help:      "Outbound dials that did not connect",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.LeadershipStatus,
		r.LeadershipTransitions,
		r.ArbiterDecisions,
		r.LinksActive,
		r.LinksEstablished,
		r.DuplicatesResolved,
		r.HandshakeFailures,
		r.DispatchFailures,
		r.DialFailures,
	)

	return r
}

// Register adds extra collectors to the registry.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// SetLeadershipStatus records the current leadership status code.
func (r *Registry) SetLeadershipStatus(code int, name string) {
	r.LeadershipStatus.Set(float64(code))
	r.LeadershipTransitions.WithLabelValues(name).Inc()
}

// RecordDecision counts one arbitration verdict.
func (r *Registry) RecordDecision(status string, initiate bool) {
	verdict := "accept"
	if initiate {
		verdict = "initiate"
	}
	r.ArbiterDecisions.WithLabelValues(status, verdict).Inc()
}

// RecordLinkEstablished counts a link that completed its handshake.
func (r *Registry) RecordLinkEstablished(direction string) {
	r.LinksEstablished.WithLabelValues(direction).Inc()
}

// RecordHandshakeFailure counts a failed handshake for side "client" or "server".
func (r *Registry) RecordHandshakeFailure(side string) {
	r.HandshakeFailures.WithLabelValues(side).Inc()
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry used by the node binary.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}
