// Package metrics holds the Prometheus collectors recorded by the client
// runtime. A nil *Metrics is valid and records nothing.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shardkv"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cluster metrics
	FailoversTotal *prometheus.CounterVec

	// Pool metrics
	PoolBorrows     *prometheus.CounterVec
	PoolConnections *prometheus.GaugeVec

	// Server metrics, recorded by the dev server
	ServerCommands *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses a
// private registry, which keeps repeated construction in tests from
// colliding on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of dispatched requests by verb and outcome",
			},
			[]string{"verb", "outcome"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of dispatched requests including failover",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb"},
		),

		FailoversTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failovers_total",
				Help:      "Total number of transport failures that moved a request to the next cluster member",
			},
			[]string{"cluster"},
		),

		PoolBorrows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_borrow_total",
				Help:      "Total number of connection borrows by result",
			},
			[]string{"server", "result"},
		),

		PoolConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_connections",
				Help:      "Current number of pooled connections by state",
			},
			[]string{"server", "state"},
		),

		ServerCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_commands_total",
				Help:      "Total number of commands handled by the dev server",
			},
			[]string{"verb", "status"},
		),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns collectors registered with prometheus.DefaultRegisterer,
// creating them on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// ObserveRequest records the outcome and latency of one dispatched request.
func (m *Metrics) ObserveRequest(verb, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(verb, outcome).Inc()
	m.RequestDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// Failover records a move to the next member of a cluster.
func (m *Metrics) Failover(cluster string) {
	if m == nil {
		return
	}
	m.FailoversTotal.WithLabelValues(cluster).Inc()
}

// Borrow records a borrow attempt. Result is one of reused, dialed,
// exhausted or failed.
func (m *Metrics) Borrow(server, result string) {
	if m == nil {
		return
	}
	m.PoolBorrows.WithLabelValues(server, result).Inc()
}

// PoolState publishes the idle and active connection counts of a pool.
func (m *Metrics) PoolState(server string, idle, active int) {
	if m == nil {
		return
	}
	m.PoolConnections.WithLabelValues(server, "idle").Set(float64(idle))
	m.PoolConnections.WithLabelValues(server, "active").Set(float64(active))
}

// ServerCommand records a command handled by the dev server.
func (m *Metrics) ServerCommand(verb, status string) {
	if m == nil {
		return
	}
	m.ServerCommands.WithLabelValues(verb, status).Inc()
}
