package prom

import (
	"net/http"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "khaos"

// Metrics records agent loop activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks         *prometheus.CounterVec
	tickFailures  *prometheus.CounterVec
	connected     prometheus.Gauge
	connections   *prometheus.CounterVec
	memoryRecords *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_ticks_total",
			Help:      "Completed loop ticks by loop.",
		}, []string{"loop"}),

		tickFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_tick_failures_total",
			Help:      "Loop ticks that ended with an error or a recovered panic.",
		}, []string{"loop"}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dao_connected",
			Help:      "1 while the DAO state client is connected.",
		}),

		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dao_connection_transitions_total",
			Help:      "DAO connection transitions by resulting state.",
		}, []string{"state"}),

		memoryRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_records",
			Help:      "Records currently held in memory by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) TickCompleted(loop string) {
	m.ticks.WithLabelValues(loop).Inc()
}

func (m *Metrics) TickFailed(loop string) {
	m.tickFailures.WithLabelValues(loop).Inc()
}

func (m *Metrics) ConnectionChanged(connected bool) {
	if connected {
		m.connected.Set(1)
		m.connections.WithLabelValues("connected").Inc()
		return
	}
	m.connected.Set(0)
	m.connections.WithLabelValues("disconnected").Inc()
}

func (m *Metrics) MemoryRecords(kind domain.InteractionKind, count int) {
	m.memoryRecords.WithLabelValues(string(kind)).Set(float64(count))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
