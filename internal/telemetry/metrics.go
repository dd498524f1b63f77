// Package telemetry exposes collector and read-path counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hostmon"

type Metrics struct {
	cycles       *prometheus.CounterVec
	acquisitions *prometheus.CounterVec
	failovers    prometheus.Counter
	pruned       prometheus.Counter
	cpu          prometheus.Gauge
	memory       prometheus.Gauge
	ping         prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_cycles_total",
			Help:      "Collection cycles by outcome.",
		}, []string{"outcome"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_acquisitions_total",
			Help:      "Connection attempts by caller and the endpoint that answered.",
		}, []string{"path", "role"}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_failovers_total",
			Help:      "Changes of the endpoint serving writes between consecutive cycles.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_pruned_rows_total",
			Help:      "Rows removed by retention after inserts.",
		}),
		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_cpu_usage_percent",
			Help:      "Last sampled CPU utilization.",
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_memory_usage_percent",
			Help:      "Last sampled memory utilization.",
		}),
		ping: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_ping_latency_ms",
			Help:      "Last sampled average ping round trip.",
		}),
	}
	reg.MustRegister(m.cycles, m.acquisitions, m.failovers, m.pruned, m.cpu, m.memory, m.ping)
	return m
}

func (m *Metrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Acquire(path, role string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(path, role).Inc()
}

func (m *Metrics) Failover() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}

func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

func (m *Metrics) Sample(cpu, memory, ping float64) {
	if m == nil {
		return
	}
	m.cpu.Set(cpu)
	m.memory.Set(memory)
	m.ping.Set(ping)
}
