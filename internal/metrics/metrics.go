// Package metrics содержит счётчики Prometheus для ретранслятора обновлений.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "update_relay"

// Metrics содержит метрики сервера. Каждый экземпляр имеет собственный реестр.
type Metrics struct {
	registry *prometheus.Registry

	Submitted   *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
	Delivered   prometheus.Counter
	Evicted     prometheus.Counter
	Heartbeats  prometheus.Counter
	Malformed   prometheus.Counter
	Subscribers prometheus.Gauge
	HistorySize prometheus.Gauge
}

// New регистрирует метрики в новом реестре.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_submitted_total",
			Help:      "Accepted updates by type.",
		}, []string{"type"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_rejected_total",
			Help:      "Rejected submissions by field.",
		}, []string{"field"}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Live updates queued to subscribers.",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_evicted_total",
			Help:      "Subscribers dropped because their buffer was full.",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Keepalive messages answered.",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Incoming frames that could not be decoded.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently open subscriptions.",
		}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Updates currently retained.",
		}),
	}
	m.registry.MustRegister(
		m.Submitted, m.Rejected, m.Delivered, m.Evicted,
		m.Heartbeats, m.Malformed, m.Subscribers, m.HistorySize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler отдаёт метрики в формате экспозиции Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
