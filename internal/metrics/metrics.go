// Package metrics exposes relay counters in Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicerelay"

type Metrics struct {
	Connections   prometheus.Gauge
	Rooms         prometheus.Gauge
	FramesRelayed prometheus.Counter
	FramesDropped prometheus.Counter
	BytesRelayed  prometheus.Counter
	Control       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live signaling connections.",
		}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Live rooms.",
		}),
		FramesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Voice frames delivered to a target queue.",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Voice frames dropped for a target (closed or backpressured).",
		}),
		BytesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_relayed_total",
			Help:      "Voice payload bytes delivered to target queues.",
		}),
		Control: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Inbound control messages by kind.",
		}, []string{"kind"}),
	}
}

// Handler exposes the gatherer at /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

func (m *Metrics) Relayed(sent, dropped, size int) {
	if m == nil {
		return
	}
	m.FramesRelayed.Add(float64(sent))
	m.FramesDropped.Add(float64(dropped))
	m.BytesRelayed.Add(float64(sent * size))
}

func (m *Metrics) ControlMessage(kind string) {
	if m != nil {
		m.Control.WithLabelValues(kind).Inc()
	}
}
