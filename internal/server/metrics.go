// Package server exposes optional Prometheus instrumentation for broadcast
// servers. All Metrics methods are nil-safe, so uninstrumented servers pay
// only a nil check.
package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the per-port broadcast metrics. Create one with NewMetrics
// and share it across a pool; servers label every series with their port.
type Metrics struct {
	connectedClients *prometheus.GaugeVec
	broadcastsTotal  *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
}

// NewMetrics registers the broadcast metrics with reg and returns the
// handle servers use to record events. A nil reg falls back to the default
// registerer; an empty namespace defaults to "wscast".
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "wscast"
	}

	m := &Metrics{
		connectedClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Clients currently subscribed to the broadcast topic.",
		}, []string{"port"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast publishes executed on the run loop.",
		}, []string{"port"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Per-client message drops due to backpressure or a full send queue.",
		}, []string{"port"}),
	}

	reg.MustRegister(m.connectedClients, m.broadcastsTotal, m.droppedTotal)
	return m
}

func portLabel(port int) string {
	return strconv.Itoa(port)
}

func (m *Metrics) clientConnected(port int) {
	if m == nil {
		return
	}
	m.connectedClients.WithLabelValues(portLabel(port)).Inc()
}

func (m *Metrics) clientDisconnected(port int) {
	if m == nil {
		return
	}
	m.connectedClients.WithLabelValues(portLabel(port)).Dec()
}

func (m *Metrics) broadcastSent(port int) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(portLabel(port)).Inc()
}

func (m *Metrics) messageDropped(port int) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(portLabel(port)).Inc()
}

// DroppedMessages reads the drop counter for a port; exposed so hosts can
// observe backpressure loss, which is deliberate and otherwise silent.
func (m *Metrics) DroppedMessages(port int) float64 {
	if m == nil {
		return 0
	}
	c, err := m.droppedTotal.GetMetricWithLabelValues(portLabel(port))
	if err != nil {
		return 0
	}
	return counterValue(c)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
