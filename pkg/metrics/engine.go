package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics counts outcomes of the reservation, callback, refund and
// outbox paths. All recorders tolerate a nil receiver.
type EngineMetrics struct {
	reservations *prometheus.CounterVec
	callbacks    *prometheus.CounterVec
	refunds      *prometheus.CounterVec
	outbox       *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	m := &EngineMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservation_total",
			Help:      "Reservation attempts by outcome.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_callback_total",
			Help:      "Gateway callbacks processed by outcome.",
		}, []string{"outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_attempt_total",
			Help:      "Refund attempts by outcome.",
		}, []string{"outcome"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_total",
			Help:      "Outbox rows relayed by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.reservations, m.callbacks, m.refunds, m.outbox)
	return m
}

func (m *EngineMetrics) Reservation(outcome string) {
	if m == nil {
		return
	}
	inc(m.reservations, outcome)
}

func (m *EngineMetrics) Callback(outcome string) {
	if m == nil {
		return
	}
	inc(m.callbacks, outcome)
}

func (m *EngineMetrics) Refund(outcome string) {
	if m == nil {
		return
	}
	inc(m.refunds, outcome)
}

func (m *EngineMetrics) Outbox(outcome string) {
	if m == nil {
		return
	}
	inc(m.outbox, outcome)
}

func inc(vec *prometheus.CounterVec, outcome string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(normalizeLabel(outcome)).Inc()
}
