package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics: счётчики бота. Через nil-указатель все методы ничего не делают.
type Metrics struct {
	events      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	opened      prometheus.Counter
	closed      *prometheus.CounterVec
	escalations prometheus.Counter
	expired     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportbot",
			Name:      "events_total",
			Help:      "Inbound chat events by sender role and intent.",
		}, []string{"role", "intent"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportbot",
			Name:      "failures_total",
			Help:      "Errors recovered at the handler boundary, by kind.",
		}, []string{"kind"}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "supportbot",
			Name:      "tickets_opened_total",
			Help:      "Tickets opened.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportbot",
			Name:      "tickets_closed_total",
			Help:      "Tickets closed, by closing party.",
		}, []string{"by"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "supportbot",
			Name:      "escalations_total",
			Help:      "Assistant conversations handed over to the admin.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "supportbot",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed by the inactivity sweep.",
		}),
	}
	reg.MustRegister(m.events, m.failures, m.opened, m.closed, m.escalations, m.expired)
	return m
}

func (m *Metrics) Event(role, intent string) {
	if m != nil {
		m.events.WithLabelValues(role, intent).Inc()
	}
}

func (m *Metrics) Failure(kind string) {
	if m != nil {
		m.failures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) TicketOpened() {
	if m != nil {
		m.opened.Inc()
	}
}

func (m *Metrics) TicketClosed(by string) {
	if m != nil {
		m.closed.WithLabelValues(by).Inc()
	}
}

func (m *Metrics) Escalated() {
	if m != nil {
		m.escalations.Inc()
	}
}

func (m *Metrics) SessionsExpired(n int) {
	if m != nil && n > 0 {
		m.expired.Add(float64(n))
	}
}
