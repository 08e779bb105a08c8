package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Event("user", "text")
	m.Event("user", "text")
	m.Failure("delivery")
	m.TicketOpened()
	m.TicketClosed("admin")
	m.Escalated()
	m.SessionsExpired(3)
	m.SessionsExpired(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("user", "text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("delivery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.opened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("admin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Event("admin", "list")
		m.Failure("x")
		m.TicketOpened()
		m.TicketClosed("user")
		m.Escalated()
		m.SessionsExpired(1)
	})
}
