package registrations

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/pkg/apperr"
)

// Metrics counts admission outcomes. A nil *Metrics records nothing.
type Metrics struct {
	admissions *prometheus.CounterVec
	promotions prometheus.Counter
	alerts     prometheus.Counter
}

// NewMetrics registers the registration counters with registry. A nil registry yields nil metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &Metrics{
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_admissions_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		promotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_waitlist_promotions_total",
			Help: "Waitlisted registrations promoted to pending",
		}),
		alerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_capacity_alerts_total",
			Help: "Capacity threshold alerts sent",
		}),
	}
}

func (m *Metrics) admitted(status models.RegistrationStatus) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) rejected(err error) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if d := apperr.DetailOf(err); d != "" {
		outcome = d
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) promoted() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

func (m *Metrics) alerted() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}
