package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts attendance document writes. A nil *Metrics records nothing.
type Metrics struct {
	writes *prometheus.CounterVec
}

// NewMetrics registers the attendance counters with registry. A nil registry yields nil metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &Metrics{
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_attendance_writes_total",
			Help: "Attendance document writes by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) observe(out outcome) {
	if m == nil {
		return
	}
	switch out {
	case outcomeWritten:
		m.writes.WithLabelValues("write").Inc()
	case outcomeRemoved:
		m.writes.WithLabelValues("remove").Inc()
	}
}
