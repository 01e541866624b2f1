package conversion

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts registry traffic of one Manager.
type Metrics struct {
	lookups       *prometheus.CounterVec // by level (leaf, variable) and result (hit, miss)
	registrations prometheus.Counter
	factories     prometheus.Gauge
}

// NewMetrics creates and registers the manager metrics. A nil registerer
// disables metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typeconv",
			Subsystem: "conversion",
			Name:      "lookups_total",
			Help:      "Operator lookups by level and result",
		}, []string{"level", "result"}),

		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "typeconv",
			Subsystem: "conversion",
			Name:      "registrations_total",
			Help:      "Factories registered",
		}),

		factories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "typeconv",
			Subsystem: "conversion",
			Name:      "factories",
			Help:      "Factories currently registered",
		}),
	}
	for _, c := range []prometheus.Collector{m.lookups, m.registrations, m.factories} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) lookup(level string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(level, result).Inc()
}

func (m *Metrics) registered(total int) {
	if m == nil {
		return
	}
	m.registrations.Inc()
	m.factories.Set(float64(total))
}

func (m *Metrics) cleaned() {
	if m == nil {
		return
	}
	m.factories.Set(0)
}
