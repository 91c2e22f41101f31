package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jonwraymond/toolrouter/transport"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// transportNone labels invocations that failed before a transport was chosen.
const transportNone = "none"

// Metrics holds the dispatcher's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	Calls    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
// A nil reg registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolrouter",
				Name:      "dispatch_total",
				Help:      "Total number of dispatched operations by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "toolrouter",
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of dispatched operations in seconds, resolution included",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"transport"},
		),
	}
}

func (m *Metrics) observe(kind transport.Kind, err error, d time.Duration) {
	if m == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = transportNone
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.Calls.WithLabelValues(label, outcome).Inc()
	m.Duration.WithLabelValues(label).Observe(d.Seconds())
}
