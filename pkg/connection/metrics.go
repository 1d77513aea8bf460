package connection

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "entityrepo"

// Metrics is a Sink exporting the connection state to Prometheus.
type Metrics struct {
	up            *prometheus.GaugeVec
	probes        *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		up: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "connection_up",
				Help:      "Whether the last probe against the engine succeeded",
			},
			[]string{"engine"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "connection_probes_total",
				Help:      "Total number of liveness probes",
			},
			[]string{"engine", "result"},
		),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "connection_reconnects_total",
				Help:      "Total number of engine rebuild attempts",
			},
			[]string{"engine", "result"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "connection_probe_duration_seconds",
				Help:      "Liveness probe duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"engine"},
		),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	m.up, err = register(reg, m.up)
	if err != nil {
		return nil, err
	}
	m.probes, err = register(reg, m.probes)
	if err != nil {
		return nil, err
	}
	m.reconnects, err = register(reg, m.reconnects)
	if err != nil {
		return nil, err
	}
	m.probeDuration, err = register(reg, m.probeDuration)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) Observe(e Event) {
	switch e.Kind {
	case EventProbeOK:
		m.up.WithLabelValues(e.Engine).Set(1)
		m.probes.WithLabelValues(e.Engine, "success").Inc()
		m.probeDuration.WithLabelValues(e.Engine).Observe(e.Duration.Seconds())
	case EventProbeFailed:
		m.up.WithLabelValues(e.Engine).Set(0)
		m.probes.WithLabelValues(e.Engine, "failure").Inc()
		m.probeDuration.WithLabelValues(e.Engine).Observe(e.Duration.Seconds())
	case EventReconnected:
		m.up.WithLabelValues(e.Engine).Set(1)
		m.reconnects.WithLabelValues(e.Engine, "success").Inc()
	case EventReconnectFailed:
		m.up.WithLabelValues(e.Engine).Set(0)
		m.reconnects.WithLabelValues(e.Engine, "failure").Inc()
	case EventStopped:
		m.up.WithLabelValues(e.Engine).Set(0)
	}
}
