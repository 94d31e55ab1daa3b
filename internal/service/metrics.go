package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"stegapi/internal/model"
)

// Metrics holds the domain counters of the hide/extract engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	extractFailures *prometheus.CounterVec
}

// NewMetrics creates the domain counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stego_operations_total",
				Help: "Total number of hide and extract operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		extractFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stego_extract_failures_total",
				Help: "Extractions rejected as invalid password, by internal failure kind.",
			},
			[]string{"kind"},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.extractFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) operation(kind model.OperationKind, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) extractFailure(kind string) {
	if m == nil {
		return
	}
	m.extractFailures.WithLabelValues(kind).Inc()
}
