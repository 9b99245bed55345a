package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks producer and consumer outcomes.
type PipelineMetrics struct {
	publishedTotal       *prometheus.CounterVec
	publishFailuresTotal *prometheus.CounterVec
	appliedTotal         *prometheus.CounterVec
	skippedTotal         *prometheus.CounterVec
	droppedTotal         *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "syncbridge",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates a pipeline metrics collector. Passing nil uses the default
// Prometheus registerer.
func New(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		registerer:           registerer,
		publishedTotal:       newCounterVec("messages_published_total", "Messages published per exchange and routing key", []string{"exchange", "routing_key"}),
		publishFailuresTotal: newCounterVec("publish_failures_total", "Publish attempts that failed per exchange and routing key", []string{"exchange", "routing_key"}),
		appliedTotal:         newCounterVec("messages_applied_total", "Consumed messages applied to the local store per action", []string{"action"}),
		skippedTotal:         newCounterVec("messages_skipped_total", "Consumed messages acknowledged as no-ops per reason", []string{"reason"}),
		droppedTotal:         newCounterVec("messages_dropped_total", "Poison messages acknowledged and dropped per reason", []string{"reason"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *PipelineMetrics) Register() error {
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.publishedTotal,
		m.publishFailuresTotal,
		m.appliedTotal,
		m.skippedTotal,
		m.droppedTotal,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *PipelineMetrics) Published(exchange, routingKey string) {
	m.publishedTotal.WithLabelValues(exchange, routingKey).Inc()
}

func (m *PipelineMetrics) PublishFailed(exchange, routingKey string) {
	m.publishFailuresTotal.WithLabelValues(exchange, routingKey).Inc()
}

func (m *PipelineMetrics) Applied(action string) {
	m.appliedTotal.WithLabelValues(action).Inc()
}

func (m *PipelineMetrics) Skipped(reason string) {
	m.skippedTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) Dropped(reason string) {
	m.droppedTotal.WithLabelValues(reason).Inc()
}
