package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
)

// Metrics exposes the engine's Prometheus instrumentation. Dropped events
// and the active-scaling count are sampled at scrape time; the counters are
// fed by an event-bus subscription.
type Metrics struct {
	DecisionsTotal     *prometheus.CounterVec
	ExecutionsTotal    *prometheus.CounterVec
	CollectionFailures *prometheus.CounterVec
	ServiceInstances   *prometheus.GaugeVec
	DecisionConfidence *prometheus.GaugeVec
}

// New registers the metric set on the given registry. activeScaling reports
// how many scaling executions are in flight at scrape time.
func New(reg prometheus.Registerer, bus *events.Bus, activeScaling func() int) *Metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scaling_engine",
		Name:      "dropped_events",
		Help:      "Events discarded on full subscriber buffers.",
	}, func() float64 { return float64(bus.Dropped()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scaling_engine",
		Name:      "active_scaling",
		Help:      "Number of scaling executions currently in flight.",
	}, func() float64 { return float64(activeScaling()) })

	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scaling_engine",
			Name:      "decisions_total",
			Help:      "Scaling decisions by service and action.",
		}, []string{"service", "action"}),
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scaling_engine",
			Name:      "executions_total",
			Help:      "Scaling executions by service and outcome.",
		}, []string{"service", "outcome"}),
		CollectionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scaling_engine",
			Name:      "collection_failures_total",
			Help:      "Metric collection failures by service.",
		}, []string{"service"}),
		ServiceInstances: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scaling_engine",
			Name:      "service_instances",
			Help:      "Last observed instance count per service.",
		}, []string{"service"}),
		DecisionConfidence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scaling_engine",
			Name:      "decision_confidence",
			Help:      "Confidence of the latest decision per service.",
		}, []string{"service"}),
	}
}

// ObserveEvents consumes a bus subscription and keeps the counters current.
// It returns when the channel closes.
func (m *Metrics) ObserveEvents(ch <-chan events.Event) {
	for e := range ch {
		switch e.Type {
		case events.TypeDecisionMade:
			if e.Decision != nil {
				m.DecisionsTotal.WithLabelValues(e.ServiceName, string(e.Decision.Action)).Inc()
				m.DecisionConfidence.WithLabelValues(e.ServiceName).Set(e.Decision.Confidence)
				m.ServiceInstances.WithLabelValues(e.ServiceName).Set(float64(e.Decision.CurrentInstances))
			}
		case events.TypeScalingCompleted:
			m.ExecutionsTotal.WithLabelValues(e.ServiceName, "success").Inc()
			if e.Execution != nil {
				m.ServiceInstances.WithLabelValues(e.ServiceName).Set(float64(e.Execution.NewInstances))
			}
		case events.TypeScalingFailed:
			m.ExecutionsTotal.WithLabelValues(e.ServiceName, "failure").Inc()
		case events.TypeHealthDegraded:
			m.CollectionFailures.WithLabelValues(e.ServiceName).Inc()
		}
	}
}
