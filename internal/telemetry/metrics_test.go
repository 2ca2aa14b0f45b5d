package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

func TestObserveEventsUpdatesCounters(t *testing.T) {
	bus := events.NewBus(16)
	m := New(prometheus.NewRegistry(), bus, func() int { return 0 })
	sub := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		m.ObserveEvents(sub)
		close(done)
	}()

	bus.Publish(events.Event{
		Type:        events.TypeDecisionMade,
		ServiceName: "order-api",
		Decision: &models.ScalingDecision{
			Action:           models.ActionScaleUp,
			Confidence:       0.8,
			CurrentInstances: 3,
		},
	})
	bus.Publish(events.Event{
		Type:        events.TypeScalingCompleted,
		ServiceName: "order-api",
		Execution:   &models.ExecutionRecord{NewInstances: 5, Success: true},
	})
	bus.Publish(events.Event{Type: events.TypeScalingFailed, ServiceName: "order-api"})
	bus.Publish(events.Event{Type: events.TypeHealthDegraded, ServiceName: "pricing"})

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer did not drain")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("order-api", "scale_up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("order-api", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("order-api", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectionFailures.WithLabelValues("pricing")))
	assert.Equal(t, 0.8, testutil.ToFloat64(m.DecisionConfidence.WithLabelValues("order-api")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ServiceInstances.WithLabelValues("order-api")))
}

func TestScrapeTimeGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	bus := events.NewBus(1)
	bus.Subscribe()

	active := 3
	New(reg, bus, func() int { return active })

	// Overflow the single-slot buffer so the bus records drops.
	bus.Publish(events.Event{Type: events.TypeScalingStarted})
	bus.Publish(events.Event{Type: events.TypeScalingStarted})

	expected := strings.NewReader(`
# HELP scaling_engine_active_scaling Number of scaling executions currently in flight.
# TYPE scaling_engine_active_scaling gauge
scaling_engine_active_scaling 3
# HELP scaling_engine_dropped_events Events discarded on full subscriber buffers.
# TYPE scaling_engine_dropped_events gauge
scaling_engine_dropped_events 1
`)
	err := testutil.GatherAndCompare(reg, expected,
		"scaling_engine_active_scaling", "scaling_engine_dropped_events")
	assert.NoError(t, err)
}
