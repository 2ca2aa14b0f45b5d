package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

func TestConditionSatisfiedAfterMinDuration(t *testing.T) {
	tr := newConditionTracker()
	cond := models.Condition{Metric: "cpu.usage", Operator: models.OpGreaterThan, Threshold: 0.8, MinDurationSeconds: 120}
	base := time.Now()

	_, satisfied := tr.Observe("order-api", cond, true, base)
	assert.False(t, satisfied)

	_, satisfied = tr.Observe("order-api", cond, true, base.Add(60*time.Second))
	assert.False(t, satisfied)

	held, satisfied := tr.Observe("order-api", cond, true, base.Add(120*time.Second))
	assert.True(t, satisfied)
	assert.Equal(t, 120*time.Second, held)
}

func TestSingleFalseObservationResetsDuration(t *testing.T) {
	tr := newConditionTracker()
	cond := models.Condition{Metric: "cpu.usage", Operator: models.OpGreaterThan, Threshold: 0.8, MinDurationSeconds: 120}
	base := time.Now()

	tr.Observe("order-api", cond, true, base)
	tr.Observe("order-api", cond, true, base.Add(100*time.Second))

	// One false sample drops all accumulated duration.
	tr.Observe("order-api", cond, false, base.Add(110*time.Second))

	_, satisfied := tr.Observe("order-api", cond, true, base.Add(120*time.Second))
	assert.False(t, satisfied)
	held, _ := tr.Observe("order-api", cond, true, base.Add(130*time.Second))
	assert.Equal(t, 10*time.Second, held)
}

func TestZeroMinDurationSatisfiesImmediately(t *testing.T) {
	tr := newConditionTracker()
	cond := models.Condition{Metric: "cpu.usage", Operator: models.OpGreaterThan, Threshold: 0.8}

	_, satisfied := tr.Observe("order-api", cond, true, time.Now())
	assert.True(t, satisfied)
}

func TestDurationStateIsPerService(t *testing.T) {
	tr := newConditionTracker()
	cond := models.Condition{Metric: "cpu.usage", Operator: models.OpGreaterThan, Threshold: 0.8, MinDurationSeconds: 60}
	base := time.Now()

	tr.Observe("order-api", cond, true, base)
	tr.Observe("pricing", cond, true, base.Add(50*time.Second))

	_, satisfied := tr.Observe("order-api", cond, true, base.Add(60*time.Second))
	assert.True(t, satisfied)
	_, satisfied = tr.Observe("pricing", cond, true, base.Add(60*time.Second))
	assert.False(t, satisfied)
}

func TestTrackerReset(t *testing.T) {
	tr := newConditionTracker()
	cond := models.Condition{Metric: "cpu.usage", Operator: models.OpGreaterThan, Threshold: 0.8, MinDurationSeconds: 60}
	base := time.Now()

	tr.Observe("order-api", cond, true, base)
	tr.Reset("order-api")

	held, _ := tr.Observe("order-api", cond, true, base.Add(60*time.Second))
	assert.Equal(t, time.Duration(0), held)
}
