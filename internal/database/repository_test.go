package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func TestSaveAndQueryDecision(t *testing.T) {
	repo := newTestRepo(t)

	decision := &models.ScalingDecision{
		ID:                   "d-1",
		Timestamp:            time.Now(),
		ServiceName:          "order-api",
		CurrentInstances:     3,
		RecommendedInstances: 6,
		Action:               models.ActionScaleUp,
		Confidence:           0.82,
		Urgency:              models.UrgencyHigh,
		TriggeredRules:       []string{"cpu-high", "queue-deep"},
		Reasoning:            []string{"rule cpu-high triggered"},
	}
	require.NoError(t, repo.SaveDecision(decision))

	rows, err := repo.GetDecisions("order-api", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "d-1", rows[0].ID)
	assert.Equal(t, "scale_up", rows[0].Action)
	assert.Equal(t, "cpu-high,queue-deep", rows[0].TriggeredRules)

	rows, err = repo.GetDecisions("other", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSaveAndQueryExecution(t *testing.T) {
	repo := newTestRepo(t)

	record := &models.ExecutionRecord{
		ID:                "e-1",
		Timestamp:         time.Now(),
		ServiceName:       "order-api",
		DecisionID:        "d-1",
		Action:            models.ActionScaleUp,
		PreviousInstances: 3,
		NewInstances:      6,
		Success:           true,
		Duration:          1500 * time.Millisecond,
	}
	require.NoError(t, repo.SaveExecution(record))

	rows, err := repo.GetExecutions("order-api", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Success)
	assert.Equal(t, 1500.0, rows[0].DurationMs)
}

func TestDecisionsInRange(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Now()

	for i, id := range []string{"d-1", "d-2", "d-3"} {
		require.NoError(t, repo.SaveDecision(&models.ScalingDecision{
			ID:          id,
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			ServiceName: "order-api",
			Action:      models.ActionMaintain,
			Urgency:     models.UrgencyLow,
		}))
	}

	rows, err := repo.GetDecisionsInRange("order-api", base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "d-2", rows[0].ID)
}

func TestRecorderPersistsBusEvents(t *testing.T) {
	repo := newTestRepo(t)
	bus := events.NewBus(16)

	recorder := NewRecorder(repo, zap.NewNop().Sugar())
	recorder.Start(bus.Subscribe())

	bus.Publish(events.Event{
		Type:        events.TypeDecisionMade,
		ServiceName: "order-api",
		Decision: &models.ScalingDecision{
			ID:          "d-9",
			Timestamp:   time.Now(),
			ServiceName: "order-api",
			Action:      models.ActionScaleUp,
			Urgency:     models.UrgencyMedium,
		},
	})
	bus.Publish(events.Event{
		Type:        events.TypeScalingCompleted,
		ServiceName: "order-api",
		Execution: &models.ExecutionRecord{
			ID:          "e-9",
			Timestamp:   time.Now(),
			ServiceName: "order-api",
			Action:      models.ActionScaleUp,
			Success:     true,
		},
	})
	bus.Publish(events.Event{
		Type:        events.TypeHealthDegraded,
		ServiceName: "order-api",
		Message:     "collection degraded",
	})

	bus.Close()
	recorder.Wait()

	decisions, err := repo.GetDecisions("order-api", 10)
	require.NoError(t, err)
	assert.Len(t, decisions, 1)

	executions, err := repo.GetExecutions("order-api", 10)
	require.NoError(t, err)
	assert.Len(t, executions, 1)

	eventRows, err := repo.GetEvents(string(events.TypeHealthDegraded), 10)
	require.NoError(t, err)
	assert.Len(t, eventRows, 1)
}
