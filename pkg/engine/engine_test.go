package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/forecast"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

func highCPURule(id string, priority int) models.ScalingRule {
	return models.ScalingRule{
		ID:       id,
		Services: []string{"order-api"},
		Conditions: []models.Condition{
			{Metric: "cpu.usage", Operator: models.OpGreaterThan, Threshold: 0.8},
		},
		Target:   models.TargetSpec{Kind: models.TargetDelta, Value: 2},
		Priority: priority,
	}
}

func newTestEngine(t *testing.T, rules []models.ScalingRule, profiles []*models.FinancialTradingProfile, cfg Config) *Engine {
	t.Helper()
	eng, err := New(rules, profiles, cfg, forecast.NewForecaster(), events.NewBus(64), zap.NewNop().Sugar())
	require.NoError(t, err)
	return eng
}

func hotSnapshot(current int) *models.ServiceMetricsSnapshot {
	return &models.ServiceMetricsSnapshot{
		ServiceName: "order-api",
		Timestamp:   time.Now(),
		Instances:   models.InstanceCounts{Current: current, Desired: current, Healthy: current},
		Resources: models.ResourceUsage{
			CPU: models.ResourceStat{Usage: 0.95, Limit: 1.0},
		},
		Performance: models.PerformanceMetrics{ErrorRate: 0.01, QueueLength: 5},
	}
}

func coldSnapshot(current int) *models.ServiceMetricsSnapshot {
	s := hotSnapshot(current)
	s.Resources.CPU.Usage = 0.2
	return s
}

func TestNilSnapshotYieldsMaintain(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{})

	d := eng.MakeScalingDecision("order-api", nil, nil)
	require.NotNil(t, d)
	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Equal(t, baselineConfidence, d.Confidence)
	assert.Contains(t, d.Reasoning, "no valid snapshot available")
}

func TestRuleTriggersScaleUp(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionScaleUp, d.Action)
	assert.Equal(t, 6, d.RecommendedInstances)
	assert.Equal(t, []string{"cpu-high"}, d.TriggeredRules)
	assert.Greater(t, d.Confidence, 0.5)
	assert.LessOrEqual(t, d.Confidence, 0.95)
	assert.NotEmpty(t, d.Reasoning)
}

func TestNoRuleTriggeredYieldsMaintain(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{})

	snap := coldSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Equal(t, 4, d.RecommendedInstances)
	assert.Equal(t, baselineConfidence, d.Confidence)
	assert.Contains(t, d.Reasoning, "no rule triggered")
}

func TestHighestPriorityRuleWins(t *testing.T) {
	bigger := highCPURule("cpu-critical", 20)
	bigger.Target = models.TargetSpec{Kind: models.TargetDelta, Value: 4}
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10), bigger}, nil, Config{})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, 8, d.RecommendedInstances)
	// Both rules are reported, winner first is not required but both IDs are.
	assert.ElementsMatch(t, []string{"cpu-critical", "cpu-high"}, d.TriggeredRules)
}

func TestPriorityTieKeepsDeclarationOrder(t *testing.T) {
	first := highCPURule("first", 10)
	second := highCPURule("second", 10)
	second.Target = models.TargetSpec{Kind: models.TargetDelta, Value: 4}
	eng := newTestEngine(t, []models.ScalingRule{first, second}, nil, Config{})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, 6, d.RecommendedInstances, "first declared rule wins the tie")
}

func TestDurationGatedRuleNeedsSustainedBreach(t *testing.T) {
	rule := highCPURule("cpu-sustained", 10)
	rule.Conditions[0].MinDurationSeconds = 3600
	eng := newTestEngine(t, []models.ScalingRule{rule}, nil, Config{})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Empty(t, d.TriggeredRules)
}

func TestCooldownDowngradesToMaintain(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{
		Cooldowns: CooldownConfig{ScaleUp: 3 * time.Minute},
	})

	eng.RecordExecution(&models.ExecutionRecord{
		ServiceName: "order-api",
		Action:      models.ActionScaleUp,
		Success:     true,
		Timestamp:   time.Now(),
	})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Equal(t, 4, d.RecommendedInstances)
	assert.Equal(t, []string{"cpu-high"}, d.TriggeredRules, "triggered rules still reported")

	found := false
	for _, r := range d.Reasoning {
		if strings.Contains(r, "cooldown active") {
			found = true
		}
	}
	assert.True(t, found, "reasoning must name the cooldown")
}

func TestFailedExecutionStartsNoCooldown(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{
		Cooldowns: CooldownConfig{ScaleUp: 3 * time.Minute},
	})

	eng.RecordExecution(&models.ExecutionRecord{
		ServiceName: "order-api",
		Action:      models.ActionScaleUp,
		Success:     false,
		Timestamp:   time.Now(),
	})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})
	assert.Equal(t, models.ActionScaleUp, d.Action)
}

func TestTargetClampedToBounds(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{
		Limits: map[string]models.InstanceLimits{"order-api": {Min: 1, Max: 5}},
	})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionScaleUp, d.Action)
	assert.Equal(t, 5, d.RecommendedInstances)
}

func TestClampToCurrentDowngradesToMaintain(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{
		Limits: map[string]models.InstanceLimits{"order-api": {Min: 1, Max: 4}},
	})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Equal(t, 4, d.RecommendedInstances)
}

func TestTradingWindowBlocksScaleDown(t *testing.T) {
	rule := models.ScalingRule{
		ID:       "cpu-low",
		Services: []string{"order-api"},
		Conditions: []models.Condition{
			{Metric: "cpu.usage", Operator: models.OpLessThan, Threshold: 0.3},
		},
		Target:   models.TargetSpec{Kind: models.TargetDelta, Value: -2},
		Priority: 10,
	}
	eng := newTestEngine(t, []models.ScalingRule{rule},
		[]*models.FinancialTradingProfile{alwaysOpenProfile("order-api")}, Config{})

	snap := coldSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Equal(t, 4, d.RecommendedInstances)
}

func TestTradingWindowAmplifiesScaleUp(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)},
		[]*models.FinancialTradingProfile{alwaysOpenProfile("order-api")}, Config{})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionScaleUp, d.Action)
	// Raw target 6 amplified by 1.5 to 9.
	assert.Equal(t, 9, d.RecommendedInstances)
}

func TestCrossServiceMetricCondition(t *testing.T) {
	rule := models.ScalingRule{
		ID:       "upstream-pressure",
		Services: []string{"order-api"},
		Conditions: []models.Condition{
			{Metric: "pricing:performance.queue_length", Operator: models.OpGreaterThan, Threshold: 50},
		},
		Target:   models.TargetSpec{Kind: models.TargetDelta, Value: 1},
		Priority: 10,
	}
	eng := newTestEngine(t, []models.ScalingRule{rule}, nil, Config{})

	order := coldSnapshot(4)
	pricing := hotSnapshot(2)
	pricing.ServiceName = "pricing"
	pricing.Performance.QueueLength = 80

	d := eng.MakeScalingDecision("order-api", order,
		map[string]*models.ServiceMetricsSnapshot{"order-api": order, "pricing": pricing})

	assert.Equal(t, models.ActionScaleUp, d.Action)
	assert.Equal(t, 5, d.RecommendedInstances)
}

func TestUnresolvableMetricLeavesRuleUntriggered(t *testing.T) {
	rule := highCPURule("ghost-metric", 10)
	rule.Conditions[0].Metric = "custom.not_reported"
	eng := newTestEngine(t, []models.ScalingRule{rule}, nil, Config{})

	snap := hotSnapshot(4)
	d := eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	assert.Equal(t, models.ActionMaintain, d.Action)
}

func TestDecisionHistoryBounded(t *testing.T) {
	eng := newTestEngine(t, []models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{HistorySize: 5})

	snap := coldSnapshot(4)
	for i := 0; i < 10; i++ {
		eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})
	}

	assert.Len(t, eng.DecisionHistory("order-api"), 5)
}

func TestDecisionEventPublished(t *testing.T) {
	bus := events.NewBus(16)
	sub := bus.Subscribe()
	eng, err := New([]models.ScalingRule{highCPURule("cpu-high", 10)}, nil, Config{},
		forecast.NewForecaster(), bus, zap.NewNop().Sugar())
	require.NoError(t, err)

	snap := hotSnapshot(4)
	eng.MakeScalingDecision("order-api", snap, map[string]*models.ServiceMetricsSnapshot{"order-api": snap})

	select {
	case e := <-sub:
		assert.Equal(t, events.TypeDecisionMade, e.Type)
		require.NotNil(t, e.Decision)
		assert.Equal(t, models.ActionScaleUp, e.Decision.Action)
	case <-time.After(time.Second):
		t.Fatal("no decision-made event")
	}
}

func TestInvalidRuleRejectedAtConstruction(t *testing.T) {
	bad := highCPURule("", 10)
	_, err := New([]models.ScalingRule{bad}, nil, Config{},
		forecast.NewForecaster(), events.NewBus(1), zap.NewNop().Sugar())
	assert.Error(t, err)
}
