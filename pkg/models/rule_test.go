package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorCompare(t *testing.T) {
	assert.True(t, OpGreaterThan.Compare(2.0, 1.0))
	assert.False(t, OpGreaterThan.Compare(1.0, 1.0))
	assert.True(t, OpGreaterEqual.Compare(1.0, 1.0))
	assert.True(t, OpLessThan.Compare(0.5, 1.0))
	assert.True(t, OpLessEqual.Compare(1.0, 1.0))
	assert.True(t, OpEqual.Compare(3.0, 3.0))
	assert.False(t, Operator("!=").Compare(1.0, 2.0))
}

func TestTargetSpecResolve(t *testing.T) {
	abs := TargetSpec{Kind: TargetAbsolute, Value: 8}
	assert.Equal(t, 8, abs.Resolve(3))

	up := TargetSpec{Kind: TargetDelta, Value: 2}
	assert.Equal(t, 5, up.Resolve(3))

	down := TargetSpec{Kind: TargetDelta, Value: -2}
	assert.Equal(t, 1, down.Resolve(3))
}

func TestRuleAppliesTo(t *testing.T) {
	rule := &ScalingRule{Services: []string{"order-api", "pricing"}}
	assert.True(t, rule.AppliesTo("order-api"))
	assert.False(t, rule.AppliesTo("ledger"))

	global := &ScalingRule{Services: []string{"*"}}
	assert.True(t, global.AppliesTo("anything"))
}

func TestRuleValidate(t *testing.T) {
	valid := &ScalingRule{
		ID:       "cpu-high",
		Services: []string{"order-api"},
		Conditions: []Condition{
			{Metric: "cpu.usage", Operator: OpGreaterThan, Threshold: 0.8, MinDurationSeconds: 120},
		},
		Target: TargetSpec{Kind: TargetDelta, Value: 2},
	}
	require.NoError(t, valid.Validate())

	noID := *valid
	noID.ID = ""
	assert.Error(t, noID.Validate())

	badOp := *valid
	badOp.Conditions = []Condition{{Metric: "cpu.usage", Operator: "!=", Threshold: 0.8}}
	assert.Error(t, badOp.Validate())

	badTarget := *valid
	badTarget.Target = TargetSpec{Kind: "relative", Value: 2}
	assert.Error(t, badTarget.Validate())

	negDuration := *valid
	negDuration.Conditions = []Condition{
		{Metric: "cpu.usage", Operator: OpGreaterThan, Threshold: 0.8, MinDurationSeconds: -1},
	}
	assert.Error(t, negDuration.Validate())
}
