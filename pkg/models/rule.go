package models

import (
	"fmt"
	"time"
)

// Operator is a comparison operator used in rule conditions
type Operator string

const (
	OpGreaterThan  Operator = ">"
	OpLessThan     Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

// Compare applies the operator to an observed value and a threshold
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	default:
		return false
	}
}

// Valid reports whether the operator is one of the supported comparisons
func (o Operator) Valid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual, OpEqual:
		return true
	}
	return false
}

// Condition is a single threshold test against a snapshot metric. The metric
// path may reference another service's snapshot with a "service:" prefix,
// which is how ratio-style rules compare two services.
type Condition struct {
	Metric             string   `json:"metric" validate:"required"`
	Operator           Operator `json:"operator" validate:"required"`
	Threshold          float64  `json:"threshold"`
	MinDurationSeconds int      `json:"min_duration_seconds" validate:"gte=0"`
}

// MinDuration returns how long the condition must hold continuously
// before it counts as satisfied.
func (c Condition) MinDuration() time.Duration {
	return time.Duration(c.MinDurationSeconds) * time.Second
}

// Key identifies the condition inside per-service duration tracking
func (c Condition) Key() string {
	return fmt.Sprintf("%s%s%g", c.Metric, c.Operator, c.Threshold)
}

// TargetKind selects how a rule's target value is interpreted
type TargetKind string

const (
	// TargetAbsolute sets the instance count to the value directly
	TargetAbsolute TargetKind = "absolute"
	// TargetDelta adds the (possibly negative) value to the current count
	TargetDelta TargetKind = "delta"
)

// TargetSpec is the instance-count formula of a rule
type TargetSpec struct {
	Kind  TargetKind `json:"kind" validate:"required"`
	Value int        `json:"value"`
}

// Resolve computes the raw target instance count from the current count
func (t TargetSpec) Resolve(current int) int {
	if t.Kind == TargetDelta {
		return current + t.Value
	}
	return t.Value
}

// ScalingRule is one configured rule. Rules are static configuration and are
// never mutated after load. A rule triggers only when every condition has
// been continuously true for its minimum duration.
type ScalingRule struct {
	ID         string      `json:"id" validate:"required"`
	Services   []string    `json:"services" validate:"required,min=1"`
	Conditions []Condition `json:"conditions" validate:"required,min=1,dive"`
	Target     TargetSpec  `json:"target"`
	Priority   int         `json:"priority"`
}

// AppliesTo reports whether the rule covers the named service.
// A single "*" entry makes the rule global.
func (r *ScalingRule) AppliesTo(service string) bool {
	for _, s := range r.Services {
		if s == "*" || s == service {
			return true
		}
	}
	return false
}

// Validate checks rule invariants that the config validator cannot express
func (r *ScalingRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule missing id")
	}
	if len(r.Services) == 0 {
		return fmt.Errorf("rule %s targets no services", r.ID)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s has no conditions", r.ID)
	}
	for i, c := range r.Conditions {
		if c.Metric == "" {
			return fmt.Errorf("rule %s condition %d missing metric", r.ID, i)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("rule %s condition %d has invalid operator %q", r.ID, i, c.Operator)
		}
		if c.MinDurationSeconds < 0 {
			return fmt.Errorf("rule %s condition %d has negative min duration", r.ID, i)
		}
	}
	switch r.Target.Kind {
	case TargetAbsolute, TargetDelta:
	default:
		return fmt.Errorf("rule %s has invalid target kind %q", r.ID, r.Target.Kind)
	}
	return nil
}
