package models

import (
	"fmt"
	"time"
)

// ScalingAction is the direction of a scaling decision
type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionMaintain  ScalingAction = "maintain"
)

// Urgency classifies how pressing a decision is, independent of confidence.
// Critical urgency is the only level allowed to override trading-hours
// scale-down protection.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ScalingDecision is the engine's output for one service in one cycle.
// Decisions are produced fresh every cycle and never mutated after creation.
type ScalingDecision struct {
	ID                   string                  `json:"id"`
	Timestamp            time.Time               `json:"timestamp"`
	ServiceName          string                  `json:"service_name"`
	CurrentInstances     int                     `json:"current_instances"`
	RecommendedInstances int                     `json:"recommended_instances"`
	Action               ScalingAction           `json:"action"`
	Confidence           float64                 `json:"confidence"`
	Urgency              Urgency                 `json:"urgency"`
	TriggeredRules       []string                `json:"triggered_rules,omitempty"`
	Reasoning            []string                `json:"reasoning"`
	Snapshot             *ServiceMetricsSnapshot `json:"snapshot,omitempty"`
}

// Delta returns the recommended change in instance count
func (d *ScalingDecision) Delta() int {
	return d.RecommendedInstances - d.CurrentInstances
}

// Validate checks the decision invariants
func (d *ScalingDecision) Validate() error {
	if d.ServiceName == "" {
		return fmt.Errorf("decision missing service name")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("decision confidence %.3f outside [0,1]", d.Confidence)
	}
	switch d.Action {
	case ActionScaleUp, ActionScaleDown, ActionMaintain:
	default:
		return fmt.Errorf("decision has invalid action %q", d.Action)
	}
	return nil
}

// PredictionPoint is one step of a load forecast. Confidence decreases as
// the horizon grows; forecasts are advisory and never mutate live decisions.
type PredictionPoint struct {
	Timestamp            time.Time `json:"timestamp"`
	PredictedLoad        float64   `json:"predicted_load"`
	RecommendedInstances int       `json:"recommended_instances"`
	Confidence           float64   `json:"confidence"`
}
