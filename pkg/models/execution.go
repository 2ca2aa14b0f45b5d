package models

import (
	"time"
)

// PlatformKind identifies the orchestration platform a service runs on.
// The executor selects the provider adapter from this static configuration
// value, never by probing the environment.
type PlatformKind string

const (
	PlatformKubernetes PlatformKind = "kubernetes"
	PlatformNomad      PlatformKind = "nomad"
	PlatformSimulated  PlatformKind = "simulated"
)

// InstanceLimits are the provider-reported hard bounds for a service
type InstanceLimits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ScaleResult is the uniform outcome every provider adapter returns
type ScaleResult struct {
	Success           bool          `json:"success"`
	PreviousInstances int           `json:"previous_instances"`
	NewInstances      int           `json:"new_instances"`
	Duration          time.Duration `json:"duration"`
	Warnings          []string      `json:"warnings,omitempty"`
}

// ExecutionRecord is the immutable outcome of one scaling execution.
// Records are append-only per service; rollback reads PreviousInstances
// from the most recent record and produces a new record.
type ExecutionRecord struct {
	ID                string        `json:"id"`
	Timestamp         time.Time     `json:"timestamp"`
	ServiceName       string        `json:"service_name"`
	DecisionID        string        `json:"decision_id,omitempty"`
	Action            ScalingAction `json:"action"`
	PreviousInstances int           `json:"previous_instances"`
	NewInstances      int           `json:"new_instances"`
	Success           bool          `json:"success"`
	Duration          time.Duration `json:"duration"`
	Warnings          []string      `json:"warnings,omitempty"`
	Error             string        `json:"error,omitempty"`
}

// ValidationReport is the output of a dry-run feasibility check
type ValidationReport struct {
	ServiceName       string        `json:"service_name"`
	TargetInstances   int           `json:"target_instances"`
	Feasible          bool          `json:"feasible"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	RiskFlags         []string      `json:"risk_flags,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}
