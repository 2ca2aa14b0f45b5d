package database

import (
	"time"
)

// DecisionRow is the persisted form of a scaling decision
type DecisionRow struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	ServiceName string    `json:"service_name" gorm:"index"`

	Action               string  `json:"action"` // scale_up, scale_down, maintain
	CurrentInstances     int     `json:"current_instances"`
	RecommendedInstances int     `json:"recommended_instances"`
	Confidence           float64 `json:"confidence"`
	Urgency              string  `json:"urgency"`

	TriggeredRules string `json:"triggered_rules"` // comma-joined rule IDs
	Reasoning      string `json:"reasoning"`       // JSON array

	CreatedAt time.Time `json:"created_at"`
}

// ExecutionRow is the persisted form of a scaling execution
type ExecutionRow struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	ServiceName string    `json:"service_name" gorm:"index"`
	DecisionID  string    `json:"decision_id" gorm:"index"`

	Action            string `json:"action"`
	PreviousInstances int    `json:"previous_instances"`
	NewInstances      int    `json:"new_instances"`

	Success    bool    `json:"success"`
	DurationMs float64 `json:"duration_ms"`
	Warnings   string  `json:"warnings"` // JSON array
	ErrorMsg   string  `json:"error_msg"`

	CreatedAt time.Time `json:"created_at"`
}

// EventRow records engine lifecycle events (health degradations,
// scaling starts, failures) for audit queries.
type EventRow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	ServiceName string    `json:"service_name" gorm:"index"`

	EventType string `json:"event_type"`
	Message   string `json:"message"`

	CreatedAt time.Time `json:"created_at"`
}
