package database

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func jsonOrEmpty(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// SaveDecision persists a scaling decision
func (r *Repository) SaveDecision(d *models.ScalingDecision) error {
	row := &DecisionRow{
		ID:                   d.ID,
		Timestamp:            d.Timestamp,
		ServiceName:          d.ServiceName,
		Action:               string(d.Action),
		CurrentInstances:     d.CurrentInstances,
		RecommendedInstances: d.RecommendedInstances,
		Confidence:           d.Confidence,
		Urgency:              string(d.Urgency),
		TriggeredRules:       strings.Join(d.TriggeredRules, ","),
		Reasoning:            jsonOrEmpty(d.Reasoning),
	}
	return r.db.Create(row).Error
}

// SaveExecution persists an execution record
func (r *Repository) SaveExecution(e *models.ExecutionRecord) error {
	row := &ExecutionRow{
		ID:                e.ID,
		Timestamp:         e.Timestamp,
		ServiceName:       e.ServiceName,
		DecisionID:        e.DecisionID,
		Action:            string(e.Action),
		PreviousInstances: e.PreviousInstances,
		NewInstances:      e.NewInstances,
		Success:           e.Success,
		DurationMs:        float64(e.Duration) / float64(time.Millisecond),
		Warnings:          jsonOrEmpty(e.Warnings),
		ErrorMsg:          e.Error,
	}
	return r.db.Create(row).Error
}

// SaveEvent persists a lifecycle event
func (r *Repository) SaveEvent(row *EventRow) error {
	return r.db.Create(row).Error
}

// GetDecisions retrieves recent decisions, optionally filtered by service
func (r *Repository) GetDecisions(service string, limit int) ([]DecisionRow, error) {
	var rows []DecisionRow
	query := r.db.Order("timestamp DESC")
	if service != "" {
		query = query.Where("service_name = ?", service)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// GetExecutions retrieves recent executions, optionally filtered by service
func (r *Repository) GetExecutions(service string, limit int) ([]ExecutionRow, error) {
	var rows []ExecutionRow
	query := r.db.Order("timestamp DESC")
	if service != "" {
		query = query.Where("service_name = ?", service)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// GetDecisionsInRange retrieves decisions within a time range
func (r *Repository) GetDecisionsInRange(service string, start, end time.Time) ([]DecisionRow, error) {
	var rows []DecisionRow
	query := r.db.Where("timestamp BETWEEN ? AND ?", start, end).Order("timestamp ASC")
	if service != "" {
		query = query.Where("service_name = ?", service)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// GetEvents retrieves recent events, optionally filtered by type
func (r *Repository) GetEvents(eventType string, limit int) ([]EventRow, error) {
	var rows []EventRow
	query := r.db.Order("timestamp DESC")
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}
