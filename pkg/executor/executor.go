package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
	"github.com/arcadia-invest/scaling-engine/pkg/provider"
)

// Config holds the executor's static configuration
type Config struct {
	// ProviderTimeout bounds every provider call; on timeout the record is
	// marked failed rather than left in flight.
	ProviderTimeout time.Duration
	HistorySize     int
	// Platforms maps each service to its orchestration platform kind.
	Platforms map[string]models.PlatformKind
}

// Executor is the only component that mutates infrastructure. It enforces
// per-service mutual exclusion: at most one scaling execution may be in
// flight for a service at a time.
type Executor struct {
	registry *provider.Registry
	cfg      Config
	hooks    []Hook
	bus      *events.Bus
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	active  map[string]struct{}
	history map[string][]*models.ExecutionRecord
}

// New creates an executor. Every configured platform kind must have a
// registered provider; a missing adapter is a startup error.
func New(registry *provider.Registry, cfg Config, hooks []Hook, bus *events.Bus, logger *zap.SugaredLogger) (*Executor, error) {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 60 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	for service, kind := range cfg.Platforms {
		if _, err := registry.Get(kind); err != nil {
			return nil, fmt.Errorf("service %s: %w", service, err)
		}
	}
	for _, h := range hooks {
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("invalid hook: %w", err)
		}
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		hooks:    hooks,
		bus:      bus,
		logger:   logger,
		active:   make(map[string]struct{}),
		history:  make(map[string][]*models.ExecutionRecord),
	}, nil
}

// tryAcquire adds the service to the active-scaling set
func (e *Executor) tryAcquire(service string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[service]; busy {
		return false
	}
	e.active[service] = struct{}{}
	return true
}

func (e *Executor) release(service string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, service)
}

// ExecuteScalingDecision performs a decision against the service's
// orchestration platform. Every failure mode returns a failed
// ExecutionRecord; it never panics or propagates provider errors raw.
func (e *Executor) ExecuteScalingDecision(ctx context.Context, decision *models.ScalingDecision) *models.ExecutionRecord {
	if decision == nil {
		return e.failedRecord("", "", models.ActionMaintain, 0, "nil decision")
	}
	if err := decision.Validate(); err != nil {
		return e.failedRecord(decision.ServiceName, decision.ID, decision.Action, decision.CurrentInstances, err.Error())
	}
	if decision.Action == models.ActionMaintain {
		return e.failedRecord(decision.ServiceName, decision.ID, decision.Action, decision.CurrentInstances, "maintain decision requires no execution")
	}

	service := decision.ServiceName
	if !e.tryAcquire(service) {
		e.logger.Warnw("scaling rejected, already in flight", "service", service)
		return e.failedRecord(service, decision.ID, decision.Action, decision.CurrentInstances, "scaling already in flight for service")
	}
	defer e.release(service)

	return e.execute(ctx, decision)
}

// execute runs with the active-set entry held
func (e *Executor) execute(ctx context.Context, decision *models.ScalingDecision) *models.ExecutionRecord {
	service := decision.ServiceName
	target := decision.RecommendedInstances

	prov, err := e.providerFor(service)
	if err != nil {
		return e.finishRecord(decision, e.failedRecordNoStore(service, decision.ID, decision.Action, decision.CurrentInstances, err.Error()))
	}

	// Feasibility pre-validation against provider-reported hard limits.
	limitCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	limits, err := prov.Limits(limitCtx, service)
	cancel()
	if err != nil {
		return e.finishRecord(decision, e.failedRecordNoStore(service, decision.ID, decision.Action, decision.CurrentInstances,
			fmt.Sprintf("provider unreachable: %v", err)))
	}
	if target < limits.Min || (limits.Max > 0 && target > limits.Max) {
		return e.finishRecord(decision, e.failedRecordNoStore(service, decision.ID, decision.Action, decision.CurrentInstances,
			fmt.Sprintf("target %d outside provider limits [%d,%d]", target, limits.Min, limits.Max)))
	}

	var warnings []string
	for _, h := range e.hooks {
		if h.Stage != StagePreScale {
			continue
		}
		if err := h.Run(ctx, decision); err != nil {
			if h.Mandatory {
				return e.finishRecord(decision, e.failedRecordNoStore(service, decision.ID, decision.Action, decision.CurrentInstances,
					fmt.Sprintf("mandatory pre-scale hook %s failed: %v", h.Name, err)))
			}
			warnings = append(warnings, fmt.Sprintf("pre-scale hook %s failed: %v", h.Name, err))
			e.logger.Warnw("optional pre-scale hook failed", "hook", h.Name, "service", service, "error", err)
		}
	}

	e.bus.Publish(events.Event{
		Type:        events.TypeScalingStarted,
		ServiceName: service,
		Decision:    decision,
	})

	scaleCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	result, err := prov.Scale(scaleCtx, service, target)
	cancel()

	record := &models.ExecutionRecord{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		ServiceName: service,
		DecisionID:  decision.ID,
		Action:      decision.Action,
		Warnings:    warnings,
	}

	if err != nil {
		record.Success = false
		record.PreviousInstances = decision.CurrentInstances
		record.NewInstances = decision.CurrentInstances
		if scaleCtx.Err() == context.DeadlineExceeded {
			record.Error = fmt.Sprintf("provider call timed out after %s", e.cfg.ProviderTimeout)
		} else {
			record.Error = err.Error()
		}
	} else {
		record.Success = result.Success
		record.PreviousInstances = result.PreviousInstances
		record.NewInstances = result.NewInstances
		record.Duration = result.Duration
		record.Warnings = append(record.Warnings, result.Warnings...)
	}

	return e.finishRecord(decision, record)
}

// finishRecord appends the record to history, runs post-scale hooks with the
// originating decision and emits the completion event regardless of outcome.
// Failures that precede any decision (nil) skip the post-scale hooks.
func (e *Executor) finishRecord(decision *models.ScalingDecision, record *models.ExecutionRecord) *models.ExecutionRecord {
	e.mu.Lock()
	h := append(e.history[record.ServiceName], record)
	if len(h) > e.cfg.HistorySize {
		h = h[len(h)-e.cfg.HistorySize:]
	}
	e.history[record.ServiceName] = h
	e.mu.Unlock()

	if decision != nil {
		for _, hook := range e.hooks {
			if hook.Stage != StagePostScale {
				continue
			}
			if err := hook.Run(context.Background(), decision); err != nil {
				e.logger.Warnw("post-scale hook failed", "hook", hook.Name, "service", record.ServiceName, "error", err)
			}
		}
	}

	eventType := events.TypeScalingCompleted
	if !record.Success {
		eventType = events.TypeScalingFailed
	}
	e.bus.Publish(events.Event{
		Type:        eventType,
		ServiceName: record.ServiceName,
		Execution:   record,
	})

	e.logger.Infow("scaling execution finished",
		"service", record.ServiceName, "action", record.Action,
		"previous", record.PreviousInstances, "new", record.NewInstances,
		"success", record.Success, "error", record.Error)
	return record
}

func (e *Executor) providerFor(service string) (provider.ComputeProvider, error) {
	kind, ok := e.cfg.Platforms[service]
	if !ok {
		return nil, fmt.Errorf("no platform configured for service %q", service)
	}
	return e.registry.Get(kind)
}

func (e *Executor) failedRecordNoStore(service, decisionID string, action models.ScalingAction, current int, msg string) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:                uuid.NewString(),
		Timestamp:         time.Now(),
		ServiceName:       service,
		DecisionID:        decisionID,
		Action:            action,
		PreviousInstances: current,
		NewInstances:      current,
		Success:           false,
		Error:             msg,
	}
}

// failedRecord builds and stores a failed record for rejections that
// short-circuit before any provider work. The failure event is published so
// rejected executions reach subscribers like every other outcome.
func (e *Executor) failedRecord(service, decisionID string, action models.ScalingAction, current int, msg string) *models.ExecutionRecord {
	record := e.failedRecordNoStore(service, decisionID, action, current, msg)
	if service != "" {
		e.mu.Lock()
		h := append(e.history[service], record)
		if len(h) > e.cfg.HistorySize {
			h = h[len(h)-e.cfg.HistorySize:]
		}
		e.history[service] = h
		e.mu.Unlock()
	}
	e.bus.Publish(events.Event{
		Type:        events.TypeScalingFailed,
		ServiceName: service,
		Execution:   record,
	})
	return record
}

// EmergencyScaleDown scales a service down immediately, bypassing the
// engine's cooldown and trading-hours gates. It still respects the
// in-flight mutual exclusion.
func (e *Executor) EmergencyScaleDown(ctx context.Context, service string, target int, reason string) *models.ExecutionRecord {
	if !e.tryAcquire(service) {
		return e.failedRecord(service, "", models.ActionScaleDown, 0, "scaling already in flight for service")
	}
	defer e.release(service)

	prov, err := e.providerFor(service)
	if err != nil {
		return e.finishRecord(nil, e.failedRecordNoStore(service, "", models.ActionScaleDown, 0, err.Error()))
	}

	currentCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	current, err := prov.CurrentInstances(currentCtx, service)
	cancel()
	if err != nil {
		return e.finishRecord(nil, e.failedRecordNoStore(service, "", models.ActionScaleDown, 0,
			fmt.Sprintf("provider unreachable: %v", err)))
	}
	if target >= current {
		return e.finishRecord(nil, e.failedRecordNoStore(service, "", models.ActionScaleDown, current,
			fmt.Sprintf("emergency target %d is not below current %d", target, current)))
	}

	decision := &models.ScalingDecision{
		ID:                   uuid.NewString(),
		Timestamp:            time.Now(),
		ServiceName:          service,
		CurrentInstances:     current,
		RecommendedInstances: target,
		Action:               models.ActionScaleDown,
		Confidence:           1.0,
		Urgency:              models.UrgencyCritical,
		Reasoning:            []string{fmt.Sprintf("emergency scale-down: %s", reason)},
	}
	return e.execute(ctx, decision)
}

// RollbackLastScaling re-executes a scaling to the previousInstances value
// of the service's most recent ExecutionRecord, producing a new record.
func (e *Executor) RollbackLastScaling(ctx context.Context, service string) *models.ExecutionRecord {
	e.mu.Lock()
	h := e.history[service]
	var last *models.ExecutionRecord
	if len(h) > 0 {
		last = h[len(h)-1]
	}
	e.mu.Unlock()

	if last == nil {
		return e.failedRecord(service, "", models.ActionMaintain, 0, "no execution history to roll back")
	}

	target := last.PreviousInstances
	action := models.ActionScaleDown
	if target > last.NewInstances {
		action = models.ActionScaleUp
	} else if target == last.NewInstances {
		return e.failedRecord(service, "", models.ActionMaintain, last.NewInstances, "last execution changed nothing; rollback is a no-op")
	}

	if !e.tryAcquire(service) {
		return e.failedRecord(service, "", action, last.NewInstances, "scaling already in flight for service")
	}
	defer e.release(service)

	decision := &models.ScalingDecision{
		ID:                   uuid.NewString(),
		Timestamp:            time.Now(),
		ServiceName:          service,
		CurrentInstances:     last.NewInstances,
		RecommendedInstances: target,
		Action:               action,
		Confidence:           1.0,
		Urgency:              models.UrgencyHigh,
		Reasoning:            []string{fmt.Sprintf("rollback of execution %s to %d instances", last.ID, target)},
	}
	return e.execute(ctx, decision)
}

// ValidateScalingCapability checks that the service's provider is reachable
// and reports its hard limits, without mutating anything.
func (e *Executor) ValidateScalingCapability(ctx context.Context, service string) models.ValidationReport {
	report := models.ValidationReport{ServiceName: service}

	prov, err := e.providerFor(service)
	if err != nil {
		report.Reason = err.Error()
		return report
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	limits, err := prov.Limits(checkCtx, service)
	if err != nil {
		report.Reason = fmt.Sprintf("provider unreachable: %v", err)
		return report
	}
	current, err := prov.CurrentInstances(checkCtx, service)
	if err != nil {
		report.Reason = fmt.Sprintf("provider unreachable: %v", err)
		return report
	}

	report.Feasible = true
	report.TargetInstances = current
	if current <= limits.Min {
		report.RiskFlags = append(report.RiskFlags, "at minimum instance bound")
	}
	if limits.Max > 0 && current >= limits.Max {
		report.RiskFlags = append(report.RiskFlags, "at maximum instance bound")
	}
	return report
}

// TestScalingOperation dry-runs a scaling to target: feasibility, estimated
// duration and risk flags, with no infrastructure mutation.
func (e *Executor) TestScalingOperation(ctx context.Context, service string, target int) models.ValidationReport {
	report := models.ValidationReport{ServiceName: service, TargetInstances: target}

	prov, err := e.providerFor(service)
	if err != nil {
		report.Reason = err.Error()
		return report
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	limits, err := prov.Limits(checkCtx, service)
	if err != nil {
		report.Reason = fmt.Sprintf("provider unreachable: %v", err)
		return report
	}
	if target < limits.Min || (limits.Max > 0 && target > limits.Max) {
		report.Reason = fmt.Sprintf("target %d outside provider limits [%d,%d]", target, limits.Min, limits.Max)
		return report
	}

	current, err := prov.CurrentInstances(checkCtx, service)
	if err != nil {
		report.Reason = fmt.Sprintf("provider unreachable: %v", err)
		return report
	}

	delta := target - current
	if delta < 0 {
		delta = -delta
	}
	report.Feasible = true
	report.EstimatedDuration = 30*time.Second + time.Duration(delta)*10*time.Second

	if current > 0 && delta*2 >= current {
		report.RiskFlags = append(report.RiskFlags, "change exceeds half of current capacity")
	}
	e.mu.Lock()
	if _, busy := e.active[service]; busy {
		report.RiskFlags = append(report.RiskFlags, "scaling currently in flight")
	}
	e.mu.Unlock()
	return report
}

// ExecutionHistory returns a copy of the service's append-only history
func (e *Executor) ExecutionHistory(service string) []*models.ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history[service]
	out := make([]*models.ExecutionRecord, len(h))
	copy(out, h)
	return out
}

// ActiveScaling lists the services with an execution currently in flight
func (e *Executor) ActiveScaling() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.active))
	for s := range e.active {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
