package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/forecast"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

const (
	// baselineConfidence is attached to maintain decisions no rule produced
	baselineConfidence = 0.3
	// confidenceCap bounds rule confidence from above
	confidenceCap = 0.95
)

// Config holds the engine's static configuration
type Config struct {
	Cooldowns   CooldownConfig
	Limits      map[string]models.InstanceLimits
	HistorySize int
}

// Engine turns snapshots plus the configured rule set into one scaling
// decision per service per cycle. All mutable state is keyed per service.
type Engine struct {
	rules      []models.ScalingRule
	cfg        Config
	gate       *financialGate
	tracker    *conditionTracker
	cooldowns  *cooldownStore
	forecaster *forecast.Forecaster
	bus        *events.Bus
	logger     *zap.SugaredLogger

	mu      sync.Mutex
	history map[string][]*models.ScalingDecision
	spikes  map[string]map[string]*forecast.SpikeDetector
}

// New creates a decision engine. Rules are sorted by descending priority;
// ties keep declaration order, which makes tie-breaking deterministic.
func New(rules []models.ScalingRule, profiles []*models.FinancialTradingProfile, cfg Config, fc *forecast.Forecaster, bus *events.Bus, logger *zap.SugaredLogger) (*Engine, error) {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid scaling rule: %w", err)
		}
	}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid trading profile: %w", err)
		}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}

	sorted := make([]models.ScalingRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Engine{
		rules:      sorted,
		cfg:        cfg,
		gate:       newFinancialGate(profiles),
		tracker:    newConditionTracker(),
		cooldowns:  newCooldownStore(),
		forecaster: fc,
		bus:        bus,
		logger:     logger,
		history:    make(map[string][]*models.ScalingDecision),
		spikes:     make(map[string]map[string]*forecast.SpikeDetector),
	}, nil
}

// ruleEvaluation is the outcome of evaluating one rule against a snapshot
type ruleEvaluation struct {
	rule       *models.ScalingRule
	triggered  bool
	confidence float64
	detail     string
}

// MakeScalingDecision produces exactly one decision for the service.
// Missing or malformed metrics never crash the cycle; they degrade the
// decision toward maintain.
func (e *Engine) MakeScalingDecision(service string, snap *models.ServiceMetricsSnapshot, all map[string]*models.ServiceMetricsSnapshot) *models.ScalingDecision {
	now := time.Now()

	if snap == nil || snap.Validate() != nil {
		return e.finishDecision(&models.ScalingDecision{
			ID:          uuid.NewString(),
			Timestamp:   now,
			ServiceName: service,
			Action:      models.ActionMaintain,
			Confidence:  baselineConfidence,
			Urgency:     models.UrgencyLow,
			Reasoning:   []string{"no valid snapshot available"},
		}, nil)
	}

	current := snap.Instances.Current
	decision := &models.ScalingDecision{
		ID:                   uuid.NewString(),
		Timestamp:            now,
		ServiceName:          service,
		CurrentInstances:     current,
		RecommendedInstances: current,
		Action:               models.ActionMaintain,
		Confidence:           baselineConfidence,
		Urgency:              models.UrgencyLow,
		Snapshot:             snap,
	}

	// Feed spike detectors before any gating so urgency escalation sees
	// excursions even in cycles where no rule triggers.
	spiking, severity := e.observeSpikes(service, snap)

	var chosen *ruleEvaluation
	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.AppliesTo(service) {
			continue
		}
		eval := e.evaluateRule(rule, service, snap, all, now)
		if eval.triggered {
			decision.TriggeredRules = append(decision.TriggeredRules, rule.ID)
			if chosen == nil {
				chosen = &eval
			}
		}
	}

	if chosen == nil {
		decision.Reasoning = append(decision.Reasoning, "no rule triggered")
		return e.finishDecision(decision, snap)
	}

	rawTarget := chosen.rule.Target.Resolve(current)
	decision.Confidence = chosen.confidence
	decision.Reasoning = append(decision.Reasoning,
		fmt.Sprintf("rule %s triggered (priority %d): %s", chosen.rule.ID, chosen.rule.Priority, chosen.detail))

	switch {
	case rawTarget > current:
		decision.Action = models.ActionScaleUp
	case rawTarget < current:
		decision.Action = models.ActionScaleDown
	default:
		decision.Reasoning = append(decision.Reasoning, "rule target equals current instances")
		return e.finishDecision(decision, snap)
	}

	decision.Urgency = deriveUrgency(decision.Confidence, rawTarget-current, current, spiking, severity)
	if spiking {
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("load excursion detected (severity %.1f), urgency %s", severity, decision.Urgency))
	}

	// Cooldown gate runs before financial constraints.
	if remaining, active := e.cooldowns.Active(service, decision.Action, now, e.cfg.Cooldowns); active {
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("cooldown active for %s, %s remaining", decision.Action, remaining.Round(time.Second)))
		decision.Action = models.ActionMaintain
		decision.RecommendedInstances = current
		return e.finishDecision(decision, snap)
	}

	// Financial constraints.
	switch decision.Action {
	case models.ActionScaleDown:
		if blocked, reason := e.gate.blockScaleDown(service, decision.Urgency, now); blocked {
			decision.Reasoning = append(decision.Reasoning, reason)
			decision.Action = models.ActionMaintain
			decision.RecommendedInstances = current
			return e.finishDecision(decision, snap)
		} else if reason != "" {
			decision.Reasoning = append(decision.Reasoning, reason)
		}
	case models.ActionScaleUp:
		if amplified, reason := e.gate.amplifyScaleUp(service, rawTarget, now); reason != "" {
			decision.Reasoning = append(decision.Reasoning, reason)
			rawTarget = amplified
		}
	}

	decision.RecommendedInstances = e.clamp(service, rawTarget, decision)
	if decision.RecommendedInstances == current {
		decision.Reasoning = append(decision.Reasoning, "clamped target equals current instances")
		decision.Action = models.ActionMaintain
	}

	return e.finishDecision(decision, snap)
}

// evaluateRule checks every condition of a rule, updating duration state.
// The rule triggers only when all conditions are satisfied; confidence grows
// with how far past threshold the satisfied conditions sit.
func (e *Engine) evaluateRule(rule *models.ScalingRule, service string, snap *models.ServiceMetricsSnapshot, all map[string]*models.ServiceMetricsSnapshot, now time.Time) ruleEvaluation {
	eval := ruleEvaluation{rule: rule, triggered: true}

	var excessSum float64
	var details []string
	for _, cond := range rule.Conditions {
		value, err := e.metricValue(cond.Metric, snap, all)
		if err != nil {
			// Fail-safe: unresolvable metrics leave the condition
			// unsatisfied and reset its duration.
			e.tracker.Observe(service, cond, false, now)
			eval.triggered = false
			continue
		}

		holds := cond.Operator.Compare(value, cond.Threshold)
		held, satisfied := e.tracker.Observe(service, cond, holds, now)
		if !satisfied {
			eval.triggered = false
			continue
		}

		excessSum += excessRatio(value, cond.Threshold)
		details = append(details, fmt.Sprintf("%s=%.2f %s %.2f for %s",
			cond.Metric, value, cond.Operator, cond.Threshold, held.Round(time.Second)))
	}

	if eval.triggered {
		mean := excessSum / float64(len(rule.Conditions))
		eval.confidence = math.Min(confidenceCap, 0.5+0.45*math.Min(1.0, mean))
		eval.detail = strings.Join(details, "; ")
	}
	return eval
}

// excessRatio measures how far past threshold a value sits, normalized to
// the threshold magnitude and capped at 1.
func excessRatio(value, threshold float64) float64 {
	denom := math.Abs(threshold)
	if denom < 1e-9 {
		denom = 1.0
	}
	return math.Min(1.0, math.Abs(value-threshold)/denom)
}

// metricValue resolves a condition's metric path, supporting cross-service
// lookups written as "otherservice:path" for ratio-based conditions.
func (e *Engine) metricValue(path string, snap *models.ServiceMetricsSnapshot, all map[string]*models.ServiceMetricsSnapshot) (float64, error) {
	if idx := strings.Index(path, ":"); idx > 0 {
		other, rest := path[:idx], path[idx+1:]
		target, ok := all[other]
		if !ok || target == nil {
			return 0, fmt.Errorf("no snapshot for cross-service metric %q", path)
		}
		return target.MetricValue(rest)
	}
	return snap.MetricValue(path)
}

// observeSpikes feeds the per-service spike detectors and reports the worst
// upward excursion of the cycle.
func (e *Engine) observeSpikes(service string, snap *models.ServiceMetricsSnapshot) (bool, float64) {
	e.mu.Lock()
	detectors, ok := e.spikes[service]
	if !ok {
		detectors = map[string]*forecast.SpikeDetector{
			"error_rate":   forecast.NewSpikeDetector(0.02, 0.0),
			"queue_length": forecast.NewSpikeDetector(10.0, 0.0),
		}
		e.spikes[service] = detectors
	}
	e.mu.Unlock()

	spiking := false
	severity := 0.0
	if r := detectors["error_rate"].Observe(snap.Performance.ErrorRate); r.IsSpike && r.Direction == forecast.SpikeUpward {
		spiking = true
		severity = math.Max(severity, r.Severity)
	}
	if r := detectors["queue_length"].Observe(snap.Performance.QueueLength); r.IsSpike && r.Direction == forecast.SpikeUpward {
		spiking = true
		severity = math.Max(severity, r.Severity)
	}
	return spiking, severity
}

// deriveUrgency classifies a decision from confidence and change magnitude.
// Detected load excursions escalate independent of confidence.
func deriveUrgency(confidence float64, delta, current int, spiking bool, severity float64) models.Urgency {
	if spiking && severity >= 2.0 {
		return models.UrgencyCritical
	}

	base := 1
	if current > 0 {
		base = current
	}
	ratio := math.Abs(float64(delta)) / float64(base)

	switch {
	case spiking || ratio >= 1.0:
		return models.UrgencyHigh
	case confidence >= 0.8 && ratio >= 0.5:
		return models.UrgencyHigh
	case confidence >= 0.6 || ratio >= 0.25:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// clamp bounds the target to the service's configured [min,max], recording a
// reasoning entry when the raw target was out of bounds.
func (e *Engine) clamp(service string, target int, decision *models.ScalingDecision) int {
	limits, ok := e.cfg.Limits[service]
	if !ok {
		return target
	}
	clamped := target
	if clamped < limits.Min {
		clamped = limits.Min
	}
	if limits.Max > 0 && clamped > limits.Max {
		clamped = limits.Max
	}
	if clamped != target {
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("target %d clamped to %d by bounds [%d,%d]", target, clamped, limits.Min, limits.Max))
	}
	return clamped
}

// finishDecision records the decision in bounded history, feeds the
// forecaster and publishes the decision-made event.
func (e *Engine) finishDecision(d *models.ScalingDecision, snap *models.ServiceMetricsSnapshot) *models.ScalingDecision {
	e.mu.Lock()
	h := append(e.history[d.ServiceName], d)
	if len(h) > e.cfg.HistorySize {
		h = h[len(h)-e.cfg.HistorySize:]
	}
	e.history[d.ServiceName] = h
	e.mu.Unlock()

	if snap != nil {
		e.forecaster.Observe(d.ServiceName, d.Timestamp, loadScore(snap), snap.Instances.Current)
	}

	e.logger.Debugw("scaling decision",
		"service", d.ServiceName, "action", d.Action,
		"current", d.CurrentInstances, "recommended", d.RecommendedInstances,
		"confidence", d.Confidence, "urgency", d.Urgency)

	e.bus.Publish(events.Event{
		Type:        events.TypeDecisionMade,
		ServiceName: d.ServiceName,
		Decision:    d,
	})
	return d
}

// RecordExecution feeds an execution outcome back into cooldown state.
// Only successful, direction-changing executions start a cooldown window.
func (e *Engine) RecordExecution(rec *models.ExecutionRecord) {
	if rec == nil || !rec.Success {
		return
	}
	e.cooldowns.Record(rec.ServiceName, rec.Action, rec.Timestamp)
}

// CooldownActive reports whether the service is inside the cooldown window
// for the given direction, and how much of the window remains.
func (e *Engine) CooldownActive(service string, action models.ScalingAction) (time.Duration, bool) {
	return e.cooldowns.Active(service, action, time.Now(), e.cfg.Cooldowns)
}

// GeneratePrediction produces an advisory forecast for the service
func (e *Engine) GeneratePrediction(service string, horizonMinutes int) ([]models.PredictionPoint, error) {
	horizon := time.Duration(horizonMinutes) * time.Minute
	return e.forecaster.Predict(service, horizon, e.gate.profileFor(service))
}

// DecisionHistory returns a copy of the bounded decision history
func (e *Engine) DecisionHistory(service string) []*models.ScalingDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history[service]
	out := make([]*models.ScalingDecision, len(h))
	copy(out, h)
	return out
}

// ConstraintStats exposes financial-constraint counters for the ops surface
func (e *Engine) ConstraintStats() ConstraintStats {
	return e.gate.Stats()
}

// loadScore condenses a snapshot into one load scalar used by forecasting
func loadScore(snap *models.ServiceMetricsSnapshot) float64 {
	cpu := ratio(snap.Resources.CPU)
	mem := ratio(snap.Resources.Memory)
	queue := math.Min(1.0, snap.Performance.QueueLength/100.0)
	errs := math.Min(1.0, snap.Performance.ErrorRate)
	return 0.4*cpu + 0.3*mem + 0.2*queue + 0.1*errs
}

func ratio(r models.ResourceStat) float64 {
	if r.Limit > 0 {
		return math.Min(1.0, r.Usage/r.Limit)
	}
	return math.Min(1.0, r.Usage)
}
