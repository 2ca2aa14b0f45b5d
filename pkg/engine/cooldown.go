package engine

import (
	"sync"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// CooldownConfig holds the per-direction cooldown windows
type CooldownConfig struct {
	ScaleUp   time.Duration `json:"scale_up"`
	ScaleDown time.Duration `json:"scale_down"`
}

func (c CooldownConfig) window(action models.ScalingAction) time.Duration {
	switch action {
	case models.ActionScaleUp:
		return c.ScaleUp
	case models.ActionScaleDown:
		return c.ScaleDown
	default:
		return 0
	}
}

// cooldownStore remembers the last executed scaling action per service per
// direction. It is fed by execution results, not by decisions: a decision
// that never executed starts no cooldown.
type cooldownStore struct {
	mu   sync.Mutex
	last map[string]map[models.ScalingAction]time.Time
}

func newCooldownStore() *cooldownStore {
	return &cooldownStore{last: make(map[string]map[models.ScalingAction]time.Time)}
}

// Record notes that an action of the given direction executed at t
func (s *cooldownStore) Record(service string, action models.ScalingAction, t time.Time) {
	if action == models.ActionMaintain {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last[service] == nil {
		s.last[service] = make(map[models.ScalingAction]time.Time)
	}
	s.last[service][action] = t
}

// Active reports whether the service is inside the cooldown window for the
// given direction, and how much of the window remains.
func (s *cooldownStore) Active(service string, action models.ScalingAction, now time.Time, cfg CooldownConfig) (time.Duration, bool) {
	window := cfg.window(action)
	if window <= 0 {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.last[service][action]
	if !ok {
		return 0, false
	}
	elapsed := now.Sub(last)
	if elapsed >= window {
		return 0, false
	}
	return window - elapsed, true
}
