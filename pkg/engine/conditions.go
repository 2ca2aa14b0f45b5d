package engine

import (
	"sync"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// conditionState tracks when a condition was first observed true for one
// (service, condition) key.
type conditionState struct {
	firstTrue time.Time
	lastEval  time.Time
}

// conditionTracker holds duration state for every (service, condition) pair.
// State is keyed per service, so cycles for different services never contend
// on anything but the map lock.
type conditionTracker struct {
	mu    sync.Mutex
	state map[string]*conditionState
}

func newConditionTracker() *conditionTracker {
	return &conditionTracker{state: make(map[string]*conditionState)}
}

func trackerKey(service string, cond models.Condition) string {
	return service + "|" + cond.Key()
}

// Observe updates duration state for one evaluation. A false observation
// resets the duration to zero by dropping the state entirely. The condition
// is satisfied once it has held continuously for its minimum duration.
func (t *conditionTracker) Observe(service string, cond models.Condition, holds bool, now time.Time) (held time.Duration, satisfied bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := trackerKey(service, cond)
	if !holds {
		delete(t.state, key)
		return 0, false
	}

	st, ok := t.state[key]
	if !ok {
		st = &conditionState{firstTrue: now}
		t.state[key] = st
	}
	st.lastEval = now

	held = now.Sub(st.firstTrue)
	return held, held >= cond.MinDuration()
}

// Reset clears all duration state for a service
func (t *conditionTracker) Reset(service string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := service + "|"
	for k := range t.state {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(t.state, k)
		}
	}
}
