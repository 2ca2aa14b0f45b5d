package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// Type identifies an event emitted by the control loop
type Type string

const (
	TypeDecisionMade     Type = "decision-made"
	TypeScalingStarted   Type = "scaling-started"
	TypeScalingCompleted Type = "scaling-completed"
	TypeScalingFailed    Type = "scaling-failed"
	TypeHealthDegraded   Type = "health-degraded"
)

// Event carries the decision or execution record relevant to a notification
type Event struct {
	Type        Type                     `json:"type"`
	Timestamp   time.Time                `json:"timestamp"`
	ServiceName string                   `json:"service_name"`
	Message     string                   `json:"message,omitempty"`
	Decision    *models.ScalingDecision  `json:"decision,omitempty"`
	Execution   *models.ExecutionRecord  `json:"execution,omitempty"`
}

// Bus fans events out to subscribers without ever blocking the publisher.
// A subscriber that falls behind loses events; drops are counted so
// telemetry can surface them.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	buffer      int
	closed      bool
	dropped     atomic.Int64
}

// NewBus creates a bus whose subscriber channels hold up to buffer events
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer}
}

// Subscribe registers a new subscriber and returns its channel
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers the event to every subscriber. A subscriber whose buffer
// is full loses its oldest buffered event to make room. Fire-and-continue:
// the control loop is never slowed down by a consumer.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
			continue
		default:
		}

		// Evict the oldest buffered event, then retry once. A concurrent
		// publisher can still win the freed slot; then this event drops too.
		select {
		case <-ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were discarded on full subscriber buffers
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels; Publish becomes a no-op
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
