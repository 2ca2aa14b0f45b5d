package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(Event{Type: TypeDecisionMade, ServiceName: "order-api"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, TypeDecisionMade, e.Type)
			assert.Equal(t, "order-api", e.ServiceName)
			assert.False(t, e.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusNeverBlocksPublisher(t *testing.T) {
	bus := NewBus(2)
	ch := bus.Subscribe() // not drained until the end

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Type: TypeScalingStarted, Message: fmt.Sprintf("%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, int64(8), bus.Dropped())

	// The oldest events were evicted; the buffer holds the newest two.
	assert.Equal(t, "8", (<-ch).Message)
	assert.Equal(t, "9", (<-ch).Message)
}

func TestBusClose(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe()
	bus.Close()

	_, open := <-ch
	require.False(t, open)

	// Publish after close is a no-op, not a panic.
	bus.Publish(Event{Type: TypeScalingFailed})
	bus.Close()
}
