package database

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
)

// Recorder subscribes to the event bus and writes decisions, executions
// and lifecycle events to the history store. It runs off the hot path so
// a slow disk never delays the control loop.
type Recorder struct {
	repo   *Repository
	logger *zap.SugaredLogger
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder over the repository
func NewRecorder(repo *Repository, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Start consumes the bus subscription until its channel closes
func (r *Recorder) Start(ch <-chan events.Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for e := range ch {
			r.record(e)
		}
	}()
}

// Wait blocks until the consuming goroutine exits. Call after closing
// the bus so shutdown does not lose buffered events.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) record(e events.Event) {
	switch e.Type {
	case events.TypeDecisionMade:
		if e.Decision == nil {
			return
		}
		if err := r.repo.SaveDecision(e.Decision); err != nil {
			r.logger.Warnw("failed to persist decision", "service", e.ServiceName, "error", err)
		}
	case events.TypeScalingCompleted, events.TypeScalingFailed:
		if e.Execution == nil {
			return
		}
		if err := r.repo.SaveExecution(e.Execution); err != nil {
			r.logger.Warnw("failed to persist execution", "service", e.ServiceName, "error", err)
		}
	case events.TypeScalingStarted, events.TypeHealthDegraded:
		row := &EventRow{
			Timestamp:   e.Timestamp,
			ServiceName: e.ServiceName,
			EventType:   string(e.Type),
			Message:     e.Message,
		}
		if err := r.repo.SaveEvent(row); err != nil {
			r.logger.Warnw("failed to persist event", "type", e.Type, "error", err)
		}
	}
}
