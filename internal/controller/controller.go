package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcadia-invest/scaling-engine/pkg/collector"
	"github.com/arcadia-invest/scaling-engine/pkg/engine"
	"github.com/arcadia-invest/scaling-engine/pkg/executor"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// Controller drives the closed loop: the collector refreshes snapshots on
// its own timer, and a second independent timer walks every managed
// service through decide-then-execute. Execution outcomes feed back into
// the engine so cooldowns only start on successful scalings.
type Controller struct {
	collector *collector.Collector
	engine    *engine.Engine
	executor  *executor.Executor
	services  []string
	interval  time.Duration
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a controller over the three loop stages
func New(col *collector.Collector, eng *engine.Engine, exe *executor.Executor,
	services []string, interval time.Duration, logger *zap.SugaredLogger) *Controller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Controller{
		collector: col,
		engine:    eng,
		executor:  exe,
		services:  services,
		interval:  interval,
		logger:    logger,
	}
}

// Start launches the collection loop and the decision loop
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if err := c.collector.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true

	go c.decisionLoop(ctx)

	c.logger.Infow("control loop started",
		"services", len(c.services), "decision_interval", c.interval)
	return nil
}

// Stop halts both loops and waits for the decision loop to drain
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.collector.Stop()
	c.logger.Infow("control loop stopped")
}

func (c *Controller) decisionLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunCycle(ctx)
		}
	}
}

// RunCycle performs one decide-then-execute pass over every service.
// A failure for one service never blocks the others.
func (c *Controller) RunCycle(ctx context.Context) {
	all := c.collector.AllMetrics()

	for _, service := range c.services {
		select {
		case <-ctx.Done():
			return
		default:
		}

		decision := c.engine.MakeScalingDecision(service, all[service], all)
		if decision == nil || decision.Action == models.ActionMaintain {
			continue
		}

		record := c.executor.ExecuteScalingDecision(ctx, decision)
		c.engine.RecordExecution(record)

		if !record.Success {
			c.logger.Warnw("scaling execution failed",
				"service", service, "action", decision.Action, "error", record.Error)
		}
	}
}
