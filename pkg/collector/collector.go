package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcadia-invest/scaling-engine/pkg/events"
	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// MetricsSource supplies the raw per-service numbers. Each fetch fails
// independently; the concrete telemetry backend behind it is not this
// package's concern.
type MetricsSource interface {
	GetInstanceMetrics(ctx context.Context, service string) (models.InstanceCounts, error)
	GetResourceMetrics(ctx context.Context, service string) (models.ResourceUsage, error)
	GetPerformanceMetrics(ctx context.Context, service string) (models.PerformanceMetrics, error)
	GetCustomMetrics(ctx context.Context, service string) (map[string]float64, error)
}

// Config holds the collector's timing parameters
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	// StaleAfterIntervals is the N in "no successful collection within
	// N x interval means collection is stale".
	StaleAfterIntervals int
}

// HealthReport describes the state of metrics collection
type HealthReport struct {
	Healthy          bool           `json:"healthy"`
	Stale            bool           `json:"stale"`
	LastSuccess      time.Time      `json:"last_success"`
	MissingServices  []string       `json:"missing_services,omitempty"`
	DegradedServices []string       `json:"degraded_services,omitempty"`
	FailureCounts    map[string]int `json:"failure_counts,omitempty"`
}

// Collector polls every monitored service on a fixed interval and caches the
// latest snapshot per service. A failing service never aborts collection for
// the others.
type Collector struct {
	source   MetricsSource
	services []string
	cfg      Config
	bus      *events.Bus
	logger   *zap.SugaredLogger

	mu          sync.RWMutex
	cache       map[string]*models.ServiceMetricsSnapshot
	failures    map[string]int
	lastSuccess time.Time

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

// New creates a collector for the given services
func New(source MetricsSource, services []string, cfg Config, bus *events.Bus, logger *zap.SugaredLogger) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.StaleAfterIntervals <= 0 {
		cfg.StaleAfterIntervals = 3
	}
	return &Collector{
		source:   source,
		services: services,
		cfg:      cfg,
		bus:      bus,
		logger:   logger,
		cache:    make(map[string]*models.ServiceMetricsSnapshot),
		failures: make(map[string]int),
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection. Calling Start twice is an error.
func (c *Collector) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fmt.Errorf("collector already running")
	}
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		// One immediate cycle so consumers are not blind for a full interval.
		c.CollectAll(context.Background())
		for {
			select {
			case <-ticker.C:
				c.CollectAll(context.Background())
			case <-c.stopCh:
				return
			}
		}
	}()

	c.logger.Infow("metrics collector started",
		"services", len(c.services), "interval", c.cfg.Interval)
	return nil
}

// Stop halts future collection cycles. In-flight fetches run to their timeout.
func (c *Collector) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	c.logger.Infow("metrics collector stopped")
}

// CollectAll fetches a snapshot for every monitored service in parallel.
// The cache entry for a service is replaced only when its fetch succeeds.
func (c *Collector) CollectAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, service := range c.services {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			c.collectService(ctx, name)
		}(service)
	}
	wg.Wait()

	// One event per affected service, so subscribers can attribute failures.
	report := c.ValidateMetricsHealth()
	for _, service := range report.MissingServices {
		c.bus.Publish(events.Event{
			Type:        events.TypeHealthDegraded,
			ServiceName: service,
			Message:     "no usable metrics snapshot",
		})
	}
	for _, service := range report.DegradedServices {
		c.bus.Publish(events.Event{
			Type:        events.TypeHealthDegraded,
			ServiceName: service,
			Message:     "snapshot degraded, zero-filled metric families",
		})
	}
}

// collectService builds one snapshot. Instance counts are mandatory; failed
// resource, performance or custom fetches zero-fill and mark the snapshot
// degraded instead of failing it.
func (c *Collector) collectService(ctx context.Context, service string) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	instances, err := c.source.GetInstanceMetrics(fetchCtx, service)
	if err != nil {
		c.recordFailure(service, err)
		return
	}

	snapshot := &models.ServiceMetricsSnapshot{
		ServiceName: service,
		Timestamp:   time.Now(),
		Instances:   instances,
	}

	if resources, err := c.source.GetResourceMetrics(fetchCtx, service); err != nil {
		snapshot.Degraded = true
		c.logger.Warnw("resource metrics fetch failed, zero-filling",
			"service", service, "error", err)
	} else {
		snapshot.Resources = resources
	}

	if perf, err := c.source.GetPerformanceMetrics(fetchCtx, service); err != nil {
		snapshot.Degraded = true
		c.logger.Warnw("performance metrics fetch failed, zero-filling",
			"service", service, "error", err)
	} else {
		snapshot.Performance = perf
	}

	if custom, err := c.source.GetCustomMetrics(fetchCtx, service); err != nil {
		snapshot.Degraded = true
	} else {
		snapshot.Custom = custom
	}

	if err := snapshot.Validate(); err != nil {
		c.recordFailure(service, err)
		return
	}

	c.mu.Lock()
	c.cache[service] = snapshot
	c.failures[service] = 0
	c.lastSuccess = time.Now()
	c.mu.Unlock()
}

func (c *Collector) recordFailure(service string, err error) {
	c.mu.Lock()
	c.failures[service]++
	count := c.failures[service]
	c.mu.Unlock()

	c.logger.Warnw("metrics collection failed",
		"service", service, "consecutive_failures", count, "error", err)
}

// ServiceMetrics returns the last cached snapshot for a service. It never
// blocks on network I/O; ok is false when no snapshot has been collected yet.
func (c *Collector) ServiceMetrics(service string) (*models.ServiceMetricsSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.cache[service]
	return snap, ok
}

// AllMetrics returns the cached snapshot of every service that has one
func (c *Collector) AllMetrics() map[string]*models.ServiceMetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*models.ServiceMetricsSnapshot, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}

// ValidateMetricsHealth reports whether collection is stale and which
// services are missing or degraded.
func (c *Collector) ValidateMetricsHealth() HealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := HealthReport{
		Healthy:       true,
		LastSuccess:   c.lastSuccess,
		FailureCounts: make(map[string]int),
	}

	staleAfter := time.Duration(c.cfg.StaleAfterIntervals) * c.cfg.Interval
	if c.lastSuccess.IsZero() || time.Since(c.lastSuccess) > staleAfter {
		report.Stale = true
		report.Healthy = false
	}

	for _, service := range c.services {
		snap, ok := c.cache[service]
		if !ok {
			report.MissingServices = append(report.MissingServices, service)
			report.Healthy = false
		} else if snap.Degraded {
			report.DegradedServices = append(report.DegradedServices, service)
			report.Healthy = false
		}
		if n := c.failures[service]; n > 0 {
			report.FailureCounts[service] = n
		}
	}

	return report
}
