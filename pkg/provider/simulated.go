package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// SimulatedProvider is an in-memory adapter used by tests and local runs.
// It books instance counts directly and can inject latency and failures.
type SimulatedProvider struct {
	mu        sync.Mutex
	instances map[string]int
	limits    map[string]models.InstanceLimits
	latency   time.Duration
	failNext  map[string]error
}

// NewSimulatedProvider creates a provider with the given starting counts
func NewSimulatedProvider(initial map[string]int, limits map[string]models.InstanceLimits) *SimulatedProvider {
	p := &SimulatedProvider{
		instances: make(map[string]int),
		limits:    make(map[string]models.InstanceLimits),
		failNext:  make(map[string]error),
	}
	for k, v := range initial {
		p.instances[k] = v
	}
	for k, v := range limits {
		p.limits[k] = v
	}
	return p
}

// Kind returns the platform kind this adapter serves
func (p *SimulatedProvider) Kind() models.PlatformKind {
	return models.PlatformSimulated
}

// SetLatency makes every Scale call take at least d
func (p *SimulatedProvider) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// FailNext makes the next Scale call for the service return err
func (p *SimulatedProvider) FailNext(service string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[service] = err
}

// Scale books the new instance count after the configured latency
func (p *SimulatedProvider) Scale(ctx context.Context, service string, target int) (models.ScaleResult, error) {
	start := time.Now()

	p.mu.Lock()
	latency := p.latency
	p.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return models.ScaleResult{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.failNext[service]; ok {
		delete(p.failNext, service)
		return models.ScaleResult{}, err
	}

	previous, ok := p.instances[service]
	if !ok {
		return models.ScaleResult{}, fmt.Errorf("unknown service %q", service)
	}
	p.instances[service] = target

	return models.ScaleResult{
		Success:           true,
		PreviousInstances: previous,
		NewInstances:      target,
		Duration:          time.Since(start),
	}, nil
}

// CurrentInstances returns the booked count
func (p *SimulatedProvider) CurrentInstances(ctx context.Context, service string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	count, ok := p.instances[service]
	if !ok {
		return 0, fmt.Errorf("unknown service %q", service)
	}
	return count, nil
}

// Limits returns the configured bounds, or a permissive default
func (p *SimulatedProvider) Limits(ctx context.Context, service string) (models.InstanceLimits, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limits[service]; ok {
		return l, nil
	}
	return models.InstanceLimits{Min: 0, Max: 1000}, nil
}
