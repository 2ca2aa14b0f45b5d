package provider

import (
	"context"
	"fmt"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// ComputeProvider is the uniform contract every orchestration adapter
// implements. One adapter exists per platform kind; the executor selects
// it from static per-service configuration.
type ComputeProvider interface {
	Kind() models.PlatformKind
	Scale(ctx context.Context, service string, target int) (models.ScaleResult, error)
	CurrentInstances(ctx context.Context, service string) (int, error)
	Limits(ctx context.Context, service string) (models.InstanceLimits, error)
}

// Registry maps platform kinds to their adapters
type Registry struct {
	providers map[models.PlatformKind]ComputeProvider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[models.PlatformKind]ComputeProvider)}
}

// Register adds an adapter; registering the same kind twice is an error
func (r *Registry) Register(p ComputeProvider) error {
	if _, ok := r.providers[p.Kind()]; ok {
		return fmt.Errorf("provider for platform %q already registered", p.Kind())
	}
	r.providers[p.Kind()] = p
	return nil
}

// Get returns the adapter for a platform kind
func (r *Registry) Get(kind models.PlatformKind) (ComputeProvider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for platform %q", kind)
	}
	return p, nil
}

// Kinds lists the registered platform kinds
func (r *Registry) Kinds() []models.PlatformKind {
	kinds := make([]models.PlatformKind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	return kinds
}
