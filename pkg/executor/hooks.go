package executor

import (
	"context"
	"fmt"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// HookStage says when a hook runs relative to the provider call
type HookStage string

const (
	StagePreScale  HookStage = "pre"
	StagePostScale HookStage = "post"
)

// HookFunc is the body of a hook
type HookFunc func(ctx context.Context, decision *models.ScalingDecision) error

// Hook is a named callback around scaling execution. A mandatory pre-scale
// hook that fails aborts the scaling; optional hook failures are recorded as
// warnings and execution continues.
type Hook struct {
	Name      string
	Stage     HookStage
	Mandatory bool
	Run       HookFunc
}

// Validate checks the hook is runnable
func (h Hook) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("hook missing name")
	}
	if h.Stage != StagePreScale && h.Stage != StagePostScale {
		return fmt.Errorf("hook %s has invalid stage %q", h.Name, h.Stage)
	}
	if h.Run == nil {
		return fmt.Errorf("hook %s has no body", h.Name)
	}
	return nil
}
