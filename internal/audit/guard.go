package audit

import (
	"context"
	"fmt"

	"github.com/snapgallery/backoffice/internal/rbac"
)

// Operation describes a privileged operation for Guard.Run.
type Operation struct {
	Permission  rbac.Permission
	Action      ActionType
	Description string
	Target      *Target
}

// Outcome lets an operation adjust what gets recorded after it ran.
type Outcome struct {
	// Status overrides the derived status when set. A nil error records
	// success and a non-nil error records failed by default.
	Status Status
	// Description replaces the operation description when non-empty.
	Description string
	// Target replaces the operation target when set.
	Target *Target
}

// Guard runs privileged operations: authorize first, then act, then record.
type Guard struct {
	gate     *rbac.Gate
	recorder *Recorder
}

// NewGuard binds the gate and recorder.
func NewGuard(gate *rbac.Gate, recorder *Recorder) *Guard {
	return &Guard{gate: gate, recorder: recorder}
}

// Run authorizes p for op.Permission. On denial it records an access_denied
// entry and returns the *rbac.AuthorizationError without calling fn. Otherwise
// it calls fn and records the outcome. The returned error is always fn's
// error; recording failures never change it.
func (g *Guard) Run(ctx context.Context, p rbac.Principal, rc RequestContext, op Operation, fn func(context.Context) (Outcome, error)) error {
	if err := g.gate.Require(p.Role, op.Permission); err != nil {
		desc := fmt.Sprintf("access denied: %s requires %s", op.Action, op.Permission)
		_, _ = g.recorder.RecordFor(ctx, p, rc, ActionAccessDenied, StatusFailed, desc, op.Target)
		return err
	}
	outcome, err := fn(ctx)
	status := outcome.Status
	if status == "" {
		status = StatusSuccess
		if err != nil {
			status = StatusFailed
		}
	}
	desc := op.Description
	if outcome.Description != "" {
		desc = outcome.Description
	}
	target := op.Target
	if outcome.Target != nil {
		target = outcome.Target
	}
	_, _ = g.recorder.RecordFor(ctx, p, rc, op.Action, status, desc, target)
	return err
}
