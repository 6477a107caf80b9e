package vault

import (
	"context"
	"errors"
	"fmt"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// undoLog records a compensating action for each collaborator mutation.
type undoLog struct {
	steps []undoStep
}

func (u *undoLog) push(name string, fn func(ctx context.Context) error) {
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

// rollback runs the log in reverse and returns cause joined with any
// compensation failures. Cancellation of ctx does not stop the rollback.
func (u *undoLog) rollback(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)

	errs := []error{cause}
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", step.name, err))
		}
	}
	u.steps = nil

	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}
