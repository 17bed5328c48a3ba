package task

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// runRecovered executes a unit with panic recovery so a misbehaving callable
// can never crash the supervisor or its sibling units.
func runRecovered(ctx context.Context, unit UnitFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("unit panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()

	return unit(ctx)
}

// classify maps a finished unit's context state and returned error onto a
// terminal status. Timeout and cancellation are detected via the
// cancellation cause installed on the unit's context, so they are
// distinguished even when the unit's body returned a bare context error, and
// a cancellation that arrived during the unit's cleanup phase is still
// observed rather than swallowed.
func classify(ctx context.Context, err error) Status {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrTimeout):
		return StatusTimeout
	case errors.Is(cause, ErrCancelled):
		return StatusCancelled
	case ctx.Err() != nil:
		// Cancelled from further out without our sentinel cause.
		return StatusCancelled
	case err != nil:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
