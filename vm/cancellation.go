package vm

import (
	"context"
	"fmt"
)

// ---------------------------------------------------------------------------
// Cancellation: run loops poll the Go context between instructions
// ---------------------------------------------------------------------------

// checkCancelled returns a non-nil error once ctx is done. The error wraps
// ctx.Err(), so errors.Is(err, context.Canceled) and
// errors.Is(err, context.DeadlineExceeded) hold.
func (m *Machine) checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("vm: execution stopped at %v (depth %d): %w", m.CallStack.Peek(), m.CallStack.Count(), ctx.Err())
	default:
		return nil
	}
}
