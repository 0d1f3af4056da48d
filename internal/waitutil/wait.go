// Package waitutil implements bounded polling used to verify that launchd
// acted on a request.
package waitutil

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultInterval is the poll period when none is given.
const DefaultInterval = 33 * time.Millisecond

// TimeoutError is returned when a condition stays unmet for the whole
// timeout.
type TimeoutError struct {
	What    string
	Timeout time.Duration
	Polls   int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s (%d polls)", e.Timeout, e.What, e.Polls)
}

// Until polls cond every interval until it reports true, returns an error,
// ctx ends, or timeout elapses. cond runs once immediately.
func Until(ctx context.Context, what string, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		done, err := cond(ctx)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", what, err)
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &TimeoutError{What: what, Timeout: timeout, Polls: polls}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ForExit waits until pid no longer exists.
func ForExit(ctx context.Context, pid int32, timeout time.Duration) error {
	return Until(ctx, fmt.Sprintf("pid %d to exit", pid), DefaultInterval, timeout, func(ctx context.Context) (bool, error) {
		exists, err := process.PidExistsWithContext(ctx, pid)
		if err != nil {
			return false, err
		}
		return !exists, nil
	})
}
