// Package poll runs sensor-driven wait loops with a deadline.
package poll

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// ErrSensorTimeout is returned when a polled condition is not met before the
// deadline.  A sensor that never crosses a threshold would otherwise leave the
// robot spinning forever.
var ErrSensorTimeout = errors.New("condition not met before deadline")

// Until calls cond repeatedly until it reports done, returns an error, the
// context is cancelled or timeout elapses.  A zero timeout means no deadline.
// interval is slept between calls; zero means a tight loop.
func Until(ctx context.Context, clk clock.Clock, timeout, interval time.Duration, cond func() (bool, error)) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = clk.Now().Add(timeout)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !deadline.IsZero() && !clk.Now().Before(deadline) {
			return errors.Wrapf(ErrSensorTimeout, "gave up after %v", timeout)
		}
		if interval > 0 {
			Sleep(ctx, clk, interval)
		}
	}
}

// Sleep waits for d or until ctx is done, whichever is first.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) {
	if d <= 0 {
		return
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
