package task

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sleep blocks for d on clk or until ctx is done, whichever comes first,
// returning ctx's error in the latter case. Passing a fake clock makes
// timing-sensitive task bodies testable without real waiting.
func Sleep(ctx context.Context, clk clockwork.Clock, d time.Duration) error {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := clk.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
