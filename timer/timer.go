// Package timer provides an interval timer that fires a callback as a task
// inside its own supervisor scope, so a slow or failing fire can never take
// the timer down and Stop reliably collects everything in flight.
package timer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mkraev/taskscope/scope"
	"github.com/mkraev/taskscope/task"
)

// Func is a timer callback. Each fire runs as its own task; the context is
// cancelled when the fire is preempted under DelayCancel or when the timer
// stops.
type Func func(ctx context.Context, interval time.Duration) error

// DelayPolicy decides what happens when a fire is still running at the next
// tick.
type DelayPolicy int8

const (
	// DelayDefault lets fires overlap; completed ones are pruned each tick.
	DelayDefault DelayPolicy = iota
	// DelayCancel cancels a still-running previous fire and waits for it
	// before starting the next one.
	DelayCancel
)

type Option func(*options)

type options struct {
	name     string
	delay    DelayPolicy
	clock    clockwork.Clock
	delegate scope.Delegate
}

// WithName names the timer task; fires are named after it.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithDelayPolicy selects the overlap behavior. Default is DelayDefault.
func WithDelayPolicy(p DelayPolicy) Option { return func(o *options) { o.delay = p } }

// WithClock substitutes the clock that paces the ticks. Tests pass a fake
// clock to drive the timer deterministically.
func WithClock(clk clockwork.Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithDelegate selects how fire errors are reported. Default is the
// process-wide default handler.
func WithDelegate(d scope.Delegate) Option { return func(o *options) { o.delegate = d } }

// Timer is a running interval timer. It keeps firing until Stop.
type Timer struct {
	t *task.Task
}

// Start fires cb immediately and then once per interval, each fire as a
// child task of the timer's own scope. Fire errors are reported through the
// scope's delegate and do not stop the timer. Cancellation of ctx is not
// inherited; the timer runs until Stop (or Task().Cancel).
func Start(ctx context.Context, interval time.Duration, cb Func, opts ...Option) *Timer {
	o := options{name: "timer", clock: clockwork.NewRealClock()}
	for _, fn := range opts {
		fn(&o)
	}
	t := task.Spawn(ctx, o.name, func(ctx context.Context) (any, error) {
		return nil, scope.Run(ctx, func(bctx context.Context, s *scope.Scope) error {
			return tick(bctx, s, interval, cb, &o)
		}, scope.WithPolicy(scope.Supervisor), scope.WithClock(o.clock), scope.WithDelegate(o.delegate))
	})
	return &Timer{t: t}
}

func tick(ctx context.Context, s *scope.Scope, interval time.Duration, cb Func, o *options) error {
	var fired []*task.Task
	for {
		if o.delay == DelayCancel {
			for _, ft := range fired {
				if !ft.Finished() {
					ft.Cancel(nil)
					select {
					case <-ft.Done():
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			fired = fired[:0]
		} else {
			live := fired[:0]
			for _, ft := range fired {
				if !ft.Finished() {
					live = append(live, ft)
				}
			}
			fired = live
		}
		// A stop that landed while collecting must not trigger one more fire.
		if err := ctx.Err(); err != nil {
			return err
		}
		ft, err := s.Spawn(o.name+"-fire", func(ctx context.Context) (any, error) {
			return nil, cb(ctx, interval)
		})
		if err != nil {
			return err
		}
		fired = append(fired, ft)
		if err := task.Sleep(ctx, o.clock, interval); err != nil {
			return err
		}
	}
}

// Stop cancels the timer and waits for it to drain: outstanding fires are
// cancelled and collected by the timer's scope before Stop returns. It
// returns ctx's error if ctx ends first, the timer's error if it failed on
// its own, and nil on a plain stop.
func (tm *Timer) Stop(ctx context.Context) error {
	tm.t.Cancel(nil)
	if err := tm.t.Join(ctx); err != nil {
		return err
	}
	if _, err := tm.t.Result(); err != nil && !task.IsCancellation(err) {
		return err
	}
	return nil
}

// Task returns the timer's task handle for inspection or joining.
func (tm *Timer) Task() *task.Task { return tm.t }
