package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Func is the body of a task. The context carries the task's cancellation
// epoch; bodies should return promptly with ctx.Err() once it is done.
type Func func(ctx context.Context) (any, error)

// Outcome classifies how a task reached its terminal state.
type Outcome int8

const (
	// OutcomePending means the task has not finished yet.
	OutcomePending Outcome = iota
	// OutcomeSuccess means the body returned a nil error.
	OutcomeSuccess
	// OutcomeCancelled means the body returned a cancellation error.
	OutcomeCancelled
	// OutcomeErrored means the body returned an ordinary error or panicked.
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeErrored:
		return "errored"
	default:
		return fmt.Sprintf("outcome(%d)", int8(o))
	}
}

// errFinished is the epoch cancellation cause once a task has completed.
var errFinished = errors.New("task finished")

var seq atomic.Int64

type ctxKey struct{}

// Task is the handle to one running unit of work. A Task is created with
// Spawn and never restarted; all methods are safe for concurrent use.
type Task struct {
	name string

	// base carries the spawner's values but not its cancellation. Epochs
	// are derived from it so a Cancel/Uncancel pair can hand the body a
	// fresh live context.
	base context.Context

	done chan struct{}

	mu        sync.Mutex
	epoch     context.Context
	cancel    context.CancelCauseFunc
	cancels   int
	finished  bool
	val       any
	err       error
	outcome   Outcome
	callbacks []func(*Task)
}

// Spawn starts fn in its own goroutine and returns its handle immediately.
// The body's context inherits the values of ctx but not its cancellation;
// the only way to cancel a spawned task is Cancel on the handle. An empty
// name is replaced with a generated one.
func Spawn(ctx context.Context, name string, fn Func) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	if name == "" {
		name = fmt.Sprintf("task-%d", seq.Add(1))
	}
	t := &Task{
		name: name,
		done: make(chan struct{}),
	}
	t.base = context.WithValue(context.WithoutCancel(ctx), ctxKey{}, t)
	t.epoch, t.cancel = context.WithCancelCause(t.base)
	go t.run(fn)
	return t
}

// Current returns the task ctx belongs to, or nil if ctx was not produced
// by Spawn or Run. Bodies use it to re-read their live context after an
// absorbed cancellation renewed the epoch.
func Current(ctx context.Context) *Task {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(ctxKey{}).(*Task)
	return t
}

// Run executes fn as a task on the calling goroutine's behalf and waits for
// it. Unlike a plain Spawn, cancellation of ctx is forwarded to the task,
// so Run behaves like an ordinary blocking call that happens to have a
// task identity. It is the usual way to give code a root task to nest
// scopes under.
func Run(ctx context.Context, name string, fn Func) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	t := Spawn(ctx, name, fn)
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				t.Cancel(context.Cause(ctx))
			case <-t.done:
			}
		}()
	}
	return t.Result()
}

func (t *Task) run(fn Func) {
	ctx := t.Context()
	var (
		val any
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = Recovered(r)
			}
		}()
		val, err = fn(ctx)
	}()
	t.finish(val, err)
}

func (t *Task) finish(val any, err error) {
	t.mu.Lock()
	t.val = val
	t.err = err
	switch {
	case err == nil:
		t.outcome = OutcomeSuccess
	case IsCancellation(err):
		t.outcome = OutcomeCancelled
	default:
		t.outcome = OutcomeErrored
	}
	t.finished = true
	cbs := t.callbacks
	t.callbacks = nil
	cancel := t.cancel
	t.mu.Unlock()

	cancel(errFinished)
	close(t.done)
	// Callbacks run after done is observable and outside the lock, so a
	// callback may call back into the task or block on other tasks.
	for _, cb := range cbs {
		cb(t)
	}
}

// Cancel requests cancellation of the task with the given cause and
// increments its outstanding-cancellation counter. A nil cause stands for
// context.Canceled. It reports false if the task had already finished, in
// which case the counter is left untouched.
func (t *Task) Cancel(cause error) bool {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return false
	}
	t.cancels++
	cancel := t.cancel
	t.mu.Unlock()
	cancel(cause)
	return true
}

// Uncancel retracts one outstanding cancellation request and returns the
// number still outstanding. When the count reaches zero while the task is
// running, the task's context epoch is renewed so the body can continue
// under a live context. The counter never goes below zero.
func (t *Task) Uncancel() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancels > 0 {
		t.cancels--
	}
	if t.cancels == 0 && !t.finished && t.epoch.Err() != nil {
		t.epoch, t.cancel = context.WithCancelCause(t.base)
	}
	return t.cancels
}

// Cancelling returns the number of outstanding cancellation requests.
func (t *Task) Cancelling() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancels
}

// Context returns the task's current cancellation epoch. After an Uncancel
// renewed the epoch, previously obtained contexts stay cancelled; bodies
// that absorb cancellation must call Context again for the live one.
func (t *Task) Context() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// OnDone registers fn to run once the task finishes. If the task has
// already finished, fn runs synchronously on the calling goroutine;
// otherwise it runs on the task's goroutine after Done is closed. Each
// registered callback runs exactly once.
func (t *Task) OnDone(fn func(*Task)) {
	t.mu.Lock()
	if !t.finished {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn(t)
}

// Done returns a channel closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Join blocks until the task finishes or ctx is done. It returns ctx's
// error in the latter case; the task's own error is read with Err.
func (t *Task) Join(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result waits for the task to finish and returns its value and error.
func (t *Task) Result() (any, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.val, t.err
}

// Value returns the task's result value, or nil while it is running.
func (t *Task) Value() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.val
}

// Err returns the task's terminal error, or nil while it is running.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Outcome reports how the task ended, or OutcomePending while it runs.
func (t *Task) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Cancelled reports whether the task finished by way of cancellation.
func (t *Task) Cancelled() bool { return t.Outcome() == OutcomeCancelled }

// Finished reports whether the task has reached its terminal state.
func (t *Task) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// IsCancellation reports whether err represents cooperative cancellation,
// that is, whether it has context.Canceled in its chain. Deadline expiry
// is deliberately not cancellation: a task that gives up on a timeout
// carries information its parent must not swallow.
func IsCancellation(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}
