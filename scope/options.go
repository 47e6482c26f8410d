package scope

import (
	"github.com/jonboulle/clockwork"
)

// Policy decides what a scope does when a child fails with an ordinary
// error. Fatal-class errors escalate under every policy.
type Policy int

const (
	// FailFast aborts the whole group on the first child error and cancels
	// the parent task, so the block stops waiting promptly. Child errors
	// are collected and surfaced by Exit, aggregated when several occur.
	FailFast Policy = iota
	// Supervisor reports child errors to the delegate and keeps the rest
	// of the group running. Exit does not surface them.
	Supervisor
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Supervisor:
		return "supervisor"
	default:
		return "unknown"
	}
}

type Option func(*Options)

// Options configures a scope at construction time.
type Options struct {
	Policy         Policy
	Delegate       Delegate
	Observer       Observer
	MaxConcurrency int64
	Clock          clockwork.Clock
}

func defaultOptions() Options {
	return Options{Policy: FailFast, Clock: clockwork.NewRealClock()}
}

// WithPolicy selects the failure policy. Default is FailFast.
func WithPolicy(p Policy) Option { return func(o *Options) { o.Policy = p } }

// WithDelegate selects how child errors are reported locally. Default is
// DelegateDefault.
func WithDelegate(d Delegate) Option { return func(o *Options) { o.Delegate = d } }

// WithObserver attaches lifecycle hooks. Default is none.
func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

// WithMaxConcurrency bounds how many children run at once; further spawns
// queue inside their own task until a slot frees. Zero or negative means
// unlimited.
func WithMaxConcurrency(n int64) Option { return func(o *Options) { o.MaxConcurrency = n } }

// WithClock substitutes the clock used for observer durations. Tests pass
// a fake clock to drive timing deterministically.
func WithClock(clk clockwork.Clock) Option {
	return func(o *Options) {
		if clk != nil {
			o.Clock = clk
		}
	}
}
