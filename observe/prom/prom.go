// Package prom exports scope lifecycle events as Prometheus metrics.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkraev/taskscope/scope"
	"github.com/mkraev/taskscope/task"
)

// Observer implements scope.Observer on top of prometheus counters, a live
// gauge, and duration histograms. One Observer may be shared by any number
// of scopes.
type Observer struct {
	scopesEntered prometheus.Counter
	scopesAborted prometheus.Counter
	scopesExited  *prometheus.CounterVec
	tasksSpawned  prometheus.Counter
	tasksFinished *prometheus.CounterVec
	tasksLive     prometheus.Gauge
	taskDur       prometheus.Histogram
	drainDur      prometheus.Histogram
}

var _ scope.Observer = (*Observer)(nil)

// New creates the observer and registers its metrics with reg. A nil reg
// falls back to prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Observer{
		scopesEntered: f.NewCounter(prometheus.CounterOpts{
			Name: "taskscope_scopes_entered_total",
			Help: "Scopes entered.",
		}),
		scopesAborted: f.NewCounter(prometheus.CounterOpts{
			Name: "taskscope_scopes_aborted_total",
			Help: "Group-wide aborts triggered.",
		}),
		scopesExited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskscope_scopes_exited_total",
			Help: "Scopes exited, by outcome.",
		}, []string{"outcome"}),
		tasksSpawned: f.NewCounter(prometheus.CounterOpts{
			Name: "taskscope_tasks_spawned_total",
			Help: "Tasks spawned into scopes.",
		}),
		tasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskscope_tasks_finished_total",
			Help: "Tasks finished, by outcome.",
		}, []string{"outcome"}),
		tasksLive: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskscope_tasks_live",
			Help: "Tasks currently running in scopes.",
		}),
		taskDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskscope_task_duration_seconds",
			Help:    "Task run time.",
			Buckets: prometheus.DefBuckets,
		}),
		drainDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskscope_scope_drain_seconds",
			Help:    "Time scopes spent waiting for their children at exit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (o *Observer) ScopeEntered(context.Context) { o.scopesEntered.Inc() }

func (o *Observer) ScopeAborted(context.Context, error) { o.scopesAborted.Inc() }

func (o *Observer) ScopeExited(_ context.Context, err error, drain time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.scopesExited.WithLabelValues(outcome).Inc()
	o.drainDur.Observe(drain.Seconds())
}

func (o *Observer) TaskSpawned(context.Context, string) {
	o.tasksSpawned.Inc()
	o.tasksLive.Inc()
}

func (o *Observer) TaskFinished(_ context.Context, _ string, outcome task.Outcome, dur time.Duration) {
	o.tasksLive.Dec()
	o.tasksFinished.WithLabelValues(outcome.String()).Inc()
	o.taskDur.Observe(dur.Seconds())
}
