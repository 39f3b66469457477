// Package schedule drives the periodic refresh (and optional capture) on
// the configured cron spec.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "epdtimeline/internal/log"
)

// Job is one step of a scheduled run.
type Job func(ctx context.Context) error

// Runner runs its jobs in order on every tick. Ticks that arrive while a
// run is still in progress are skipped.
type Runner struct {
	cron *cron.Cron
	jobs []namedJob

	mu      sync.Mutex
	running bool
	runs    int
}

type namedJob struct {
	name string
	fn   Job
}

// New parses spec (standard 5-field cron) and returns an idle Runner.
func New(spec string) (*Runner, error) {
	r := &Runner{cron: cron.New()}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("schedule: %q: %w", spec, err)
	}
	if _, err := r.cron.AddFunc(spec, func() { r.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule: %q: %w", spec, err)
	}
	return r, nil
}

// Add appends a job. Must be called before Start.
func (r *Runner) Add(name string, fn Job) {
	r.jobs = append(r.jobs, namedJob{name: name, fn: fn})
}

// RunOnce runs every job in order, stopping at the first failure. It
// returns false if another run was in progress.
func (r *Runner) RunOnce(ctx context.Context) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		appLog.Warn("schedule: previous run still in progress, skipping tick")
		return false
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.runs++
		r.mu.Unlock()
	}()

	for _, j := range r.jobs {
		if err := j.fn(ctx); err != nil {
			appLog.Error("schedule: job failed", err, "job", j.name)
			return true
		}
		appLog.Debug("schedule: job done", "job", j.name)
	}
	return true
}

// Runs reports how many runs have completed.
func (r *Runner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// Start runs the jobs once immediately, then on every tick until ctx is
// canceled. It blocks until the in-flight run, if any, has finished.
func (r *Runner) Start(ctx context.Context) {
	r.RunOnce(ctx)
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}
