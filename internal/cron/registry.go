package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of scheduled work. Name must be unique per registry; it
// labels logs, metrics and the -once flag of the worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs run at most once per Every(); jobs without it run on every
// tick.
type Periodic interface {
	Every() time.Duration
}

// Registry keeps jobs in registration order.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

// NewRegistry panics on a duplicate job name, the same way http.ServeMux
// treats a duplicate pattern. Nil jobs are skipped.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{byName: map[string]Job{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			panic(err)
		}
	}
	return registry
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if r.byName == nil {
		r.byName = map[string]Job{}
	}
	name := job.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("cron: job %q already registered", name)
	}
	r.byName[name] = job
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}

func jobInterval(job Job) time.Duration {
	if p, ok := job.(Periodic); ok {
		return p.Every()
	}
	return 0
}
