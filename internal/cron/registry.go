package cron

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job   Job
	every time.Duration
}

// Registry holds the jobs of a cycle in registration order, each with the
// minimum spacing between two successful runs.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job that is due on every cycle.
func (r *Registry) Register(job Job) error {
	return r.Schedule(job, 0)
}

// Schedule adds a job that is due once every has elapsed since its last
// successful run. Names must be unique.
func (r *Registry) Schedule(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("job name required")
	}
	if every < 0 {
		return fmt.Errorf("job %s: negative spacing %s", name, every)
	}
	for _, e := range r.entries {
		if e.job.Name() == name {
			return fmt.Errorf("job %s already registered", name)
		}
	}
	r.entries = append(r.entries, entry{job: job, every: every})
	return nil
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

func (r *Registry) spacing(name string) time.Duration {
	for _, e := range r.entries {
		if e.job.Name() == name {
			return e.every
		}
	}
	return 0
}
