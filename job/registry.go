// Copyright (c) 2025 BVK Chaitanya

package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// Registry maps ids to running jobs. A job is registered when it is started
// and is removed automatically when its function returns.
type Registry struct {
	mu sync.Mutex

	jobMap map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{
		jobMap: make(map[string]*Job),
	}
}

// Start runs the job function under the given id. Returns os.ErrExist if a
// job with the same id is already running.
func (r *Registry) Start(id string, f Func, fctx context.Context) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobMap[id]; ok {
		return nil, fmt.Errorf("job %q is already running: %w", id, os.ErrExist)
	}

	var job *Job
	wrapper := func(ctx context.Context) error {
		err := f(ctx)
		if err != nil && !IsStopRequest(err) {
			slog.Warn("job has returned with an error", "job", id, "err", err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		if r.jobMap[id] == job {
			delete(r.jobMap, id)
		}
		return err
	}

	job = Run(wrapper, fctx)
	r.jobMap[id] = job
	return job, nil
}

func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobMap[id]
	return job, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.jobMap)
}

// IDs returns the ids of all running jobs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.jobMap))
	for id := range r.jobMap {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Stop stops a running job and waits for it to return. Returns
// os.ErrNotExist if no job is running with the id.
func (r *Registry) Stop(ctx context.Context, id string) error {
	job, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("job %q is not running: %w", id, os.ErrNotExist)
	}
	job.Stop()
	return job.Wait(ctx)
}

// StopAll stops all running jobs and waits for them to return.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobMap))
	for _, job := range r.jobMap {
		job.Stop()
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	for _, job := range jobs {
		if err := job.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
