// Copyright (c) 2023 BVK Chaitanya

// Package job implements an api to manage background jobs. Jobs are
// activities that can be stopped or canceled through the context.Context
// argument.
package job

import (
	"context"
	"errors"
	"sync"
)

type State string

const (
	RUNNING   State = "RUNNING"
	STOPPED   State = "STOPPED"
	COMPLETED State = "COMPLETED"
	CANCELED  State = "CANCELED"
	FAILED    State = "FAILED"
)

type Func func(ctx context.Context) error

var (
	errStop   = errors.New("ErrStop")
	errCancel = errors.New("ErrCancel")
)

// IsStopRequest returns true if the error is the cause used by Stop or
// Cancel.
func IsStopRequest(err error) bool {
	return errors.Is(err, errStop) || errors.Is(err, errCancel)
}

type Job struct {
	cancel context.CancelCauseFunc

	done chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// Run starts the job function in a goroutine with a context derived from
// fctx.
func Run(f Func, fctx context.Context) *Job {
	ctx, cancel := context.WithCancelCause(fctx)
	j := &Job{
		cancel: cancel,
		done:   make(chan struct{}),
		state:  RUNNING,
	}
	go j.goRun(ctx, f)
	return j
}

func (j *Job) goRun(ctx context.Context, f Func) {
	defer close(j.done)

	err := f(ctx)

	j.mu.Lock()
	defer j.mu.Unlock()

	j.err = err
	cause := context.Cause(ctx)
	switch {
	case err == nil:
		j.state = COMPLETED
	case errors.Is(cause, errStop) && errors.Is(err, errStop):
		j.state = STOPPED
	case errors.Is(cause, errCancel) && errors.Is(err, errCancel):
		j.state = CANCELED
	default:
		j.state = FAILED
	}
}

// Stop requests the job to stop. Job may be started again later with a new
// Run call.
func (j *Job) Stop() {
	j.cancel(errStop)
}

// Cancel requests the job to stop permanently.
func (j *Job) Cancel() {
	j.cancel(errCancel)
}

// Done returns a channel that is closed when the job function returns.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks till the job function returns or the context expires.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the job function's return value once the job is done.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
