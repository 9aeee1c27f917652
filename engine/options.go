// Copyright (c) 2025 BVK Chaitanya

package engine

import (
	"fmt"
	"time"

	"github.com/bvk/volumebot/fanout"
	"github.com/bvk/volumebot/looper"
	"github.com/bvk/volumebot/sweeper"
	"github.com/bvk/volumebot/watcher"
)

type Options struct {
	Watcher watcher.Options
	Fanout  fanout.Options
	Looper  looper.Options
	Sweeper sweeper.Options

	// AdminAddress receives the funds of every active session on an admin
	// sweep. Admin sweep is disabled when empty.
	AdminAddress string

	// ReportInterval is the time between two status reports of a trading
	// session.
	ReportInterval time.Duration

	// RetryInterval is the wait time before a session controller retries a
	// step that failed with an unexpected error.
	RetryInterval time.Duration

	// NoResume when true doesn't restart the non-terminal sessions found in
	// the database on Start. Such sessions are started on demand.
	NoResume bool
}

func (v *Options) setDefaults() {
	if v.ReportInterval == 0 {
		v.ReportInterval = 5 * time.Minute
	}
	if v.RetryInterval == 0 {
		v.RetryInterval = 5 * time.Second
	}
}

func (v *Options) Check() error {
	if v.ReportInterval <= 0 {
		return fmt.Errorf("report interval must be positive")
	}
	if v.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive")
	}
	return nil
}
