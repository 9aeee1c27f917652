// Copyright (c) 2025 BVK Chaitanya

package watcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Options struct {
	// PollInterval is the time between two balance queries.
	PollInterval time.Duration

	// Timeout is the deposit window measured from the session creation time.
	Timeout time.Duration

	// MinBase is the minimum base currency deposit.
	MinBase decimal.Decimal
}

func (v *Options) setDefaults() {
	if v.PollInterval == 0 {
		v.PollInterval = 5 * time.Second
	}
	if v.Timeout == 0 {
		v.Timeout = 30 * time.Minute
	}
	if v.MinBase.IsZero() {
		v.MinBase = decimal.RequireFromString("0.1")
	}
}

func (v *Options) Check() error {
	if v.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if v.Timeout < v.PollInterval {
		return fmt.Errorf("deposit timeout cannot be smaller than the poll interval")
	}
	if !v.MinBase.IsPositive() {
		return fmt.Errorf("minimum deposit must be positive")
	}
	return nil
}

// Resolved returns a copy of the options with the defaults filled in.
func (v Options) Resolved() (*Options, error) {
	v.setDefaults()
	if err := v.Check(); err != nil {
		return nil, err
	}
	return &v, nil
}
