// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"fmt"
	"time"

	"github.com/bvk/volumebot/engine"
	"github.com/bvk/volumebot/jupiter"
	"github.com/bvk/volumebot/paper"
)

type Options struct {
	Engine  engine.Options
	Jupiter jupiter.Options

	// Paper when true uses an in-memory simulated ledger instead of the
	// Solana network.
	Paper        bool
	PaperOptions paper.Options

	// AlertFreezeTimeout is the minimum time between two alerts for the same
	// session.
	AlertFreezeTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.AlertFreezeTimeout == 0 {
		v.AlertFreezeTimeout = time.Hour
	}
}

func (v *Options) Check() error {
	if v.AlertFreezeTimeout < 0 {
		return fmt.Errorf("alert freeze timeout cannot be negative")
	}
	return nil
}
