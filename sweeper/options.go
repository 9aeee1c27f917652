// Copyright (c) 2025 BVK Chaitanya

package sweeper

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Options struct {
	// Dust is the largest base currency balance that counts as empty.
	Dust decimal.Decimal

	AssetDust decimal.Decimal

	MaxAttempts   int
	RetryInterval time.Duration

	TxPollInterval time.Duration
	TxTimeout      time.Duration
}

func (v *Options) setDefaults() {
	if v.Dust.IsZero() {
		v.Dust = decimal.RequireFromString("0.00001")
	}
	if v.AssetDust.IsZero() {
		v.AssetDust = decimal.RequireFromString("0.000001")
	}
	if v.MaxAttempts == 0 {
		v.MaxAttempts = 5
	}
	if v.RetryInterval == 0 {
		v.RetryInterval = 2 * time.Second
	}
	if v.TxPollInterval == 0 {
		v.TxPollInterval = 2 * time.Second
	}
	if v.TxTimeout == 0 {
		v.TxTimeout = 90 * time.Second
	}
}

func (v *Options) Check() error {
	if v.Dust.IsNegative() || v.AssetDust.IsNegative() {
		return fmt.Errorf("dust thresholds cannot be negative")
	}
	if v.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least one")
	}
	return nil
}
