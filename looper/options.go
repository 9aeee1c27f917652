// Copyright (c) 2025 BVK Chaitanya

package looper

import (
	"fmt"
	"time"

	"github.com/bvk/volumebot/session"
	"github.com/shopspring/decimal"
)

type Options struct {
	// Fraction of the sold currency balance used for every trade.
	Fraction decimal.Decimal

	// GasReserve is the base currency never spent by a BUY.
	GasReserve decimal.Decimal

	// MinBase and MinAsset are the smallest BUY and SELL amounts. Smaller
	// trades are recorded as failed.
	MinBase  decimal.Decimal
	MinAsset decimal.Decimal

	AssetPrecision int32

	// MaxAttempts bounds the swap submission attempts for a trade.
	MaxAttempts   int
	RetryInterval time.Duration

	TxPollInterval time.Duration
	TxTimeout      time.Duration

	Delays session.Delays
}

func (v *Options) setDefaults() {
	if v.Fraction.IsZero() {
		v.Fraction = decimal.RequireFromString("0.1")
	}
	if v.MinBase.IsZero() {
		v.MinBase = decimal.RequireFromString("0.0001")
	}
	if v.MinAsset.IsZero() {
		v.MinAsset = decimal.RequireFromString("0.000001")
	}
	if v.AssetPrecision == 0 {
		v.AssetPrecision = 6
	}
	if v.MaxAttempts == 0 {
		v.MaxAttempts = 3
	}
	if v.RetryInterval == 0 {
		v.RetryInterval = time.Second
	}
	if v.TxPollInterval == 0 {
		v.TxPollInterval = 2 * time.Second
	}
	if v.TxTimeout == 0 {
		v.TxTimeout = 90 * time.Second
	}
	if v.Delays == nil {
		v.Delays = session.DefaultDelays()
	}
}

func (v *Options) Check() error {
	if !v.Fraction.IsPositive() || v.Fraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("trade fraction must be in (0, 1]")
	}
	if v.GasReserve.IsNegative() {
		return fmt.Errorf("gas reserve cannot be negative")
	}
	if v.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least one")
	}
	if err := v.Delays.Check(); err != nil {
		return err
	}
	return nil
}
