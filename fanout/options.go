// Copyright (c) 2025 BVK Chaitanya

package fanout

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFeeFraction is the fee fraction used by the run command when none
// is given.
const DefaultFeeFraction = "0.5"

type Options struct {
	// NumWallets is the number of sub-wallets per session.
	NumWallets int

	// FeeFraction of the deposited base currency is sent to FeeAddress. Zero
	// means no fee.
	FeeFraction decimal.Decimal

	FeeAddress string

	// DepositReserve is extra base currency left in the deposit wallet on top
	// of the fan-out transaction costs reported by the ledger.
	DepositReserve decimal.Decimal

	// BaseDust and AssetDust are the shortfalls below which a sub-wallet is
	// considered funded.
	BaseDust  decimal.Decimal
	AssetDust decimal.Decimal

	// AssetPrecision is the number of decimal places used to split the asset.
	AssetPrecision int32

	MaxAttempts   int
	RetryInterval time.Duration

	TxPollInterval time.Duration
	TxTimeout      time.Duration
}

func (v *Options) setDefaults() {
	if v.NumWallets == 0 {
		v.NumWallets = 3
	}
	if v.BaseDust.IsZero() {
		v.BaseDust = decimal.RequireFromString("0.00001")
	}
	if v.AssetDust.IsZero() {
		v.AssetDust = decimal.RequireFromString("0.000001")
	}
	if v.AssetPrecision == 0 {
		v.AssetPrecision = 6
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
	if v.NumWallets < 1 {
		return fmt.Errorf("number of sub-wallets must be at least one")
	}
	if v.FeeFraction.IsNegative() || v.FeeFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee fraction must be in [0, 1)")
	}
	if v.FeeFraction.IsPositive() && len(v.FeeAddress) == 0 {
		return fmt.Errorf("fee address cannot be empty")
	}
	if v.DepositReserve.IsNegative() {
		return fmt.Errorf("deposit reserve cannot be negative")
	}
	if v.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least one")
	}
	return nil
}
