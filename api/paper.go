// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const PaperDepositPath = "/volumebot/paper/deposit"

// PaperDepositRequest credits funds to an address of the simulated ledger.
// It is only served when the service runs without a real network.
type PaperDepositRequest struct {
	Address string
	Asset   string

	Base   decimal.Decimal
	Amount decimal.Decimal
}

type PaperDepositResponse struct {
	Base  decimal.Decimal
	Asset decimal.Decimal
}

func (r *PaperDepositRequest) Check() error {
	if len(r.Address) == 0 {
		return fmt.Errorf("address cannot be empty")
	}
	if r.Base.IsNegative() || r.Amount.IsNegative() {
		return fmt.Errorf("deposit amounts cannot be negative")
	}
	if !r.Amount.IsZero() && len(r.Asset) == 0 {
		return fmt.Errorf("asset cannot be empty for a non-zero amount")
	}
	return nil
}
