// Copyright (c) 2025 BVK Chaitanya

// Package ledger defines the contract between the session engine and the
// remote blockchain. Every method may fail transiently and callers are
// expected to re-read balances before re-issuing a transfer or a swap.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a swap relative to the asset.
type Direction string

const (
	// SELL converts the asset into the base currency.
	SELL Direction = "SELL"
	// BUY converts the base currency into the asset.
	BUY Direction = "BUY"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == SELL {
		return BUY
	}
	return SELL
}

func (d Direction) Check() error {
	if d != SELL && d != BUY {
		return fmt.Errorf("invalid direction %q", string(d))
	}
	return nil
}

// TxStatus is the ledger's view of a submitted transaction.
type TxStatus string

const (
	PENDING   TxStatus = "PENDING"
	CONFIRMED TxStatus = "CONFIRMED"
	FAILED    TxStatus = "FAILED"
)

func (s TxStatus) IsFinal() bool {
	return s == CONFIRMED || s == FAILED
}

// TxRef identifies a submitted transaction (a signature on Solana).
type TxRef string

type Balances struct {
	// Base holds the native currency balance (SOL).
	Base decimal.Decimal

	// Asset holds the token balance for the queried asset.
	Asset decimal.Decimal
}

func (b *Balances) String() string {
	return fmt.Sprintf("base=%s asset=%s", b.Base.String(), b.Asset.String())
}

// Costs holds the network charges paid in base currency by the sender of a
// transaction.
type Costs struct {
	// TxFee is charged for every transaction.
	TxFee decimal.Decimal

	// AccountRent is charged once for an asset transfer to an address that
	// doesn't hold an account for the asset yet.
	AccountRent decimal.Decimal
}

// TokenInfo is the market data of an asset.
type TokenInfo struct {
	Symbol string
	Name   string

	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
	LiquidityUSD decimal.Decimal
}

// TokenLookup is implemented by gateways that can describe an asset.
// GetTokenInfo returns os.ErrNotExist for assets that are not traded.
type TokenLookup interface {
	GetTokenInfo(ctx context.Context, asset string) (*TokenInfo, error)
}

// Signer signs transaction payloads on behalf of a single wallet. Key
// material never leaves the implementation.
type Signer interface {
	Address() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

type Gateway interface {
	// GetBalances returns the base currency balance and the balance of the
	// given asset for an address.
	GetBalances(ctx context.Context, address, asset string) (*Balances, error)

	// SubmitSwap swaps amount units of the currency being sold. For SELL,
	// amount is in asset units and for BUY it is in base currency units.
	SubmitSwap(ctx context.Context, signer Signer, asset string, dir Direction, amount decimal.Decimal) (TxRef, error)

	// Transfer moves amount units from the signer to the destination. An
	// empty asset transfers the base currency.
	Transfer(ctx context.Context, signer Signer, destination, asset string, amount decimal.Decimal) (TxRef, error)

	// GetTxStatus reports the status of a previously submitted transaction.
	GetTxStatus(ctx context.Context, ref TxRef) (TxStatus, error)

	// Costs returns the network charges for transfers.
	Costs() Costs
}

// WaitTx polls the transaction status until it is final or until the
// timeout. Returns PENDING with a nil error when the timeout expires before
// the ledger reports a final status. Transient status query errors are
// retried.
func WaitTx(ctx context.Context, gw Gateway, ref TxRef, interval, timeout time.Duration) (TxStatus, error) {
	tctx, tcancel := context.WithTimeout(ctx, timeout)
	defer tcancel()

	for {
		status, err := gw.GetTxStatus(tctx, ref)
		if err != nil && IsPermanent(err) {
			return "", err
		}
		if err == nil && status.IsFinal() {
			return status, nil
		}
		select {
		case <-tctx.Done():
			if ctx.Err() != nil {
				return "", context.Cause(ctx)
			}
			return PENDING, nil
		case <-time.After(interval):
		}
	}
}
