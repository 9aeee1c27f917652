// Copyright (c) 2025 BVK Chaitanya

// Package watcher waits for a session's deposit wallet to be funded.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/session"
	"github.com/shopspring/decimal"
)

// Result of a single deposit check.
type Result string

const (
	InsufficientFunds  Result = "InsufficientFunds"
	Ready              Result = "Ready"
	GatewayUnavailable Result = "GatewayUnavailable"
)

// Check queries the deposit wallet once. Deposit is ready when base
// currency balance is at least minBase and the asset balance is non-zero.
// Returned error is non-nil only for the GatewayUnavailable result.
func Check(ctx context.Context, gw ledger.Gateway, address, asset string, minBase decimal.Decimal) (Result, *ledger.Balances, error) {
	b, err := gw.GetBalances(ctx, address, asset)
	if err != nil {
		return GatewayUnavailable, nil, err
	}
	if b.Base.LessThan(minBase) || !b.Asset.IsPositive() {
		return InsufficientFunds, b, nil
	}
	return Ready, b, nil
}

// Watcher polls one deposit wallet.
type Watcher struct {
	gw   ledger.Gateway
	opts Options

	address string
	asset   string

	nudgeCh chan struct{}
}

func New(gw ledger.Gateway, address, asset string, opts *Options) (*Watcher, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	w := &Watcher{
		gw:      gw,
		opts:    *opts,
		address: address,
		asset:   asset,
		nudgeCh: make(chan struct{}, 1),
	}
	return w, nil
}

// Nudge makes a waiting Wait call query the ledger immediately.
func (w *Watcher) Nudge() {
	select {
	case w.nudgeCh <- struct{}{}:
	default:
	}
}

// Wait polls the deposit wallet until it is funded. Deposit window starts
// at the given creation time so that restarts do not extend it. Returns an
// error wrapping session.ErrInsufficientFunds when the window elapses, or the
// gateway error if it is permanent.
func (w *Watcher) Wait(ctx context.Context, created time.Time) (*ledger.Balances, error) {
	deadline := created.Add(w.opts.Timeout)

	var last *ledger.Balances
	for {
		result, b, err := Check(ctx, w.gw, w.address, w.asset, w.opts.MinBase)
		switch result {
		case Ready:
			return b, nil
		case InsufficientFunds:
			last = b
		case GatewayUnavailable:
			if ledger.IsPermanent(err) {
				return nil, fmt.Errorf("could not query deposit wallet %s: %w", w.address, err)
			}
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			slog.Warn("could not query deposit wallet balance (will retry)", "address", w.address, "err", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if last == nil {
				return nil, fmt.Errorf("deposit not observed within %v: %w", w.opts.Timeout, session.ErrInsufficientFunds)
			}
			return nil, fmt.Errorf("deposit of %s is below the required minimum %s base with non-zero asset: %w", last, w.opts.MinBase, session.ErrInsufficientFunds)
		}

		timer := time.NewTimer(min(remaining, w.opts.PollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, context.Cause(ctx)
		case <-w.nudgeCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}
