// Copyright (c) 2025 BVK Chaitanya

// Package looper runs the perpetual SELL/BUY cycle of a session. Every
// sub-wallet has its own oscillator with an independent random timer, so
// wallets trade out of phase with each other.
package looper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bvk/volumebot/ctxutil"
	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/idgen"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/session"
	"github.com/shopspring/decimal"
)

// Event is sent to the session controller when a trade reaches its terminal
// outcome.
type Event struct {
	Trade  *gobs.TradeState
	Wallet *gobs.SubWalletState
}

type Looper struct {
	store *session.Store
	gw    ledger.Gateway
	keys  *custody.Custodian

	opts Options

	sid   string
	asset string

	strategy func() session.Strategy

	events chan<- *Event

	wallets []*gobs.SubWalletState

	// doneMap holds a channel per wallet index that is closed when the
	// wallet's oscillator has stopped and has no trade in flight.
	doneMap map[int]chan struct{}
}

// New creates a looper for the active sub-wallets of a session. Strategy is
// consulted before every wait so that changes apply from the next tick.
// Events are delivered with a blocking send.
func New(store *session.Store, gw ledger.Gateway, keys *custody.Custodian, sid, asset string, wallets []*gobs.SubWalletState, strategy func() session.Strategy, events chan<- *Event, opts *Options) (*Looper, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	v := &Looper{
		store:    store,
		gw:       gw,
		keys:     keys,
		opts:     *opts,
		sid:      sid,
		asset:    asset,
		strategy: strategy,
		events:   events,
		doneMap:  make(map[int]chan struct{}),
	}
	for _, w := range wallets {
		if !w.Active {
			continue
		}
		v.wallets = append(v.wallets, w)
		v.doneMap[w.Index] = make(chan struct{})
	}
	return v, nil
}

// Run starts one oscillator per wallet and blocks till all of them have
// stopped. Trades already submitted when the context is canceled are
// completed before Run returns.
func (v *Looper) Run(ctx context.Context) error {
	done := make(chan struct{}, len(v.wallets))
	for _, w := range v.wallets {
		go func() {
			defer func() { done <- struct{}{} }()
			defer close(v.doneMap[w.Index])

			v.oscillate(ctx, w)
		}()
	}
	for range v.wallets {
		<-done
	}
	return context.Cause(ctx)
}

// WaitIdle blocks till the oscillator for the wallet has stopped. Returns
// immediately for wallets that are not managed by this looper.
func (v *Looper) WaitIdle(ctx context.Context, index int) error {
	done, ok := v.doneMap[index]
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (v *Looper) oscillate(ctx context.Context, w *gobs.SubWalletState) {
	signer, err := v.keys.Signer(ctx, v.sid, w.Index)
	if err != nil {
		slog.Error("could not load wallet signer (wallet is not traded)", "session", v.sid, "wallet", w.Index, "err", err)
		return
	}

	for ctx.Err() == nil {
		interval := v.opts.Delays[v.strategy()]
		ctxutil.Sleep(ctx, interval.Draw())
		if ctx.Err() != nil {
			return
		}

		// Submitted swaps cannot be recalled, so a trade always runs to its
		// terminal outcome.
		tctx := context.WithoutCancel(ctx)
		if err := v.trade(tctx, w.Index, signer); err != nil {
			slog.Error("could not complete trade (will retry on next tick)", "session", v.sid, "wallet", w.Index, "err", err)
		}
	}
}

func (v *Looper) trade(ctx context.Context, index int, signer ledger.Signer) error {
	w, err := v.store.LoadWallet(ctx, v.sid, index)
	if err != nil {
		return err
	}

	dir := ledger.SELL
	if w.LastDirection == string(ledger.SELL) {
		dir = ledger.BUY
	}

	seed := v.sid + "/" + strconv.Itoa(index)
	t := &gobs.TradeState{
		UID:         idgen.New(seed, uint64(w.NextSequence)).NextID().String(),
		SessionID:   v.sid,
		WalletIndex: index,
		Sequence:    w.NextSequence,
		Direction:   string(dir),
		Fraction:    v.opts.Fraction,
		CreateTime:  time.Now(),
		Outcome:     string(session.TradePending),
	}

	before, amount, reason := v.amount(ctx, w.Address, dir)
	t.Amount = amount

	// Trade row is written before submission. Direction is consumed even if
	// the trade fails.
	if err := v.store.BeginTrade(ctx, t); err != nil {
		return err
	}
	if len(reason) != 0 {
		return v.finish(ctx, t, before, session.TradeFailed, reason)
	}

	var ref ledger.TxRef
	submit := func() (err error) {
		ref, err = v.gw.SubmitSwap(ctx, signer, v.asset, dir, amount)
		return err
	}
	if err := ctxutil.RetryBackoff(ctx, v.opts.RetryInterval, v.opts.MaxAttempts, ledger.IsRetryable, submit); err != nil {
		return v.finish(ctx, t, before, session.TradeFailed, fmt.Sprintf("could not submit swap: %v", err))
	}

	t.TxRef = string(ref)
	if err := v.store.SaveTrade(ctx, t); err != nil {
		slog.Warn("could not save trade transaction reference", "session", v.sid, "trade", t.UID, "ref", ref, "err", err)
	}

	status, err := ledger.WaitTx(ctx, v.gw, ref, v.opts.TxPollInterval, v.opts.TxTimeout)
	switch {
	case err != nil:
		return v.finish(ctx, t, before, session.TradeFailed, fmt.Sprintf("could not get swap status: %v", err))
	case status == ledger.FAILED:
		return v.finish(ctx, t, before, session.TradeFailed, "swap transaction failed on the ledger")
	case status == ledger.PENDING:
		return v.finish(ctx, t, before, session.TradeFailed, fmt.Sprintf("swap was not confirmed within %v", v.opts.TxTimeout))
	}
	return v.finish(ctx, t, before, session.TradeSuccess, "")
}

// amount computes the trade size from fresh balances. Non-empty reason
// means the trade cannot be made.
func (v *Looper) amount(ctx context.Context, address string, dir ledger.Direction) (*ledger.Balances, decimal.Decimal, string) {
	var b *ledger.Balances
	fetch := func() (err error) {
		b, err = v.gw.GetBalances(ctx, address, v.asset)
		return err
	}
	if err := ctxutil.RetryBackoff(ctx, v.opts.RetryInterval, v.opts.MaxAttempts, ledger.IsRetryable, fetch); err != nil {
		return nil, decimal.Zero, fmt.Sprintf("could not read balances: %v", err)
	}

	if dir == ledger.SELL {
		amount := b.Asset.Mul(v.opts.Fraction).Truncate(v.opts.AssetPrecision)
		if amount.LessThan(v.opts.MinAsset) {
			return b, amount, fmt.Sprintf("sell amount %s is below the minimum %s", amount, v.opts.MinAsset)
		}
		return b, amount, ""
	}

	amount := b.Base.Mul(v.opts.Fraction).Truncate(9)
	if avail := b.Base.Sub(v.opts.GasReserve); amount.GreaterThan(avail) {
		amount = avail
	}
	if amount.LessThan(v.opts.MinBase) {
		return b, amount, fmt.Sprintf("buy amount %s is below the minimum %s", amount, v.opts.MinBase)
	}
	return b, amount, ""
}

func (v *Looper) finish(ctx context.Context, t *gobs.TradeState, before *ledger.Balances, outcome session.Outcome, reason string) error {
	t.Outcome = string(outcome)
	t.Diagnostic = reason
	t.FinishTime = time.Now()

	after, err := v.gw.GetBalances(ctx, v.signerAddress(t.WalletIndex), v.asset)
	if err != nil {
		slog.Warn("could not refresh wallet balances (ignored)", "session", v.sid, "wallet", t.WalletIndex, "err", err)
	}
	if outcome == session.TradeSuccess {
		t.Volume = t.Amount
		if t.Direction == string(ledger.SELL) && before != nil && after != nil {
			if delta := after.Base.Sub(before.Base); delta.IsPositive() {
				t.Volume = delta
			}
		}
	}

	if err := v.store.SaveTrade(ctx, t); err != nil {
		return fmt.Errorf("could not save trade %s: %w", t.UID, err)
	}
	if len(reason) != 0 {
		slog.Warn("trade has failed", "session", v.sid, "wallet", t.WalletIndex, "direction", t.Direction, "amount", t.Amount, "reason", reason)
	}

	w, err := v.store.UpdateWallet(ctx, v.sid, t.WalletIndex, func(w *gobs.SubWalletState) error {
		if after != nil {
			w.Base, w.Asset, w.BalanceTime = after.Base, after.Asset, time.Now()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if v.events != nil {
		v.events <- &Event{Trade: t, Wallet: w}
	}
	return nil
}

func (v *Looper) signerAddress(index int) string {
	for _, w := range v.wallets {
		if w.Index == index {
			return w.Address
		}
	}
	return ""
}
