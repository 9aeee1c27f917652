// Copyright (c) 2025 BVK Chaitanya

// Package sweeper consolidates the balances of a session's wallets into a
// single destination address.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bvk/volumebot/ctxutil"
	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/session"
	"github.com/shopspring/decimal"
)

// ErrPartialSweep is returned when one or more wallets could not be emptied.
// Funds in those wallets are not lost and can be recovered by an operator.
var ErrPartialSweep = errors.New("PartialSweepFailure")

// IdleWaiter reports when a wallet has no trade in flight.
type IdleWaiter interface {
	WaitIdle(ctx context.Context, index int) error
}

type WalletReport struct {
	Index   int
	Address string

	MovedBase  decimal.Decimal
	MovedAsset decimal.Decimal

	// Remaining holds the last observed balances. It is nil if balances
	// could never be read.
	Remaining *ledger.Balances

	Err string
}

func (w *WalletReport) OK() bool {
	return len(w.Err) == 0
}

func (w *WalletReport) String() string {
	name := fmt.Sprintf("wallet %d", w.Index)
	if w.Index == custody.DepositIndex {
		name = "deposit wallet"
	}
	if w.OK() {
		return fmt.Sprintf("%s (%s): moved base=%s asset=%s", name, w.Address, w.MovedBase, w.MovedAsset)
	}
	remaining := "unknown"
	if w.Remaining != nil {
		remaining = w.Remaining.String()
	}
	return fmt.Sprintf("%s (%s): failed with %s remaining: %s", name, w.Address, remaining, w.Err)
}

type Report struct {
	SessionID   string
	Destination string

	Wallets []*WalletReport

	MovedBase  decimal.Decimal
	MovedAsset decimal.Decimal
}

// OK returns true when every wallet was emptied.
func (r *Report) OK() bool {
	for _, w := range r.Wallets {
		if !w.OK() {
			return false
		}
	}
	return true
}

func (r *Report) String() string {
	var lines []string
	for _, w := range r.Wallets {
		lines = append(lines, w.String())
	}
	return strings.Join(lines, "; ")
}

type Sweeper struct {
	store *session.Store
	gw    ledger.Gateway
	keys  *custody.Custodian

	opts Options
}

func New(store *session.Store, gw ledger.Gateway, keys *custody.Custodian, opts *Options) (*Sweeper, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	v := &Sweeper{
		store: store,
		gw:    gw,
		keys:  keys,
		opts:  *opts,
	}
	return v, nil
}

// Dust returns the base currency balance below which a wallet is empty.
func (v *Sweeper) Dust() decimal.Decimal {
	return v.opts.Dust
}

// Sweep empties all wallets of a session in Withdrawing state into the
// session's destination. Session is moved to Closed when every wallet is
// empty and to Failed with a per-wallet report otherwise. Idle, when
// non-nil, is consulted so that wallets are not swept while a trade is in
// flight.
//
// Session state is left untouched if the context is canceled; the sweep
// can be resumed later.
func (v *Sweeper) Sweep(ctx context.Context, sid string, idle IdleWaiter) (*Report, error) {
	s, err := v.store.Load(ctx, sid)
	if err != nil {
		return nil, err
	}
	if state := session.State(s.State); state.IsTerminal() {
		return nil, fmt.Errorf("session %q is %s: %w", sid, state, session.ErrTerminal)
	} else if state != session.Withdrawing {
		return nil, fmt.Errorf("session %q is %s, not %s: %w", sid, state, session.Withdrawing, session.ErrInvalidTransition)
	}
	if len(s.Destination) == 0 {
		if _, err := v.store.Fail(ctx, sid, "withdrawal destination is empty"); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session %q has no destination: %w", sid, os.ErrInvalid)
	}

	report, err := v.consolidate(ctx, s, s.Destination, idle)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	if !report.OK() {
		diagnostic := fmt.Sprintf("%v: %s", ErrPartialSweep, report)
		if _, err := v.store.Fail(ctx, sid, diagnostic); err != nil {
			return nil, err
		}
		slog.Error("session sweep is incomplete", "session", sid, "report", report)
		return report, fmt.Errorf("session %q: %w", sid, ErrPartialSweep)
	}

	if _, err := v.store.Transition(ctx, sid, session.Closed, nil); err != nil {
		return nil, err
	}
	slog.Info("session is closed", "session", sid, "destination", s.Destination, "base", report.MovedBase, "asset", report.MovedAsset)
	return report, nil
}

// Recover runs the consolidation for a failed session into the given
// destination without changing the session state.
func (v *Sweeper) Recover(ctx context.Context, sid, destination string) (*Report, error) {
	if len(destination) == 0 {
		return nil, fmt.Errorf("destination cannot be empty: %w", os.ErrInvalid)
	}
	s, err := v.store.Load(ctx, sid)
	if err != nil {
		return nil, err
	}
	if session.State(s.State) != session.Failed {
		return nil, fmt.Errorf("session %q is %s; only failed sessions can be recovered: %w", sid, s.State, os.ErrInvalid)
	}
	return v.consolidate(ctx, s, destination, nil)
}

func (v *Sweeper) consolidate(ctx context.Context, s *gobs.SessionState, destination string, idle IdleWaiter) (*Report, error) {
	wallets, err := v.store.LoadWallets(ctx, s.SessionID)
	if err != nil {
		return nil, err
	}
	deposit := &gobs.SubWalletState{
		SessionID: s.SessionID,
		Index:     custody.DepositIndex,
		Address:   s.DepositAddress,
	}
	wallets = append([]*gobs.SubWalletState{deposit}, wallets...)

	var wg sync.WaitGroup
	reports := make([]*WalletReport, len(wallets))
	for i, w := range wallets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = v.sweepWallet(ctx, s, w, destination, idle)
		}()
	}
	wg.Wait()

	r := &Report{SessionID: s.SessionID, Destination: destination, Wallets: reports}
	for _, w := range reports {
		r.MovedBase = r.MovedBase.Add(w.MovedBase)
		r.MovedAsset = r.MovedAsset.Add(w.MovedAsset)
	}
	return r, nil
}

func (v *Sweeper) sweepWallet(ctx context.Context, s *gobs.SessionState, w *gobs.SubWalletState, destination string, idle IdleWaiter) *WalletReport {
	r := &WalletReport{Index: w.Index, Address: w.Address}
	if err := v.drain(ctx, s, w, destination, idle, r); err != nil {
		r.Err = err.Error()
		slog.Warn("could not sweep wallet", "session", s.SessionID, "wallet", w.Index, "err", err)
	}

	if w.Index != custody.DepositIndex {
		update := func(w *gobs.SubWalletState) error {
			w.Active = false
			if r.Remaining != nil {
				w.Base, w.Asset, w.BalanceTime = r.Remaining.Base, r.Remaining.Asset, time.Now()
			}
			return nil
		}
		if _, err := v.store.UpdateWallet(context.WithoutCancel(ctx), s.SessionID, w.Index, update); err != nil {
			slog.Warn("could not update wallet after sweep (ignored)", "session", s.SessionID, "wallet", w.Index, "err", err)
		}
	}
	return r
}

func (v *Sweeper) drain(ctx context.Context, s *gobs.SessionState, w *gobs.SubWalletState, destination string, idle IdleWaiter, r *WalletReport) error {
	if idle != nil {
		if err := idle.WaitIdle(ctx, w.Index); err != nil {
			return err
		}
	}

	signer, err := v.keys.Signer(ctx, s.SessionID, w.Index)
	if err != nil {
		return err
	}

	costs := v.gw.Costs()

	var lastErr error
	failures := 0
	for iter := 0; failures < v.opts.MaxAttempts && iter < 3*v.opts.MaxAttempts; iter++ {
		if lastErr != nil {
			failures++
			if failures >= v.opts.MaxAttempts {
				break
			}
			ctxutil.Sleep(ctx, ctxutil.Backoff(v.opts.RetryInterval, 16*v.opts.RetryInterval, failures-1))
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		if w.Index != custody.DepositIndex {
			if err := v.resolvePending(ctx, s.SessionID, w.Index); err != nil {
				lastErr = err
				continue
			}
		}

		b, err := v.gw.GetBalances(ctx, w.Address, s.Asset)
		if err != nil {
			lastErr = err
			if ledger.IsPermanent(err) {
				break
			}
			continue
		}
		r.Remaining, lastErr = b, nil

		// Base transfer pays its own fee, so the wallet is left with nothing.
		amount := b.Base.Sub(costs.TxFee)
		if b.Asset.LessThanOrEqual(v.opts.AssetDust) && (b.Base.LessThanOrEqual(v.opts.Dust) || !amount.IsPositive()) {
			return nil
		}

		// Asset goes first because its transfer is paid from the base, which
		// must be read again afterwards.
		if b.Asset.IsPositive() {
			if err := v.transfer(ctx, signer, destination, s.Asset, b.Asset); err != nil {
				lastErr = err
				if ledger.IsPermanent(err) {
					break
				}
				continue
			}
			r.MovedAsset = r.MovedAsset.Add(b.Asset)
			continue
		}

		if amount.IsPositive() {
			if err := v.transfer(ctx, signer, destination, "", amount); err != nil {
				lastErr = err
				if ledger.IsPermanent(err) {
					break
				}
				continue
			}
			r.MovedBase = r.MovedBase.Add(amount)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("wallet is not empty after %d attempts", v.opts.MaxAttempts)
	}
	return lastErr
}

func (v *Sweeper) transfer(ctx context.Context, signer ledger.Signer, destination, asset string, amount decimal.Decimal) error {
	ref, err := v.gw.Transfer(ctx, signer, destination, asset, amount)
	if err != nil {
		return err
	}
	status, err := ledger.WaitTx(ctx, v.gw, ref, v.opts.TxPollInterval, v.opts.TxTimeout)
	if err != nil {
		return err
	}
	if status != ledger.CONFIRMED {
		return fmt.Errorf("transfer %s has status %s", ref, status)
	}
	return nil
}

// resolvePending waits for trades recorded as Pending to reach a terminal
// ledger status. Trades without a transaction reference were never
// submitted and are marked failed.
func (v *Sweeper) resolvePending(ctx context.Context, sid string, index int) error {
	pending, err := v.store.PendingTrades(ctx, sid, index)
	if err != nil {
		return err
	}
	for _, t := range pending {
		t.FinishTime = time.Now()
		if len(t.TxRef) == 0 {
			t.Outcome, t.Diagnostic = string(session.TradeFailed), "trade was interrupted before submission"
			if err := v.store.SaveTrade(ctx, t); err != nil {
				return err
			}
			continue
		}
		status, err := ledger.WaitTx(ctx, v.gw, ledger.TxRef(t.TxRef), v.opts.TxPollInterval, v.opts.TxTimeout)
		if err != nil && !ledger.IsPermanent(err) {
			return err
		}
		switch {
		case err != nil:
			t.Outcome, t.Diagnostic = string(session.TradeFailed), fmt.Sprintf("could not get swap status: %v", err)
		case status == ledger.PENDING:
			return fmt.Errorf("trade %s with transaction %s is still pending", t.UID, t.TxRef)
		case status == ledger.FAILED:
			t.Outcome, t.Diagnostic = string(session.TradeFailed), "swap transaction failed on the ledger"
		default:
			t.Outcome = string(session.TradeSuccess)
			t.Volume = t.Amount
		}
		if err := v.store.SaveTrade(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
