// Copyright (c) 2025 BVK Chaitanya

// Package fanout splits a funded deposit across a session's sub-wallets.
//
// Distribution is resumable. Progress is always derived from the ledger
// balances of the sub-wallets and the deposit wallet, so running it again
// after a crash only transfers what is still missing.
package fanout

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

// Plan holds the per-wallet funding targets.
type Plan struct {
	Base  []decimal.Decimal
	Asset []decimal.Decimal
}

// FeeAmount returns the protocol fee for a base currency deposit.
func FeeAmount(depositBase decimal.Decimal, opts *Options) decimal.Decimal {
	return depositBase.Mul(opts.FeeFraction).Truncate(9)
}

// ComputePlan splits the balances available in the deposit wallet after the
// fee is collected. Reserve is kept back in the deposit wallet to pay for
// the fan-out transfers. Last wallet receives the rounding remainder so that
// the wallet totals add up to the available balance minus the reserve.
func ComputePlan(availableBase, availableAsset, reserve decimal.Decimal, opts *Options) (*Plan, error) {
	n := decimal.NewFromInt(int64(opts.NumWallets))
	remain := availableBase.Sub(reserve)
	if !remain.IsPositive() {
		return nil, fmt.Errorf("balance %s cannot cover the fan-out reserve %s: %w", availableBase, reserve, session.ErrInsufficientFunds)
	}
	if !availableAsset.IsPositive() {
		return nil, fmt.Errorf("asset deposit must be positive: %w", session.ErrInsufficientFunds)
	}

	base := remain.Div(n).Truncate(9)
	asset := availableAsset.Div(n).Truncate(opts.AssetPrecision)

	p := new(Plan)
	for i := 0; i < opts.NumWallets-1; i++ {
		p.Base = append(p.Base, base)
		p.Asset = append(p.Asset, asset)
	}
	rest := decimal.NewFromInt(int64(opts.NumWallets - 1))
	p.Base = append(p.Base, remain.Sub(base.Mul(rest)))
	p.Asset = append(p.Asset, availableAsset.Sub(asset.Mul(rest)))
	return p, nil
}

type Distributor struct {
	store *session.Store
	gw    ledger.Gateway
	keys  *custody.Custodian

	opts Options
}

func New(store *session.Store, gw ledger.Gateway, keys *custody.Custodian, opts *Options) (*Distributor, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	d := &Distributor{
		store: store,
		gw:    gw,
		keys:  keys,
		opts:  *opts,
	}
	return d, nil
}

func (d *Distributor) NumWallets() int {
	return d.opts.NumWallets
}

// Reserve returns the base currency kept in the deposit wallet for the
// fan-out transfers. Every sub-wallet needs an asset transfer, which also
// creates its asset account, and a base transfer.
func (d *Distributor) Reserve() decimal.Decimal {
	costs := d.gw.Costs()
	perWallet := costs.TxFee.Mul(decimal.NewFromInt(2)).Add(costs.AccountRent)
	return d.opts.DepositReserve.Add(perWallet.Mul(decimal.NewFromInt(int64(d.opts.NumWallets))))
}

// Distribute funds the sub-wallets of a session in Distributing state and
// moves it to Trading. Sessions that are already past distribution are left
// untouched. A non-nil error with a live context means the fan-out could not
// complete within MaxAttempts and the error text identifies the
// transfers that completed.
func (d *Distributor) Distribute(ctx context.Context, sid string) error {
	s, err := d.store.Load(ctx, sid)
	if err != nil {
		return err
	}
	switch state := session.State(s.State); {
	case state.IsTerminal():
		return fmt.Errorf("session %q is %s: %w", sid, state, session.ErrTerminal)
	case state == session.AwaitingDeposit:
		return fmt.Errorf("session %q has no confirmed deposit yet: %w", sid, os.ErrInvalid)
	case state != session.Distributing:
		return nil
	}

	existing, err := d.store.LoadWallets(ctx, sid)
	if err != nil {
		return err
	}
	depositor, err := d.keys.Signer(ctx, sid, custody.DepositIndex)
	if err != nil {
		return err
	}

	// Fee is paid from the untouched deposit before any sub-wallet exists, so
	// persisted sub-wallets imply a collected fee.
	fee := FeeAmount(s.DepositBase, &d.opts)
	if len(existing) == 0 && fee.IsPositive() && !s.FeeCollected.IsPositive() {
		estimate := s.DepositBase.Sub(fee).Sub(d.gw.Costs().TxFee)
		if _, err := ComputePlan(estimate, s.DepositAsset, d.Reserve(), &d.opts); err != nil {
			return fmt.Errorf("deposit %s cannot cover fee %s and the fan-out: %w", s.DepositBase, fee, err)
		}
		if err := d.collectFee(ctx, s, depositor, fee); err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return fmt.Errorf("fan-out incomplete: fee: failed: %w", err)
		}
	}
	if fee.IsPositive() && !s.FeeCollected.IsPositive() {
		s, err = d.store.Update(ctx, sid, func(s *gobs.SessionState) error {
			s.FeeCollected = fee
			return nil
		})
		if err != nil {
			return err
		}
	}

	var plan *Plan
	if len(existing) < d.opts.NumWallets {
		var b *ledger.Balances
		read := func() (err error) {
			b, err = d.gw.GetBalances(ctx, s.DepositAddress, s.Asset)
			return err
		}
		if err := ctxutil.RetryBackoff(ctx, d.opts.RetryInterval, d.opts.MaxAttempts, ledger.IsRetryable, read); err != nil {
			return fmt.Errorf("could not read deposit balance: %w", err)
		}
		if plan, err = ComputePlan(b.Base, b.Asset, d.Reserve(), &d.opts); err != nil {
			return err
		}
	}

	wallets, err := d.prepare(ctx, s, plan)
	if err != nil {
		return err
	}

	// Wallet transfers are independent of each other.
	var wg sync.WaitGroup
	errs := make([]error, len(wallets))
	for i, w := range wallets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.fund(ctx, s, depositor, w)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	var report []string
	for i, w := range wallets {
		if errs[i] != nil {
			report = append(report, fmt.Sprintf("wallet %d (%s): failed: %v", i, w.Address, errs[i]))
			continue
		}
		report = append(report, fmt.Sprintf("wallet %d (%s): funded", i, w.Address))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("fan-out incomplete: %s", strings.Join(report, "; "))
	}

	if _, err := d.store.Transition(ctx, sid, session.Trading, nil); err != nil {
		return err
	}
	slog.Info("session funds are distributed", "session", sid, "wallets", len(wallets), "fee", s.FeeCollected)
	return nil
}

// prepare generates the sub-wallet keys and persists the funding targets of
// the sub-wallets that don't have them yet. Plan is nil when all sub-wallets
// exist.
func (d *Distributor) prepare(ctx context.Context, s *gobs.SessionState, plan *Plan) ([]*gobs.SubWalletState, error) {
	var wallets []*gobs.SubWalletState
	for i := 0; i < d.opts.NumWallets; i++ {
		address, err := d.keys.Generate(ctx, s.SessionID, i)
		if err != nil {
			return nil, err
		}
		w, err := d.store.LoadWallet(ctx, s.SessionID, i)
		if err == nil {
			wallets = append(wallets, w)
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		w = &gobs.SubWalletState{
			SessionID:   s.SessionID,
			Index:       i,
			Address:     address,
			TargetBase:  plan.Base[i],
			TargetAsset: plan.Asset[i],
		}
		if err := d.store.SaveWallet(ctx, w); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// fund tops up a sub-wallet to its targets. Every attempt re-reads the
// wallet balances before transferring the shortfall. Reference of a transfer
// in flight is saved in the wallet row before waiting on it, so a transfer
// that may still confirm is never repeated, even across restarts.
func (d *Distributor) fund(ctx context.Context, s *gobs.SessionState, depositor ledger.Signer, w *gobs.SubWalletState) error {
	var lastErr error
	pending := ledger.TxRef(w.FundingTxRef)

	failures := 0
	for iter := 0; failures < d.opts.MaxAttempts && iter < 3*d.opts.MaxAttempts; iter++ {
		if lastErr != nil {
			ctxutil.Sleep(ctx, ctxutil.Backoff(d.opts.RetryInterval, 16*d.opts.RetryInterval, failures-1))
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		if pending != "" {
			status, err := ledger.WaitTx(ctx, d.gw, pending, d.opts.TxPollInterval, d.opts.TxTimeout)
			if err != nil || status == ledger.PENDING {
				failures++
				lastErr = fmt.Errorf("transfer %s is not confirmed", pending)
				continue
			}
			if err := d.setFundingRef(ctx, w, ""); err != nil {
				return err
			}
			pending = ""
		}

		b, err := d.gw.GetBalances(ctx, w.Address, s.Asset)
		if err != nil {
			failures++
			lastErr = err
			if ledger.IsPermanent(err) {
				break
			}
			continue
		}

		needAsset := w.TargetAsset.Sub(b.Asset)
		needBase := w.TargetBase.Sub(b.Base)
		if needAsset.LessThanOrEqual(d.opts.AssetDust) && needBase.LessThanOrEqual(d.opts.BaseDust) {
			w.Base, w.Asset, w.BalanceTime = b.Base, b.Asset, time.Now()
			w.Funded, w.Active = true, true
			if err := d.store.SaveWallet(ctx, w); err != nil {
				return err
			}
			return nil
		}

		asset, amount := s.Asset, needAsset
		if needAsset.LessThanOrEqual(d.opts.AssetDust) {
			asset, amount = "", needBase
		}
		ref, err := d.gw.Transfer(ctx, depositor, w.Address, asset, amount)
		if err != nil {
			failures++
			lastErr = err
			slog.Warn("could not fund sub-wallet (may retry)", "session", s.SessionID, "wallet", w.Index, "asset", asset, "amount", amount, "err", err)
			if ledger.IsPermanent(err) {
				break
			}
			continue
		}
		if err := d.setFundingRef(ctx, w, ref); err != nil {
			return err
		}
		pending = ref

		status, err := ledger.WaitTx(ctx, d.gw, ref, d.opts.TxPollInterval, d.opts.TxTimeout)
		if err == nil && status.IsFinal() {
			if err := d.setFundingRef(ctx, w, ""); err != nil {
				return err
			}
			pending = ""
		}
		if err != nil || status != ledger.CONFIRMED {
			failures++
			lastErr = fmt.Errorf("transfer %s did not confirm (status %q): %v", ref, status, err)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("wallet balance did not reach the target")
	}
	return lastErr
}

// setFundingRef records the funding transfer in flight for a sub-wallet.
func (d *Distributor) setFundingRef(ctx context.Context, w *gobs.SubWalletState, ref ledger.TxRef) error {
	update := func(v *gobs.SubWalletState) error {
		v.FundingTxRef = string(ref)
		return nil
	}
	if _, err := d.store.UpdateWallet(context.WithoutCancel(ctx), w.SessionID, w.Index, update); err != nil {
		return fmt.Errorf("could not save funding transfer of wallet %d: %w", w.Index, err)
	}
	w.FundingTxRef = string(ref)
	return nil
}

// collectFee sends the protocol fee from the deposit wallet unless the
// ledger shows that it was already paid. It is only called before any
// sub-wallet is funded.
func (d *Distributor) collectFee(ctx context.Context, s *gobs.SessionState, depositor ledger.Signer, fee decimal.Decimal) error {
	if s.FeeTxRef != "" {
		status, err := ledger.WaitTx(ctx, d.gw, ledger.TxRef(s.FeeTxRef), d.opts.TxPollInterval, d.opts.TxTimeout)
		if err != nil {
			return err
		}
		switch status {
		case ledger.CONFIRMED:
			return nil
		case ledger.PENDING:
			return fmt.Errorf("fee transfer %s is not confirmed yet", s.FeeTxRef)
		}
	}

	var paid bool
	check := func() error {
		b, err := d.gw.GetBalances(ctx, s.DepositAddress, s.Asset)
		if err != nil {
			return err
		}
		paid = s.DepositBase.Sub(b.Base).GreaterThanOrEqual(fee)
		return nil
	}
	if err := ctxutil.RetryBackoff(ctx, d.opts.RetryInterval, d.opts.MaxAttempts, ledger.IsRetryable, check); err != nil {
		return fmt.Errorf("could not check deposit balance: %w", err)
	}
	if paid {
		return nil
	}

	var ref ledger.TxRef
	transfer := func() (err error) {
		ref, err = d.gw.Transfer(ctx, depositor, d.opts.FeeAddress, "", fee)
		return err
	}
	if err := ctxutil.RetryBackoff(ctx, d.opts.RetryInterval, d.opts.MaxAttempts, ledger.IsRetryable, transfer); err != nil {
		return fmt.Errorf("could not transfer fee: %w", err)
	}
	if _, err := d.store.Update(context.WithoutCancel(ctx), s.SessionID, func(s *gobs.SessionState) error {
		s.FeeTxRef = string(ref)
		return nil
	}); err != nil {
		return err
	}
	s.FeeTxRef = string(ref)

	status, err := ledger.WaitTx(ctx, d.gw, ref, d.opts.TxPollInterval, d.opts.TxTimeout)
	if err != nil {
		return err
	}
	if status != ledger.CONFIRMED {
		return fmt.Errorf("fee transfer %s has status %s", ref, status)
	}
	return nil
}
