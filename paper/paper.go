// Copyright (c) 2025 BVK Chaitanya

// Package paper implements an in-memory ledger gateway with a fixed swap
// price. It is used for dry runs and tests and supports fault injection on
// a per-address basis.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bvk/volumebot/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

type Options struct {
	// Price is the base currency price of one asset unit.
	Price decimal.Decimal

	// TxFee is charged in base currency to the signer of every transaction.
	TxFee decimal.Decimal

	// AccountRent is charged in base currency to the sender of an asset
	// transfer when the destination has never held the asset.
	AccountRent decimal.Decimal

	// SkipVerify when true does not verify payload signatures.
	SkipVerify bool
}

func (v *Options) setDefaults() {
	if v.Price.IsZero() {
		v.Price = decimal.RequireFromString("0.0001")
	}
}

func (v *Options) Check() error {
	if !v.Price.IsPositive() {
		return fmt.Errorf("price must be positive")
	}
	if v.TxFee.IsNegative() {
		return fmt.Errorf("tx fee cannot be negative")
	}
	if v.AccountRent.IsNegative() {
		return fmt.Errorf("account rent cannot be negative")
	}
	return nil
}

// Op records an operation that was applied to the ledger.
type Op struct {
	Kind      string // SWAP or TRANSFER
	TxRef     ledger.TxRef
	Address   string
	Direction ledger.Direction
	To        string
	Asset     string
	Amount    decimal.Decimal
	Time      time.Time
}

type account struct {
	base   decimal.Decimal
	assets map[string]decimal.Decimal
}

type tx struct {
	op     *Op
	status ledger.TxStatus
	// apply moves the funds when a held transaction is released.
	apply func() error
}

type Ledger struct {
	opts Options

	mu sync.Mutex

	accounts map[string]*account

	txs    map[ledger.TxRef]*tx
	nextTx int

	failures map[string]error

	held map[string][]ledger.TxRef
	hold map[string]bool

	swapCh chan *Op

	ops []*Op
}

var _ ledger.Gateway = &Ledger{}

func New(opts *Options) (*Ledger, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	v := &Ledger{
		opts:     *opts,
		accounts: make(map[string]*account),
		txs:      make(map[ledger.TxRef]*tx),
		failures: make(map[string]error),
		held:     make(map[string][]ledger.TxRef),
		hold:     make(map[string]bool),
	}
	return v, nil
}

func (l *Ledger) accountLocked(address string) *account {
	a, ok := l.accounts[address]
	if !ok {
		a = &account{assets: make(map[string]decimal.Decimal)}
		l.accounts[address] = a
	}
	return a
}

// Deposit credits base currency and asset units to an address.
func (l *Ledger) Deposit(address, asset string, base, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.accountLocked(address)
	a.base = a.base.Add(base)
	if len(asset) != 0 {
		a.assets[asset] = a.assets[asset].Add(amount)
	}
}

// Balances returns the balances of an address ignoring injected failures.
func (l *Ledger) Balances(address, asset string) *ledger.Balances {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.accountLocked(address)
	return &ledger.Balances{Base: a.base, Asset: a.assets[asset]}
}

// SetFailure makes every operation on the address fail with the error. A nil
// error clears the failure.
func (l *Ledger) SetFailure(address string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.failures, address)
		return
	}
	l.failures[address] = err
}

// Costs returns the configured tx fee and account rent.
func (l *Ledger) Costs() ledger.Costs {
	return ledger.Costs{TxFee: l.opts.TxFee, AccountRent: l.opts.AccountRent}
}

// Hold keeps swaps submitted by the address, and transfers from or to the
// address, in PENDING status until Release is called.
func (l *Ledger) Hold(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hold[address] = true
}

// Held returns the number of transactions held for the address.
func (l *Ledger) Held(address string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.held[address])
}

// Release confirms all held transactions of the address and stops holding
// new ones.
func (l *Ledger) Release(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.hold, address)
	for _, ref := range l.held[address] {
		t := l.txs[ref]
		if err := t.apply(); err != nil {
			t.status = ledger.FAILED
			continue
		}
		t.status = ledger.CONFIRMED
		t.op.Time = time.Now()
		l.ops = append(l.ops, t.op)
	}
	delete(l.held, address)
}

// SwapCh returns a channel that receives every submitted swap. Channel is
// created on first use and sends never block the ledger.
func (l *Ledger) SwapCh() <-chan *Op {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.swapCh == nil {
		l.swapCh = make(chan *Op, 1024)
	}
	return l.swapCh
}

// Ops returns all confirmed operations in the order they were applied.
func (l *Ledger) Ops() []*Op {
	l.mu.Lock()
	defer l.mu.Unlock()

	ops := make([]*Op, len(l.ops))
	copy(ops, l.ops)
	return ops
}

func (l *Ledger) checkLocked(address string) error {
	if err, ok := l.failures[address]; ok {
		return err
	}
	return nil
}

func (l *Ledger) verify(ctx context.Context, signer ledger.Signer, payload []byte) error {
	sig, err := signer.Sign(ctx, payload)
	if err != nil {
		return fmt.Errorf("could not sign: %w", err)
	}
	if l.opts.SkipVerify {
		return nil
	}
	pub, err := solana.PublicKeyFromBase58(signer.Address())
	if err != nil {
		return fmt.Errorf("invalid signer address %q: %w", signer.Address(), ledger.ErrPermanent)
	}
	if !solana.SignatureFromBytes(sig).Verify(pub, payload) {
		return fmt.Errorf("signature verification failed: %w", ledger.ErrPermanent)
	}
	return nil
}

func (l *Ledger) newRefLocked() ledger.TxRef {
	l.nextTx++
	return ledger.TxRef(fmt.Sprintf("paper-%08d", l.nextTx))
}

func (l *Ledger) GetBalances(ctx context.Context, address, asset string) (*ledger.Balances, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLocked(address); err != nil {
		return nil, err
	}
	a := l.accountLocked(address)
	return &ledger.Balances{Base: a.base, Asset: a.assets[asset]}, nil
}

func (l *Ledger) SubmitSwap(ctx context.Context, signer ledger.Signer, asset string, dir ledger.Direction, amount decimal.Decimal) (ledger.TxRef, error) {
	if err := dir.Check(); err != nil {
		return "", fmt.Errorf("%v: %w", err, ledger.ErrPermanent)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("swap amount must be positive: %w", ledger.ErrPermanent)
	}
	payload := []byte(fmt.Sprintf("swap:%s:%s:%s:%s", signer.Address(), asset, dir, amount))
	if err := l.verify(ctx, signer, payload); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	address := signer.Address()
	if err := l.checkLocked(address); err != nil {
		return "", err
	}

	a := l.accountLocked(address)
	apply := func() error {
		switch dir {
		case ledger.SELL:
			if a.assets[asset].LessThan(amount) || a.base.LessThan(l.opts.TxFee) {
				return ledger.ErrInsufficientFunds
			}
			a.assets[asset] = a.assets[asset].Sub(amount)
			a.base = a.base.Add(amount.Mul(l.opts.Price)).Sub(l.opts.TxFee)
		case ledger.BUY:
			if a.base.LessThan(amount.Add(l.opts.TxFee)) {
				return ledger.ErrInsufficientFunds
			}
			a.base = a.base.Sub(amount).Sub(l.opts.TxFee)
			a.assets[asset] = a.assets[asset].Add(amount.DivRound(l.opts.Price, 9))
		}
		return nil
	}

	ref := l.newRefLocked()
	op := &Op{Kind: "SWAP", TxRef: ref, Address: address, Direction: dir, Asset: asset, Amount: amount, Time: time.Now()}
	if l.swapCh != nil {
		select {
		case l.swapCh <- op:
		default:
		}
	}

	if l.hold[address] {
		l.txs[ref] = &tx{op: op, status: ledger.PENDING, apply: apply}
		l.held[address] = append(l.held[address], ref)
		return ref, nil
	}

	if err := apply(); err != nil {
		return "", fmt.Errorf("could not swap %s of %s: %w", amount, dir, err)
	}
	l.txs[ref] = &tx{op: op, status: ledger.CONFIRMED}
	l.ops = append(l.ops, op)
	return ref, nil
}

func (l *Ledger) Transfer(ctx context.Context, signer ledger.Signer, destination, asset string, amount decimal.Decimal) (ledger.TxRef, error) {
	if len(destination) == 0 {
		return "", fmt.Errorf("destination cannot be empty: %w", ledger.ErrPermanent)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("transfer amount must be positive: %w", ledger.ErrPermanent)
	}
	payload := []byte(fmt.Sprintf("transfer:%s:%s:%s:%s", signer.Address(), destination, asset, amount))
	if err := l.verify(ctx, signer, payload); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	address := signer.Address()
	if err := l.checkLocked(address); err != nil {
		return "", err
	}
	if err := l.checkLocked(destination); err != nil {
		return "", err
	}

	from := l.accountLocked(address)
	to := l.accountLocked(destination)
	apply := func() error {
		if len(asset) == 0 {
			if from.base.LessThan(amount.Add(l.opts.TxFee)) {
				return fmt.Errorf("could not transfer %s base: %w", amount, ledger.ErrInsufficientFunds)
			}
			from.base = from.base.Sub(amount).Sub(l.opts.TxFee)
			to.base = to.base.Add(amount)
			return nil
		}
		cost := l.opts.TxFee
		if _, ok := to.assets[asset]; !ok {
			cost = cost.Add(l.opts.AccountRent)
		}
		if from.assets[asset].LessThan(amount) || from.base.LessThan(cost) {
			return fmt.Errorf("could not transfer %s asset: %w", amount, ledger.ErrInsufficientFunds)
		}
		from.assets[asset] = from.assets[asset].Sub(amount)
		from.base = from.base.Sub(cost)
		to.assets[asset] = to.assets[asset].Add(amount)
		return nil
	}

	ref := l.newRefLocked()
	op := &Op{Kind: "TRANSFER", TxRef: ref, Address: address, To: destination, Asset: asset, Amount: amount, Time: time.Now()}

	for _, key := range []string{address, destination} {
		if l.hold[key] {
			l.txs[ref] = &tx{op: op, status: ledger.PENDING, apply: apply}
			l.held[key] = append(l.held[key], ref)
			return ref, nil
		}
	}

	if err := apply(); err != nil {
		return "", err
	}
	l.txs[ref] = &tx{op: op, status: ledger.CONFIRMED}
	l.ops = append(l.ops, op)
	return ref, nil
}

func (l *Ledger) GetTxStatus(ctx context.Context, ref ledger.TxRef) (ledger.TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.txs[ref]
	if !ok {
		return "", fmt.Errorf("transaction %q not found: %w", ref, ledger.ErrPermanent)
	}
	if err := l.checkLocked(t.op.Address); err != nil {
		return "", err
	}
	return t.status, nil
}
