// Copyright (c) 2025 BVK Chaitanya

package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/kvutil"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/paper"
	"github.com/bvk/volumebot/session"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const feeAddress = "FeeCollector1111111111111111111111111111111"

type testEnv struct {
	store  *session.Store
	keys   *custody.Custodian
	ledger *paper.Ledger
	dist   *Distributor
}

func newTestEnv(t *testing.T) *testEnv {
	opts := &Options{
		FeeFraction: decimal.RequireFromString("0.5"),
		FeeAddress:  feeAddress,
	}
	return newTestEnvWith(t, nil, opts)
}

func newTestEnvWith(t *testing.T, popts *paper.Options, opts *Options) *testEnv {
	db := kvmemdb.New()
	keys, err := custody.New(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	l, err := paper.New(popts)
	if err != nil {
		t.Fatal(err)
	}
	store := session.NewStore(db)
	opts.RetryInterval = time.Millisecond
	opts.TxPollInterval = time.Millisecond
	opts.TxTimeout = 50 * time.Millisecond
	dist, err := New(store, l, keys, opts)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{store: store, keys: keys, ledger: l, dist: dist}
}

// newFundedSession creates a session in Distributing state with the deposit
// already observed.
func (e *testEnv) newFundedSession(t *testing.T, base, asset decimal.Decimal) *gobs.SessionState {
	ctx := context.Background()
	sid := uuid.New().String()
	address, err := e.keys.Generate(ctx, sid, custody.DepositIndex)
	if err != nil {
		t.Fatal(err)
	}
	s := &gobs.SessionState{
		SessionID:      sid,
		UserID:         "user",
		Asset:          "mint",
		Strategy:       string(session.Medium),
		State:          string(session.AwaitingDeposit),
		DepositAddress: address,
		CreateTime:     time.Now(),
		NumWallets:     3,
	}
	if err := e.store.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	e.ledger.Deposit(address, "mint", base, asset)
	if _, err := e.store.Transition(ctx, sid, session.Distributing, func(s *gobs.SessionState) error {
		s.DepositBase, s.DepositAsset = base, asset
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return s
}

func walletBalances(t *testing.T, e *testEnv, sid string) []*ledger.Balances {
	ctx := context.Background()
	wallets, err := e.store.LoadWallets(ctx, sid)
	if err != nil {
		t.Fatal(err)
	}
	var bs []*ledger.Balances
	for _, w := range wallets {
		bs = append(bs, e.ledger.Balances(w.Address, "mint"))
	}
	return bs
}

func TestComputePlan(t *testing.T) {
	opts := &Options{FeeFraction: decimal.RequireFromString("0.5"), FeeAddress: feeAddress}
	opts.setDefaults()

	deposit := decimal.RequireFromString("0.1")
	fee := FeeAmount(deposit, opts)
	if !fee.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted fee 0.05, got %s", fee)
	}

	available := deposit.Sub(fee)
	p, err := ComputePlan(available, decimal.NewFromInt(1000), decimal.Zero, opts)
	if err != nil {
		t.Fatal(err)
	}
	total := decimal.Zero
	for _, b := range p.Base {
		total = total.Add(b)
	}
	if !total.Equal(available) {
		t.Fatalf("wanted wallet total %s, got %s", available, total)
	}
	if !p.Base[0].Equal(decimal.RequireFromString("0.016666666")) {
		t.Fatalf("wanted ~0.0167 base per wallet, got %s", p.Base[0])
	}
	if !p.Asset[0].Equal(decimal.RequireFromString("333.333333")) {
		t.Fatalf("wanted ~333.33 asset per wallet, got %s", p.Asset[0])
	}

	reserve := decimal.RequireFromString("0.00603")
	p, err = ComputePlan(available, decimal.NewFromInt(1000), reserve, opts)
	if err != nil {
		t.Fatal(err)
	}
	total = decimal.Zero
	for _, b := range p.Base {
		total = total.Add(b)
	}
	if want := available.Sub(reserve); !total.Equal(want) {
		t.Fatalf("wanted wallet total %s after the reserve, got %s", want, total)
	}

	if _, err := ComputePlan(decimal.Zero, decimal.NewFromInt(1), decimal.Zero, opts); !errors.Is(err, session.ErrInsufficientFunds) {
		t.Fatalf("wanted ErrInsufficientFunds for zero deposit, got %v", err)
	}
	if _, err := ComputePlan(reserve, decimal.NewFromInt(1), reserve, opts); !errors.Is(err, session.ErrInsufficientFunds) {
		t.Fatalf("wanted ErrInsufficientFunds when the reserve takes everything, got %v", err)
	}

	if fee := FeeAmount(deposit, &Options{}); !fee.IsZero() {
		t.Fatalf("wanted no fee for a zero fee fraction, got %s", fee)
	}
}

func TestDistribute(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	s := e.newFundedSession(t, decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}

	state, err := e.store.Load(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if session.State(state.State) != session.Trading {
		t.Fatalf("wanted Trading, got %s", state.State)
	}
	if !state.FeeCollected.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted fee 0.05, got %s", state.FeeCollected)
	}
	if fee := e.ledger.Balances(feeAddress, ""); !fee.Base.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted 0.05 at the fee address, got %s", fee)
	}

	total := decimal.Zero
	bs := walletBalances(t, e, s.SessionID)
	if len(bs) != 3 {
		t.Fatalf("wanted 3 sub-wallets, got %d", len(bs))
	}
	for i, b := range bs {
		if b.Base.Sub(decimal.RequireFromString("0.0167")).Abs().GreaterThan(decimal.RequireFromString("0.0001")) {
			t.Fatalf("wanted ~0.0167 base in wallet %d, got %s", i, b.Base)
		}
		if b.Asset.Sub(decimal.RequireFromString("333.33")).Abs().GreaterThan(decimal.RequireFromString("0.01")) {
			t.Fatalf("wanted ~333.33 asset in wallet %d, got %s", i, b.Asset)
		}
		total = total.Add(b.Base)
	}
	if !total.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted wallet total 0.05, got %s", total)
	}
}

func TestDistributeIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	s := e.newFundedSession(t, decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}
	before := walletBalances(t, e, s.SessionID)
	opsBefore := len(e.ledger.Ops())

	// Simulate a crash before the Trading state was recorded.
	state, err := e.store.Load(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	state.State = string(session.Distributing)
	state.FeeCollected = decimal.Zero
	state.FeeTxRef = ""
	if err := kvutil.SetDB(ctx, e.store.Database(), session.SessionKey(s.SessionID), state); err != nil {
		t.Fatal(err)
	}

	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}
	// Second call on a Trading session is a no-op.
	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}

	after := walletBalances(t, e, s.SessionID)
	for i := range before {
		if !before[i].Base.Equal(after[i].Base) || !before[i].Asset.Equal(after[i].Asset) {
			t.Fatalf("wanted wallet %d balances %s, got %s", i, before[i], after[i])
		}
	}
	if n := len(e.ledger.Ops()); n != opsBefore {
		t.Fatalf("wanted no new ledger operations, got %d", n-opsBefore)
	}
	if fee := e.ledger.Balances(feeAddress, ""); !fee.Base.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted fee to be collected once, got %s", fee)
	}
}

func TestDistributePartialFailure(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	s := e.newFundedSession(t, decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))

	// Make wallet 1 unreachable.
	address, err := e.keys.Generate(ctx, s.SessionID, 1)
	if err != nil {
		t.Fatal(err)
	}
	e.ledger.SetFailure(address, fmt.Errorf("rpc timeout: %w", ledger.ErrTransient))

	err = e.dist.Distribute(ctx, s.SessionID)
	if err == nil {
		t.Fatalf("wanted non-nil error")
	}
	if !strings.Contains(err.Error(), "wallet 0") || !strings.Contains(err.Error(), "wallet 1") {
		t.Fatalf("wanted per-wallet diagnostic, got %q", err)
	}

	// Operator fixes the problem and distribution resumes without
	// re-funding wallet 0.
	before := walletBalances(t, e, s.SessionID)[0]
	e.ledger.SetFailure(address, nil)
	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}
	after := walletBalances(t, e, s.SessionID)[0]
	if !before.Base.Equal(after.Base) || !before.Asset.Equal(after.Asset) {
		t.Fatalf("wanted wallet 0 to be funded once, got %s then %s", before, after)
	}
}

func TestDistributeWithTxFees(t *testing.T) {
	ctx := context.Background()
	fee := decimal.RequireFromString("0.000005")
	rent := decimal.RequireFromString("0.002")
	opts := &Options{FeeFraction: decimal.RequireFromString("0.5"), FeeAddress: feeAddress}
	e := newTestEnvWith(t, &paper.Options{TxFee: fee, AccountRent: rent}, opts)

	s := e.newFundedSession(t, decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}

	state, err := e.store.Load(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if session.State(state.State) != session.Trading {
		t.Fatalf("wanted Trading, got %s", state.State)
	}
	// Fee is exactly the configured fraction of the deposit.
	if b := e.ledger.Balances(feeAddress, ""); !b.Base.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted exactly 0.05 at the fee address, got %s", b.Base)
	}
	if !state.FeeCollected.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted fee 0.05 recorded, got %s", state.FeeCollected)
	}

	// Deposit minus the fee, its transfer fee and the fan-out costs is split.
	reserve := e.dist.Reserve()
	if want := decimal.RequireFromString("0.00603"); !reserve.Equal(want) {
		t.Fatalf("wanted reserve %s, got %s", want, reserve)
	}
	want := decimal.RequireFromString("0.05").Sub(fee).Sub(reserve)
	total, totalAsset := decimal.Zero, decimal.Zero
	for _, b := range walletBalances(t, e, s.SessionID) {
		total = total.Add(b.Base)
		totalAsset = totalAsset.Add(b.Asset)
	}
	if !total.Equal(want) {
		t.Fatalf("wanted wallet total %s, got %s", want, total)
	}
	if !totalAsset.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("wanted all 1000 asset units in the wallets, got %s", totalAsset)
	}
	if b := e.ledger.Balances(s.DepositAddress, "mint"); !b.Base.IsZero() {
		t.Fatalf("wanted fan-out costs to use up the reserve, got %s left", b.Base)
	}
}

func TestDistributeInsufficientForFee(t *testing.T) {
	ctx := context.Background()
	opts := &Options{FeeFraction: decimal.RequireFromString("0.5"), FeeAddress: feeAddress}
	e := newTestEnvWith(t, &paper.Options{TxFee: decimal.RequireFromString("0.000005"), AccountRent: decimal.RequireFromString("0.002")}, opts)

	s := e.newFundedSession(t, decimal.RequireFromString("0.01"), decimal.NewFromInt(10))
	if err := e.dist.Distribute(ctx, s.SessionID); !errors.Is(err, session.ErrInsufficientFunds) {
		t.Fatalf("wanted ErrInsufficientFunds, got %v", err)
	}
	if n := len(e.ledger.Ops()); n != 0 {
		t.Fatalf("wanted no ledger operations, got %d", n)
	}
	if b := e.ledger.Balances(feeAddress, ""); !b.Base.IsZero() {
		t.Fatalf("wanted no fee to be taken, got %s", b.Base)
	}
	if b := e.ledger.Balances(s.DepositAddress, "mint"); !b.Base.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("wanted the deposit untouched, got %s", b)
	}
}

func TestDistributeZeroFee(t *testing.T) {
	ctx := context.Background()
	e := newTestEnvWith(t, nil, &Options{})

	deposit := decimal.RequireFromString("0.1")
	s := e.newFundedSession(t, deposit, decimal.NewFromInt(1000))
	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}

	state, err := e.store.Load(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if !state.FeeCollected.IsZero() || state.FeeTxRef != "" {
		t.Fatalf("wanted no fee for a zero fee fraction, got %s (%q)", state.FeeCollected, state.FeeTxRef)
	}
	total := decimal.Zero
	for _, b := range walletBalances(t, e, s.SessionID) {
		total = total.Add(b.Base)
	}
	if !total.Equal(deposit) {
		t.Fatalf("wanted the whole deposit %s in the wallets, got %s", deposit, total)
	}
}

func TestDistributeHeldTransfer(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	s := e.newFundedSession(t, decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	address, err := e.keys.Generate(ctx, s.SessionID, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Transfers to wallet 0 stay pending past the confirmation timeout.
	e.ledger.Hold(address)
	if err := e.dist.Distribute(ctx, s.SessionID); err == nil {
		t.Fatalf("wanted non-nil error while wallet 0 transfer is pending")
	}
	w0, err := e.store.LoadWallet(ctx, s.SessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if w0.FundingTxRef == "" {
		t.Fatalf("wanted the pending funding transfer to be saved")
	}
	if n := e.ledger.Held(address); n != 1 {
		t.Fatalf("wanted one pending transfer, got %d", n)
	}

	// A restarted fan-out waits on the saved transfer instead of sending
	// another one.
	if err := e.dist.Distribute(ctx, s.SessionID); err == nil {
		t.Fatalf("wanted non-nil error while wallet 0 transfer is still pending")
	}
	if n := e.ledger.Held(address); n != 1 {
		t.Fatalf("wanted still one pending transfer, got %d", n)
	}

	e.ledger.Release(address)
	if err := e.dist.Distribute(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}
	w0, err = e.store.LoadWallet(ctx, s.SessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if w0.FundingTxRef != "" {
		t.Fatalf("wanted funding transfer to be cleared, got %q", w0.FundingTxRef)
	}
	if b := e.ledger.Balances(address, "mint"); !b.Asset.Equal(w0.TargetAsset) {
		t.Fatalf("wanted wallet 0 asset %s, got %s", w0.TargetAsset, b.Asset)
	}
	transfers := 0
	for _, op := range e.ledger.Ops() {
		if op.Kind == "TRANSFER" && op.To == address {
			transfers++
		}
	}
	if transfers != 2 {
		t.Fatalf("wanted one asset and one base transfer to wallet 0, got %d", transfers)
	}
}
