// Copyright (c) 2025 BVK Chaitanya

package paper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func newSigner(t *testing.T, c *custody.Custodian, index int) *custody.Signer {
	ctx := context.Background()
	if _, err := c.Generate(ctx, "paper", index); err != nil {
		t.Fatal(err)
	}
	s, err := c.Signer(ctx, "paper", index)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSwapTransfer(t *testing.T) {
	ctx := context.Background()

	c, err := custody.New(kvmemdb.New(), "test")
	if err != nil {
		t.Fatal(err)
	}
	w0 := newSigner(t, c, 0)
	w1 := newSigner(t, c, 1)

	l, err := New(&Options{Price: decimal.RequireFromString("0.001")})
	if err != nil {
		t.Fatal(err)
	}
	l.Deposit(w0.Address(), "mint", decimal.NewFromInt(1), decimal.NewFromInt(1000))

	if _, err := l.SubmitSwap(ctx, w0, "mint", ledger.SELL, decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}
	b, err := l.GetBalances(ctx, w0.Address(), "mint")
	if err != nil {
		t.Fatal(err)
	}
	if !b.Base.Equal(decimal.RequireFromString("1.1")) || !b.Asset.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("wanted base=1.1 asset=900, got %s", b)
	}

	if _, err := l.SubmitSwap(ctx, w0, "mint", ledger.BUY, decimal.NewFromInt(5)); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("wanted ErrInsufficientFunds, got %v", err)
	}

	ref, err := l.Transfer(ctx, w0, w1.Address(), "mint", decimal.NewFromInt(900))
	if err != nil {
		t.Fatal(err)
	}
	if status, err := l.GetTxStatus(ctx, ref); err != nil {
		t.Fatal(err)
	} else if status != ledger.CONFIRMED {
		t.Fatalf("wanted CONFIRMED, got %s", status)
	}
	if b := l.Balances(w1.Address(), "mint"); !b.Asset.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("wanted 900 asset units at the destination, got %s", b)
	}

	l.SetFailure(w1.Address(), fmt.Errorf("unreachable: %w", ledger.ErrTransient))
	if _, err := l.GetBalances(ctx, w1.Address(), "mint"); !errors.Is(err, ledger.ErrTransient) {
		t.Fatalf("wanted ErrTransient, got %v", err)
	}
	l.SetFailure(w1.Address(), nil)
	if _, err := l.GetBalances(ctx, w1.Address(), "mint"); err != nil {
		t.Fatal(err)
	}
}

func TestHoldRelease(t *testing.T) {
	ctx := context.Background()

	c, err := custody.New(kvmemdb.New(), "test")
	if err != nil {
		t.Fatal(err)
	}
	w0 := newSigner(t, c, 0)

	l, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	l.Deposit(w0.Address(), "mint", decimal.NewFromInt(1), decimal.NewFromInt(10))

	l.Hold(w0.Address())
	ref, err := l.SubmitSwap(ctx, w0, "mint", ledger.SELL, decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	if status, _ := l.GetTxStatus(ctx, ref); status != ledger.PENDING {
		t.Fatalf("wanted PENDING, got %s", status)
	}
	if b := l.Balances(w0.Address(), "mint"); !b.Asset.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("wanted held swap to not move funds, got %s", b)
	}

	l.Release(w0.Address())
	if status, _ := l.GetTxStatus(ctx, ref); status != ledger.CONFIRMED {
		t.Fatalf("wanted CONFIRMED, got %s", status)
	}
	if b := l.Balances(w0.Address(), "mint"); !b.Asset.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("wanted 9 asset units after release, got %s", b)
	}
	if ops := l.Ops(); len(ops) != 1 || ops[0].TxRef != ref {
		t.Fatalf("wanted one confirmed op, got %d", len(ops))
	}
}

func TestTransferCosts(t *testing.T) {
	ctx := context.Background()

	c, err := custody.New(kvmemdb.New(), "test")
	if err != nil {
		t.Fatal(err)
	}
	w0 := newSigner(t, c, 0)
	w1 := newSigner(t, c, 1)

	fee := decimal.RequireFromString("0.000005")
	rent := decimal.RequireFromString("0.002")
	l, err := New(&Options{TxFee: fee, AccountRent: rent})
	if err != nil {
		t.Fatal(err)
	}
	l.Deposit(w0.Address(), "mint", decimal.NewFromInt(1), decimal.NewFromInt(10))

	// First asset transfer to w1 pays for its asset account.
	if _, err := l.Transfer(ctx, w0, w1.Address(), "mint", decimal.NewFromInt(4)); err != nil {
		t.Fatal(err)
	}
	want := decimal.NewFromInt(1).Sub(fee).Sub(rent)
	if b := l.Balances(w0.Address(), "mint"); !b.Base.Equal(want) {
		t.Fatalf("wanted sender base %s after the first transfer, got %s", want, b.Base)
	}
	if _, err := l.Transfer(ctx, w0, w1.Address(), "mint", decimal.NewFromInt(4)); err != nil {
		t.Fatal(err)
	}
	want = want.Sub(fee)
	if b := l.Balances(w0.Address(), "mint"); !b.Base.Equal(want) {
		t.Fatalf("wanted sender base %s after the second transfer, got %s", want, b.Base)
	}

	// Whole base balance cannot move; the fee must be left behind.
	if _, err := l.Transfer(ctx, w0, w1.Address(), "", want); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("wanted ErrInsufficientFunds, got %v", err)
	}
	if _, err := l.Transfer(ctx, w0, w1.Address(), "", want.Sub(fee)); err != nil {
		t.Fatal(err)
	}
	if b := l.Balances(w0.Address(), "mint"); !b.Base.IsZero() {
		t.Fatalf("wanted zero sender base, got %s", b.Base)
	}
	if costs := l.Costs(); !costs.TxFee.Equal(fee) || !costs.AccountRent.Equal(rent) {
		t.Fatalf("wanted costs fee=%s rent=%s, got fee=%s rent=%s", fee, rent, costs.TxFee, costs.AccountRent)
	}
}

func TestHoldTransferDestination(t *testing.T) {
	ctx := context.Background()

	c, err := custody.New(kvmemdb.New(), "test")
	if err != nil {
		t.Fatal(err)
	}
	w0 := newSigner(t, c, 0)
	w1 := newSigner(t, c, 1)

	l, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	l.Deposit(w0.Address(), "mint", decimal.NewFromInt(1), decimal.NewFromInt(10))

	l.Hold(w1.Address())
	ref, err := l.Transfer(ctx, w0, w1.Address(), "mint", decimal.NewFromInt(3))
	if err != nil {
		t.Fatal(err)
	}
	if status, _ := l.GetTxStatus(ctx, ref); status != ledger.PENDING {
		t.Fatalf("wanted PENDING, got %s", status)
	}
	if n := l.Held(w1.Address()); n != 1 {
		t.Fatalf("wanted one held transfer, got %d", n)
	}
	if b := l.Balances(w1.Address(), "mint"); !b.Asset.IsZero() {
		t.Fatalf("wanted held transfer to not move funds, got %s", b)
	}

	l.Release(w1.Address())
	if status, _ := l.GetTxStatus(ctx, ref); status != ledger.CONFIRMED {
		t.Fatalf("wanted CONFIRMED, got %s", status)
	}
	if b := l.Balances(w1.Address(), "mint"); !b.Asset.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("wanted 3 asset units after release, got %s", b)
	}
	if n := l.Held(w1.Address()); n != 0 {
		t.Fatalf("wanted no held transfers after release, got %d", n)
	}
}
