// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bvk/volumebot/gobs"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var allStates = []State{AwaitingDeposit, Distributing, Trading, Paused, Withdrawing, Closed, Failed}

func TestTransitions(t *testing.T) {
	allowed := map[[2]State]bool{
		{AwaitingDeposit, Distributing}: true,
		{AwaitingDeposit, Failed}:       true,
		{Distributing, Trading}:         true,
		{Distributing, Failed}:          true,
		{Trading, Paused}:               true,
		{Trading, Withdrawing}:          true,
		{Trading, Failed}:               true,
		{Paused, Trading}:               true,
		{Paused, Withdrawing}:           true,
		{Paused, Failed}:                true,
		{Withdrawing, Closed}:           true,
		{Withdrawing, Failed}:           true,
	}
	for _, from := range allStates {
		for _, to := range allStates {
			err := CanTransition(from, to)
			if allowed[[2]State{from, to}] {
				if err != nil {
					t.Fatalf("wanted %s -> %s to be allowed, got %v", from, to, err)
				}
				continue
			}
			if err == nil {
				t.Fatalf("wanted %s -> %s to be rejected", from, to)
			}
			if from.IsTerminal() && !errors.Is(err, ErrTerminal) {
				t.Fatalf("wanted ErrTerminal for %s -> %s, got %v", from, to, err)
			}
		}
	}
}

func TestStrategy(t *testing.T) {
	for _, s := range []string{"slow", "Medium", "FAST"} {
		if _, err := ParseStrategy(s); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ParseStrategy("turbo"); err == nil {
		t.Fatalf("wanted non-nil error for invalid strategy")
	}

	delays := DefaultDelays()
	if err := delays.Check(); err != nil {
		t.Fatal(err)
	}
	medium := delays[Medium]
	for i := 0; i < 1000; i++ {
		if d := medium.Draw(); d < medium.Min || d > medium.Max {
			t.Fatalf("wanted a delay in [%v, %v], got %v", medium.Min, medium.Max, d)
		}
	}
}

func newSession(uid string) *gobs.SessionState {
	now := time.Now()
	return &gobs.SessionState{
		SessionID:    uuid.New().String(),
		UserID:       uid,
		Asset:        "mint",
		Strategy:     string(Medium),
		State:        string(AwaitingDeposit),
		CreateTime:   now,
		LastActivity: now,
		NumWallets:   3,
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvmemdb.New())

	s1 := newSession("alice")
	if err := store.Create(ctx, s1); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, s1); !errors.Is(err, os.ErrExist) {
		t.Fatalf("wanted ErrExist, got %v", err)
	}
	s2 := newSession("alice")
	if err := store.Create(ctx, s2); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, newSession("bob")); err != nil {
		t.Fatal(err)
	}

	user, err := store.LoadUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(user.SessionIDs) != 2 {
		t.Fatalf("wanted 2 sessions for alice, got %d", len(user.SessionIDs))
	}
	if n, err := store.CountUsers(ctx); err != nil {
		t.Fatal(err)
	} else if n != 2 {
		t.Fatalf("wanted 2 users, got %d", n)
	}

	deposit := decimal.RequireFromString("0.1")
	if _, err := store.Transition(ctx, s1.SessionID, Trading, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("wanted ErrInvalidTransition, got %v", err)
	}
	state, err := store.Transition(ctx, s1.SessionID, Distributing, func(s *gobs.SessionState) error {
		s.DepositBase = deposit
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if State(state.State) != Distributing || !state.DepositBase.Equal(deposit) {
		t.Fatalf("wanted Distributing with deposit recorded, got %s %s", state.State, state.DepositBase)
	}

	if _, err := store.Fail(ctx, s1.SessionID, "test failure"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Transition(ctx, s1.SessionID, Distributing, nil); !errors.Is(err, ErrTerminal) {
		t.Fatalf("wanted ErrTerminal, got %v", err)
	}
	if _, err := store.Update(ctx, s1.SessionID, func(s *gobs.SessionState) error { return nil }); !errors.Is(err, ErrTerminal) {
		t.Fatalf("wanted ErrTerminal, got %v", err)
	}
	loaded, err := store.Load(ctx, s1.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Diagnostic != "test failure" {
		t.Fatalf("wanted diagnostic to be saved, got %q", loaded.Diagnostic)
	}

	count := 0
	if err := store.Scan(ctx, func(context.Context, *gobs.SessionState) error { count++; return nil }); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("wanted 3 sessions, got %d", count)
	}
}

func TestTrades(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvmemdb.New())

	s := newSession("carol")
	if err := store.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveWallet(ctx, &gobs.SubWalletState{SessionID: s.SessionID, Index: 0, Address: "w0"}); err != nil {
		t.Fatal(err)
	}

	t0 := &gobs.TradeState{SessionID: s.SessionID, WalletIndex: 0, Sequence: 0, Direction: "SELL", Outcome: string(TradePending)}
	if err := store.BeginTrade(ctx, t0); err != nil {
		t.Fatal(err)
	}
	// Reusing a sequence number must fail.
	if err := store.BeginTrade(ctx, t0); err == nil {
		t.Fatalf("wanted non-nil error for a reused sequence number")
	}

	w, err := store.LoadWallet(ctx, s.SessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if w.LastDirection != "SELL" || w.NextSequence != 1 {
		t.Fatalf("wanted SELL/1, got %s/%d", w.LastDirection, w.NextSequence)
	}

	if pending, err := store.PendingTrades(ctx, s.SessionID, 0); err != nil {
		t.Fatal(err)
	} else if len(pending) != 1 {
		t.Fatalf("wanted 1 pending trade, got %d", len(pending))
	}

	t0.Outcome = string(TradeFailed)
	if err := store.SaveTrade(ctx, t0); err != nil {
		t.Fatal(err)
	}
	t0.Outcome = string(TradeSuccess)
	if err := store.SaveTrade(ctx, t0); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("wanted ErrInvalid for a finalized trade, got %v", err)
	}

	if pending, err := store.PendingTrades(ctx, s.SessionID, 0); err != nil {
		t.Fatal(err)
	} else if len(pending) != 0 {
		t.Fatalf("wanted 0 pending trades, got %d", len(pending))
	}
}
