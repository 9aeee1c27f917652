// Copyright (c) 2025 BVK Chaitanya

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/fanout"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/looper"
	"github.com/bvk/volumebot/paper"
	"github.com/bvk/volumebot/session"
	"github.com/bvk/volumebot/sweeper"
	"github.com/bvk/volumebot/watcher"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

const (
	feeAddress   = "FeeCollector1111111111111111111111111111111"
	adminAddress = "AdminVault111111111111111111111111111111111"
	destination  = "UserWallet111111111111111111111111111111111"
)

type testEnv struct {
	db     kv.Database
	keys   *custody.Custodian
	ledger *paper.Ledger
	engine *Engine
}

// testOptions returns options where Fast sessions trade every few
// milliseconds and the other strategies never trade during a test.
func testOptions() *Options {
	never := session.Interval{Min: time.Hour, Max: time.Hour}
	fast := session.Interval{Min: time.Millisecond, Max: 2 * time.Millisecond}
	return &Options{
		Watcher: watcher.Options{
			PollInterval: 5 * time.Millisecond,
			Timeout:      time.Minute,
			MinBase:      decimal.RequireFromString("0.1"),
		},
		Fanout: fanout.Options{
			NumWallets:     3,
			FeeFraction:    decimal.RequireFromString("0.5"),
			FeeAddress:     feeAddress,
			MaxAttempts:    3,
			RetryInterval:  time.Millisecond,
			TxPollInterval: time.Millisecond,
			TxTimeout:      5 * time.Second,
		},
		Looper: looper.Options{
			RetryInterval:  time.Millisecond,
			TxPollInterval: time.Millisecond,
			TxTimeout:      time.Minute,
			Delays:         session.Delays{session.Slow: never, session.Medium: never, session.Fast: fast},
		},
		Sweeper: sweeper.Options{
			MaxAttempts:    3,
			RetryInterval:  time.Millisecond,
			TxPollInterval: time.Millisecond,
			TxTimeout:      5 * time.Second,
		},
		AdminAddress:   adminAddress,
		ReportInterval: 20 * time.Millisecond,
		RetryInterval:  time.Millisecond,
	}
}

func newTestEnv(t *testing.T, opts *Options) *testEnv {
	return newTestEnvWithLedger(t, opts, nil)
}

func newTestEnvWithLedger(t *testing.T, opts *Options, popts *paper.Options) *testEnv {
	db := kvmemdb.New()
	keys, err := custody.New(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	l, err := paper.New(popts)
	if err != nil {
		t.Fatal(err)
	}
	v := &testEnv{db: db, keys: keys, ledger: l}
	v.start(t, opts)
	return v
}

func (v *testEnv) start(t *testing.T, opts *Options) {
	e, err := New(v.db, v.ledger, v.keys, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	v.engine = e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (v *testEnv) waitState(t *testing.T, sid string, want session.State) *gobs.SessionState {
	t.Helper()
	var s *gobs.SessionState
	waitFor(t, fmt.Sprintf("session to be %s", want), func() bool {
		x, err := v.engine.store.Load(context.Background(), sid)
		if err != nil {
			t.Fatal(err)
		}
		if state := session.State(x.State); state != want && state.IsTerminal() {
			t.Fatalf("wanted session to be %s, got %s (%s)", want, state, x.Diagnostic)
		}
		s = x
		return x.State == string(want)
	})
	return s
}

// newTradingSession creates a session and funds its deposit wallet with
// 0.1 base and 1000 asset units.
func (v *testEnv) newTradingSession(t *testing.T, strategy session.Strategy) *gobs.SessionState {
	t.Helper()
	ctx := context.Background()
	s, err := v.engine.CreateSession(ctx, "user", "mint", strategy, 0)
	if err != nil {
		t.Fatal(err)
	}
	v.ledger.Deposit(s.DepositAddress, "mint", decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	return v.waitState(t, s.SessionID, session.Trading)
}

func (v *testEnv) numTrades(t *testing.T, sid string) int {
	n := 0
	for i := 0; i < 3; i++ {
		trades, err := v.engine.store.LoadTrades(context.Background(), sid, i)
		if err != nil {
			t.Fatal(err)
		}
		n += len(trades)
	}
	return n
}

func TestFundingScenario(t *testing.T) {
	ctx := context.Background()
	v := newTestEnv(t, testOptions())

	receiver, err := v.engine.SubscribeReports()
	if err != nil {
		t.Fatal(err)
	}
	defer receiver.Close()
	reportCh, err := topic.ReceiveCh(receiver)
	if err != nil {
		t.Fatal(err)
	}

	s, err := v.engine.CreateSession(ctx, "user", "mint", session.Medium, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result, _, err := v.engine.CheckDeposit(ctx, s.SessionID); err != nil || result != watcher.InsufficientFunds {
		t.Fatalf("wanted InsufficientFunds before the deposit, got %s (%v)", result, err)
	}

	v.ledger.Deposit(s.DepositAddress, "mint", decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	s = v.waitState(t, s.SessionID, session.Trading)

	if !s.FeeCollected.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted fee 0.05, got %s", s.FeeCollected)
	}
	if b := v.ledger.Balances(feeAddress, "mint"); !b.Base.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted 0.05 at the fee address, got %s", b.Base)
	}

	wallets, err := v.engine.store.LoadWallets(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(wallets) != 3 {
		t.Fatalf("wanted 3 sub-wallets, got %d", len(wallets))
	}
	var totalBase, totalAsset decimal.Decimal
	for _, w := range wallets {
		b := v.ledger.Balances(w.Address, "mint")
		if d := b.Base.Sub(decimal.RequireFromString("0.0166666")).Abs(); d.GreaterThan(decimal.RequireFromString("0.000001")) {
			t.Fatalf("wanted about 0.0167 base in wallet %d, got %s", w.Index, b.Base)
		}
		if d := b.Asset.Sub(decimal.RequireFromString("333.333")).Abs(); d.GreaterThan(decimal.RequireFromString("0.001")) {
			t.Fatalf("wanted about 333.33 asset in wallet %d, got %s", w.Index, b.Asset)
		}
		totalBase, totalAsset = totalBase.Add(b.Base), totalAsset.Add(b.Asset)
	}
	if !totalBase.Equal(decimal.RequireFromString("0.05")) || !totalAsset.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("wanted wallets to hold the deposit minus the fee, got %s base and %s asset", totalBase, totalAsset)
	}

	stats, err := v.engine.LiveStats(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.TotalBase.Equal(totalBase) || len(stats.Wallets) != 3 {
		t.Fatalf("wanted live stats to match the ledger, got %s in %d wallets", stats.TotalBase, len(stats.Wallets))
	}

	select {
	case r := <-reportCh:
		if r.SessionID != s.SessionID {
			t.Fatalf("wanted report for session %s, got %s", s.SessionID, r.SessionID)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("wanted a periodic status report")
	}

	if _, _, err := v.engine.CheckDeposit(ctx, s.SessionID); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("wanted os.ErrInvalid for deposit check of a trading session, got %v", err)
	}
}

func TestZeroDeposit(t *testing.T) {
	opts := testOptions()
	opts.Watcher.Timeout = 50 * time.Millisecond
	v := newTestEnv(t, opts)

	s, err := v.engine.CreateSession(context.Background(), "user", "mint", session.Medium, 0)
	if err != nil {
		t.Fatal(err)
	}
	s = v.waitState(t, s.SessionID, session.Failed)
	if !strings.Contains(s.Diagnostic, "InsufficientFunds") {
		t.Fatalf("wanted InsufficientFunds diagnostic, got %q", s.Diagnostic)
	}
	wallets, err := v.engine.store.LoadWallets(context.Background(), s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(wallets) != 0 {
		t.Fatalf("wanted no sub-wallets, got %d", len(wallets))
	}
	if _, err := v.engine.Withdraw(context.Background(), s.SessionID, destination); !errors.Is(err, session.ErrTerminal) {
		t.Fatalf("wanted ErrTerminal, got %v", err)
	}
}

func TestLifecycleWithTxFees(t *testing.T) {
	ctx := context.Background()
	txFee := decimal.RequireFromString("0.000005")
	rent := decimal.RequireFromString("0.00203928")
	v := newTestEnvWithLedger(t, testOptions(), &paper.Options{TxFee: txFee, AccountRent: rent})

	s := v.newTradingSession(t, session.Medium)
	if b := v.ledger.Balances(feeAddress, "mint"); !b.Base.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted exactly 0.05 at the fee address, got %s", b.Base)
	}

	wallets, err := v.engine.store.LoadWallets(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.engine.Withdraw(ctx, s.SessionID, destination); err != nil {
		t.Fatal(err)
	}
	s = v.waitState(t, s.SessionID, session.Closed)

	for _, w := range wallets {
		if b := v.ledger.Balances(w.Address, "mint"); !b.Base.IsZero() || !b.Asset.IsZero() {
			t.Fatalf("wanted wallet %d to be empty, got %s", w.Index, b)
		}
	}
	if b := v.ledger.Balances(s.DepositAddress, "mint"); !b.Base.IsZero() || !b.Asset.IsZero() {
		t.Fatalf("wanted deposit wallet to be empty, got %s", b)
	}
	if b := v.ledger.Balances(destination, "mint"); !b.Asset.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("wanted all asset at the destination, got %s", b.Asset)
	}
	waitFor(t, "sweep report", func() bool {
		_, ok := v.engine.lastSweep.Load(s.SessionID)
		return ok
	})
	if report, _ := v.engine.lastSweep.Load(s.SessionID); !report.OK() {
		t.Fatalf("wanted a clean sweep report, got %s", report)
	}
}

func TestWithdrawMidTrade(t *testing.T) {
	ctx := context.Background()
	v := newTestEnv(t, testOptions())
	s := v.newTradingSession(t, session.Fast)

	wallets, err := v.engine.store.LoadWallets(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	w0 := wallets[0]

	v.ledger.Hold(w0.Address)
	swaps := v.ledger.SwapCh()
	waitFor(t, "a held swap on wallet 0", func() bool {
		select {
		case op := <-swaps:
			return op.Address == w0.Address
		default:
			return false
		}
	})

	if _, err := v.engine.Withdraw(ctx, s.SessionID, destination); err != nil {
		t.Fatal(err)
	}

	dust := v.engine.sweeper.Dust()
	empty := func(w *gobs.SubWalletState) bool {
		b := v.ledger.Balances(w.Address, "mint")
		return b.Base.LessThanOrEqual(dust) && b.Asset.IsZero()
	}
	waitFor(t, "idle wallets to be swept", func() bool {
		return empty(wallets[1]) && empty(wallets[2])
	})
	if x, err := v.engine.store.Load(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	} else if x.State != string(session.Withdrawing) {
		t.Fatalf("wanted session to wait for the trade in flight, got %s", x.State)
	}
	if empty(w0) {
		t.Fatalf("wanted wallet with a trade in flight to be untouched")
	}

	v.ledger.Release(w0.Address)
	v.waitState(t, s.SessionID, session.Closed)

	for _, w := range wallets {
		if !empty(w) {
			t.Fatalf("wanted wallet %d to be empty, got %s", w.Index, v.ledger.Balances(w.Address, "mint"))
		}
	}
	trades, err := v.engine.store.LoadTrades(ctx, s.SessionID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if last := trades[len(trades)-1]; last.Outcome != string(session.TradeSuccess) {
		t.Fatalf("wanted the held trade to succeed, got %s (%s)", last.Outcome, last.Diagnostic)
	}
	if b := v.ledger.Balances(destination, "mint"); !b.Base.IsPositive() || !b.Asset.IsPositive() {
		t.Fatalf("wanted funds at the destination, got %s", b)
	}

	x, err := v.engine.store.Load(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if n := int64(v.numTrades(t, s.SessionID)); x.TradeCount+x.FailedTrades != n {
		t.Fatalf("wanted %d recorded trades, got %d successful and %d failed", n, x.TradeCount, x.FailedTrades)
	}
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	v := newTestEnv(t, testOptions())
	s := v.newTradingSession(t, session.Fast)

	waitFor(t, "trades", func() bool { return v.numTrades(t, s.SessionID) >= 3 })

	if _, err := v.engine.Pause(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	before := v.numTrades(t, s.SessionID)
	time.Sleep(100 * time.Millisecond)
	if after := v.numTrades(t, s.SessionID); after != before {
		t.Fatalf("wanted no trades while paused, got %d new trades", after-before)
	}
	if _, err := v.engine.Pause(ctx, s.SessionID); !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("wanted ErrInvalidTransition for pausing twice, got %v", err)
	}

	if _, err := v.engine.Resume(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "trades after resume", func() bool { return v.numTrades(t, s.SessionID) > before })

	if err := v.engine.ChangeStrategy(ctx, s.SessionID, "warp"); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("wanted os.ErrInvalid for unknown strategy, got %v", err)
	}
	if err := v.engine.ChangeStrategy(ctx, s.SessionID, "slow"); err != nil {
		t.Fatal(err)
	}
	x, err := v.engine.store.Load(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if x.Strategy != string(session.Slow) {
		t.Fatalf("wanted strategy Slow, got %s", x.Strategy)
	}
}

func TestAdminSweepAll(t *testing.T) {
	ctx := context.Background()
	v := newTestEnv(t, testOptions())

	var sessions []*gobs.SessionState
	for i := 0; i < 5; i++ {
		sessions = append(sessions, v.newTradingSession(t, session.Medium))
	}

	broken := sessions[2]
	wallets, err := v.engine.store.LoadWallets(ctx, broken.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range wallets {
		v.ledger.SetFailure(w.Address, fmt.Errorf("rpc node is unreachable: %w", ledger.ErrPermanent))
	}

	resp, err := v.engine.AdminSweepAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Attempted != 5 || resp.Succeeded != 4 || resp.Failed != 1 {
		t.Fatalf("wanted 5 attempted, 4 succeeded and 1 failed, got %d, %d and %d", resp.Attempted, resp.Succeeded, resp.Failed)
	}
	if _, ok := resp.Failures[broken.SessionID]; !ok {
		t.Fatalf("wanted failure diagnostic for session %s, got %v", broken.SessionID, resp.Failures)
	}
	if b := v.ledger.Balances(adminAddress, "mint"); !b.Asset.Equal(resp.MovedAsset) {
		t.Fatalf("wanted admin address to receive %s asset, got %s", resp.MovedAsset, b.Asset)
	}

	for _, s := range sessions {
		want := session.Closed
		if s.SessionID == broken.SessionID {
			want = session.Failed
		}
		x, err := v.engine.store.Load(ctx, s.SessionID)
		if err != nil {
			t.Fatal(err)
		}
		if x.State != string(want) {
			t.Fatalf("wanted session %s to be %s, got %s", s.SessionID, want, x.State)
		}
	}

	stats, err := v.engine.AdminStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalUsers != 1 || stats.TotalSessions != 5 || stats.ActiveSessions != 0 {
		t.Fatalf("wanted 1 user, 5 sessions and none active, got %+v", stats)
	}

	// Operator recovers the failed session after the ledger is reachable.
	for _, w := range wallets {
		v.ledger.SetFailure(w.Address, nil)
	}
	report, err := v.engine.AdminRecover(ctx, broken.SessionID, adminAddress)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("wanted clean recovery, got %s", report)
	}
}

func TestRestartResume(t *testing.T) {
	ctx := context.Background()
	v := newTestEnv(t, testOptions())
	s := v.newTradingSession(t, session.Medium)

	if err := v.engine.Close(); err != nil {
		t.Fatal(err)
	}
	v.start(t, testOptions())

	if n := v.engine.registry.Len(); n != 1 {
		t.Fatalf("wanted the trading session to be resumed, got %d running", n)
	}
	if _, err := v.engine.Withdraw(ctx, s.SessionID, destination); err != nil {
		t.Fatal(err)
	}
	v.waitState(t, s.SessionID, session.Closed)

	if b := v.ledger.Balances(feeAddress, "mint"); !b.Base.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("wanted the fee to be collected once, got %s", b.Base)
	}
	if b := v.ledger.Balances(destination, "mint"); !b.Asset.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("wanted all asset at the destination, got %s", b.Asset)
	}
	waitFor(t, "controller to exit", func() bool { return v.engine.registry.Len() == 0 })

	sessions, err := v.engine.ListSessions(ctx, "user")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].State != string(session.Closed) {
		t.Fatalf("wanted one closed session for the user")
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	v := newTestEnv(t, testOptions())

	s, err := v.engine.CreateSession(ctx, "user", "mint", session.Medium, 0)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "deposit watcher", func() bool {
		c, ok := v.engine.ctlMap.Load(s.SessionID)
		if !ok {
			return false
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.watcher != nil
	})

	s, err = v.engine.Cancel(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if s.State != string(session.Failed) || s.Diagnostic != "canceled by the user" {
		t.Fatalf("wanted a failed session canceled by the user, got %s (%s)", s.State, s.Diagnostic)
	}
	waitFor(t, "controller to exit", func() bool {
		_, ok := v.engine.registry.Get(s.SessionID)
		return !ok
	})

	// A late deposit is not distributed.
	v.ledger.Deposit(s.DepositAddress, "mint", decimal.RequireFromString("0.1"), decimal.NewFromInt(1000))
	if _, _, err := v.engine.CheckDeposit(ctx, s.SessionID); !errors.Is(err, session.ErrTerminal) {
		t.Fatalf("wanted ErrTerminal for a canceled session, got %v", err)
	}
	if ops := v.ledger.Ops(); len(ops) != 0 {
		t.Fatalf("wanted no ledger operations, got %d", len(ops))
	}
	if _, err := v.engine.Cancel(ctx, s.SessionID); !errors.Is(err, session.ErrTerminal) {
		t.Fatalf("wanted ErrTerminal for the second cancel, got %v", err)
	}
}

func TestCancelAfterDeposit(t *testing.T) {
	ctx := context.Background()
	v := newTestEnv(t, testOptions())

	s := v.newTradingSession(t, session.Medium)
	if _, err := v.engine.Cancel(ctx, s.SessionID); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("wanted os.ErrInvalid for a trading session, got %v", err)
	}
	x, err := v.engine.store.Load(ctx, s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if x.State != string(session.Trading) {
		t.Fatalf("wanted the session to keep trading, got %s", x.State)
	}
}

// tokenLedger is a paper ledger that can describe a fixed set of assets.
type tokenLedger struct {
	*paper.Ledger

	tokens map[string]*ledger.TokenInfo
	err    error
}

func (l *tokenLedger) GetTokenInfo(ctx context.Context, asset string) (*ledger.TokenInfo, error) {
	if l.err != nil {
		return nil, l.err
	}
	info, ok := l.tokens[asset]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", asset, os.ErrNotExist)
	}
	return info, nil
}

func TestTokenLookup(t *testing.T) {
	ctx := context.Background()

	db := kvmemdb.New()
	keys, err := custody.New(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	l, err := paper.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	gw := &tokenLedger{
		Ledger: l,
		tokens: map[string]*ledger.TokenInfo{
			"mint": {
				Symbol:       "TKN",
				Name:         "Token",
				PriceUSD:     decimal.RequireFromString("0.0125"),
				MarketCapUSD: decimal.NewFromInt(1250000),
				LiquidityUSD: decimal.NewFromInt(84000),
			},
		},
	}
	e, err := New(db, gw, keys, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })

	if _, err := e.CreateSession(ctx, "user", "unknown", session.Medium, 0); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("wanted os.ErrInvalid for an untraded asset, got %v", err)
	}
	if sessions, err := e.ListSessions(ctx, ""); err != nil || len(sessions) != 0 {
		t.Fatalf("wanted no sessions, got %d (%v)", len(sessions), err)
	}

	resp, err := e.doCreate(ctx, &api.SessionCreateRequest{UserID: "user", Asset: "mint"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Token == nil || resp.Token.Symbol != "TKN" || !resp.Token.LiquidityUSD.Equal(decimal.NewFromInt(84000)) {
		t.Fatalf("wanted the token market data in the response, got %+v", resp.Token)
	}
	s, err := e.store.Load(ctx, resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Token == nil || !s.Token.PriceUSD.Equal(decimal.RequireFromString("0.0125")) {
		t.Fatalf("wanted the token market data in the session, got %+v", s.Token)
	}

	// Lookup service failures do not block new sessions.
	gw.err = fmt.Errorf("%w: service is down", ledger.ErrTransient)
	s, err = e.CreateSession(ctx, "user", "mint", session.Medium, 0)
	if err != nil {
		t.Fatalf("wanted a session without market data, got %v", err)
	}
	if s.Token != nil {
		t.Fatalf("wanted no token market data, got %+v", s.Token)
	}

	v := newTestEnv(t, testOptions())
	if _, err := v.engine.TokenInfo(ctx, "mint"); !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("wanted errors.ErrUnsupported from a paper ledger, got %v", err)
	}
}
