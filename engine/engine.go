// Copyright (c) 2025 BVK Chaitanya

// Package engine implements the session engine. Every non-terminal session
// is driven by a controller job that moves it through the deposit, fan-out,
// trading and withdrawal steps, resuming from the persisted state after a
// restart.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/custody"
	"github.com/bvk/volumebot/fanout"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/job"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/session"
	"github.com/bvk/volumebot/sweeper"
	"github.com/bvk/volumebot/syncmap"
	"github.com/bvk/volumebot/watcher"
	"github.com/bvkgo/kv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

type Engine struct {
	closeCtx   context.Context
	closeCause context.CancelCauseFunc

	store *session.Store
	gw    ledger.Gateway
	keys  *custody.Custodian

	// tokens is nil when the ledger cannot describe assets.
	tokens ledger.TokenLookup

	opts Options

	watcherOpts *watcher.Options

	distributor *fanout.Distributor
	sweeper     *sweeper.Sweeper

	registry *job.Registry

	ctlMap syncmap.Map[string, *controller]

	// lastSweep holds the most recent sweep report per session.
	lastSweep syncmap.Map[string, *sweeper.Report]

	reports *topic.Topic[*StatusReport]

	closeOnce sync.Once
}

// New creates a session engine. Sessions are not started till Start is
// called.
func New(db kv.Database, gw ledger.Gateway, keys *custody.Custodian, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	wopts, err := opts.Watcher.Resolved()
	if err != nil {
		return nil, fmt.Errorf("invalid deposit watcher options: %w", err)
	}

	store := session.NewStore(db)

	fopts := opts.Fanout
	distributor, err := fanout.New(store, gw, keys, &fopts)
	if err != nil {
		return nil, fmt.Errorf("invalid fan-out options: %w", err)
	}
	sopts := opts.Sweeper
	sw, err := sweeper.New(store, gw, keys, &sopts)
	if err != nil {
		return nil, fmt.Errorf("invalid sweeper options: %w", err)
	}

	ctx, cause := context.WithCancelCause(context.Background())
	e := &Engine{
		closeCtx:    ctx,
		closeCause:  cause,
		store:       store,
		gw:          gw,
		keys:        keys,
		opts:        *opts,
		watcherOpts: wopts,
		distributor: distributor,
		sweeper:     sw,
		registry:    job.NewRegistry(),
		reports:     topic.New[*StatusReport](),
	}
	if v, ok := gw.(ledger.TokenLookup); ok {
		e.tokens = v
	}
	return e, nil
}

// Start schedules all non-terminal sessions found in the database.
func (e *Engine) Start(ctx context.Context) error {
	if e.opts.NoResume {
		return nil
	}
	var sessions []*gobs.SessionState
	collect := func(ctx context.Context, s *gobs.SessionState) error {
		if !session.State(s.State).IsTerminal() {
			sessions = append(sessions, s)
		}
		return nil
	}
	if err := e.store.Scan(ctx, collect); err != nil {
		return fmt.Errorf("could not scan sessions: %w", err)
	}
	for _, s := range sessions {
		if _, _, err := e.startSession(s); err != nil {
			return err
		}
		slog.Info("resumed session", "session", s.SessionID, "state", s.State)
	}
	return nil
}

// Stop stops all session controllers and waits for them to return. Trades
// and transfers already submitted to the ledger are completed first.
func (e *Engine) Stop(ctx context.Context) error {
	return e.registry.StopAll(ctx)
}

func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closeCause(os.ErrClosed)
		err = e.registry.StopAll(context.Background())
		e.reports.Close()
	})
	return err
}

// startSession starts the controller job for a session unless it is
// already running.
func (e *Engine) startSession(s *gobs.SessionState) (*controller, *job.Job, error) {
	c, _ := e.ctlMap.LoadOrStore(s.SessionID, newController(e, s.SessionID, session.Strategy(s.Strategy)))
	j, err := e.registry.Start(s.SessionID, c.run, e.closeCtx)
	if err == nil {
		return c, j, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, nil, err
	}
	if j, ok := e.registry.Get(s.SessionID); ok {
		return c, j, nil
	}
	// Controller returned between the two calls.
	j, err = e.registry.Start(s.SessionID, c.run, e.closeCtx)
	if err != nil {
		return nil, nil, err
	}
	return c, j, nil
}

// wake makes the session controller reload its state, starting it if
// necessary.
func (e *Engine) wake(s *gobs.SessionState) {
	if session.State(s.State).IsTerminal() {
		return
	}
	c, _, err := e.startSession(s)
	if err != nil {
		slog.Error("could not start session controller", "session", s.SessionID, "err", err)
		return
	}
	c.wake()
}

// CreateSession creates a new session with a fresh deposit wallet and
// starts watching it for the deposit.
func (e *Engine) CreateSession(ctx context.Context, userID, asset string, strategy session.Strategy, chatID int64) (*gobs.SessionState, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("user id cannot be empty: %w", os.ErrInvalid)
	}
	if len(asset) == 0 {
		return nil, fmt.Errorf("asset address cannot be empty: %w", os.ErrInvalid)
	}
	strategy, err := parseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}

	token, err := e.lookupToken(ctx, asset)
	if err != nil {
		return nil, err
	}

	sid := uuid.New().String()
	address, err := e.keys.Generate(ctx, sid, custody.DepositIndex)
	if err != nil {
		return nil, fmt.Errorf("could not create deposit wallet: %w", err)
	}

	now := time.Now()
	s := &gobs.SessionState{
		SessionID:      sid,
		UserID:         userID,
		Asset:          asset,
		Token:          token,
		Strategy:       string(strategy),
		State:          string(session.AwaitingDeposit),
		DepositAddress: address,
		CreateTime:     now,
		LastActivity:   now,
		NumWallets:     e.distributor.NumWallets(),
		ChatID:         chatID,
	}
	if err := e.store.Create(ctx, s); err != nil {
		return nil, err
	}
	if _, _, err := e.startSession(s); err != nil {
		return nil, err
	}
	slog.Info("created new session", "session", sid, "user", userID, "asset", asset, "deposit", address)
	return s, nil
}

// TokenInfo returns the market data of an asset. Returns an
// errors.ErrUnsupported error when the ledger cannot describe assets and
// os.ErrNotExist for assets that are not traded.
func (e *Engine) TokenInfo(ctx context.Context, asset string) (*ledger.TokenInfo, error) {
	if e.tokens == nil {
		return nil, fmt.Errorf("token lookup is not available: %w", errors.ErrUnsupported)
	}
	return e.tokens.GetTokenInfo(ctx, asset)
}

// lookupToken rejects assets that are known to be untraded. Sessions are
// created without the market data when the lookup service is unavailable.
func (e *Engine) lookupToken(ctx context.Context, asset string) (*gobs.TokenState, error) {
	if e.tokens == nil {
		return nil, nil
	}
	info, err := e.tokens.GetTokenInfo(ctx, asset)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("asset %q is not a traded token: %w", asset, os.ErrInvalid)
		}
		slog.Warn("could not lookup token market data (ignored)", "asset", asset, "err", err)
		return nil, nil
	}
	token := &gobs.TokenState{
		Symbol:       info.Symbol,
		Name:         info.Name,
		PriceUSD:     info.PriceUSD,
		MarketCapUSD: info.MarketCapUSD,
		LiquidityUSD: info.LiquidityUSD,
		LookupTime:   time.Now(),
	}
	return token, nil
}

// MinDeposit returns the minimum base currency deposit.
func (e *Engine) MinDeposit() decimal.Decimal {
	return e.watcherOpts.MinBase
}

// CheckDeposit queries the deposit wallet of a session once. A Ready result
// makes the deposit watcher proceed immediately. Session state is never
// changed by this call.
func (e *Engine) CheckDeposit(ctx context.Context, sid string) (watcher.Result, *ledger.Balances, error) {
	s, err := e.store.Load(ctx, sid)
	if err != nil {
		return "", nil, err
	}
	if state := session.State(s.State); state.IsTerminal() {
		return "", nil, fmt.Errorf("session %q is %s: %w", sid, state, session.ErrTerminal)
	} else if state != session.AwaitingDeposit {
		return "", nil, fmt.Errorf("session %q is not waiting for a deposit: %w", sid, os.ErrInvalid)
	}

	result, b, err := watcher.Check(ctx, e.gw, s.DepositAddress, s.Asset, e.watcherOpts.MinBase)
	if result == watcher.Ready {
		if c, ok := e.ctlMap.Load(sid); ok {
			c.nudge()
		}
	}
	return result, b, err
}

// ChangeStrategy updates the trading strategy of a session. New strategy
// is used from the next wait of every wallet.
func (e *Engine) ChangeStrategy(ctx context.Context, sid string, strategy session.Strategy) error {
	strategy, err := parseStrategy(string(strategy))
	if err != nil {
		return err
	}
	update := func(s *gobs.SessionState) error {
		s.Strategy = string(strategy)
		return nil
	}
	if _, err := e.store.Update(ctx, sid, update); err != nil {
		return err
	}
	if c, ok := e.ctlMap.Load(sid); ok {
		c.setStrategy(strategy)
	}
	return nil
}

// LiveStats returns session statistics with fresh wallet balances.
// Balances that cannot be read from the ledger are reported from the cache
// and marked stale.
func (e *Engine) LiveStats(ctx context.Context, sid string) (*api.SessionStats, error) {
	s, err := e.store.Load(ctx, sid)
	if err != nil {
		return nil, err
	}
	wallets, err := e.store.LoadWallets(ctx, sid)
	if err != nil {
		return nil, err
	}

	stats := &api.SessionStats{
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		Asset:          s.Asset,
		Strategy:       s.Strategy,
		State:          s.State,
		Token:          tokenInfo(s.Token),
		Diagnostic:     s.Diagnostic,
		DepositAddress: s.DepositAddress,
		DepositBase:    s.DepositBase,
		DepositAsset:   s.DepositAsset,
		CreateTime:     s.CreateTime,
		LastActivity:   s.LastActivity,
		TradeCount:     s.TradeCount,
		FailedTrades:   s.FailedTrades,
		Volume:         s.Volume,
		FeeCollected:   s.FeeCollected,
	}
	for _, w := range wallets {
		ws := &api.WalletStats{
			Index:         w.Index,
			Address:       w.Address,
			Base:          w.Base,
			Asset:         w.Asset,
			LastDirection: w.LastDirection,
			TradeCount:    w.NextSequence,
			Active:        w.Active,
		}
		if b, err := e.gw.GetBalances(ctx, w.Address, s.Asset); err != nil {
			slog.Warn("could not read wallet balances (using cached values)", "session", sid, "wallet", w.Index, "err", err)
			ws.Stale = true
		} else {
			ws.Base, ws.Asset = b.Base, b.Asset
		}
		stats.TotalBase = stats.TotalBase.Add(ws.Base)
		stats.TotalAsset = stats.TotalAsset.Add(ws.Asset)
		stats.Wallets = append(stats.Wallets, ws)
	}
	return stats, nil
}

// Withdraw moves an active session into the withdrawing state. Funds are
// swept into the destination in the background.
func (e *Engine) Withdraw(ctx context.Context, sid, destination string) (*gobs.SessionState, error) {
	if len(destination) == 0 {
		return nil, fmt.Errorf("destination cannot be empty: %w", os.ErrInvalid)
	}
	e.lastSweep.Delete(sid)
	s, err := e.store.Transition(ctx, sid, session.Withdrawing, func(s *gobs.SessionState) error {
		s.Destination = destination
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.wake(s)
	slog.Info("session withdrawal is requested", "session", sid, "destination", destination)
	return s, nil
}

// Cancel fails a session that is still waiting for its deposit. Sessions
// past the deposit step are closed with Withdraw instead.
func (e *Engine) Cancel(ctx context.Context, sid string) (*gobs.SessionState, error) {
	mutate := func(s *gobs.SessionState) error {
		if state := session.State(s.State); state != session.AwaitingDeposit {
			return fmt.Errorf("session %q is %s and must be withdrawn: %w", sid, state, os.ErrInvalid)
		}
		s.Diagnostic = "canceled by the user"
		return nil
	}
	s, err := e.store.Transition(ctx, sid, session.Failed, mutate)
	if err != nil {
		return nil, err
	}
	if c, ok := e.ctlMap.Load(sid); ok {
		c.wake()
	}
	slog.Info("session is canceled", "session", sid)
	return s, nil
}

// Pause stops new trades of a session. Trades in flight are completed.
func (e *Engine) Pause(ctx context.Context, sid string) (*gobs.SessionState, error) {
	s, err := e.store.Transition(ctx, sid, session.Paused, nil)
	if err != nil {
		return nil, err
	}
	e.wake(s)
	return s, nil
}

// Resume restarts trading of a paused session.
func (e *Engine) Resume(ctx context.Context, sid string) (*gobs.SessionState, error) {
	s, err := e.store.Transition(ctx, sid, session.Trading, nil)
	if err != nil {
		return nil, err
	}
	e.wake(s)
	return s, nil
}

// ListSessions returns the sessions of a user, or all sessions when user id
// is empty.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*gobs.SessionState, error) {
	var sessions []*gobs.SessionState
	if len(userID) == 0 {
		collect := func(_ context.Context, s *gobs.SessionState) error {
			sessions = append(sessions, s)
			return nil
		}
		if err := e.store.Scan(ctx, collect); err != nil {
			return nil, err
		}
		return sessions, nil
	}

	user, err := e.store.LoadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, sid := range user.SessionIDs {
		s, err := e.store.Load(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("could not load session %q of user %q: %w", sid, userID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func parseStrategy(s string) (session.Strategy, error) {
	v, err := session.ParseStrategy(s)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, os.ErrInvalid)
	}
	return v, nil
}
