// Copyright (c) 2025 BVK Chaitanya

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bvk/volumebot/ctxutil"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/looper"
	"github.com/bvk/volumebot/session"
	"github.com/bvk/volumebot/sweeper"
	"github.com/bvk/volumebot/watcher"
)

var (
	errStopTrading = errors.New("trading is stopped")
	errWoken       = errors.New("controller is woken up")
)

// controller drives one session through its states. It runs as a job in
// the engine's registry and is the only writer of the session's trade
// statistics.
type controller struct {
	e   *Engine
	sid string

	wakeCh chan struct{}

	mu       sync.Mutex
	strategy session.Strategy
	watcher  *watcher.Watcher

	// active holds the trading scheduler while it is running. It is owned by
	// the controller goroutine.
	active *activeLooper
}

type activeLooper struct {
	looper *looper.Looper
	events chan *looper.Event
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func newController(e *Engine, sid string, strategy session.Strategy) *controller {
	return &controller{
		e:        e,
		sid:      sid,
		strategy: strategy,
		wakeCh:   make(chan struct{}, 1),
	}
}

func (c *controller) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

func (c *controller) nudge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Nudge()
	}
}

func (c *controller) getStrategy() session.Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.strategy
}

func (c *controller) setStrategy(s session.Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.strategy = s
}

func (c *controller) setWatcher(w *watcher.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.watcher = w
}

func (c *controller) run(ctx context.Context) error {
	defer c.finishLooper(ctx)

	for {
		s, err := c.e.store.Load(ctx, c.sid)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			slog.Error("could not load session state (will retry)", "session", c.sid, "err", err)
			ctxutil.Sleep(ctx, c.e.opts.RetryInterval)
			continue
		}
		c.setStrategy(session.Strategy(s.Strategy))

		state := session.State(s.State)
		if state.IsTerminal() {
			c.finishLooper(ctx)
			c.e.ctlMap.CompareAndDelete(c.sid, c)
			c.e.publishReport(ctx, c.sid)
			slog.Info("session has reached a terminal state", "session", c.sid, "state", state, "diagnostic", s.Diagnostic)
			return nil
		}

		switch state {
		case session.AwaitingDeposit:
			err = c.awaitDeposit(ctx, s)
		case session.Distributing:
			err = c.distribute(ctx, s)
		case session.Trading:
			err = c.trade(ctx, s)
		case session.Paused:
			err = c.pause(ctx)
		case session.Withdrawing:
			err = c.withdraw(ctx, s)
		default:
			err = fmt.Errorf("unexpected session state %q", state)
		}

		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if err != nil {
			slog.Error("session step has failed (will retry)", "session", c.sid, "state", state, "err", err)
			ctxutil.Sleep(ctx, c.e.opts.RetryInterval)
		}
	}
}

func (c *controller) awaitDeposit(ctx context.Context, s *gobs.SessionState) error {
	wopts := *c.e.watcherOpts
	w, err := watcher.New(c.e.gw, s.DepositAddress, s.Asset, &wopts)
	if err != nil {
		return err
	}
	c.setWatcher(w)
	defer c.setWatcher(nil)

	// A wake up interrupts the wait so that a canceled session is noticed.
	wctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-c.wakeCh:
			cancel(errWoken)
		case <-wctx.Done():
		}
	}()

	b, err := w.Wait(wctx, s.CreateTime)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if errors.Is(context.Cause(wctx), errWoken) {
			return nil
		}
		if errors.Is(err, session.ErrInsufficientFunds) || ledger.IsPermanent(err) {
			if _, err := c.e.store.Fail(ctx, c.sid, err.Error()); err != nil {
				return err
			}
			return nil
		}
		return err
	}

	mutate := func(s *gobs.SessionState) error {
		s.DepositBase, s.DepositAsset = b.Base, b.Asset
		return nil
	}
	if _, err := c.e.store.Transition(ctx, c.sid, session.Distributing, mutate); err != nil {
		if errors.Is(err, session.ErrTerminal) {
			return nil
		}
		return err
	}
	slog.Info("session deposit is confirmed", "session", c.sid, "base", b.Base, "asset", b.Asset)
	return nil
}

func (c *controller) distribute(ctx context.Context, s *gobs.SessionState) error {
	err := c.e.distributor.Distribute(ctx, c.sid)
	if err == nil || ctx.Err() != nil || errors.Is(err, session.ErrTerminal) {
		return nil
	}
	if _, err := c.e.store.Fail(ctx, c.sid, err.Error()); err != nil {
		return err
	}
	return nil
}

func (c *controller) startLooper(ctx context.Context) error {
	s, err := c.e.store.Load(ctx, c.sid)
	if err != nil {
		return err
	}
	wallets, err := c.e.store.LoadWallets(ctx, c.sid)
	if err != nil {
		return err
	}

	events := make(chan *looper.Event, len(wallets))
	lopts := c.e.opts.Looper
	l, err := looper.New(c.e.store, c.e.gw, c.e.keys, c.sid, s.Asset, wallets, c.getStrategy, events, &lopts)
	if err != nil {
		return err
	}

	lctx, cancel := context.WithCancelCause(ctx)
	a := &activeLooper{
		looper: l,
		events: events,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		l.Run(lctx)
	}()
	c.active = a
	return nil
}

// finishLooper stops the trading scheduler and records the trades that
// complete while it is stopping.
func (c *controller) finishLooper(ctx context.Context) {
	a := c.active
	if a == nil {
		return
	}
	a.cancel(errStopTrading)
	for {
		select {
		case ev := <-a.events:
			c.record(ctx, ev)
		case <-a.done:
			c.drainEvents(ctx, a)
			c.active = nil
			return
		}
	}
}

func (c *controller) drainEvents(ctx context.Context, a *activeLooper) {
	for {
		select {
		case ev := <-a.events:
			c.record(ctx, ev)
		default:
			return
		}
	}
}

// record adds a trade outcome to the session statistics.
func (c *controller) record(ctx context.Context, ev *looper.Event) {
	update := func(s *gobs.SessionState) error {
		if ev.Trade.Outcome == string(session.TradeSuccess) {
			s.TradeCount++
			s.Volume = s.Volume.Add(ev.Trade.Volume)
		} else {
			s.FailedTrades++
		}
		s.LastActivity = ev.Trade.FinishTime
		return nil
	}
	if _, err := c.e.store.Update(context.WithoutCancel(ctx), c.sid, update); err != nil {
		if !errors.Is(err, session.ErrTerminal) {
			slog.Error("could not record trade outcome", "session", c.sid, "trade", ev.Trade.UID, "err", err)
		}
	}
}

func (c *controller) trade(ctx context.Context, s *gobs.SessionState) error {
	if c.active == nil {
		if err := c.startLooper(ctx); err != nil {
			return err
		}
		slog.Info("session is trading", "session", c.sid, "strategy", c.getStrategy())
	}
	a := c.active

	ticker := time.NewTicker(c.e.opts.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case ev := <-a.events:
			c.record(ctx, ev)

		case <-a.done:
			c.drainEvents(ctx, a)
			c.active = nil
			return fmt.Errorf("trading scheduler has stopped unexpectedly")

		case <-ticker.C:
			c.e.publishReport(ctx, c.sid)

		case <-c.wakeCh:
			s, err := c.e.store.Load(ctx, c.sid)
			if err != nil {
				return err
			}
			if session.State(s.State) != session.Trading {
				// Scheduler is stopped, but kept as the active one so that the
				// next state can wait for the trades in flight.
				a.cancel(errStopTrading)
				return nil
			}
		}
	}
}

func (c *controller) pause(ctx context.Context) error {
	c.finishLooper(ctx)
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-c.wakeCh:
		return nil
	}
}

// flushWaiter waits for a wallet to be idle and then for the controller to
// record all trade events of that wallet, so that statistics are complete
// before the session is closed.
type flushWaiter struct {
	looper  *looper.Looper
	flushCh chan chan struct{}
}

func (w *flushWaiter) WaitIdle(ctx context.Context, index int) error {
	if err := w.looper.WaitIdle(ctx, index); err != nil {
		return err
	}
	ack := make(chan struct{})
	select {
	case w.flushCh <- ack:
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (c *controller) withdraw(ctx context.Context, s *gobs.SessionState) error {
	var idle sweeper.IdleWaiter
	var events chan *looper.Event
	var done chan struct{}
	flushCh := make(chan chan struct{})
	if a := c.active; a != nil {
		a.cancel(errStopTrading)
		idle = &flushWaiter{looper: a.looper, flushCh: flushCh}
		events, done = a.events, a.done
	}

	type result struct {
		report *sweeper.Report
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		report, err := c.e.sweeper.Sweep(ctx, c.sid, idle)
		resultCh <- result{report, err}
	}()

	// Trades in flight are recorded while the idle wallets are swept.
	for {
		select {
		case ev := <-events:
			c.record(ctx, ev)

		case ack := <-flushCh:
			if c.active != nil {
				c.drainEvents(ctx, c.active)
			}
			close(ack)

		case <-done:
			c.drainEvents(ctx, c.active)
			c.active = nil
			events, done = nil, nil

		case r := <-resultCh:
			c.finishLooper(ctx)
			if r.report != nil {
				c.e.lastSweep.Store(c.sid, r.report)
			}
			switch {
			case r.err == nil:
				return nil
			case errors.Is(r.err, sweeper.ErrPartialSweep), errors.Is(r.err, session.ErrTerminal):
				return nil
			}
			return r.err
		}
	}
}
