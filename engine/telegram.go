// Copyright (c) 2025 BVK Chaitanya

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bvk/volumebot/session"
	"github.com/bvk/volumebot/telegram"
	"github.com/visvasity/cli"
	"github.com/visvasity/topic"
)

// AddTelegramCommands registers the session commands with the telegram
// bot. Sessions are owned by the telegram user who created them.
func (e *Engine) AddTelegramCommands(ctx context.Context, tc *telegram.Client) error {
	userCmds := []struct {
		name, purpose string
		handler       telegram.CmdFunc
	}{
		{"new", "Creates a session: /new <token-mint> [slow|medium|fast]", e.newTelegramCmd},
		{"token", "Prints the market data of a token: /token <token-mint>", e.tokenTelegramCmd},
		{"check", "Checks the session deposit now: /check <session-id>", e.checkTelegramCmd},
		{"cancel", "Cancels a session waiting for its deposit: /cancel <session-id>", e.cancelTelegramCmd},
		{"strategy", "Changes the trading speed: /strategy <session-id> <slow|medium|fast>", e.strategyTelegramCmd},
		{"stats", "Prints live session stats: /stats <session-id>", e.statsTelegramCmd},
		{"pause", "Pauses trading: /pause <session-id>", e.pauseTelegramCmd},
		{"resume", "Resumes trading: /resume <session-id>", e.resumeTelegramCmd},
		{"withdraw", "Withdraws all funds: /withdraw <session-id> <address>", e.withdrawTelegramCmd},
		{"sessions", "Lists your sessions", e.sessionsTelegramCmd},
	}
	for _, c := range userCmds {
		if err := tc.AddCommand(ctx, c.name, c.purpose, c.handler); err != nil {
			return fmt.Errorf("could not add telegram command %q: %w", c.name, err)
		}
	}

	adminCmds := []struct {
		name, purpose string
		handler       telegram.CmdFunc
	}{
		{"adminstats", "Prints user and session counts", e.adminStatsTelegramCmd},
		{"sweepall", "Withdraws all active sessions into the admin address", e.sweepAllTelegramCmd},
		{"recover", "Retries the sweep of a failed session: /recover <session-id> <address>", e.recoverTelegramCmd},
	}
	for _, c := range adminCmds {
		if err := tc.AddAdminCommand(ctx, c.name, c.purpose, c.handler); err != nil {
			return fmt.Errorf("could not add telegram admin command %q: %w", c.name, err)
		}
	}
	return nil
}

// RelayReports forwards status reports to the session's chat, or to the
// bot owner for sessions created without one. Blocks till the context is
// canceled.
func (e *Engine) RelayReports(ctx context.Context, tc *telegram.Client) error {
	receiver, err := e.SubscribeReports()
	if err != nil {
		return err
	}
	defer receiver.Close()

	reportCh, err := topic.ReceiveCh(receiver)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case r, ok := <-reportCh:
			if !ok {
				return os.ErrClosed
			}
			if r.ChatID != 0 {
				if err := tc.SendTo(ctx, r.ChatID, r.String()); err != nil {
					slog.Warn("could not relay status report (ignored)", "session", r.SessionID, "err", err)
				}
				continue
			}
			if err := tc.SendMessage(ctx, r.Time, r.String()); err != nil {
				slog.Warn("could not relay status report to the owner (ignored)", "session", r.SessionID, "err", err)
			}
		}
	}
}

// ownedSession checks that the session belongs to the telegram user.
func (e *Engine) ownedSession(ctx context.Context, sid string) error {
	s, err := e.store.Load(ctx, sid)
	if err != nil {
		return err
	}
	if s.UserID != telegram.Sender(ctx) {
		return fmt.Errorf("session %q is not found: %w", sid, os.ErrNotExist)
	}
	return nil
}

func (e *Engine) newTelegramCmd(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: /new <token-mint> [slow|medium|fast]")
	}
	strategy := session.Medium
	if len(args) == 2 {
		v, err := parseStrategy(args[1])
		if err != nil {
			return err
		}
		strategy = v
	}
	s, err := e.CreateSession(ctx, telegram.Sender(ctx), args[0], strategy, telegram.ChatID(ctx))
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Session: %s\n", s.SessionID)
	if t := s.Token; t != nil {
		fmt.Fprintf(stdout, "Token: %s (%s)\n", t.Symbol, t.Name)
		fmt.Fprintf(stdout, "Price: $%s Market cap: $%s Liquidity: $%s\n", t.PriceUSD, t.MarketCapUSD.StringFixed(0), t.LiquidityUSD.StringFixed(0))
	}
	fmt.Fprintf(stdout, "Deposit at least %s SOL and the tokens to %s\n", e.MinDeposit(), s.DepositAddress)
	return nil
}

func (e *Engine) tokenTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /token <token-mint>")
	}
	info, err := e.TokenInfo(ctx, args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("token %s is not traded", args[0])
		}
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Token: %s (%s)\n", info.Symbol, info.Name)
	fmt.Fprintf(stdout, "Price: $%s\n", info.PriceUSD)
	fmt.Fprintf(stdout, "Market cap: $%s\n", info.MarketCapUSD.StringFixed(0))
	fmt.Fprintf(stdout, "Liquidity: $%s\n", info.LiquidityUSD.StringFixed(0))
	return nil
}

func (e *Engine) cancelTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /cancel <session-id>")
	}
	if err := e.ownedSession(ctx, args[0]); err != nil {
		return err
	}
	s, err := e.Cancel(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Session is %s", s.State)
	return nil
}

func (e *Engine) checkTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /check <session-id>")
	}
	if err := e.ownedSession(ctx, args[0]); err != nil {
		return err
	}
	result, b, err := e.CheckDeposit(ctx, args[0])
	if len(result) == 0 {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "%s", result)
	if b != nil {
		fmt.Fprintf(stdout, " (%s)", b)
	}
	if err != nil {
		fmt.Fprintf(stdout, ": %v", err)
	}
	return nil
}

func (e *Engine) strategyTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: /strategy <session-id> <slow|medium|fast>")
	}
	if err := e.ownedSession(ctx, args[0]); err != nil {
		return err
	}
	strategy, err := parseStrategy(args[1])
	if err != nil {
		return err
	}
	if err := e.ChangeStrategy(ctx, args[0], strategy); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Strategy is %s", strategy)
	return nil
}

func (e *Engine) statsTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /stats <session-id>")
	}
	if err := e.ownedSession(ctx, args[0]); err != nil {
		return err
	}
	stats, err := e.LiveStats(ctx, args[0])
	if err != nil {
		return err
	}
	r := &StatusReport{SessionID: stats.SessionID, State: stats.State, Diagnostic: stats.Diagnostic, Stats: stats}
	fmt.Fprint(cli.Stdout(ctx), r)
	return nil
}

func (e *Engine) pauseTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /pause <session-id>")
	}
	if err := e.ownedSession(ctx, args[0]); err != nil {
		return err
	}
	s, err := e.Pause(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Session is %s", s.State)
	return nil
}

func (e *Engine) resumeTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /resume <session-id>")
	}
	if err := e.ownedSession(ctx, args[0]); err != nil {
		return err
	}
	s, err := e.Resume(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Session is %s", s.State)
	return nil
}

func (e *Engine) withdrawTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: /withdraw <session-id> <address>")
	}
	if err := e.ownedSession(ctx, args[0]); err != nil {
		return err
	}
	if _, err := e.Withdraw(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Withdrawal to %s has started; a report is sent when it is complete", args[1])
	return nil
}

func (e *Engine) sessionsTelegramCmd(ctx context.Context, args []string) error {
	sessions, err := e.ListSessions(ctx, telegram.Sender(ctx))
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(sessions) == 0 {
		fmt.Fprint(stdout, "No sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(stdout, "%s %s %s\n", s.SessionID, s.State, s.Strategy)
	}
	return nil
}

func (e *Engine) adminStatsTelegramCmd(ctx context.Context, args []string) error {
	resp, err := e.AdminStats(ctx)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Users: %d\n", resp.TotalUsers)
	fmt.Fprintf(stdout, "Sessions: %d\n", resp.TotalSessions)
	fmt.Fprintf(stdout, "Active: %d\n", resp.ActiveSessions)
	fmt.Fprintf(stdout, "Running: %d\n", resp.RunningSessions)
	return nil
}

func (e *Engine) sweepAllTelegramCmd(ctx context.Context, args []string) error {
	resp, err := e.AdminSweepAll(ctx)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Attempted: %d\n", resp.Attempted)
	fmt.Fprintf(stdout, "Succeeded: %d\n", resp.Succeeded)
	fmt.Fprintf(stdout, "Failed: %d\n", resp.Failed)
	fmt.Fprintf(stdout, "Moved: %s base, %s asset\n", resp.MovedBase, resp.MovedAsset)
	for sid, diag := range resp.Failures {
		fmt.Fprintf(stdout, "%s: %s\n", sid, diag)
	}
	return nil
}

func (e *Engine) recoverTelegramCmd(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: /recover <session-id> <address>")
	}
	report, err := e.AdminRecover(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprint(cli.Stdout(ctx), report.String())
	return nil
}
