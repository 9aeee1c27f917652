// Copyright (c) 2025 BVK Chaitanya

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/session"
	"github.com/visvasity/topic"
)

// StatusReport is published periodically for trading sessions and once
// when a session reaches a terminal state.
type StatusReport struct {
	Time time.Time

	SessionID string
	UserID    string
	ChatID    int64

	State      string
	Diagnostic string

	Stats *api.SessionStats
}

// IsTerminal returns true for the final report of a session.
func (r *StatusReport) IsTerminal() bool {
	return session.State(r.State).IsTerminal()
}

func (r *StatusReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s is %s", r.SessionID, r.State)
	if len(r.Diagnostic) != 0 {
		fmt.Fprintf(&sb, " (%s)", r.Diagnostic)
	}
	sb.WriteString("\n")
	if s := r.Stats; s != nil {
		fmt.Fprintf(&sb, "Strategy: %s\n", s.Strategy)
		fmt.Fprintf(&sb, "Trades: %d (failed %d)\n", s.TradeCount, s.FailedTrades)
		fmt.Fprintf(&sb, "Volume: %s\n", s.Volume.StringFixed(4))
		fmt.Fprintf(&sb, "Balance: %s base, %s asset in %d wallets\n", s.TotalBase.StringFixed(4), s.TotalAsset.StringFixed(2), len(s.Wallets))
		if !s.LastActivity.IsZero() {
			fmt.Fprintf(&sb, "Last Activity: %s ago\n", time.Since(s.LastActivity).Round(time.Second))
		}
	}
	return sb.String()
}

// SubscribeReports returns a receiver for the session status reports.
func (e *Engine) SubscribeReports() (*topic.Receiver[*StatusReport], error) {
	return topic.Subscribe(e.reports, 0, true)
}

func (e *Engine) publishReport(ctx context.Context, sid string) {
	stats, err := e.LiveStats(context.WithoutCancel(ctx), sid)
	if err != nil {
		slog.Warn("could not collect session stats for status report", "session", sid, "err", err)
		return
	}
	s, err := e.store.Load(context.WithoutCancel(ctx), sid)
	if err != nil {
		slog.Warn("could not load session for status report", "session", sid, "err", err)
		return
	}
	r := &StatusReport{
		Time:       time.Now(),
		SessionID:  sid,
		UserID:     s.UserID,
		ChatID:     s.ChatID,
		State:      s.State,
		Diagnostic: s.Diagnostic,
		Stats:      stats,
	}
	e.reports.Send(r)
}
