// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/volumebot/engine"
	"github.com/bvk/volumebot/session"
	"github.com/visvasity/topic"
)

// relayAlerts sends an alert for every session that has failed. Repeated
// reports for the same session are suppressed for the alert freeze timeout.
func (s *Server) relayAlerts(ctx context.Context, a alerter) error {
	receiver, err := s.engine.SubscribeReports()
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
			if session.State(r.State) != session.Failed {
				continue
			}
			if err := s.alertOnFailure(ctx, a, r); err != nil {
				slog.Warn("could not send session failure alert", "session", r.SessionID, "err", err)
			}
		}
	}
}

func (s *Server) alertOnFailure(ctx context.Context, a alerter, r *engine.StatusReport) error {
	now := time.Now()
	key := fmt.Sprintf("alerts/session-failed/%s", r.SessionID)
	if deadline, ok := s.alertFreezeDeadlineMap[key]; ok {
		if now.Before(deadline) {
			return nil
		}
		delete(s.alertFreezeDeadlineMap, key)
	}

	title := fmt.Sprintf("Session %s has failed", r.SessionID)
	msg := fmt.Sprintf("User %s: %s", r.UserID, r.Diagnostic)
	s.alertFreezeDeadlineMap[key] = now.Add(s.opts.AlertFreezeTimeout)
	if err := a.SendAlert(ctx, r.Time, title, msg); err != nil {
		delete(s.alertFreezeDeadlineMap, key)
		return err
	}
	return nil
}
