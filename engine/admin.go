// Copyright (c) 2025 BVK Chaitanya

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/session"
	"github.com/bvk/volumebot/sweeper"
)

// AdminStats returns the user and session counts.
func (e *Engine) AdminStats(ctx context.Context) (*api.AdminStatsResponse, error) {
	nusers, err := e.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not count users: %w", err)
	}
	resp := &api.AdminStatsResponse{
		TotalUsers:      nusers,
		RunningSessions: e.registry.Len(),
	}
	count := func(_ context.Context, s *gobs.SessionState) error {
		resp.TotalSessions++
		if session.State(s.State).IsActive() {
			resp.ActiveSessions++
		}
		return nil
	}
	if err := e.store.Scan(ctx, count); err != nil {
		return nil, fmt.Errorf("could not scan sessions: %w", err)
	}
	return resp, nil
}

// AdminSweepAll withdraws every trading or paused session into the admin
// address concurrently and waits for all of them to finish.
func (e *Engine) AdminSweepAll(ctx context.Context) (*api.AdminSweepAllResponse, error) {
	if len(e.opts.AdminAddress) == 0 {
		return nil, fmt.Errorf("admin address is not configured: %w", os.ErrInvalid)
	}

	var sids []string
	collect := func(_ context.Context, s *gobs.SessionState) error {
		if session.State(s.State).IsActive() {
			sids = append(sids, s.SessionID)
		}
		return nil
	}
	if err := e.store.Scan(ctx, collect); err != nil {
		return nil, fmt.Errorf("could not scan sessions: %w", err)
	}

	var mu sync.Mutex
	resp := &api.AdminSweepAllResponse{
		Failures: make(map[string]string),
	}

	var wg sync.WaitGroup
	for _, sid := range sids {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := e.sweepSession(ctx, sid, e.opts.AdminAddress)

			mu.Lock()
			defer mu.Unlock()

			resp.Attempted++
			if err != nil {
				resp.Failed++
				resp.Failures[sid] = err.Error()
			} else {
				resp.Succeeded++
			}
			if r, ok := e.lastSweep.Load(sid); ok {
				resp.MovedBase = resp.MovedBase.Add(r.MovedBase)
				resp.MovedAsset = resp.MovedAsset.Add(r.MovedAsset)
			}
		}()
	}
	wg.Wait()

	slog.Info("admin sweep is complete", "attempted", resp.Attempted, "succeeded", resp.Succeeded, "failed", resp.Failed, "base", resp.MovedBase, "asset", resp.MovedAsset)
	return resp, nil
}

// sweepSession withdraws one session and waits till its controller has
// finished. Returns nil only if the session is closed.
func (e *Engine) sweepSession(ctx context.Context, sid, destination string) error {
	e.lastSweep.Delete(sid)
	s, err := e.store.Transition(ctx, sid, session.Withdrawing, func(s *gobs.SessionState) error {
		s.Destination = destination
		return nil
	})
	if err != nil {
		return err
	}

	c, j, err := e.startSession(s)
	if err != nil {
		return err
	}
	c.wake()
	if err := j.Wait(ctx); err != nil {
		return err
	}

	s, err = e.store.Load(ctx, sid)
	if err != nil {
		return err
	}
	if state := session.State(s.State); state != session.Closed {
		return fmt.Errorf("session is %s: %s", state, s.Diagnostic)
	}
	return nil
}

// AdminRecover retries the consolidation of a failed session's wallets into
// the destination. Session state is not changed.
func (e *Engine) AdminRecover(ctx context.Context, sid, destination string) (*sweeper.Report, error) {
	return e.sweeper.Recover(ctx, sid, destination)
}
