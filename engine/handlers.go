// Copyright (c) 2025 BVK Chaitanya

package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/httputil"
	"github.com/bvk/volumebot/ledger"
	"github.com/bvk/volumebot/session"
	"github.com/bvk/volumebot/sweeper"
)

func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrTerminal):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return httputil.StatusCode(err)
}

// HandlerMap returns the http handlers for the engine api.
func (e *Engine) HandlerMap() map[string]http.Handler {
	return map[string]http.Handler{
		api.SessionCreatePath:   httputil.PostJSONHandler(e.doCreate, statusCode),
		api.SessionCheckPath:    httputil.PostJSONHandler(e.doCheck, statusCode),
		api.SessionStrategyPath: httputil.PostJSONHandler(e.doStrategy, statusCode),
		api.SessionStatsPath:    httputil.PostJSONHandler(e.doStats, statusCode),
		api.SessionWithdrawPath: httputil.PostJSONHandler(e.doWithdraw, statusCode),
		api.SessionPausePath:    httputil.PostJSONHandler(e.doPause, statusCode),
		api.SessionResumePath:   httputil.PostJSONHandler(e.doResume, statusCode),
		api.SessionListPath:     httputil.PostJSONHandler(e.doList, statusCode),
		api.SessionCancelPath:   httputil.PostJSONHandler(e.doCancel, statusCode),
		api.AdminStatsPath:      httputil.PostJSONHandler(e.doAdminStats, statusCode),
		api.AdminSweepAllPath:   httputil.PostJSONHandler(e.doAdminSweepAll, statusCode),
		api.AdminRecoverPath:    httputil.PostJSONHandler(e.doAdminRecover, statusCode),
	}
}

func (e *Engine) doCreate(ctx context.Context, req *api.SessionCreateRequest) (*api.SessionCreateResponse, error) {
	strategy := session.Medium
	if len(req.Strategy) != 0 {
		v, err := parseStrategy(req.Strategy)
		if err != nil {
			return nil, err
		}
		strategy = v
	}
	s, err := e.CreateSession(ctx, req.UserID, req.Asset, strategy, req.ChatID)
	if err != nil {
		return nil, err
	}
	resp := &api.SessionCreateResponse{
		SessionID:      s.SessionID,
		DepositAddress: s.DepositAddress,
		MinDeposit:     e.MinDeposit(),
		Token:          tokenInfo(s.Token),
	}
	return resp, nil
}

func tokenInfo(t *gobs.TokenState) *api.TokenInfo {
	if t == nil {
		return nil
	}
	return &api.TokenInfo{
		Symbol:       t.Symbol,
		Name:         t.Name,
		PriceUSD:     t.PriceUSD,
		MarketCapUSD: t.MarketCapUSD,
		LiquidityUSD: t.LiquidityUSD,
	}
}

func (e *Engine) doCheck(ctx context.Context, req *api.SessionCheckRequest) (*api.SessionCheckResponse, error) {
	result, b, err := e.CheckDeposit(ctx, req.SessionID)
	if len(result) == 0 {
		return nil, err
	}
	resp := &api.SessionCheckResponse{Result: string(result)}
	if b != nil {
		resp.Base, resp.Asset = b.Base, b.Asset
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

func (e *Engine) doStrategy(ctx context.Context, req *api.SessionStrategyRequest) (*api.SessionStrategyResponse, error) {
	strategy, err := parseStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	if err := e.ChangeStrategy(ctx, req.SessionID, strategy); err != nil {
		return nil, err
	}
	return &api.SessionStrategyResponse{Strategy: string(strategy)}, nil
}

func (e *Engine) doStats(ctx context.Context, req *api.SessionStatsRequest) (*api.SessionStatsResponse, error) {
	stats, err := e.LiveStats(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &api.SessionStatsResponse{Stats: stats}, nil
}

func (e *Engine) doWithdraw(ctx context.Context, req *api.SessionWithdrawRequest) (*api.SessionWithdrawResponse, error) {
	s, err := e.Withdraw(ctx, req.SessionID, req.Destination)
	if err != nil {
		return nil, err
	}
	return &api.SessionWithdrawResponse{State: s.State}, nil
}

func (e *Engine) doPause(ctx context.Context, req *api.SessionPauseRequest) (*api.SessionPauseResponse, error) {
	s, err := e.Pause(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &api.SessionPauseResponse{State: s.State}, nil
}

func (e *Engine) doCancel(ctx context.Context, req *api.SessionCancelRequest) (*api.SessionCancelResponse, error) {
	s, err := e.Cancel(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &api.SessionCancelResponse{State: s.State, Diagnostic: s.Diagnostic}, nil
}

func (e *Engine) doResume(ctx context.Context, req *api.SessionResumeRequest) (*api.SessionResumeResponse, error) {
	s, err := e.Resume(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &api.SessionResumeResponse{State: s.State}, nil
}

func (e *Engine) doList(ctx context.Context, req *api.SessionListRequest) (*api.SessionListResponse, error) {
	sessions, err := e.ListSessions(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	resp := new(api.SessionListResponse)
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, &api.SessionItem{
			SessionID:  s.SessionID,
			UserID:     s.UserID,
			Asset:      s.Asset,
			Strategy:   s.Strategy,
			State:      s.State,
			CreateTime: s.CreateTime,
		})
	}
	return resp, nil
}

func (e *Engine) doAdminStats(ctx context.Context, _ *api.AdminStatsRequest) (*api.AdminStatsResponse, error) {
	return e.AdminStats(ctx)
}

func (e *Engine) doAdminSweepAll(ctx context.Context, _ *api.AdminSweepAllRequest) (*api.AdminSweepAllResponse, error) {
	return e.AdminSweepAll(ctx)
}

func (e *Engine) doAdminRecover(ctx context.Context, req *api.AdminRecoverRequest) (*api.AdminRecoverResponse, error) {
	report, err := e.AdminRecover(ctx, req.SessionID, req.Destination)
	if err != nil {
		return nil, err
	}
	return recoverResponse(report), nil
}

func recoverResponse(r *sweeper.Report) *api.AdminRecoverResponse {
	return &api.AdminRecoverResponse{
		OK:         r.OK(),
		MovedBase:  r.MovedBase,
		MovedAsset: r.MovedAsset,
		Report:     r.String(),
	}
}
