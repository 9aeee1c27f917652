// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"github.com/shopspring/decimal"
)

const (
	SessionCreatePath   = "/volumebot/session/create"
	SessionCheckPath    = "/volumebot/session/check-deposit"
	SessionStrategyPath = "/volumebot/session/strategy"
	SessionStatsPath    = "/volumebot/session/stats"
	SessionWithdrawPath = "/volumebot/session/withdraw"
	SessionPausePath    = "/volumebot/session/pause"
	SessionResumePath   = "/volumebot/session/resume"
	SessionListPath     = "/volumebot/session/list"
	SessionCancelPath   = "/volumebot/session/cancel"
)

type SessionCreateRequest struct {
	UserID   string
	Asset    string
	Strategy string

	// ChatID is an optional telegram chat for status reports.
	ChatID int64
}

type SessionCreateResponse struct {
	SessionID      string
	DepositAddress string

	// MinDeposit is the minimum base currency deposit.
	MinDeposit decimal.Decimal

	// Token is nil when the market data could not be looked up.
	Token *TokenInfo
}

type SessionCheckRequest struct {
	SessionID string
}

type SessionCheckResponse struct {
	// Result is one of InsufficientFunds, Ready or GatewayUnavailable.
	Result string

	Base  decimal.Decimal
	Asset decimal.Decimal

	Error string
}

type SessionStrategyRequest struct {
	SessionID string
	Strategy  string
}

type SessionStrategyResponse struct {
	Strategy string
}

type SessionStatsRequest struct {
	SessionID string
}

type SessionStatsResponse struct {
	Stats *SessionStats
}

type SessionWithdrawRequest struct {
	SessionID   string
	Destination string
}

type SessionWithdrawResponse struct {
	State string
}

type SessionPauseRequest struct {
	SessionID string
}

type SessionPauseResponse struct {
	State string
}

type SessionResumeRequest struct {
	SessionID string
}

type SessionResumeResponse struct {
	State string
}

type SessionCancelRequest struct {
	SessionID string
}

type SessionCancelResponse struct {
	State      string
	Diagnostic string
}

type SessionListRequest struct {
	// UserID when non-empty limits the result to sessions of the user.
	UserID string
}

type SessionListResponse struct {
	Sessions []*SessionItem
}
