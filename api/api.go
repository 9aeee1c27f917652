// Copyright (c) 2025 BVK Chaitanya

// Package api defines the JSON messages exchanged with the volumebot
// service over HTTP.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletStats struct {
	Index   int
	Address string

	Base  decimal.Decimal
	Asset decimal.Decimal

	LastDirection string
	TradeCount    int64
	Active        bool

	// Stale is true when balances are cached values because the ledger could
	// not be reached.
	Stale bool
}

// TokenInfo is the market data of an asset when its session was created.
type TokenInfo struct {
	Symbol string
	Name   string

	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
	LiquidityUSD decimal.Decimal
}

type SessionStats struct {
	SessionID string
	UserID    string
	Asset     string
	Strategy  string
	State     string

	Token *TokenInfo

	Diagnostic string

	DepositAddress string
	DepositBase    decimal.Decimal
	DepositAsset   decimal.Decimal

	CreateTime   time.Time
	LastActivity time.Time

	TradeCount   int64
	FailedTrades int64
	Volume       decimal.Decimal
	FeeCollected decimal.Decimal

	Wallets []*WalletStats

	TotalBase  decimal.Decimal
	TotalAsset decimal.Decimal
}

type SessionItem struct {
	SessionID  string
	UserID     string
	Asset      string
	Strategy   string
	State      string
	CreateTime time.Time
}
