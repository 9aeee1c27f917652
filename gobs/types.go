// Copyright (c) 2025 BVK Chaitanya

package gobs

import (
	"time"

	"github.com/shopspring/decimal"
)

type KeyValue struct {
	Key   string
	Value []byte
}

type TelegramState struct {
	// UserChatIDMap maps a telegram user name to the private chat id.
	UserChatIDMap map[string]int64
}

type UserState struct {
	UserID string

	CreateTime time.Time

	SessionIDs []string
}

type SessionState struct {
	SessionID string
	UserID    string

	// Asset holds the token mint address.
	Asset string

	// Token is the market data of the asset when the session was created. It
	// is nil when the ledger cannot describe assets.
	Token *TokenState

	Strategy string

	State string

	// Diagnostic holds the most recent human readable error.
	Diagnostic string

	DepositAddress string

	CreateTime   time.Time
	LastActivity time.Time

	NumWallets int

	TradeCount   int64
	FailedTrades int64

	// Volume is the base currency notional of all successful trades.
	Volume decimal.Decimal

	// DepositBase and DepositAsset hold the deposit balances observed when
	// funding was detected. They are recorded before fan-out begins.
	DepositBase  decimal.Decimal
	DepositAsset decimal.Decimal

	FeeCollected decimal.Decimal
	FeeTxRef     string

	// Destination is set when the session enters the withdrawing state.
	Destination string

	ChatID int64
}

type TokenState struct {
	Symbol string
	Name   string

	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
	LiquidityUSD decimal.Decimal

	LookupTime time.Time
}

type SubWalletState struct {
	SessionID string
	Index     int
	Address   string

	// Base and Asset are cached balances from the last ledger read.
	Base  decimal.Decimal
	Asset decimal.Decimal

	TargetBase  decimal.Decimal
	TargetAsset decimal.Decimal

	// FundingTxRef is the funding transfer that is not known to be final.
	FundingTxRef string

	Funded bool
	Active bool

	LastDirection string
	NextSequence  int64

	BalanceTime time.Time
}

type TradeState struct {
	UID string

	SessionID   string
	WalletIndex int
	Sequence    int64

	Direction string

	Fraction decimal.Decimal
	Amount   decimal.Decimal

	// Volume holds the base currency notional for successful trades.
	Volume decimal.Decimal

	CreateTime time.Time
	FinishTime time.Time

	Outcome string
	TxRef   string

	Diagnostic string
}

type CustodyKey struct {
	SessionID string
	Index     int
	Address   string

	// Sealed holds the compact JWE serialization of the private key.
	Sealed string

	CreateTime time.Time
}
