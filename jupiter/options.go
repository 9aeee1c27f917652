// Copyright (c) 2025 BVK Chaitanya

package jupiter

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRPCURL  = "https://api.mainnet-beta.solana.com"
	DefaultSwapURL = "https://quote-api.jup.ag/v6"

	DefaultTokenInfoURL = "https://api.dexscreener.com/latest/dex/tokens"

	// NativeMint is the wrapped SOL mint used as the swap counterpart.
	NativeMint = "So11111111111111111111111111111111111111112"
)

type Options struct {
	// RPCURL is the Solana json-rpc endpoint.
	RPCURL string

	// WebsocketURL is the Solana pubsub endpoint. Derived from the RPCURL when
	// empty.
	WebsocketURL string

	// SwapURL is the Jupiter aggregator api base url.
	SwapURL string

	// TokenInfoURL is the DexScreener tokens api used for the asset market
	// data.
	TokenInfoURL string

	// SlippageBps is the maximum slippage allowed for a swap.
	SlippageBps int

	// RequestsPerSecond limits the rate of http requests to the rpc and swap
	// endpoints.
	RequestsPerSecond float64

	// HTTPTimeout is the timeout for a single http request.
	HTTPTimeout time.Duration

	// Commitment is the commitment level used for queries and confirmations.
	Commitment string

	// NoWebsocket disables the signature subscriptions; transaction status is
	// then found only by polling.
	NoWebsocket bool

	// SubscribeTimeout limits the lifetime of a signature subscription.
	SubscribeTimeout time.Duration
}

func (v *Options) setDefaults() {
	if len(v.RPCURL) == 0 {
		v.RPCURL = DefaultRPCURL
	}
	if len(v.WebsocketURL) == 0 {
		v.WebsocketURL = websocketURL(v.RPCURL)
	}
	if len(v.SwapURL) == 0 {
		v.SwapURL = DefaultSwapURL
	}
	if len(v.TokenInfoURL) == 0 {
		v.TokenInfoURL = DefaultTokenInfoURL
	}
	if v.SlippageBps == 0 {
		v.SlippageBps = 100
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 5
	}
	if v.HTTPTimeout == 0 {
		v.HTTPTimeout = 30 * time.Second
	}
	if len(v.Commitment) == 0 {
		v.Commitment = "confirmed"
	}
	if v.SubscribeTimeout == 0 {
		v.SubscribeTimeout = 2 * time.Minute
	}
}

func (v *Options) Check() error {
	for _, u := range []string{v.RPCURL, v.WebsocketURL, v.SwapURL, v.TokenInfoURL} {
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("invalid url %q: %w", u, err)
		}
	}
	if v.SlippageBps < 0 || v.SlippageBps > 10000 {
		return fmt.Errorf("slippage bps must be within [0-10000]")
	}
	if v.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	switch v.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment level %q", v.Commitment)
	}
	return nil
}

func websocketURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	}
	return rpcURL
}
