// Copyright (c) 2025 BVK Chaitanya

package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/bvk/volumebot/ledger"
	"github.com/shopspring/decimal"
)

type tokenPair struct {
	PriceUSD  decimal.Decimal `json:"priceUsd"`
	FDV       decimal.Decimal `json:"fdv"`
	MarketCap decimal.Decimal `json:"marketCap"`
	Liquidity struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"liquidity"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
}

type tokenPairs struct {
	Pairs []*tokenPair `json:"pairs"`
}

var _ ledger.TokenLookup = &Gateway{}

// GetTokenInfo returns the market data of the asset from its most liquid
// trading pair. Returns os.ErrNotExist when the asset has no pairs.
func (g *Gateway) GetTokenInfo(ctx context.Context, asset string) (*ledger.TokenInfo, error) {
	if _, err := parsePublicKey(asset); err != nil {
		return nil, fmt.Errorf("%w: %w", os.ErrNotExist, err)
	}
	req, err := http.NewRequest(http.MethodGet, g.opts.TokenInfoURL+"/"+url.PathEscape(asset), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrPermanent, err)
	}
	data, err := g.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not get token info: %w", err)
	}
	var resp tokenPairs
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: could not decode token info: %w", ledger.ErrTransient, err)
	}

	var best *tokenPair
	for _, p := range resp.Pairs {
		if p == nil || p.BaseToken.Address != asset {
			continue
		}
		if best == nil || p.Liquidity.USD.GreaterThan(best.Liquidity.USD) {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("asset %s has no trading pairs: %w", asset, os.ErrNotExist)
	}

	info := &ledger.TokenInfo{
		Symbol:       best.BaseToken.Symbol,
		Name:         best.BaseToken.Name,
		PriceUSD:     best.PriceUSD,
		MarketCapUSD: best.MarketCap,
		LiquidityUSD: best.Liquidity.USD,
	}
	if info.MarketCapUSD.IsZero() {
		info.MarketCapUSD = best.FDV
	}
	return info, nil
}
