// Copyright (c) 2025 BVK Chaitanya

package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bvk/volumebot/ledger"
	"github.com/shopspring/decimal"
)

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// quote fetches the best route for swapping amount units of the input mint.
func (g *Gateway) quote(ctx context.Context, inputMint, outputMint string, amount uint64) (json.RawMessage, error) {
	values := make(url.Values)
	values.Set("inputMint", inputMint)
	values.Set("outputMint", outputMint)
	values.Set("amount", strconv.FormatUint(amount, 10))
	values.Set("slippageBps", strconv.Itoa(g.opts.SlippageBps))

	req, err := http.NewRequest(http.MethodGet, g.opts.SwapURL+"/quote?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrPermanent, err)
	}
	data, err := g.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not get swap quote: %w", err)
	}
	var check struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &check); err != nil {
		return nil, fmt.Errorf("%w: could not decode swap quote: %w", ledger.ErrTransient, err)
	}
	if len(check.Error) != 0 {
		return nil, fmt.Errorf("%w: swap quote has failed: %s", ledger.ErrPermanent, check.Error)
	}
	return json.RawMessage(data), nil
}

// swapTransaction asks the aggregator for an unsigned transaction that
// executes the quote for the user.
func (g *Gateway) swapTransaction(ctx context.Context, quote json.RawMessage, user string) ([]byte, error) {
	request := &swapRequest{
		QuoteResponse:           quote,
		UserPublicKey:           user,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, g.opts.SwapURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := g.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not get swap transaction: %w", err)
	}
	var resp swapResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: could not decode swap response: %w", ledger.ErrTransient, err)
	}
	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil || len(tx) == 0 {
		return nil, fmt.Errorf("%w: invalid swap transaction encoding", ledger.ErrTransient)
	}
	return tx, nil
}

// SubmitSwap swaps between SOL and the asset through the aggregator. For
// SELL the amount is in asset units and for BUY it is in SOL.
func (g *Gateway) SubmitSwap(ctx context.Context, signer ledger.Signer, asset string, dir ledger.Direction, amount decimal.Decimal) (ledger.TxRef, error) {
	if err := dir.Check(); err != nil {
		return "", fmt.Errorf("%w: %w", ledger.ErrPermanent, err)
	}
	if _, err := parsePublicKey(asset); err != nil {
		return "", err
	}

	inputMint, outputMint := NativeMint, asset
	if dir == ledger.SELL {
		inputMint, outputMint = asset, NativeMint
	}
	decimals, err := g.decimals(ctx, inputMint)
	if err != nil {
		return "", err
	}
	units, err := toUnits(amount, decimals)
	if err != nil {
		return "", err
	}

	quote, err := g.quote(ctx, inputMint, outputMint, units)
	if err != nil {
		return "", err
	}
	data, err := g.swapTransaction(ctx, quote, signer.Address())
	if err != nil {
		return "", err
	}
	tx, err := decodeTransaction(data)
	if err != nil {
		return "", err
	}
	return g.signAndSend(ctx, signer, tx)
}
