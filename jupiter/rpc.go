// Copyright (c) 2025 BVK Chaitanya

package jupiter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bvk/volumebot/ledger"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"
)

// limitedClient is the json-rpc transport of the solana rpc client. Every
// call waits for the gateway's rate limiter, which is shared with the
// aggregator requests, and returns errors classified into ledger error
// kinds.
type limitedClient struct {
	client  jsonrpc.RPCClient
	limiter *rate.Limiter
}

var _ rpc.JSONRPCClient = &limitedClient{}

func newLimitedClient(endpoint string, client *http.Client, limiter *rate.Limiter) *limitedClient {
	opts := &jsonrpc.RPCClientOpts{HTTPClient: client}
	return &limitedClient{
		client:  jsonrpc.NewClientWithOpts(endpoint, opts),
		limiter: limiter,
	}
}

func (c *limitedClient) CallForInto(ctx context.Context, out any, method string, params []any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.client.CallForInto(ctx, out, method, params); err != nil {
		return fmt.Errorf("%s: %w", method, classify(ctx, method, err))
	}
	return nil
}

func (c *limitedClient) CallWithCallback(ctx context.Context, method string, params []any, callback func(*http.Request, *http.Response) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.client.CallWithCallback(ctx, method, params, callback); err != nil {
		return fmt.Errorf("%s: %w", method, classify(ctx, method, err))
	}
	return nil
}

func (c *limitedClient) CallBatch(ctx context.Context, requests jsonrpc.RPCRequests) (jsonrpc.RPCResponses, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resps, err := c.client.CallBatch(ctx, requests)
	if err != nil {
		return nil, classify(ctx, "batch", err)
	}
	return resps, nil
}

func (c *limitedClient) Close() error {
	return c.client.Close()
}

// classify wraps an rpc client error with the ledger error kind.
func classify(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	var rerr *jsonrpc.RPCError
	if errors.As(err, &rerr) {
		slog.Warn("rpc method has failed", "method", method, "code", rerr.Code, "message", rerr.Message)
		msg := strings.ToLower(rerr.Message)
		switch {
		case strings.Contains(msg, "insufficient"):
			return fmt.Errorf("%w: rpc error %d: %s", ledger.ErrInsufficientFunds, rerr.Code, rerr.Message)
		case strings.Contains(msg, "blockhash not found"):
			return fmt.Errorf("%w: rpc error %d: %s", ledger.ErrTransient, rerr.Code, rerr.Message)
		}
		switch rerr.Code {
		case -32004, -32005, -32007, -32014, -32016, -32603:
			// Node is behind, slot was skipped, or an internal error.
			return fmt.Errorf("%w: rpc error %d: %s", ledger.ErrTransient, rerr.Code, rerr.Message)
		}
		return fmt.Errorf("%w: rpc error %d: %s", ledger.ErrPermanent, rerr.Code, rerr.Message)
	}

	var herr *jsonrpc.HTTPError
	if errors.As(err, &herr) {
		slog.Warn("rpc request has failed with unexpected status", "method", method, "status", herr.Code)
		return httpError(herr.Code, []byte(herr.Error()))
	}

	// Network failures and undecodable responses.
	slog.Warn("rpc request has failed", "method", method, "err", err)
	return fmt.Errorf("%w: %w", ledger.ErrTransient, err)
}

// httpError converts an unexpected http status into a ledger error.
func httpError(status int, body []byte) error {
	err := fmt.Errorf("http status %d: %s", status, bytes.TrimSpace(body))
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: %w", ledger.ErrTransient, err)
	}
	return fmt.Errorf("%w: %w", ledger.ErrPermanent, err)
}

// do sends an http request after waiting for the rate limiter and returns
// the response body for a 200 status.
func (g *Gateway) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		slog.Warn("http request has failed", "url", req.URL.Redacted(), "err", err)
		return nil, fmt.Errorf("%w: %w", ledger.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read response body: %w", ledger.ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("http request has failed with unexpected status", "url", req.URL.Redacted(), "status", resp.StatusCode)
		return nil, httpError(resp.StatusCode, data)
	}
	return data, nil
}
