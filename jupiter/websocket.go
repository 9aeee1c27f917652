// Copyright (c) 2025 BVK Chaitanya

package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/volumebot/ledger"
	"github.com/gorilla/websocket"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type signatureNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// watch subscribes to the signature in the background so that the final
// status is known without polling.
func (g *Gateway) watch(ref ledger.TxRef) {
	if g.opts.NoWebsocket {
		return
	}
	g.cg.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, g.opts.SubscribeTimeout)
		defer cancel()

		status, err := g.subscribeSignature(ctx, ref)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("signature subscription has failed (ignored)", "ref", ref, "err", err)
			}
			return
		}
		g.statusMap.Store(ref, status)
	})
}

func (g *Gateway) subscribeSignature(ctx context.Context, ref ledger.TxRef) (ledger.TxStatus, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: g.opts.HTTPTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, g.opts.WebsocketURL, nil)
	if err != nil {
		return "", fmt.Errorf("could not dial websocket: %w", err)
	}
	defer conn.Close()

	request := &rpcRequest{
		JSONRPC: "2.0",
		ID:      g.nextID.Add(1),
		Method:  "signatureSubscribe",
		Params:  []any{string(ref), map[string]any{"commitment": g.opts.Commitment}},
	}
	if err := conn.WriteJSON(request); err != nil {
		return "", fmt.Errorf("could not write subscribe request: %w", err)
	}

	for {
		msg, err := readMessage(ctx, conn)
		if err != nil {
			return "", err
		}
		var n signatureNotification
		if err := json.Unmarshal(msg, &n); err != nil {
			slog.Warn("could not decode websocket message (ignored)", "err", err)
			continue
		}
		if n.Method != "signatureNotification" {
			continue
		}
		if !isNull(n.Params.Result.Value.Err) {
			return ledger.FAILED, nil
		}
		return ledger.CONFIRMED, nil
	}
}

func readMessage(ctx context.Context, conn *websocket.Conn) (json.RawMessage, error) {
	stopc := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		close(stopc)
	})

	_, msg, err := conn.ReadMessage()
	if !stop() {
		<-stopc
		conn.SetReadDeadline(time.Time{})
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read websocket message: %w", err)
	}
	return msg, nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(bytes.TrimSpace(v)) == "null"
}
