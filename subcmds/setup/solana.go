// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/bvk/volumebot/jupiter"
	"github.com/bvk/volumebot/server"
	"github.com/visvasity/cli"
)

type Solana struct {
	dataDir     string
	skipTesting bool

	rpcURL       string
	websocketURL string
	swapURL      string
}

func (c *Solana) Purpose() string {
	return "Setup configures the Solana RPC and Jupiter swap endpoints"
}

func (c *Solana) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("solana", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.rpcURL, "rpc-url", jupiter.DefaultRPCURL, "Solana json-rpc endpoint")
	fset.StringVar(&c.websocketURL, "websocket-url", "", "Solana pubsub endpoint (derived from rpc-url when empty)")
	fset.StringVar(&c.swapURL, "swap-url", jupiter.DefaultSwapURL, "Jupiter swap api endpoint")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "solana", fset, cli.CmdFunc(c.run)
}

func (c *Solana) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	fpath, secrets, err := loadSecrets(c.dataDir)
	if err != nil {
		return err
	}
	secrets.Solana = &server.SolanaSecrets{
		RPCURL:       c.rpcURL,
		WebsocketURL: c.websocketURL,
		SwapURL:      c.swapURL,
	}

	if !c.skipTesting {
		opts := &jupiter.Options{
			RPCURL:       c.rpcURL,
			WebsocketURL: c.websocketURL,
			SwapURL:      c.swapURL,
			NoWebsocket:  true,
		}
		gw, err := jupiter.New(opts)
		if err != nil {
			return err
		}
		defer gw.Close()

		tctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		// Native mint always exists, so a balance lookup validates the endpoint.
		if _, err := gw.GetBalances(tctx, jupiter.NativeMint, jupiter.NativeMint); err != nil {
			return fmt.Errorf("could not query the rpc endpoint: %w", err)
		}
	}
	return saveSecrets(fpath, secrets)
}
