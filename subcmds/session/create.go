// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Create struct {
	cmdutil.ClientFlags

	user     string
	strategy string
	chatID   int64
}

func (c *Create) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("create", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.user, "user", os.Getenv("USER"), "user id that owns the session")
	fset.StringVar(&c.strategy, "strategy", "medium", "trading speed (slow, medium or fast)")
	fset.Int64Var(&c.chatID, "chat-id", 0, "telegram chat id for the status reports")
	return "create", fset, cli.CmdFunc(c.run)
}

func (c *Create) Purpose() string {
	return "Creates a session and prints its deposit address"
}

func (c *Create) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (token mint address) argument")
	}
	req := &api.SessionCreateRequest{
		UserID:   c.user,
		Asset:    args[0],
		Strategy: c.strategy,
		ChatID:   c.chatID,
	}
	resp, err := cmdutil.Post[api.SessionCreateResponse](ctx, &c.ClientFlags, api.SessionCreatePath, req)
	if err != nil {
		return err
	}
	fmt.Printf("Session: %s\n", resp.SessionID)
	if t := resp.Token; t != nil {
		fmt.Printf("Token: %s (%s) price $%s, market cap $%s, liquidity $%s\n", t.Symbol, t.Name, t.PriceUSD, t.MarketCapUSD.StringFixed(0), t.LiquidityUSD.StringFixed(0))
	}
	fmt.Printf("Deposit address: %s\n", resp.DepositAddress)
	fmt.Printf("Minimum deposit: %s SOL (plus the tokens)\n", resp.MinDeposit)
	return nil
}
