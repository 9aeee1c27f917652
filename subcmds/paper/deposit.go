// Copyright (c) 2025 BVK Chaitanya

package paper

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type Deposit struct {
	cmdutil.ClientFlags

	asset  string
	base   string
	amount string
}

func (c *Deposit) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("deposit", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.asset, "asset", "", "token mint address of the asset")
	fset.StringVar(&c.base, "base", "0", "amount of SOL to deposit")
	fset.StringVar(&c.amount, "amount", "0", "amount of asset tokens to deposit")
	return "deposit", fset, cli.CmdFunc(c.run)
}

func (c *Deposit) Purpose() string {
	return "Adds simulated funds to an address when the service runs with -paper"
}

func (c *Deposit) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (address) argument")
	}
	base, err := decimal.NewFromString(c.base)
	if err != nil {
		return fmt.Errorf("invalid base amount %q: %w", c.base, err)
	}
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		return fmt.Errorf("invalid asset amount %q: %w", c.amount, err)
	}
	req := &api.PaperDepositRequest{
		Address: args[0],
		Asset:   c.asset,
		Base:    base,
		Amount:  amount,
	}
	resp, err := cmdutil.Post[api.PaperDepositResponse](ctx, &c.ClientFlags, api.PaperDepositPath, req)
	if err != nil {
		return err
	}
	fmt.Printf("base=%s asset=%s\n", resp.Base, resp.Asset)
	return nil
}
