// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Withdraw struct {
	cmdutil.ClientFlags
}

func (c *Withdraw) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("withdraw", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "withdraw", fset, cli.CmdFunc(c.run)
}

func (c *Withdraw) Purpose() string {
	return "Stops trading and moves all session funds to an address"
}

func (c *Withdraw) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("this command takes two (session-id, destination address) arguments")
	}
	req := &api.SessionWithdrawRequest{
		SessionID:   args[0],
		Destination: args[1],
	}
	resp, err := cmdutil.Post[api.SessionWithdrawResponse](ctx, &c.ClientFlags, api.SessionWithdrawPath, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", resp.State)
	return nil
}
