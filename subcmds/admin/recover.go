// Copyright (c) 2025 BVK Chaitanya

package admin

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Recover struct {
	cmdutil.ClientFlags
}

func (c *Recover) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("recover", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "recover", fset, cli.CmdFunc(c.run)
}

func (c *Recover) Purpose() string {
	return "Moves the funds left in a failed session to an address"
}

func (c *Recover) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("this command takes two (session-id, destination address) arguments")
	}
	req := &api.AdminRecoverRequest{
		SessionID:   args[0],
		Destination: args[1],
	}
	resp, err := cmdutil.Post[api.AdminRecoverResponse](ctx, &c.ClientFlags, api.AdminRecoverPath, req)
	if err != nil {
		return err
	}
	fmt.Print(resp.Report)
	if !resp.OK {
		return fmt.Errorf("some wallets could not be recovered")
	}
	return nil
}
