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

type Check struct {
	cmdutil.ClientFlags
}

func (c *Check) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("check-deposit", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "check-deposit", fset, cli.CmdFunc(c.run)
}

func (c *Check) Purpose() string {
	return "Checks the deposit of a session immediately"
}

func (c *Check) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (session-id) argument")
	}
	req := &api.SessionCheckRequest{
		SessionID: args[0],
	}
	resp, err := cmdutil.Post[api.SessionCheckResponse](ctx, &c.ClientFlags, api.SessionCheckPath, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s base=%s asset=%s\n", resp.Result, resp.Base, resp.Asset)
	if len(resp.Error) != 0 {
		fmt.Printf("error: %s\n", resp.Error)
	}
	return nil
}
