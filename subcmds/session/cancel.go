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

type Cancel struct {
	cmdutil.ClientFlags
}

func (c *Cancel) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("cancel", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "cancel", fset, cli.CmdFunc(c.run)
}

func (c *Cancel) Purpose() string {
	return "Cancels a session that is waiting for its deposit"
}

func (c *Cancel) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (session-id) argument")
	}
	req := &api.SessionCancelRequest{
		SessionID: args[0],
	}
	resp, err := cmdutil.Post[api.SessionCancelResponse](ctx, &c.ClientFlags, api.SessionCancelPath, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", resp.State, resp.Diagnostic)
	return nil
}
