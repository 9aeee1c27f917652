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

type Pause struct {
	cmdutil.ClientFlags
}

func (c *Pause) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("pause", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "pause", fset, cli.CmdFunc(c.run)
}

func (c *Pause) Purpose() string {
	return "Pauses trading in a session"
}

func (c *Pause) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (session-id) argument")
	}
	req := &api.SessionPauseRequest{
		SessionID: args[0],
	}
	resp, err := cmdutil.Post[api.SessionPauseResponse](ctx, &c.ClientFlags, api.SessionPausePath, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", resp.State)
	return nil
}
