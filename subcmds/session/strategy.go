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

type Strategy struct {
	cmdutil.ClientFlags
}

func (c *Strategy) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("strategy", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "strategy", fset, cli.CmdFunc(c.run)
}

func (c *Strategy) Purpose() string {
	return "Changes the trading speed of a session"
}

func (c *Strategy) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("this command takes two (session-id, slow|medium|fast) arguments")
	}
	req := &api.SessionStrategyRequest{
		SessionID: args[0],
		Strategy:  args[1],
	}
	resp, err := cmdutil.Post[api.SessionStrategyResponse](ctx, &c.ClientFlags, api.SessionStrategyPath, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", resp.Strategy)
	return nil
}
