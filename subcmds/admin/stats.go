// Copyright (c) 2025 BVK Chaitanya

package admin

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Stats struct {
	cmdutil.ClientFlags
}

func (c *Stats) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("stats", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "stats", fset, cli.CmdFunc(c.run)
}

func (c *Stats) Purpose() string {
	return "Prints the number of users and sessions"
}

func (c *Stats) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	resp, err := cmdutil.Post[api.AdminStatsResponse](ctx, &c.ClientFlags, api.AdminStatsPath, &api.AdminStatsRequest{})
	if err != nil {
		return err
	}
	jsdata, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Printf("%s\n", jsdata)
	return nil
}
