// Copyright (c) 2025 BVK Chaitanya

package admin

import (
	"context"
	"flag"
	"fmt"
	"slices"
	"time"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type SweepAll struct {
	cmdutil.ClientFlags

	confirm bool
}

func (c *SweepAll) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("sweep-all", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.BoolVar(&c.confirm, "confirm", false, "must be true to withdraw every active session")
	return "sweep-all", fset, cli.CmdFunc(c.run)
}

func (c *SweepAll) Purpose() string {
	return "Withdraws all trading and paused sessions into the admin address"
}

func (c *SweepAll) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	if !c.confirm {
		return fmt.Errorf("sweep-all closes every active session; use -confirm flag to proceed")
	}
	// Sweeps wait for trades in flight, so use a generous timeout.
	if c.HTTPTimeout < 10*time.Minute {
		c.HTTPTimeout = 10 * time.Minute
	}
	resp, err := cmdutil.Post[api.AdminSweepAllResponse](ctx, &c.ClientFlags, api.AdminSweepAllPath, &api.AdminSweepAllRequest{})
	if err != nil {
		return err
	}
	fmt.Printf("Attempted: %d\n", resp.Attempted)
	fmt.Printf("Succeeded: %d\n", resp.Succeeded)
	fmt.Printf("Failed: %d\n", resp.Failed)
	fmt.Printf("Moved: %s SOL, %s tokens\n", resp.MovedBase, resp.MovedAsset)

	var sids []string
	for sid := range resp.Failures {
		sids = append(sids, sid)
	}
	slices.Sort(sids)
	for _, sid := range sids {
		fmt.Printf("%s: %s\n", sid, resp.Failures[sid])
	}
	return nil
}
