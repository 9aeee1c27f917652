// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Stats struct {
	cmdutil.ClientFlags

	printJSON bool
}

func (c *Stats) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("stats", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.BoolVar(&c.printJSON, "json", false, "prints the stats in json format")
	return "stats", fset, cli.CmdFunc(c.run)
}

func (c *Stats) Purpose() string {
	return "Prints live statistics of a session"
}

func (c *Stats) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (session-id) argument")
	}
	req := &api.SessionStatsRequest{
		SessionID: args[0],
	}
	resp, err := cmdutil.Post[api.SessionStatsResponse](ctx, &c.ClientFlags, api.SessionStatsPath, req)
	if err != nil {
		return err
	}
	if c.printJSON {
		jsdata, _ := json.MarshalIndent(resp.Stats, "", "  ")
		fmt.Printf("%s\n", jsdata)
		return nil
	}

	s := resp.Stats
	fmt.Printf("Session %s (%s) is %s\n", s.SessionID, s.Strategy, s.State)
	if len(s.Diagnostic) != 0 {
		fmt.Printf("Diagnostic: %s\n", s.Diagnostic)
	}
	fmt.Printf("Trades: %d succeeded, %d failed, volume %s SOL\n", s.TradeCount, s.FailedTrades, s.Volume)
	fmt.Printf("Balances: %s SOL, %s tokens\n", s.TotalBase, s.TotalAsset)

	tw := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "Index\tAddress\tSOL\tTokens\tLast\tTrades\t\n")
	for _, w := range s.Wallets {
		stale := ""
		if w.Stale {
			stale = "(stale)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n", w.Index, w.Address, w.Base, w.Asset, w.LastDirection, w.TradeCount, stale)
	}
	tw.Flush()
	return nil
}
