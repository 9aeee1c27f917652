// Copyright (c) 2025 BVK Chaitanya

package session

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bvk/volumebot/api"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type List struct {
	cmdutil.ClientFlags

	user string
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.user, "user", "", "when non-empty, lists only the sessions of this user")
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) Purpose() string {
	return "Prints the sessions"
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	req := &api.SessionListRequest{
		UserID: c.user,
	}
	resp, err := cmdutil.Post[api.SessionListResponse](ctx, &c.ClientFlags, api.SessionListPath, req)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "Session\tUser\tState\tStrategy\tAsset\tCreated\t\n")
	for _, s := range resp.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", s.SessionID, s.UserID, s.State, s.Strategy, s.Asset, s.CreateTime.Local().Format(time.DateTime))
	}
	tw.Flush()
	return nil
}
