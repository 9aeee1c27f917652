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

type Resume struct {
	cmdutil.ClientFlags
}

func (c *Resume) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("resume", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "resume", fset, cli.CmdFunc(c.run)
}

func (c *Resume) Purpose() string {
	return "Resumes trading in a paused session"
}

func (c *Resume) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (session-id) argument")
	}
	req := &api.SessionResumeRequest{
		SessionID: args[0],
	}
	resp, err := cmdutil.Post[api.SessionResumeResponse](ctx, &c.ClientFlags, api.SessionResumePath, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", resp.State)
	return nil
}
