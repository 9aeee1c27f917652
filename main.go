// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/volumebot/subcmds"
	"github.com/bvk/volumebot/subcmds/admin"
	"github.com/bvk/volumebot/subcmds/db"
	"github.com/bvk/volumebot/subcmds/paper"
	"github.com/bvk/volumebot/subcmds/session"
	"github.com/bvk/volumebot/subcmds/setup"
	"github.com/visvasity/cli"
)

func main() {
	sessionCmds := []cli.Command{
		new(session.Create),
		new(session.Check),
		new(session.Strategy),
		new(session.Stats),
		new(session.Pause),
		new(session.Resume),
		new(session.Cancel),
		new(session.Withdraw),
		new(session.List),
	}

	adminCmds := []cli.Command{
		new(admin.Stats),
		new(admin.SweepAll),
		new(admin.Recover),
	}

	dbCmds := []cli.Command{
		new(db.Get),
		new(db.List),
		new(db.Backup),
		new(db.Restore),
	}

	setupCmds := []cli.Command{
		new(setup.Custody),
		new(setup.Solana),
		new(setup.Telegram),
		new(setup.PushOver),
	}

	paperCmds := []cli.Command{
		new(paper.Deposit),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.IDGen),
		cli.NewGroup("session", "Create and control volume sessions", sessionCmds...),
		cli.NewGroup("admin", "Operator commands over all sessions", adminCmds...),
		cli.NewGroup("db", "View the database directly", dbCmds...),
		cli.NewGroup("setup", "Configure secrets and service endpoints", setupCmds...),
		cli.NewGroup("paper", "Manipulate the paper ledger of a paper-mode server", paperCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
