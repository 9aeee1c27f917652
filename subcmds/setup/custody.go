// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bvk/volumebot/server"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type Custody struct {
	dataDir string
}

func (c *Custody) Purpose() string {
	return "Setup configures the passphrase that encrypts wallet keys"
}

func (c *Custody) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("custody", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	return "custody", fset, cli.CmdFunc(c.run)
}

func (c *Custody) Description() string {
	return `

Command "custody" saves the passphrase used to encrypt the generated
wallet keys into the secrets file. Passphrase is read from the terminal
twice and is never accepted as a flag.

Changing the passphrase of a data directory with existing sessions makes
their wallet keys unreadable.

`
}

func readPassphrase(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("standard input is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

func (c *Custody) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	fpath, secrets, err := loadSecrets(c.dataDir)
	if err != nil {
		return err
	}

	first, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	second, err := readPassphrase("Passphrase (again): ")
	if err != nil {
		return err
	}
	if !bytes.Equal(first, second) {
		return fmt.Errorf("passphrases do not match")
	}

	secrets.Custody = &server.CustodySecrets{Passphrase: string(first)}
	return saveSecrets(fpath, secrets)
}
