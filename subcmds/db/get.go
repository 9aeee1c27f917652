// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/bvk/volumebot/gobs"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"
)

type Get struct {
	cmdutil.DBFlags

	valueType string
}

func (c *Get) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("get", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.valueType, "value-type", "", "gob type name for the value (guessed from the key when empty)")
	return "get", fset, cli.CmdFunc(c.run)
}

func (c *Get) Purpose() string {
	return "Prints the value of a key in the database"
}

func (c *Get) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (key) argument")
	}
	key := args[0]

	typename := c.valueType
	if len(typename) == 0 {
		typename, _ = KeyTypeName(key)
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	get := func(ctx context.Context, r kv.Reader) error {
		v, err := r.Get(ctx, key)
		if err != nil {
			return err
		}
		if len(typename) == 0 {
			data, err := io.ReadAll(v)
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", data)
			return nil
		}
		value, err := gobs.NewByTypename(typename)
		if err != nil {
			return err
		}
		if err := gob.NewDecoder(v).Decode(value); err != nil {
			return fmt.Errorf("could not gob-decode value for key %q: %w", key, err)
		}
		data, _ := json.MarshalIndent(value, "", "  ")
		fmt.Printf("%s\n", data)
		return nil
	}
	return kv.WithReader(ctx, db, get)
}
