// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/bvk/volumebot/idgen"
	"github.com/visvasity/cli"
)

type IDGen struct {
	from  uint64
	count int
}

func (c *IDGen) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("this command takes two (session-id and wallet-index) arguments")
	}
	index, err := strconv.Atoi(args[1])
	if err != nil || index < 0 {
		return fmt.Errorf("wallet index must be a non-negative integer")
	}
	seed := args[0] + "/" + strconv.Itoa(index)
	for i := 0; i < c.count; i++ {
		offset := c.from + uint64(i)
		fmt.Printf("%d: %s\n", offset, idgen.New(seed, offset).NextID())
	}
	return nil
}

func (c *IDGen) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("idgen", flag.ContinueOnError)
	fset.Uint64Var(&c.from, "from", 0, "initial trade sequence number")
	fset.IntVar(&c.count, "count", 10, "number of ids")
	return "idgen", fset, cli.CmdFunc(c.run)
}

func (c *IDGen) Purpose() string {
	return "Prints the trade ids of a session wallet"
}
