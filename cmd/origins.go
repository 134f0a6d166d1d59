package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/origin"
)

// OriginsCommand lists the supported origin systems.
func OriginsCommand() *cli.Command {
	return &cli.Command{
		Name:   "origins",
		Usage:  "List supported origin systems",
		Action: runOrigins,
	}
}

func runOrigins(c *cli.Context) error {
	for _, name := range origin.Names() {
		o := origin.FromName(name)
		fmt.Printf("%-12s id=%d max_length=%d\n", o.Name, o.ID, o.MaxMessageLength)
	}
	return nil
}
