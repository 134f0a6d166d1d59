package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "feedsync",
		Usage:   "Sync microblogging timelines into a local database",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.SyncCommand(),
			cmd.UserCommand(),
			cmd.MigrateCommand(),
			cmd.OriginsCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
