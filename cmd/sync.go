package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/pkg/models"
)

// SyncCommand runs one sync pass in the foreground.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one timeline sync pass and print its counters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "timeline",
				Aliases: []string{"t"},
				Usage:   "Timeline to sync (home, mentions, direct, favorites)",
				Value:   string(models.TimelineHome),
			},
		},
		Action: runSync,
	}
}

func runSync(c *cli.Context) error {
	env, err := buildEnv(c)
	if err != nil {
		return err
	}

	timeline := models.TimelineType(c.String("timeline"))
	run, err := env.syncer.Run(context.Background(), timeline)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.Timeline)
	fmt.Printf("  downloaded: %d\n", run.Downloaded)
	fmt.Printf("  new:        %d\n", run.NewMsgs)
	fmt.Printf("  replies:    %d\n", run.NewReplies)
	fmt.Printf("  mentions:   %d\n", run.NewMention)
	fmt.Printf("  skipped:    %d\n", run.Skipped)
	fmt.Printf("  failed:     %d\n", run.Failed)
	return nil
}

// UserCommand fetches and merges one user record.
func UserCommand() *cli.Command {
	return &cli.Command{
		Name:      "user",
		Usage:     "Fetch one user by name and merge their record",
		ArgsUsage: "USERNAME",
		Action:    runUser,
	}
}

func runUser(c *cli.Context) error {
	username := c.Args().First()
	if username == "" {
		return fmt.Errorf("username argument is required")
	}

	env, err := buildEnv(c)
	if err != nil {
		return err
	}

	res, err := env.syncer.SyncUser(context.Background(), username)
	if err != nil {
		return err
	}
	if !res.Stored() {
		return fmt.Errorf("user %s not stored: %s", username, res.Reason)
	}
	fmt.Printf("Stored user %s as id %d\n", username, res.LocalID)
	return nil
}
