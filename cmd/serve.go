package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/feedsync/internal/api"
	"github.com/feedsync/internal/jobqueue"
	"github.com/feedsync/pkg/models"
)

// ServeCommand starts the API server together with the job queue and
// its cron scheduler.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the feedsync API server and background sync workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	env, err := buildEnv(c)
	if err != nil {
		return err
	}

	queueCfg := jobqueue.DefaultQueueConfig()
	if env.cfg.Sync.Schedule != "" {
		queueCfg.Schedule = env.cfg.Sync.Schedule
	}
	if len(env.cfg.Sync.Timelines) > 0 {
		queueCfg.Timelines = queueCfg.Timelines[:0]
		for _, tl := range env.cfg.Sync.Timelines {
			queueCfg.Timelines = append(queueCfg.Timelines, models.TimelineType(tl))
		}
	}

	queue, err := jobqueue.NewJobQueue(env.dbURL, env.syncer, queueCfg)
	if err != nil {
		return fmt.Errorf("start job queue: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	defer queue.Stop(context.Background())

	port := c.Int("port")
	if port == 0 {
		port = env.cfg.Server.Port
	}
	fmt.Printf("Starting feedsync API server on port %d...\n", port)

	server := api.NewServer(port, env.storage, queue)
	return server.Start()
}
