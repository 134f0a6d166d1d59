// Package jobqueue runs timeline syncs as River jobs backed by
// Postgres, so passes survive restarts and failed passes retry with
// backoff instead of being lost.
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/feedsync/pkg/models"
)

// Runner executes one sync pass; satisfied by syncer.Syncer.
type Runner interface {
	Run(ctx context.Context, timeline models.TimelineType) (*models.SyncRun, error)
}

// SyncJobArgs identifies one timeline sync job.
type SyncJobArgs struct {
	Timeline models.TimelineType `json:"timeline"`
}

func (SyncJobArgs) Kind() string { return "timeline_sync" }

// SyncWorker runs queued timeline syncs.
type SyncWorker struct {
	river.WorkerDefaults[SyncJobArgs]
	runner Runner
	config *QueueConfig
}

func (w *SyncWorker) Work(ctx context.Context, job *river.Job[SyncJobArgs]) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	run, err := w.runner.Run(ctx, job.Args.Timeline)
	if err != nil {
		return fmt.Errorf("sync %s: %w", job.Args.Timeline, err)
	}
	log.Info().Str("run", run.ID).Str("timeline", string(job.Args.Timeline)).
		Int("new", run.NewMsgs).Msg("jobqueue: sync job finished")
	return nil
}

// JobQueue manages the River client and the cron scheduler that feeds
// it.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue connects a pgx pool to databaseURL and registers the
// sync worker.
func NewJobQueue(databaseURL string, runner Runner, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &SyncWorker{runner: runner, config: config})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create river client: %w", err)
	}

	return &JobQueue{client: client, pool: pool, config: config}, nil
}

// Start launches the workers and the cron loop. Both stop when ctx is
// cancelled.
func (jq *JobQueue) Start(ctx context.Context) error {
	if err := jq.client.Start(ctx); err != nil {
		return err
	}
	go jq.scheduleLoop(ctx)
	return nil
}

func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// EnqueueSync queues one timeline sync immediately.
func (jq *JobQueue) EnqueueSync(ctx context.Context, timeline models.TimelineType) error {
	_, err := jq.client.Insert(ctx, SyncJobArgs{Timeline: timeline}, nil)
	if err != nil {
		return fmt.Errorf("queue sync job: %w", err)
	}
	return nil
}

// scheduleLoop checks the cron expression once a minute and enqueues
// the configured timelines on every due tick.
func (jq *JobQueue) scheduleLoop(ctx context.Context) {
	gron := gronx.New()
	if !gron.IsValid(jq.config.Schedule) {
		log.Error().Str("schedule", jq.config.Schedule).Msg("jobqueue: invalid cron expression, scheduler disabled")
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := gron.IsDue(jq.config.Schedule)
			if err != nil || !due {
				continue
			}
			for _, tl := range jq.config.Timelines {
				if err := jq.EnqueueSync(ctx, tl); err != nil {
					log.Error().Err(err).Str("timeline", string(tl)).Msg("jobqueue: enqueue failed")
				}
			}
		}
	}
}
