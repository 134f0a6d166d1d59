package jobqueue

import (
	"time"

	"github.com/riverqueue/river"

	"github.com/feedsync/pkg/models"
)

// QueueConfig holds the tunable parameters for the sync job queue.
type QueueConfig struct {
	// MaxWorkers bounds concurrent sync jobs. Keep it low: each job
	// holds a database connection for its whole pass.
	MaxWorkers int

	MaxRetries int
	JobTimeout time.Duration

	// Schedule is a cron expression deciding when timeline syncs are
	// enqueued. Timelines lists which ones each tick covers.
	Schedule  string
	Timelines []models.TimelineType
}

func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers: 4,
		MaxRetries: 5,
		JobTimeout: 5 * time.Minute,
		Schedule:   "*/15 * * * *",
		Timelines: []models.TimelineType{
			models.TimelineHome,
			models.TimelineMentions,
			models.TimelineDirect,
		},
	}
}

// DevelopmentQueueConfig fails fast and syncs often, for local runs.
func DevelopmentQueueConfig() *QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.MaxWorkers = 1
	cfg.MaxRetries = 2
	cfg.JobTimeout = time.Minute
	cfg.Schedule = "* * * * *"
	return cfg
}

// RiverQueueConfig converts the config to River's queue map.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
