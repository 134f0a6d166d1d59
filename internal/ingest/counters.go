package ingest

import "github.com/feedsync/pkg/models"

// Counters aggregates what one sync pass found, scoped to one
// account + timeline-type pair. Counts only ever go up; the batch
// driver reads them out after the pass and discards the instance.
// Concurrent batches must each use their own Counters.
type Counters struct {
	Account  models.Account
	Timeline models.TimelineType

	// Downloaded counts every payload that carried a sent time,
	// including redeliveries; the New* counts increment only when a
	// message's sent time strictly advances past what was stored.
	Downloaded  int
	NewMsgs     int
	NewReplies  int
	NewMentions int
}

// NewCounters returns a zeroed aggregate for one batch.
func NewCounters(account models.Account, timeline models.TimelineType) *Counters {
	return &Counters{Account: account, Timeline: timeline}
}
