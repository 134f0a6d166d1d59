// Package syncer drives one sync pass: fetch a timeline page from the
// origin, feed every entry through the ingest engine, flush the
// latest-message projection and persist the run's counters.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/ingest"
	"github.com/feedsync/internal/store"
	"github.com/feedsync/pkg/models"
)

// Source is the origin-facing side of a sync pass.
type Source interface {
	FetchTimeline(ctx context.Context, timeline models.TimelineType, sinceOid string, pageSize int) ([]*models.Message, error)
	FetchUser(ctx context.Context, username string) (*models.User, error)
}

// Store is everything a sync pass needs from persistence: the ingest
// write surface plus run bookkeeping and account bootstrap.
type Store interface {
	ingest.Store
	SaveSyncRun(ctx context.Context, run *models.SyncRun) error
	ResolveOrCreateUser(originID int64, oid, username string) (int64, error)
}

// Syncer runs batches for one local account against one origin. It is
// not safe for concurrent use; run one Syncer per account.
type Syncer struct {
	store    Store
	source   Source
	account  models.Account
	pageSize int
}

func New(st Store, src Source, account models.Account, pageSize int) *Syncer {
	return &Syncer{store: st, source: src, account: account, pageSize: pageSize}
}

// Run executes one full pass over the given timeline. The returned
// SyncRun is persisted before returning, also when the fetch failed,
// so every attempt leaves a record.
func (s *Syncer) Run(ctx context.Context, timeline models.TimelineType) (*models.SyncRun, error) {
	if err := s.ensureAccount(); err != nil {
		return nil, err
	}

	run := &models.SyncRun{
		ID:        uuid.NewString(),
		AccountID: s.account.UserID,
		Timeline:  timeline,
		StartedAt: time.Now().UTC(),
	}

	msgs, err := s.source.FetchTimeline(ctx, timeline, "", s.pageSize)
	if err != nil {
		run.FinishedAt = time.Now().UTC()
		if saveErr := s.store.SaveSyncRun(ctx, run); saveErr != nil {
			log.Error().Err(saveErr).Str("run", run.ID).Msg("syncer: saving failed run record")
		}
		return run, fmt.Errorf("fetch %s timeline: %w", timeline, err)
	}

	counters := ingest.NewCounters(s.account, timeline)
	engine := ingest.New(s.store, counters)
	tracker := ingest.NewLatestMessages()

	for _, m := range msgs {
		res := engine.UpsertMessage(m, tracker)
		if res.Status == ingest.StatusFailed && errors.Is(res.Err, store.ErrDuplicate) {
			// A concurrent writer won the insert race; the row exists
			// now, so a second pass lands as an update.
			res = engine.UpsertMessage(m, tracker)
		}
		switch res.Status {
		case ingest.StatusFailed:
			run.Failed++
			log.Warn().Err(res.Err).Str("run", run.ID).Msg("syncer: message failed")
		case ingest.StatusSkipped:
			run.Skipped++
		}
	}

	if err := tracker.Commit(s.store); err != nil {
		log.Error().Err(err).Str("run", run.ID).Msg("syncer: latest-message commit failed")
	}

	run.FinishedAt = time.Now().UTC()
	run.Downloaded = counters.Downloaded
	run.NewMsgs = counters.NewMsgs
	run.NewReplies = counters.NewReplies
	run.NewMention = counters.NewMentions

	if err := s.store.SaveSyncRun(ctx, run); err != nil {
		return run, fmt.Errorf("save sync run: %w", err)
	}

	log.Info().Str("run", run.ID).Str("timeline", string(timeline)).
		Int("downloaded", run.Downloaded).Int("new", run.NewMsgs).
		Int("replies", run.NewReplies).Int("mentions", run.NewMention).
		Int("failed", run.Failed).Int("skipped", run.Skipped).
		Msg("syncer: pass finished")
	return run, nil
}

// SyncUser fetches one user record by name and merges it, including
// the latest message embedded in the record.
func (s *Syncer) SyncUser(ctx context.Context, username string) (ingest.Result, error) {
	if err := s.ensureAccount(); err != nil {
		return ingest.Result{}, err
	}
	u, err := s.source.FetchUser(ctx, username)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("fetch user %q: %w", username, err)
	}

	counters := ingest.NewCounters(s.account, models.TimelineAll)
	engine := ingest.New(s.store, counters)
	return engine.UpsertUserOnce(u), nil
}

// ensureAccount resolves the local account's user row id once, so
// reader-scoped flags attach to a real row.
func (s *Syncer) ensureAccount() error {
	if s.account.UserID != 0 {
		return nil
	}
	id, err := s.store.ResolveOrCreateUser(s.account.OriginID, "", s.account.Username)
	if err != nil {
		return fmt.Errorf("resolve account user: %w", err)
	}
	s.account.UserID = id
	return nil
}
