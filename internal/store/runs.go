package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/feedsync/pkg/models"
)

// SaveSyncRun persists one finished batch's counter readout.
func (s *Storage) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO sync_run (
		id, account_id, timeline, started_at, finished_at,
		downloaded, new_msgs, new_replies, new_mentions, failed, skipped
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		run.ID, run.AccountID, string(run.Timeline), run.StartedAt, run.FinishedAt,
		run.Downloaded, run.NewMsgs, run.NewReplies, run.NewMention, run.Failed, run.Skipped,
	)
	if err != nil {
		return fmt.Errorf("save sync run %s: %w", run.ID, err)
	}
	return nil
}

// SyncRunByID reads one run back for the API layer; nil when unknown.
func (s *Storage) SyncRunByID(ctx context.Context, id string) (*models.SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, account_id, timeline, started_at, finished_at,
	       downloaded, new_msgs, new_replies, new_mentions, failed, skipped
	FROM sync_run WHERE id = $1
	`, id)
	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// RecentSyncRuns lists the newest runs, most recent first.
func (s *Storage) RecentSyncRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, account_id, timeline, started_at, finished_at,
	       downloaded, new_msgs, new_replies, new_mentions, failed, skipped
	FROM sync_run ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	var run models.SyncRun
	var timeline string
	err := row.Scan(
		&run.ID, &run.AccountID, &timeline, &run.StartedAt, &run.FinishedAt,
		&run.Downloaded, &run.NewMsgs, &run.NewReplies, &run.NewMention,
		&run.Failed, &run.Skipped,
	)
	if err != nil {
		return nil, err
	}
	run.Timeline = models.TimelineType(timeline)
	return &run, nil
}
