package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/feedsync/internal/ingest"
)

// upsertMsgFlags writes the account-scoped flag columns of one message
// upsert into the (msg_id, account_id) side table. Unset flags are
// left alone, so flag sets written by other accounts' syncs survive.
func upsertMsgFlags(tx *sql.Tx, msgID, accountUserID int64, vals *ingest.MsgValues) error {
	cols := msgFlagColumns(vals)
	if len(cols) == 0 || accountUserID == 0 {
		return nil
	}
	query, args := buildFlagUpsert("msg_of_user", "msg_id", msgID, accountUserID, cols)
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("upsert msg flags: %w", err)
	}
	return nil
}

// upsertFollowed writes the per-account followed flag of one user
// upsert.
func upsertFollowed(tx *sql.Tx, userID, accountUserID int64, vals *ingest.UserValues) error {
	if vals.Followed == nil || accountUserID == 0 {
		return nil
	}
	cols := []colval{{"followed", *vals.Followed}}
	query, args := buildFlagUpsert("following_user", "user_id", userID, accountUserID, cols)
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("upsert followed flag: %w", err)
	}
	return nil
}

// buildFlagUpsert renders an insert-or-update on a side table keyed by
// (<keyCol>, account_id).
func buildFlagUpsert(table, keyCol string, keyID, accountUserID int64, cols []colval) (string, []any) {
	names := []string{keyCol, "account_id"}
	marks := []string{"$1", "$2"}
	args := []any{keyID, accountUserID}
	sets := make([]string, 0, len(cols))
	for _, cv := range cols {
		names = append(names, cv.col)
		marks = append(marks, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, cv.val)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", cv.col, cv.col))
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s, account_id) DO UPDATE SET %s",
		table,
		strings.Join(names, ", "),
		strings.Join(marks, ", "),
		keyCol,
		strings.Join(sets, ", "),
	)
	return query, args
}
