package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedsync/internal/ingest"
)

// colval is one column to write. The engine hands over sparse value
// sets; only set fields turn into columns.
type colval struct {
	col string
	val any
}

// nullTime maps the zero time to NULL so stubs carry no bogus dates.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func msgColumns(vals *ingest.MsgValues) []colval {
	var cols []colval
	if vals.OriginID != nil {
		cols = append(cols, colval{"origin_id", *vals.OriginID})
	}
	if vals.Oid != nil {
		cols = append(cols, colval{"msg_oid", *vals.Oid})
	}
	if vals.AuthorID != nil {
		cols = append(cols, colval{"author_id", *vals.AuthorID})
	}
	if vals.SenderID != nil {
		cols = append(cols, colval{"sender_id", *vals.SenderID})
	}
	if vals.RecipientID != nil {
		cols = append(cols, colval{"recipient_id", *vals.RecipientID})
	}
	if vals.CreatedAt != nil {
		cols = append(cols, colval{"created_at", nullTime(*vals.CreatedAt)})
	}
	if vals.SentAt != nil {
		cols = append(cols, colval{"sent_at", nullTime(*vals.SentAt)})
	}
	if vals.Body != nil {
		cols = append(cols, colval{"body", *vals.Body})
	}
	if vals.Via != nil {
		cols = append(cols, colval{"via", *vals.Via})
	}
	if vals.URL != nil {
		cols = append(cols, colval{"url", *vals.URL})
	}
	if vals.InReplyToMsgID != nil {
		cols = append(cols, colval{"in_reply_to_msg_id", *vals.InReplyToMsgID})
	}
	if vals.InReplyToUserID != nil {
		cols = append(cols, colval{"in_reply_to_user_id", *vals.InReplyToUserID})
	}
	return cols
}

func msgFlagColumns(vals *ingest.MsgValues) []colval {
	var cols []colval
	if vals.Subscribed != nil {
		cols = append(cols, colval{"subscribed", *vals.Subscribed})
	}
	if vals.Favorited != nil {
		cols = append(cols, colval{"favorited", *vals.Favorited})
	}
	if vals.Reblogged != nil {
		cols = append(cols, colval{"reblogged", *vals.Reblogged})
	}
	if vals.ReblogOid != nil {
		cols = append(cols, colval{"reblog_oid", *vals.ReblogOid})
	}
	if vals.Mentioned != nil {
		cols = append(cols, colval{"mentioned", *vals.Mentioned})
	}
	if vals.Replied != nil {
		cols = append(cols, colval{"replied", *vals.Replied})
	}
	if vals.Directed != nil {
		cols = append(cols, colval{"directed", *vals.Directed})
	}
	return cols
}

func userColumns(vals *ingest.UserValues) []colval {
	var cols []colval
	if vals.OriginID != nil {
		cols = append(cols, colval{"origin_id", *vals.OriginID})
	}
	if vals.Oid != nil {
		cols = append(cols, colval{"user_oid", *vals.Oid})
	}
	if vals.UserName != nil {
		cols = append(cols, colval{"username", *vals.UserName})
	}
	if vals.RealName != nil {
		cols = append(cols, colval{"real_name", *vals.RealName})
	}
	if vals.AvatarURL != nil {
		cols = append(cols, colval{"avatar_url", *vals.AvatarURL})
	}
	if vals.Description != nil {
		cols = append(cols, colval{"description", *vals.Description})
	}
	if vals.Homepage != nil {
		cols = append(cols, colval{"homepage", *vals.Homepage})
	}
	if vals.URL != nil {
		cols = append(cols, colval{"url", *vals.URL})
	}
	if vals.CreatedAt != nil {
		cols = append(cols, colval{"created_at", nullTime(*vals.CreatedAt)})
	}
	return cols
}

// buildInsert renders `INSERT INTO tbl (...) VALUES ($1...) RETURNING id`.
func buildInsert(table string, cols []colval) (string, []any) {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, cv := range cols {
		names[i] = cv.col
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = cv.val
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(names, ", "), strings.Join(marks, ", "),
	)
	return query, args
}

// buildUpdate renders `UPDATE tbl SET col = $n, ... WHERE id = $last`.
func buildUpdate(table string, cols []colval, id int64) (string, []any) {
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, cv := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", cv.col, i+1)
		args = append(args, cv.val)
	}
	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d",
		table, strings.Join(sets, ", "), len(cols)+1,
	)
	return query, args
}
