package ingest

import (
	"fmt"
	"sort"
	"time"
)

// UserMsg is one (user, message, time) observation collected while a
// batch runs.
type UserMsg struct {
	UserID int64
	MsgID  int64
	At     time.Time
}

// LatestMessages buffers the per-user "latest message" observations of
// one ingestion batch so the denormalized projection is written once
// per user at batch end, not once per message. Record keeps only the
// greatest-timestamp observation per user, in any call order.
//
// The tracker lives for exactly one batch: Commit flushes the winners
// and clears state, and must be called exactly once, after all upserts
// of the batch completed.
type LatestMessages struct {
	byUser map[int64]UserMsg
}

func NewLatestMessages() *LatestMessages {
	return &LatestMessages{byUser: make(map[int64]UserMsg)}
}

// Record notes that msgID by userID was seen with timestamp at. An
// observation only replaces a retained one when its timestamp is
// strictly greater, so redelivering the same observation is a no-op.
func (l *LatestMessages) Record(userID, msgID int64, at time.Time) {
	if userID == 0 || msgID == 0 {
		return
	}
	cur, ok := l.byUser[userID]
	if !ok || at.After(cur.At) {
		l.byUser[userID] = UserMsg{UserID: userID, MsgID: msgID, At: at}
	}
}

// Len reports how many users have a retained observation.
func (l *LatestMessages) Len() int {
	return len(l.byUser)
}

// Commit writes each user's winning observation through the store and
// clears the tracker. Users are flushed in id order so failures are
// reproducible.
func (l *LatestMessages) Commit(s Store) error {
	ids := make([]int64, 0, len(l.byUser))
	for id := range l.byUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		um := l.byUser[id]
		if err := s.SetLatestMsg(um.UserID, um.MsgID, um.At); err != nil {
			return fmt.Errorf("commit latest message for user %d: %w", um.UserID, err)
		}
	}
	l.byUser = make(map[int64]UserMsg)
	return nil
}
