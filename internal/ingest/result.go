package ingest

import (
	"errors"
	"fmt"
)

// Status classifies what one upsert did with its item.
type Status int

const (
	// StatusStored means the item was inserted or updated; LocalID is set.
	StatusStored Status = iota
	// StatusSkipped means the item was deliberately not persisted
	// (empty payload, missing identity after reblog unwrapping).
	StatusSkipped
	// StatusFailed means the upsert hit an error; Err carries the cause.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStored:
		return "stored"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result is the per-item outcome of one top-level upsert. The batch
// driver can tell a skip from a failure and decide whether to retry,
// count, or abort. A storage uniqueness violation arrives in Err
// unchanged (errors.Is against store.ErrDuplicate works through the
// chain).
type Result struct {
	Status  Status
	LocalID int64
	Reason  string
	Err     error
}

// Stored reports whether the item reached storage.
func (r Result) Stored() bool { return r.Status == StatusStored }

// errSkip marks the deliberate skip conditions of the engine; it never
// escapes the package, callers see StatusSkipped instead.
var errSkip = errors.New("item skipped")

func skipf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, errSkip)...)
}

func isSkip(err error) bool { return errors.Is(err, errSkip) }

func toResult(id int64, err error) Result {
	switch {
	case err == nil:
		return Result{Status: StatusStored, LocalID: id}
	case isSkip(err):
		return Result{Status: StatusSkipped, Reason: err.Error()}
	default:
		return Result{Status: StatusFailed, Err: err}
	}
}
