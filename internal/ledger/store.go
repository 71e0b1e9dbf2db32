package ledger

import (
	"context"
	"time"
)

// Store is the persistence contract for delivery records.
//
// The conditional Mark* operations implement the first-writer-wins discipline
// between the acknowledgment path and the TTL sweeper: each returns false,
// not an error, when the record already left SENT. Correctness relies on this
// compare-and-set shape, not on callers holding locks.
type Store interface {
	// Insert appends a new record. MessageID must be unique.
	Insert(ctx context.Context, rec *Record) error

	// Get returns the record for messageID or ErrNotFound.
	Get(ctx context.Context, messageID string) (*Record, error)

	// MarkDelivered transitions SENT → DELIVERED with the ack timestamp and
	// computed latency. Returns false when the record was not in SENT.
	MarkDelivered(ctx context.Context, messageID string, receivedAt time.Time, latencyMs int64) (bool, error)

	// MarkFailed transitions SENT → FAILED with the normalized error.
	// Returns false when the record was not in SENT.
	MarkFailed(ctx context.Context, messageID, errorCode, errorMessage string) (bool, error)

	// ExpireDue transitions every SENT record whose TTL elapsed before now to
	// EXPIRED and returns how many were promoted. Records that race a
	// concurrent acknowledgment are skipped silently.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Record, error)
}
