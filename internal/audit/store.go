package audit

import (
	"context"
	"time"
)

// Store is the persistence boundary for audit rows. Implementations must
// order Find results by created_at descending with ties broken by id
// descending, and must wrap backend failures in *StoreError.
type Store interface {
	// Append persists one entry, assigning id and created_at.
	Append(ctx context.Context, entry NewEntry) (LogEntry, error)
	// Get returns the entry with id or ErrNotFound.
	Get(ctx context.Context, id int64) (LogEntry, error)
	// Count returns the number of entries matching filter.
	Count(ctx context.Context, filter Filter) (int, error)
	// Find returns matching entries. A limit <= 0 means unbounded.
	Find(ctx context.Context, filter Filter, limit, offset int) ([]LogEntry, error)
	// AggregateByAction counts entries with since <= created_at <= until
	// per action.
	AggregateByAction(ctx context.Context, since, until time.Time) (map[ActionType]int, error)
}

// Clock returns the current time. Stores take one so tests can pin time.
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}
