// Package memstore keeps the audit trail in process memory. It backs local
// development and tests; rows are lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/snapgallery/backoffice/internal/audit"
)

// Store is an in-memory audit.Store safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []audit.LogEntry
	nextID  int64
	clock   audit.Clock
}

// New returns an empty store using clock for timestamps. A nil clock uses
// audit.SystemClock.
func New(clock audit.Clock) *Store {
	if clock == nil {
		clock = audit.SystemClock
	}
	return &Store{clock: clock, nextID: 1}
}

// Append implements audit.Store.
func (s *Store) Append(ctx context.Context, entry audit.NewEntry) (audit.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return audit.LogEntry{}, audit.WrapStore("append", err)
	}
	if err := entry.Validate(); err != nil {
		return audit.LogEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := entry.Build(s.nextID, s.clock().UTC().Truncate(time.Microsecond))
	s.nextID++
	s.entries = append(s.entries, stored)
	return clone(stored), nil
}

// Get implements audit.Store.
func (s *Store) Get(ctx context.Context, id int64) (audit.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return clone(e), nil
		}
	}
	return audit.LogEntry{}, audit.ErrNotFound
}

// Count implements audit.Store.
func (s *Store) Count(ctx context.Context, filter audit.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, audit.WrapStore("count", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Find implements audit.Store.
func (s *Store) Find(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, audit.WrapStore("find", err)
	}
	s.mu.RLock()
	matched := make([]audit.LogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Matches(e) {
			matched = append(matched, clone(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []audit.LogEntry{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// AggregateByAction implements audit.Store.
func (s *Store) AggregateByAction(ctx context.Context, since, until time.Time) (map[audit.ActionType]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, audit.WrapStore("aggregate", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[audit.ActionType]int)
	for _, e := range s.entries {
		if !e.CreatedAt.Before(since) && !e.CreatedAt.After(until) {
			out[e.ActionType]++
		}
	}
	return out, nil
}

func clone(e audit.LogEntry) audit.LogEntry {
	return audit.NewEntry{
		ActionType:    e.ActionType,
		Description:   e.Description,
		UserID:        e.UserID,
		AdminID:       e.AdminID,
		AffectedTable: e.AffectedTable,
		AffectedID:    e.AffectedID,
		Status:        e.Status,
		IPAddress:     e.IPAddress,
	}.Build(e.ID, e.CreatedAt)
}
