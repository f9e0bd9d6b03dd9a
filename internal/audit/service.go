package audit

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/snapgallery/backoffice/internal/shared"
)

// DefaultTopEntries bounds TopActivity when no limit is given.
const DefaultTopEntries = 5

// topActivityTimeout bounds one shared summary load.
const topActivityTimeout = 30 * time.Second

// PageResult is one page of a filtered trail.
type PageResult struct {
	Entries    []LogEntry `json:"entries"`
	Total      int        `json:"total"`
	TotalPages int        `json:"total_pages"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}

// Service composes Store results into pages and activity summaries.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	stats  *Metrics
	group  singleflight.Group
	now    func() time.Time
}

// NewService builds the query facade. cache may be nil.
func NewService(store Store, cache *Cache, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger, stats: metrics, now: SystemClock}
}

// Page returns the requested page. Pages past the end are empty, not
// errors. On a store failure the result carries no entries and the error
// is a *StoreError.
func (s *Service) Page(ctx context.Context, filter Filter, req PageRequest) (PageResult, error) {
	result := PageResult{Entries: []LogEntry{}, Page: req.Page, PageSize: req.PageSize}
	if err := req.Validate(); err != nil {
		return result, err
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return result, WrapStore("count", err)
	}
	pg := shared.NewPagination(req.Page, req.PageSize, total)
	result.Total = pg.Total
	result.TotalPages = pg.TotalPages
	if req.Page > pg.TotalPages || pg.Exhausted() {
		return result, nil
	}
	rows, err := s.store.Find(ctx, filter, req.PageSize, pg.Offset())
	if err != nil {
		return result, WrapStore("find", err)
	}
	if len(rows) > req.PageSize {
		rows = rows[:req.PageSize]
	}
	result.Entries = rows
	return result, nil
}

// Get returns one entry by id.
func (s *Service) Get(ctx context.Context, id int64) (LogEntry, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return LogEntry{}, WrapStore("get", err)
	}
	return entry, nil
}

// Export returns every matching entry in page order.
func (s *Service) Export(ctx context.Context, filter Filter) ([]LogEntry, error) {
	rows, err := s.store.Find(ctx, filter, 0, 0)
	if err != nil {
		return []LogEntry{}, WrapStore("find", err)
	}
	return rows, nil
}

// Aggregate counts entries per action type over the trailing windowDays.
func (s *Service) Aggregate(ctx context.Context, windowDays int) (map[ActionType]int, error) {
	if windowDays <= 0 {
		return map[ActionType]int{}, &ValidationError{Field: "days", Reason: "must be > 0"}
	}
	now := s.now()
	counts, err := s.store.AggregateByAction(ctx, now.AddDate(0, 0, -windowDays), now)
	if err != nil {
		return map[ActionType]int{}, WrapStore("aggregate", err)
	}
	return counts, nil
}

// TopActivity returns the bounded headline summary for the trailing window:
// priority action types with a non-zero count first, in priority order,
// then the busiest remaining action types.
func (s *Service) TopActivity(ctx context.Context, windowDays int, priority []ActionType, maxEntries int) ([]StatBucket, error) {
	if windowDays <= 0 {
		return []StatBucket{}, &ValidationError{Field: "days", Reason: "must be > 0"}
	}
	if maxEntries <= 0 {
		maxEntries = DefaultTopEntries
	}
	parts := topActivityKey(windowDays, priority, maxEntries)
	flightKey := strings.Join(parts, ":")
	// The shared load must outlive any single caller.
	resultChan := s.group.DoChan(flightKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), topActivityTimeout)
		defer cancel()
		return s.cachedTop(flightCtx, parts, windowDays, priority, maxEntries)
	})
	select {
	case <-ctx.Done():
		return []StatBucket{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return []StatBucket{}, res.Err
		}
		shared := res.Val.([]StatBucket)
		out := make([]StatBucket, len(shared))
		copy(out, shared)
		return out, nil
	}
}

func (s *Service) cachedTop(ctx context.Context, parts []string, windowDays int, priority []ActionType, maxEntries int) ([]StatBucket, error) {
	load := func() ([]StatBucket, error) {
		counts, err := s.Aggregate(ctx, windowDays)
		if err != nil {
			return nil, err
		}
		return SelectTop(counts, priority, maxEntries), nil
	}
	if !s.cache.enabled() {
		return load()
	}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("audit stats cache key", slog.Any("error", err))
		return load()
	}
	var cached []StatBucket
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("audit stats cache get", slog.Any("error", err))
	}
	if hit {
		s.stats.observeCache("hit")
		return cached, nil
	}
	s.stats.observeCache("miss")
	buckets, err := load()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, buckets); err != nil {
		s.logger.Warn("audit stats cache set", slog.Any("error", err))
	}
	return buckets, nil
}

// InvalidateStats drops cached summaries.
func (s *Service) InvalidateStats(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return &StoreError{Op: "invalidate", Err: err}
	}
	return nil
}

// SelectTop applies the two-phase headline selection to counts. The result
// never exceeds maxEntries.
func SelectTop(counts map[ActionType]int, priority []ActionType, maxEntries int) []StatBucket {
	out := make([]StatBucket, 0, maxEntries)
	seen := make(map[ActionType]struct{}, len(priority))
	for _, a := range priority {
		if len(out) >= maxEntries {
			return out
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if n := counts[a]; n > 0 {
			out = append(out, StatBucket{ActionType: a, Count: n})
		}
	}
	rest := make([]StatBucket, 0, len(counts))
	for a, n := range counts {
		if _, ok := seen[a]; ok || n <= 0 {
			continue
		}
		rest = append(rest, StatBucket{ActionType: a, Count: n})
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Count != rest[j].Count {
			return rest[i].Count > rest[j].Count
		}
		return rest[i].ActionType < rest[j].ActionType
	})
	for _, b := range rest {
		if len(out) >= maxEntries {
			break
		}
		out = append(out, b)
	}
	return out
}
