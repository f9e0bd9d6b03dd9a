// Package audittest holds the behavioural suite every audit.Store backend
// must pass, plus a controllable clock.
package audittest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/snapgallery/backoffice/internal/audit"
)

// Clock is a manually driven clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts the clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory returns an empty store that stamps rows with clock.
type Factory func(t *testing.T, clock audit.Clock) audit.Store

// RunStoreSuite runs the shared store behaviour against newStore.
func RunStoreSuite(t *testing.T, newStore Factory) {
	suite.Run(t, &StoreSuite{newStore: newStore})
}

// StoreSuite exercises a Store through its interface only.
type StoreSuite struct {
	suite.Suite
	newStore Factory
	clock    *Clock
	store    audit.Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = NewClock(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC))
	s.store = s.newStore(s.T(), s.clock.Now)
}

func (s *StoreSuite) append(entry audit.NewEntry) audit.LogEntry {
	stored, err := s.store.Append(s.ctx, entry)
	s.Require().NoError(err)
	return stored
}

func (s *StoreSuite) findAll(filter audit.Filter) []audit.LogEntry {
	rows, err := s.store.Find(s.ctx, filter, 0, 0)
	s.Require().NoError(err)
	return rows
}

func entry(action audit.ActionType, status audit.Status) audit.NewEntry {
	return audit.NewEntry{ActionType: action, Status: status, IPAddress: "10.0.0.1"}
}

func (s *StoreSuite) TestAppendAssignsIncreasingIDs() {
	first := s.append(entry(audit.ActionLogin, audit.StatusSuccess))
	s.clock.Advance(time.Second)
	second := s.append(entry(audit.ActionLogout, audit.StatusSuccess))

	s.Greater(second.ID, first.ID)
	s.True(first.CreatedAt.Equal(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)))
	s.True(second.CreatedAt.After(first.CreatedAt))
}

func (s *StoreSuite) TestAppendRejectsBothActors() {
	e := entry(audit.ActionUpdateUser, audit.StatusSuccess)
	e.UserID = audit.Int64(1)
	e.AdminID = audit.Int64(2)

	_, err := s.store.Append(s.ctx, e)
	s.Require().ErrorIs(err, audit.ErrInvalidInput)

	total, err := s.store.Count(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *StoreSuite) TestAppendRejectsUnknownEnums() {
	_, err := s.store.Append(s.ctx, entry("rename_universe", audit.StatusSuccess))
	s.ErrorIs(err, audit.ErrInvalidInput)
	_, err = s.store.Append(s.ctx, entry(audit.ActionLogin, "maybe"))
	s.ErrorIs(err, audit.ErrInvalidInput)
}

func (s *StoreSuite) TestGetRoundTrip() {
	e := entry(audit.ActionDeletePhoto, audit.StatusWarning)
	e.Description = "photo removed after report"
	e.AdminID = audit.Int64(7)
	e.AffectedTable = audit.String("photos")
	e.AffectedID = audit.Int64(99)
	stored := s.append(e)

	got, err := s.store.Get(s.ctx, stored.ID)
	s.Require().NoError(err)
	s.Equal(stored.ID, got.ID)
	s.True(stored.CreatedAt.Equal(got.CreatedAt))
	s.Equal(audit.ActionDeletePhoto, got.ActionType)
	s.Equal(audit.StatusWarning, got.Status)
	s.Equal("photo removed after report", got.Description)
	s.Nil(got.UserID)
	s.Require().NotNil(got.AdminID)
	s.Equal(int64(7), *got.AdminID)
	s.Require().NotNil(got.AffectedTable)
	s.Equal("photos", *got.AffectedTable)
	s.Require().NotNil(got.AffectedID)
	s.Equal(int64(99), *got.AffectedID)
	s.Equal("10.0.0.1", got.IPAddress)
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, 424242)
	s.ErrorIs(err, audit.ErrNotFound)
}

func (s *StoreSuite) TestFailedLoginWithoutActor() {
	e := entry(audit.ActionLogin, audit.StatusFailed)
	e.Description = "bad password for unknown account"
	stored := s.append(e)

	status := audit.StatusFailed
	rows := s.findAll(audit.Filter{Status: &status})
	s.Require().Len(rows, 1)
	s.Equal(stored.ID, rows[0].ID)
	s.Nil(rows[0].UserID)
	s.Nil(rows[0].AdminID)
}

func (s *StoreSuite) TestFindOrdersNewestFirstWithIDTiebreak() {
	older := s.append(entry(audit.ActionLogin, audit.StatusSuccess))
	s.clock.Advance(time.Minute)
	tieA := s.append(entry(audit.ActionLogin, audit.StatusSuccess))
	tieB := s.append(entry(audit.ActionLogin, audit.StatusSuccess))

	rows := s.findAll(audit.Filter{})
	s.Require().Len(rows, 3)
	s.Equal([]int64{tieB.ID, tieA.ID, older.ID}, ids(rows))
}

func (s *StoreSuite) TestPagingOverHundredTwentyEntries() {
	for i := 0; i < 120; i++ {
		s.append(entry(audit.ActionUploadPhoto, audit.StatusSuccess))
		s.clock.Advance(time.Second)
	}
	svc := audit.NewService(s.store, nil, nil, nil)

	page2, err := svc.Page(s.ctx, audit.Filter{}, audit.PageRequest{Page: 2, PageSize: 50})
	s.Require().NoError(err)
	s.Len(page2.Entries, 50)
	s.Equal(120, page2.Total)
	s.Equal(3, page2.TotalPages)

	page3, err := svc.Page(s.ctx, audit.Filter{}, audit.PageRequest{Page: 3, PageSize: 50})
	s.Require().NoError(err)
	s.Len(page3.Entries, 20)

	page4, err := svc.Page(s.ctx, audit.Filter{}, audit.PageRequest{Page: 4, PageSize: 50})
	s.Require().NoError(err)
	s.Empty(page4.Entries)
	s.Equal(120, page4.Total)
}

func (s *StoreSuite) TestPagesPartitionTheResult() {
	for i := 0; i < 23; i++ {
		s.append(entry(audit.ActionAddComment, audit.StatusSuccess))
		if i%4 == 0 {
			s.clock.Advance(time.Second)
		}
	}
	all := s.findAll(audit.Filter{})

	var paged []audit.LogEntry
	for offset := 0; offset < len(all); offset += 5 {
		rows, err := s.store.Find(s.ctx, audit.Filter{}, 5, offset)
		s.Require().NoError(err)
		s.LessOrEqual(len(rows), 5)
		paged = append(paged, rows...)
	}
	s.Equal(ids(all), ids(paged))
}

func (s *StoreSuite) TestDateRangeCoversWholeDays() {
	stamp := func(t time.Time, action audit.ActionType) audit.LogEntry {
		s.clock.Set(t)
		return s.append(entry(action, audit.StatusSuccess))
	}
	stamp(time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC), audit.ActionLogin)
	first := stamp(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), audit.ActionLogin)
	mid := stamp(time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC), audit.ActionBanUser)
	last := stamp(time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC), audit.ActionLogout)
	stamp(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), audit.ActionLogin)

	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	filter := audit.Filter{DateFrom: &from, DateTo: &to}

	rows := s.findAll(filter)
	s.Equal([]int64{last.ID, mid.ID, first.ID}, ids(rows))
	total, err := s.store.Count(s.ctx, filter)
	s.Require().NoError(err)
	s.Equal(3, total)
}

func (s *StoreSuite) TestFiltersAreConjunctive() {
	s.seedMixed()

	login := audit.ActionLogin
	failed := audit.StatusFailed
	user := int64(11)
	filters := []audit.Filter{
		{},
		{ActionType: &login},
		{ActionType: &login, Status: &failed},
		{ActionType: &login, Status: &failed, UserID: &user},
	}
	var previous map[int64]bool
	for _, f := range filters {
		rows := s.findAll(f)
		total, err := s.store.Count(s.ctx, f)
		s.Require().NoError(err)
		s.Equal(total, len(rows))

		current := make(map[int64]bool, len(rows))
		for _, r := range rows {
			s.True(f.Matches(r), "row %d does not satisfy its filter", r.ID)
			current[r.ID] = true
			if previous != nil {
				s.True(previous[r.ID], "row %d escaped a narrower filter", r.ID)
			}
		}
		previous = current
	}
	s.Len(previous, 1)
}

func (s *StoreSuite) TestUserFilterSkipsAdminRows() {
	s.seedMixed()
	user := int64(12)
	rows := s.findAll(audit.Filter{UserID: &user})
	s.Require().NotEmpty(rows)
	for _, r := range rows {
		s.Require().NotNil(r.UserID)
		s.Equal(user, *r.UserID)
		s.Nil(r.AdminID)
	}
}

func (s *StoreSuite) TestAggregateByActionCountsWindow() {
	s.append(entry(audit.ActionLogin, audit.StatusSuccess))
	s.clock.Advance(48 * time.Hour)
	since := s.clock.Now()
	s.append(entry(audit.ActionLogin, audit.StatusSuccess))
	s.append(entry(audit.ActionLogin, audit.StatusFailed))
	s.append(entry(audit.ActionDeleteComment, audit.StatusSuccess))
	until := s.clock.Now()

	counts, err := s.store.AggregateByAction(s.ctx, since, until)
	s.Require().NoError(err)
	s.Equal(map[audit.ActionType]int{audit.ActionLogin: 2, audit.ActionDeleteComment: 1}, counts)

	allCounts, err := s.store.AggregateByAction(s.ctx, time.Time{}, until.AddDate(1, 0, 0))
	s.Require().NoError(err)
	sum := 0
	for _, n := range allCounts {
		sum += n
	}
	total, err := s.store.Count(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Equal(total, sum)
}

func (s *StoreSuite) TestAggregateByActionIgnoresRowsAfterUntil() {
	since := s.clock.Now()
	s.append(entry(audit.ActionBanUser, audit.StatusSuccess))
	until := s.clock.Now()
	s.clock.Advance(time.Hour)
	s.append(entry(audit.ActionBanUser, audit.StatusSuccess))
	s.append(entry(audit.ActionLogin, audit.StatusSuccess))

	counts, err := s.store.AggregateByAction(s.ctx, since, until)
	s.Require().NoError(err)
	s.Equal(map[audit.ActionType]int{audit.ActionBanUser: 1}, counts)
}

func (s *StoreSuite) TestStoredTimesAreUTCMicroseconds() {
	local := time.FixedZone("UTC+7", 7*3600)
	s.clock.Set(time.Date(2024, time.March, 10, 19, 0, 0, 123456789, local))
	stored := s.append(entry(audit.ActionLogin, audit.StatusSuccess))

	s.Equal(time.UTC, stored.CreatedAt.Location())
	s.Equal(123456000, stored.CreatedAt.Nanosecond())
	got, err := s.store.Get(s.ctx, stored.ID)
	s.Require().NoError(err)
	s.True(got.CreatedAt.Equal(stored.CreatedAt))
}

func (s *StoreSuite) TestPageFarPastTheEndIsEmpty() {
	for i := 0; i < 120; i++ {
		s.append(entry(audit.ActionUploadPhoto, audit.StatusSuccess))
	}
	svc := audit.NewService(s.store, nil, nil, nil)

	res, err := svc.Page(s.ctx, audit.Filter{}, audit.PageRequest{Page: math.MaxInt / 50, PageSize: 50})
	s.Require().NoError(err)
	s.Empty(res.Entries)
	s.Equal(120, res.Total)
	s.Equal(3, res.TotalPages)
}

func (s *StoreSuite) TestConcurrentAppendsWithReaders() {
	const (
		writers   = 8
		perWriter = 10
	)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		written []int64
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 2; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				n, err := s.store.Count(s.ctx, audit.Filter{})
				if err != nil {
					fail(err)
					return
				}
				rows, err := s.store.Find(s.ctx, audit.Filter{}, 0, 0)
				if err != nil {
					fail(err)
					return
				}
				if len(rows) < n {
					fail(fmt.Errorf("find returned %d rows after count %d", len(rows), n))
					return
				}
			}
		}()
	}
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for i := 0; i < perWriter; i++ {
				stored, err := s.store.Append(s.ctx, entry(audit.ActionAddComment, audit.StatusSuccess))
				if err != nil {
					fail(err)
					return
				}
				if stored.ID <= last {
					fail(fmt.Errorf("id %d not above %d", stored.ID, last))
				}
				last = stored.ID
				mu.Lock()
				written = append(written, stored.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(done)
	readers.Wait()
	s.Require().Empty(errs)

	s.Len(written, writers*perWriter)
	seen := make(map[int64]bool, len(written))
	for _, id := range written {
		s.False(seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	total, err := s.store.Count(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Equal(writers*perWriter, total)

	rows := s.findAll(audit.Filter{})
	s.Require().Len(rows, writers*perWriter)
	for i := 1; i < len(rows); i++ {
		s.Greater(rows[i-1].ID, rows[i].ID)
	}
}

func (s *StoreSuite) seedMixed() {
	for i := 0; i < 30; i++ {
		var e audit.NewEntry
		switch i % 3 {
		case 0:
			e = entry(audit.ActionLogin, audit.StatusSuccess)
		case 1:
			e = entry(audit.ActionLogin, audit.StatusFailed)
		default:
			e = entry(audit.ActionDeleteComment, audit.StatusWarning)
		}
		switch i % 5 {
		case 0, 1:
			e.UserID = audit.Int64(int64(10 + i%5 + (i/15)*2))
		case 2:
			e.AdminID = audit.Int64(1)
		}
		s.append(e)
		s.clock.Advance(time.Minute)
	}
}

func ids(rows []audit.LogEntry) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
