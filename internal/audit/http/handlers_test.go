package audithttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapgallery/backoffice/internal/audit"
	"github.com/snapgallery/backoffice/internal/audit/memstore"
	"github.com/snapgallery/backoffice/internal/rbac"
)

var (
	superAdmin = rbac.Principal{ID: 1, Role: rbac.RoleSuperAdmin, Kind: rbac.KindAdmin}
	moderator  = rbac.Principal{ID: 5, Role: rbac.RoleModerator, Kind: rbac.KindAdmin}
	member     = rbac.Principal{ID: 40, Role: rbac.RoleModerator, Kind: rbac.KindUser}
)

type fixture struct {
	store  *memstore.Store
	router chi.Router
}

func newFixture(t *testing.T, svc QueryService, cfg Config) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New(nil)
	gate := rbac.NewGate(rbac.DefaultMatrix())
	recorder := audit.NewRecorder(store, logger, nil)
	if svc == nil {
		svc = audit.NewService(store, nil, logger, nil)
	}
	handler := NewHandler(logger, svc, recorder, audit.NewGuard(gate, recorder), rbac.Middleware{Gate: gate, Logger: logger}, cfg)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := principalFor(r.Header.Get("X-Test-Principal")); ok {
				r = r.WithContext(rbac.ContextWithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	})
	handler.MountRoutes(r)
	return fixture{store: store, router: r}
}

func principalFor(name string) (rbac.Principal, bool) {
	switch name {
	case "super":
		return superAdmin, true
	case "moderator":
		return moderator, true
	case "member":
		return member, true
	}
	return rbac.Principal{}, false
}

func (f fixture) do(t *testing.T, method, target, who string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "192.0.2.10:51234"
	if who != "" {
		req.Header.Set("X-Test-Principal", who)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f fixture) seed(t *testing.T, entries ...audit.NewEntry) {
	t.Helper()
	for _, e := range entries {
		_, err := f.store.Append(context.Background(), e)
		require.NoError(t, err)
	}
}

func TestListRequiresViewLogs(t *testing.T) {
	f := newFixture(t, nil, Config{})

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/audit/logs", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/audit/logs", "moderator", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/audit/logs", "super", nil).Code)
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t, nil, Config{})
	for i := 0; i < 7; i++ {
		f.seed(t, audit.NewEntry{ActionType: audit.ActionLogin, Status: audit.StatusFailed})
	}
	f.seed(t, audit.NewEntry{ActionType: audit.ActionBanUser, Status: audit.StatusSuccess, UserID: audit.Int64(3)})

	rec := f.do(t, http.MethodGet, "/audit/logs?action_type=login&status=failed&page=2&page_size=5", "super", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page audit.PageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Entries, 2)

	rec = f.do(t, http.MethodGet, "/audit/logs?user_id=3", "super", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, audit.ActionBanUser, page.Entries[0].ActionType)
}

func TestListRejectsBadParams(t *testing.T) {
	f := newFixture(t, nil, Config{})
	for _, target := range []string{
		"/audit/logs?action_type=teleport",
		"/audit/logs?status=pending",
		"/audit/logs?user_id=abc",
		"/audit/logs?date_from=01/02/2024",
		"/audit/logs?page=0",
		"/audit/logs?page_size=500",
	} {
		rec := f.do(t, http.MethodGet, target, "super", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestListStoreFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, stubService{err: &audit.StoreError{Op: "count", Err: errors.New("conn refused")}}, Config{})

	rec := f.do(t, http.MethodGet, "/audit/logs", "super", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "conn refused")
}

func TestParseFilterUsesLocation(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	req := httptest.NewRequest(http.MethodGet, "/audit/logs?date_from=2024-01-01&date_to=2024-01-31", nil)

	filter, err := parseFilter(req, loc)
	require.NoError(t, err)
	from, to := filter.Bounds()
	assert.True(t, from.Equal(time.Date(2023, time.December, 31, 17, 0, 0, 0, time.UTC)))
	assert.True(t, to.Equal(time.Date(2024, time.January, 31, 17, 0, 0, 0, time.UTC)))
}

func TestGetEntry(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.seed(t, audit.NewEntry{ActionType: audit.ActionDeletePhoto, Status: audit.StatusSuccess, AdminID: audit.Int64(1)})

	rec := f.do(t, http.MethodGet, "/audit/logs/1", "super", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entry audit.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, audit.ActionDeletePhoto, entry.ActionType)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/audit/logs/99", "super", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/audit/logs/x", "super", nil).Code)
}

func TestRecordUsesPrincipalAndRemoteAddr(t *testing.T) {
	f := newFixture(t, nil, Config{})
	body := `{"action_type":"add_comment","description":"first!","status":"success","affected_table":"comments","affected_id":12}`

	rec := f.do(t, http.MethodPost, "/audit/logs", "member", strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp recordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	entry, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, int64(40), *entry.UserID)
	assert.Nil(t, entry.AdminID)
	assert.Equal(t, "192.0.2.10", entry.IPAddress)
}

func TestRecordRejectsInvalidBody(t *testing.T) {
	f := newFixture(t, nil, Config{})

	for _, body := range []string{
		`{"action_type":"login"}`,
		`{"action_type":"fly","status":"success"}`,
		`{"action_type":"login","status":"success","user_id":4}`,
		`not json`,
	} {
		rec := f.do(t, http.MethodPost, "/audit/logs", "moderator", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/audit/logs", "", strings.NewReader(`{}`)).Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil, Config{Priority: []audit.ActionType{audit.ActionBanUser}, MaxEntries: 2})
	f.seed(t,
		audit.NewEntry{ActionType: audit.ActionLogin, Status: audit.StatusSuccess},
		audit.NewEntry{ActionType: audit.ActionLogin, Status: audit.StatusSuccess},
		audit.NewEntry{ActionType: audit.ActionLogout, Status: audit.StatusSuccess},
		audit.NewEntry{ActionType: audit.ActionBanUser, Status: audit.StatusSuccess},
	)

	rec := f.do(t, http.MethodGet, "/audit/stats", "moderator", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Days)
	assert.Equal(t, []audit.StatBucket{
		{ActionType: audit.ActionBanUser, Count: 1},
		{ActionType: audit.ActionLogin, Count: 2},
	}, resp.Buckets)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/audit/stats?days=0", "moderator", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/audit/stats?limit=-1", "moderator", nil).Code)
}

func TestExportWritesCSVAndRecords(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.seed(t, audit.NewEntry{ActionType: audit.ActionLogin, Status: audit.StatusSuccess, UserID: audit.Int64(2)})

	rec := f.do(t, http.MethodGet, "/audit/export.csv", "super", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	action := audit.ActionExportLogs
	logged, err := f.store.Find(context.Background(), audit.Filter{ActionType: &action}, 0, 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, audit.StatusSuccess, logged[0].Status)
}

func TestExportDeniedIsRecorded(t *testing.T) {
	f := newFixture(t, nil, Config{})

	rec := f.do(t, http.MethodGet, "/audit/export.csv", "moderator", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	action := audit.ActionAccessDenied
	logged, err := f.store.Find(context.Background(), audit.Filter{ActionType: &action}, 0, 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, audit.StatusFailed, logged[0].Status)
	assert.Equal(t, "192.0.2.10", logged[0].IPAddress)
}

func TestExportRateLimitedPerPrincipal(t *testing.T) {
	f := newFixture(t, nil, Config{ExportLimit: 2, ExportWindow: time.Minute})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/audit/export.csv", "super", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/audit/export.csv", "super", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/audit/export.csv", "super", nil).Code)
}

type stubService struct {
	err error
}

func (s stubService) Page(context.Context, audit.Filter, audit.PageRequest) (audit.PageResult, error) {
	return audit.PageResult{}, s.err
}

func (s stubService) Get(context.Context, int64) (audit.LogEntry, error) {
	return audit.LogEntry{}, s.err
}

func (s stubService) Export(context.Context, audit.Filter) ([]audit.LogEntry, error) {
	return nil, s.err
}

func (s stubService) TopActivity(context.Context, int, []audit.ActionType, int) ([]audit.StatBucket, error) {
	return nil, s.err
}
