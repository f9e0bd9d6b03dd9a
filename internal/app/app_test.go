package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapgallery/backoffice/internal/audit"
	audithttp "github.com/snapgallery/backoffice/internal/audit/http"
	"github.com/snapgallery/backoffice/internal/auth"
	"github.com/snapgallery/backoffice/internal/observability"
	"github.com/snapgallery/backoffice/internal/rbac"
	"github.com/snapgallery/backoffice/jobs"
)

const testSecret = "router-secret"

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		AppEnv:               "test",
		AppTimezone:          "UTC",
		AuditStore:           StoreMemory,
		RedisAddr:            "127.0.0.1:0",
		JWTSecret:            testSecret,
		StatsCacheTTL:        time.Minute,
		StatsWindowDays:      7,
		StatsMaxEntries:      5,
		StatsPriorityActions: "ban_user,delete_user",
		ExportRateLimit:      10,
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("AUDIT_STORE", "sqlite")
	t.Setenv("STATS_PRIORITY_ACTIONS", "ban_user, delete_photo")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.AuditStore)
	assert.Equal(t, []audit.ActionType{audit.ActionBanUser, audit.ActionDeletePhoto}, cfg.PriorityActions())
	assert.Equal(t, 12*time.Hour, cfg.JWTTTL)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"missing secret": func(c *Config) { c.JWTSecret = " " },
		"unknown store":  func(c *Config) { c.AuditStore = "mongo" },
		"bad timezone":   func(c *Config) { c.AppTimezone = "Mars/Olympus" },
		"bad priority":   func(c *Config) { c.StatsPriorityActions = "ban_user,nuke" },
		"zero window":    func(c *Config) { c.StatsWindowDays = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, testConfig(t).Validate())
}

func TestLoadMatrix(t *testing.T) {
	cfg := testConfig(t)
	m, err := LoadMatrix(cfg)
	require.NoError(t, err)
	assert.True(t, m.Allowed(rbac.RoleAdmin, rbac.PermViewLogs))

	path := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("moderator:\n  view_logs: true\n"), 0o600))
	cfg.RBACMatrixPath = path
	m, err = LoadMatrix(cfg)
	require.NoError(t, err)
	assert.True(t, m.Allowed(rbac.RoleModerator, rbac.PermViewLogs))
	assert.False(t, m.Allowed(rbac.RoleAdmin, rbac.PermViewLogs))
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditStore = StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "audit.db")

	store, closeFn, err := OpenStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(closeFn)

	entry, err := store.Append(context.Background(), audit.NewEntry{ActionType: audit.ActionLogin, Status: audit.StatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.ID)
}

func newTestRouter(t *testing.T) (http.Handler, *Core) {
	t.Helper()
	cfg := testConfig(t)
	logger := discardLogger()
	metrics := observability.NewMetrics()
	core, err := NewCore(context.Background(), cfg, logger, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(core.Close)
	assert.Nil(t, core.Redis)

	mw := rbac.Middleware{Gate: core.Gate, Logger: logger, Observer: metrics}
	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		Verifier:           auth.NewVerifier(cfg.JWTSecret),
		AuditHandler:       audithttp.NewHandler(logger, core.Service, core.Recorder, core.Guard, mw, audithttp.Config{}),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, core.Gate, mw),
		JobHandler:         jobs.NewHandler(nil, logger),
		Metrics:            metrics,
	})
	return router, core
}

func bearer(t *testing.T, p rbac.Principal) string {
	t.Helper()
	token, err := auth.NewSigner(testSecret).Mint(p, time.Now(), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouterEndToEnd(t *testing.T) {
	router, core := newTestRouter(t)
	admin := rbac.Principal{ID: 2, Role: rbac.RoleAdmin, Kind: rbac.KindAdmin}

	do := func(method, path, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/audit/logs", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/audit/logs", "Bearer junk").Code)

	_, err := core.Recorder.Record(context.Background(), audit.RecordInput{ActionType: audit.ActionLogin, Status: audit.StatusFailed})
	require.NoError(t, err)

	rec = do(http.MethodGet, "/audit/logs", bearer(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	var page audit.PageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)

	moderator := rbac.Principal{ID: 5, Role: rbac.RoleModerator, Kind: rbac.KindAdmin}
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/audit/logs", bearer(t, moderator)).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/rbac/me", bearer(t, moderator)).Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/rbac/matrix", bearer(t, admin)).Code)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/jobs/health", "").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/nowhere", "").Code)

	rec = do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backoffice_http_requests_total")
}

func TestCoreCloseIsIdempotent(t *testing.T) {
	core, err := NewCore(context.Background(), testConfig(t), discardLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	core.Close()
	core.Close()
}
