package pgstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapgallery/backoffice/internal/audit"
	"github.com/snapgallery/backoffice/internal/audit/audittest"
	"github.com/snapgallery/backoffice/internal/platform/db"
)

func TestPostgresStoreBehaviour(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	audittest.RunStoreSuite(t, func(t *testing.T, clock audit.Clock) audit.Store {
		store := New(pool, clock)
		require.NoError(t, store.EnsureSchema(ctx))
		_, err := pool.Exec(ctx, `TRUNCATE activity_logs RESTART IDENTITY`)
		require.NoError(t, err)
		return store
	})
}

func TestBuildWhere(t *testing.T) {
	login := audit.ActionLogin
	failed := audit.StatusFailed
	user := int64(3)
	day := time.Date(2024, time.January, 5, 15, 0, 0, 0, time.UTC)

	where, args := buildWhere(audit.Filter{})
	require.Empty(t, where)
	require.Empty(t, args)

	where, args = buildWhere(audit.Filter{ActionType: &login, Status: &failed, UserID: &user, DateFrom: &day, DateTo: &day})
	require.Equal(t, " WHERE action_type = $1 AND status = $2 AND user_id = $3 AND created_at >= $4 AND created_at < $5", where)
	require.Equal(t, []any{
		"login", "failed", int64(3),
		time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC),
	}, args)
}

func TestSchemaUsesActionDescriptionColumn(t *testing.T) {
	require.Contains(t, Schema, "action_description TEXT")
	require.Contains(t, selectColumns, "action_description")
	require.False(t, strings.Contains(strings.ReplaceAll(Schema, "action_description", ""), "description"))
}
