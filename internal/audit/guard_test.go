package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapgallery/backoffice/internal/audit"
	"github.com/snapgallery/backoffice/internal/audit/memstore"
	"github.com/snapgallery/backoffice/internal/rbac"
)

func newGuard(store audit.Store) *audit.Guard {
	return audit.NewGuard(rbac.NewGate(rbac.DefaultMatrix()), audit.NewRecorder(store, quietLogger(), nil))
}

func TestGuardDeniesAndRecords(t *testing.T) {
	store := memstore.New(nil)
	guard := newGuard(store)
	moderator := rbac.Principal{ID: 8, Role: rbac.RoleModerator, Kind: rbac.KindAdmin}
	called := false

	err := guard.Run(context.Background(), moderator, audit.RequestContext{ClientIP: "198.51.100.7"},
		audit.Operation{Permission: rbac.PermManageUsers, Action: audit.ActionBanUser, Target: &audit.Target{Table: "users", ID: 77}},
		func(context.Context) (audit.Outcome, error) {
			called = true
			return audit.Outcome{}, nil
		})

	require.ErrorIs(t, err, rbac.ErrAccessDenied)
	assert.False(t, called)

	rows, err := store.Find(context.Background(), audit.Filter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, audit.ActionAccessDenied, rows[0].ActionType)
	assert.Equal(t, audit.StatusFailed, rows[0].Status)
	assert.Equal(t, "198.51.100.7", rows[0].IPAddress)
	require.NotNil(t, rows[0].AdminID)
	assert.Equal(t, int64(8), *rows[0].AdminID)
}

func TestGuardRecordsOutcome(t *testing.T) {
	store := memstore.New(nil)
	guard := newGuard(store)
	admin := rbac.Principal{ID: 1, Role: rbac.RoleAdmin, Kind: rbac.KindAdmin}

	err := guard.Run(context.Background(), admin, audit.RequestContext{},
		audit.Operation{Permission: rbac.PermManagePhotos, Action: audit.ActionDeletePhoto, Description: "remove photo"},
		func(context.Context) (audit.Outcome, error) {
			return audit.Outcome{Target: &audit.Target{Table: "photos", ID: 5}}, nil
		})
	require.NoError(t, err)

	cause := errors.New("photo locked")
	err = guard.Run(context.Background(), admin, audit.RequestContext{},
		audit.Operation{Permission: rbac.PermManagePhotos, Action: audit.ActionDeletePhoto, Description: "remove photo"},
		func(context.Context) (audit.Outcome, error) {
			return audit.Outcome{}, cause
		})
	require.ErrorIs(t, err, cause)

	err = guard.Run(context.Background(), admin, audit.RequestContext{},
		audit.Operation{Permission: rbac.PermManageComments, Action: audit.ActionDeleteComment},
		func(context.Context) (audit.Outcome, error) {
			return audit.Outcome{Status: audit.StatusWarning, Description: "comment already hidden"}, nil
		})
	require.NoError(t, err)

	rows, err := store.Find(context.Background(), audit.Filter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, audit.StatusWarning, rows[0].Status)
	assert.Equal(t, "comment already hidden", rows[0].Description)
	assert.Equal(t, audit.StatusFailed, rows[1].Status)
	assert.Equal(t, audit.StatusSuccess, rows[2].Status)
	require.NotNil(t, rows[2].AffectedID)
	assert.Equal(t, int64(5), *rows[2].AffectedID)
}

func TestGuardKeepsOperationResultWhenRecordingFails(t *testing.T) {
	guard := newGuard(brokenStore{})
	err := guard.Run(context.Background(), rbac.Principal{ID: 1, Role: rbac.RoleSuperAdmin, Kind: rbac.KindAdmin}, audit.RequestContext{},
		audit.Operation{Permission: rbac.PermManageSettings, Action: audit.ActionUpdateSettings},
		func(context.Context) (audit.Outcome, error) { return audit.Outcome{}, nil })
	require.NoError(t, err)
}
