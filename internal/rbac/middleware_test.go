package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	decisions map[string][]bool
}

func (o *recordingObserver) ObserveDecision(perm string, allowed bool) {
	if o.decisions == nil {
		o.decisions = map[string][]bool{}
	}
	o.decisions[perm] = append(o.decisions[perm], allowed)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func requestAs(p *Principal) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/audit/logs", nil)
	if p != nil {
		req = req.WithContext(ContextWithPrincipal(req.Context(), *p))
	}
	return req
}

func TestRequireAnyMiddleware(t *testing.T) {
	observer := &recordingObserver{}
	mw := Middleware{Gate: NewGate(DefaultMatrix()), Observer: observer}
	handler := mw.RequireAny(PermViewLogs)(okHandler())

	cases := []struct {
		name      string
		principal *Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"moderator", &Principal{ID: 3, Role: RoleModerator, Kind: KindAdmin}, http.StatusForbidden},
		{"admin", &Principal{ID: 2, Role: RoleAdmin, Kind: KindAdmin}, http.StatusNoContent},
		{"super admin", &Principal{ID: 1, Role: RoleSuperAdmin, Kind: KindAdmin}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, requestAs(tc.principal))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
	assert.Equal(t, []bool{false, true, true}, observer.decisions["view_logs"])
}

func TestRequireAllMiddleware(t *testing.T) {
	mw := Middleware{Gate: NewGate(DefaultMatrix())}
	handler := mw.RequireAll(PermViewLogs, PermManageAdmins)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs(&Principal{ID: 2, Role: RoleAdmin, Kind: KindAdmin}))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs(&Principal{ID: 1, Role: RoleSuperAdmin, Kind: KindAdmin}))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestPermissionsHandlerRoutes(t *testing.T) {
	gate := NewGate(DefaultMatrix())
	h := NewPermissionsHandler(nil, gate, Middleware{Gate: gate})
	r := chi.NewRouter()
	r.Route("/rbac", h.MountRoutes)

	req := requestAs(&Principal{ID: 9, Role: RoleModerator, Kind: KindAdmin})
	req.URL.Path = "/rbac/me"
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var me meResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, int64(9), me.ID)
	assert.Equal(t, RoleModerator, me.Role)
	assert.NotContains(t, me.Permissions, PermViewLogs)

	req = requestAs(&Principal{ID: 9, Role: RoleModerator, Kind: KindAdmin})
	req.URL.Path = "/rbac/matrix"
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = requestAs(&Principal{ID: 1, Role: RoleSuperAdmin, Kind: KindAdmin})
	req.URL.Path = "/rbac/matrix"
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Roles map[string]map[string]bool `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Roles["admin"]["view_logs"])
	assert.False(t, body.Roles["moderator"]["view_logs"])
}
