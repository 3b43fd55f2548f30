package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/permission"
)

type fakeAuthorizer struct {
	roles    *permission.RoleRegistry
	sessions map[string]identity.Role
	err      error
}

func newFakeAuthorizer(t *testing.T) *fakeAuthorizer {
	t.Helper()
	roles, err := permission.NewRoleRegistry(permission.DefaultTable())
	if err != nil {
		t.Fatalf("NewRoleRegistry: %v", err)
	}
	return &fakeAuthorizer{
		roles: roles,
		sessions: map[string]identity.Role{
			"viewer-token": identity.RoleViewer,
			"admin-token":  identity.RoleAdmin,
		},
	}
}

func (f *fakeAuthorizer) Authorize(_ context.Context, token string, perms ...string) (*authcore.SessionInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	role, ok := f.sessions[token]
	if !ok {
		return nil, authcore.ErrSessionInvalid
	}
	if !f.roles.HasAll(string(role), perms...) {
		return nil, authcore.ErrPermissionDenied
	}
	return &authcore.SessionInfo{AccountID: "acc-" + string(role), Role: role}, nil
}

func (f *fakeAuthorizer) RoleRegistry() *permission.RoleRegistry { return f.roles }

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatal("expected session in context")
		}
		fmt.Fprint(w, info.AccountID)
	})
}

func serve(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireSession(t *testing.T) {
	auth := newFakeAuthorizer(t)
	h := RequireSession(auth)(okHandler(t))

	if rec := serve(h, "/", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}
	if rec := serve(h, "/", "unknown"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: status %d", rec.Code)
	}
	rec := serve(h, "/", "viewer-token")
	if rec.Code != http.StatusOK || rec.Body.String() != "acc-viewer" {
		t.Fatalf("live session: status %d body %q", rec.Code, rec.Body.String())
	}
}

func TestRequireSessionFromCookie(t *testing.T) {
	auth := newFakeAuthorizer(t)
	h := RequireSession(auth)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "admin-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie session: status %d", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	auth := newFakeAuthorizer(t)
	h := RequirePermission(auth, permission.PermUsersManage)(okHandler(t))

	if rec := serve(h, "/users", "viewer-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer: status %d", rec.Code)
	}
	if rec := serve(h, "/users", "admin-token"); rec.Code != http.StatusOK {
		t.Fatalf("admin: status %d", rec.Code)
	}
}

func TestRequireRoute(t *testing.T) {
	auth := newFakeAuthorizer(t)
	h := RequireRoute(auth)(okHandler(t))

	if rec := serve(h, "/payroll", "viewer-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer on /payroll: status %d", rec.Code)
	}
	if rec := serve(h, "/dashboard", "viewer-token"); rec.Code != http.StatusOK {
		t.Fatalf("viewer on /dashboard: status %d", rec.Code)
	}
	if rec := serve(h, "/not-in-table", "viewer-token"); rec.Code != http.StatusOK {
		t.Fatalf("unknown route: status %d", rec.Code)
	}
}

func TestBackendFailureIsUnavailable(t *testing.T) {
	auth := newFakeAuthorizer(t)
	auth.err = fmt.Errorf("%w: redis down", authcore.ErrStoreUnavailable)
	h := RequireSession(auth)(okHandler(t))

	if rec := serve(h, "/", "viewer-token"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	} {
		got, ok := bearerToken(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("bearerToken(%q) = %q, %v", tc.in, got, ok)
		}
	}
}
