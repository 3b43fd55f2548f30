package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

// SessionCookie is the cookie consulted when no Authorization header is sent.
const SessionCookie = "authcore_session"

// Authorizer is the subset of *authcore.Engine the guards need.
type Authorizer interface {
	Authorize(ctx context.Context, token string, perms ...string) (*authcore.SessionInfo, error)
	RoleRegistry() *permission.RoleRegistry
}

type sessionContextKey struct{}

// SessionFromContext returns the session resolved by a guard.
func SessionFromContext(ctx context.Context) (*authcore.SessionInfo, bool) {
	info, ok := ctx.Value(sessionContextKey{}).(*authcore.SessionInfo)
	return info, ok
}

// RequireSession rejects requests that do not carry a live session.
func RequireSession(engine Authorizer) func(http.Handler) http.Handler {
	return RequirePermission(engine)
}

// RequirePermission rejects requests whose session lacks any of perms.
// Missing or dead sessions get 401, missing permissions 403 and backend
// failures 503.
func RequirePermission(engine Authorizer, perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, r, ok := authorize(w, r, engine, perms)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, info)))
		})
	}
}

// RequireRoute checks the request path against the route table of the
// engine's role registry. Routes missing from the table are allowed for
// any live session.
func RequireRoute(engine Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, r, ok := authorize(w, r, engine, nil)
			if !ok {
				return
			}
			if !engine.RoleRegistry().CanAccessRoute(string(info.Role), r.URL.Path) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, info)))
		})
	}
}

func authorize(w http.ResponseWriter, r *http.Request, engine Authorizer, perms []string) (*authcore.SessionInfo, *http.Request, bool) {
	if engine == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, r, false
	}

	token, ok := requestToken(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, r, false
	}

	ctx := authcore.WithClientIP(r.Context(), clientIP(r))
	ctx = authcore.WithUserAgent(ctx, r.UserAgent())
	r = r.WithContext(ctx)

	info, err := engine.Authorize(ctx, token, perms...)
	switch {
	case err == nil:
		return info, r, true
	case errors.Is(err, authcore.ErrPermissionDenied):
		http.Error(w, "forbidden", http.StatusForbidden)
	case authcore.KindOf(err).Retryable():
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return nil, r, false
}

func requestToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
