package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/permission"
)

func TestValidateSessionSlidesExpiry(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	res := h.login(t, "alice@example.com", testPassword)
	ctx := context.Background()

	h.clock.Advance(20 * time.Minute)
	info, err := h.engine.ValidateSession(ctx, res.SessionToken)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if want := h.clock.Now().Add(30 * time.Minute); !info.ExpiresAt.Equal(want) {
		t.Fatalf("expiry not slid: got %v want %v", info.ExpiresAt, want)
	}

	// 40 minutes after login but only 20 after the last activity.
	h.clock.Advance(20 * time.Minute)
	if _, err := h.engine.ValidateSession(ctx, res.SessionToken); err != nil {
		t.Fatalf("active session expired early: %v", err)
	}

	h.clock.Advance(31 * time.Minute)
	if _, err := h.engine.ValidateSession(ctx, res.SessionToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := h.engine.ValidateSession(ctx, res.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expired session should be gone, got %v", err)
	}
}

func TestValidateSessionRejectsGarbage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, token := range []string{"", "not-a-token", "AAAA"} {
		if _, err := h.engine.ValidateSession(ctx, token); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("token %q: expected ErrSessionInvalid, got %v", token, err)
		}
	}
}

func TestValidateSessionResolvesCurrentRole(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "admin-1", "admin@example.com", identity.RoleAdmin)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	res := h.login(t, "alice@example.com", testPassword)
	ctx := context.Background()

	info, err := h.engine.ValidateSession(ctx, res.SessionToken)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if hasPermission(info.Permissions, permission.PermPayrollView) {
		t.Fatal("user role should not see payroll")
	}

	if err := h.engine.ChangeRole(ctx, "admin-1", "acc-1", identity.RoleHRManager); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	info, err = h.engine.ValidateSession(ctx, res.SessionToken)
	if err != nil {
		t.Fatalf("ValidateSession after role change: %v", err)
	}
	if info.Role != identity.RoleHRManager || !hasPermission(info.Permissions, permission.PermPayrollView) {
		t.Fatalf("role change not reflected: %+v", info)
	}
}

func TestValidateSessionOfDeactivatedAccount(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	first := h.login(t, "alice@example.com", testPassword)
	second := h.login(t, "alice@example.com", testPassword)
	ctx := context.Background()

	acc := h.account(t, "acc-1")
	acc.Active = false
	if _, err := h.store.UpdateAccount(ctx, acc); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	if _, err := h.engine.ValidateSession(ctx, first.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}

	acc = h.account(t, "acc-1")
	acc.Active = true
	if _, err := h.store.UpdateAccount(ctx, acc); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if _, err := h.engine.ValidateSession(ctx, second.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("sibling session survived deactivation: %v", err)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	res := h.login(t, "alice@example.com", testPassword)
	ctx := context.Background()

	if err := h.engine.Logout(ctx, res.SessionToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := h.engine.ValidateSession(ctx, res.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("session alive after logout: %v", err)
	}
	if err := h.engine.Logout(ctx, res.SessionToken); err != nil {
		t.Fatalf("second Logout should be a no-op, got %v", err)
	}
	if err := h.engine.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("Logout with garbage should be a no-op, got %v", err)
	}
	if got := h.metric(MetricLogout); got != 1 {
		t.Fatalf("expected one logout metric, got %d", got)
	}
	if events := h.audited(auditEventLogout); len(events) != 1 || events[0].SessionID != res.SessionID {
		t.Fatalf("expected one logout audit, got %+v", events)
	}
}

func TestLogoutAllAndOthers(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	h.seed(t, "acc-2", "bob@example.com", identity.RoleUser)
	ctx := context.Background()

	keep := h.login(t, "alice@example.com", testPassword)
	h.login(t, "alice@example.com", testPassword)
	h.login(t, "alice@example.com", testPassword)
	bob := h.login(t, "bob@example.com", testPassword)

	n, err := h.engine.LogoutOthers(ctx, keep.SessionToken)
	if err != nil {
		t.Fatalf("LogoutOthers: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	if _, err := h.engine.ValidateSession(ctx, keep.SessionToken); err != nil {
		t.Fatalf("kept session revoked: %v", err)
	}

	n, err = h.engine.LogoutAll(ctx, "acc-1")
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked, got %d", n)
	}
	if _, err := h.engine.ValidateSession(ctx, keep.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("session alive after LogoutAll: %v", err)
	}
	if _, err := h.engine.ValidateSession(ctx, bob.SessionToken); err != nil {
		t.Fatalf("other account affected: %v", err)
	}

	if _, err := h.engine.LogoutOthers(ctx, keep.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("LogoutOthers with dead token: expected ErrSessionInvalid, got %v", err)
	}
}

func TestListAndRevokeSessions(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	h.seed(t, "acc-2", "bob@example.com", identity.RoleUser)
	ctx := context.Background()

	older := h.login(t, "alice@example.com", testPassword)
	h.clock.Advance(time.Minute)
	newer := h.login(t, "alice@example.com", testPassword)

	views, err := h.engine.ListSessions(ctx, "acc-1", older.SessionToken)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(views))
	}
	if views[0].ID != newer.SessionID || views[0].Current {
		t.Fatalf("expected newest first and not current: %+v", views[0])
	}
	if views[1].ID != older.SessionID || !views[1].Current {
		t.Fatalf("expected older session marked current: %+v", views[1])
	}

	ok, err := h.engine.RevokeSession(ctx, "acc-2", newer.SessionID)
	if err != nil || ok {
		t.Fatalf("revoking another account's session: ok=%v err=%v", ok, err)
	}
	ok, err = h.engine.RevokeSession(ctx, "acc-1", newer.SessionID)
	if err != nil || !ok {
		t.Fatalf("RevokeSession: ok=%v err=%v", ok, err)
	}
	if _, err := h.engine.ValidateSession(ctx, newer.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("revoked session still valid: %v", err)
	}
	if _, err := h.engine.ValidateSession(ctx, older.SessionToken); err != nil {
		t.Fatalf("other session affected: %v", err)
	}
}

func TestSweepSessions(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	ctx := context.Background()

	h.login(t, "alice@example.com", testPassword)
	h.login(t, "alice@example.com", testPassword)

	if n, err := h.engine.SweepSessions(ctx); err != nil || n != 0 {
		t.Fatalf("sweep of live sessions: n=%d err=%v", n, err)
	}

	h.clock.Advance(time.Hour)
	n, err := h.engine.SweepSessions(ctx)
	if err != nil {
		t.Fatalf("SweepSessions: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if got := h.metric(MetricSessionSwept); got != 2 {
		t.Fatalf("expected swept metric 2, got %d", got)
	}
}

func hasPermission(perms []string, want string) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}
