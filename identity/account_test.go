package identity

import (
	"errors"
	"testing"
	"time"
)

func TestAccountIsLocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var a Account
	if a.IsLocked(now) {
		t.Fatal("zero LockedUntil must not be locked")
	}

	a.LockedUntil = now.Add(time.Minute)
	if !a.IsLocked(now) {
		t.Fatal("expected locked before LockedUntil")
	}
	if a.IsLocked(now.Add(time.Minute)) {
		t.Fatal("expected unlocked at LockedUntil")
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole(" HR_Manager "); !ok || r != RoleHRManager {
		t.Fatalf("ParseRole = %q, %v", r, ok)
	}
	if _, ok := ParseRole("root"); ok {
		t.Fatal("unknown role must not parse")
	}
}

func TestTokenUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := Token{IssuedAt: now, ExpiresAt: now.Add(15 * time.Minute)}

	if err := tok.Usable(now); err != nil {
		t.Fatalf("fresh token: %v", err)
	}
	if err := tok.Usable(now.Add(15 * time.Minute)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	tok.UsedAt = now.Add(time.Minute)
	if err := tok.Usable(now.Add(time.Hour)); !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("used token must report ErrTokenUsed even when expired, got %v", err)
	}
}

func TestFailureReasonCountsTowardLockout(t *testing.T) {
	if !FailureInvalidPassword.CountsTowardLockout() {
		t.Fatal("invalid password must count")
	}
	for _, r := range []FailureReason{FailureMFAInvalid, FailureEmailUnverified, FailureAccountLocked, FailureUnknownAccount} {
		if r.CountsTowardLockout() {
			t.Fatalf("%s must not count", r)
		}
	}
}

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("Now = %v", got)
	}
}
