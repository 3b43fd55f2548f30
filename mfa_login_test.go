package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/notify"
)

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	c, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}
	return c
}

func wrongCode(right string) string {
	if right == "000000" {
		return "111111"
	}
	return "000000"
}

// enableMFA enrolls and confirms TOTP for id, then moves the clock to the
// next time step so the following code is not a replay.
func (h *harness) enableMFA(t *testing.T, id string) *MFAEnrollment {
	t.Helper()
	ctx := context.Background()
	enr, err := h.engine.EnrollMFA(ctx, id)
	if err != nil {
		t.Fatalf("EnrollMFA: %v", err)
	}
	if err := h.engine.ConfirmMFA(ctx, id, totpCode(t, enr.Secret, h.clock.Now())); err != nil {
		t.Fatalf("ConfirmMFA: %v", err)
	}
	h.clock.Advance(30 * time.Second)
	return enr
}

func (h *harness) pendingLogin(t *testing.T, email string, rememberMe bool) *LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), LoginInput{
		Email: email, Password: testPassword, RememberMe: rememberMe,
		Device: Device{IP: "10.0.0.1", UserAgent: "test"},
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.State != LoginMFAPending || res.ChallengeTicket == "" || res.SessionToken != "" {
		t.Fatalf("expected mfa pending without session, got %+v", res)
	}
	return res
}

func TestEnrollAndConfirmMFA(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	ctx := context.Background()

	enr, err := h.engine.EnrollMFA(ctx, "acc-1")
	if err != nil {
		t.Fatalf("EnrollMFA: %v", err)
	}
	if enr.Secret == "" || enr.ProvisioningURI == "" || len(enr.BackupCodes) != 10 {
		t.Fatalf("unexpected enrollment %+v", enr)
	}
	st, err := h.engine.MFAStatus(ctx, "acc-1")
	if err != nil {
		t.Fatalf("MFAStatus: %v", err)
	}
	if st.Enabled || !st.Pending {
		t.Fatalf("expected pending enrollment, got %+v", st)
	}

	// A pending enrollment does not change how login works.
	h.login(t, "alice@example.com", testPassword)

	right := totpCode(t, enr.Secret, h.clock.Now())
	if err := h.engine.ConfirmMFA(ctx, "acc-1", wrongCode(right)); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("expected ErrMFAInvalid, got %v", err)
	}
	if err := h.engine.ConfirmMFA(ctx, "acc-1", right); err != nil {
		t.Fatalf("ConfirmMFA: %v", err)
	}

	st, _ = h.engine.MFAStatus(ctx, "acc-1")
	if !st.Enabled || st.Pending || st.BackupCodesRemaining != 10 {
		t.Fatalf("expected enabled MFA, got %+v", st)
	}
	if _, err := h.engine.EnrollMFA(ctx, "acc-1"); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("re-enroll: expected ErrMFAAlreadyEnabled, got %v", err)
	}
	if err := h.engine.ConfirmMFA(ctx, "acc-1", right); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("re-confirm: expected ErrMFAAlreadyEnabled, got %v", err)
	}
	if _, err := h.engine.MFAStatus(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if h.metric(MetricMFAEnabled) != 1 {
		t.Fatal("mfa enabled metric not recorded")
	}
}

func TestLoginWithTOTP(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	enr := h.enableMFA(t, "acc-1")
	ctx := context.Background()

	pending := h.pendingLogin(t, "alice@example.com", true)
	if want := h.clock.Now().Add(3 * time.Minute); !pending.ChallengeExpiry.Equal(want) {
		t.Fatalf("challenge expiry %v, want %v", pending.ChallengeExpiry, want)
	}
	if n := h.outbox.Count(notify.KindLogin); n != 0 {
		t.Fatalf("login notification sent before the second factor: %d", n)
	}

	res, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, totpCode(t, enr.Secret, h.clock.Now()))
	if err != nil {
		t.Fatalf("CompleteMFA: %v", err)
	}
	if res.State != LoginAuthenticated || res.SessionToken == "" || res.AccountID != "acc-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if want := h.clock.Now().Add(30 * 24 * time.Hour); !res.ExpiresAt.Equal(want) {
		t.Fatalf("remember-me not carried through the challenge: %v", res.ExpiresAt)
	}

	views, err := h.engine.ListSessions(ctx, "acc-1", res.SessionToken)
	if err != nil || len(views) != 1 || views[0].IP != "10.0.0.1" {
		t.Fatalf("device not carried through the challenge: %+v err=%v", views, err)
	}

	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, totpCode(t, enr.Secret, h.clock.Now())); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("ticket reuse: expected ErrMFAChallengeExpired, got %v", err)
	}
	if h.metric(MetricMFALoginRequired) != 1 || h.metric(MetricMFALoginSuccess) != 1 {
		t.Fatal("mfa login metrics not recorded")
	}
}

func TestCompleteMFARejectsReplayedCode(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	enr := h.enableMFA(t, "acc-1")
	ctx := context.Background()

	code := totpCode(t, enr.Secret, h.clock.Now())
	first := h.pendingLogin(t, "alice@example.com", false)
	if _, err := h.engine.CompleteMFA(ctx, first.ChallengeTicket, code); err != nil {
		t.Fatalf("CompleteMFA: %v", err)
	}

	second := h.pendingLogin(t, "alice@example.com", false)
	if _, err := h.engine.CompleteMFA(ctx, second.ChallengeTicket, code); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("replayed code: expected ErrMFAInvalid, got %v", err)
	}
}

func TestCompleteMFAAttemptsExhausted(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	enr := h.enableMFA(t, "acc-1")
	ctx := context.Background()

	pending := h.pendingLogin(t, "alice@example.com", false)
	right := totpCode(t, enr.Secret, h.clock.Now())
	for i := 1; i <= 5; i++ {
		if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, wrongCode(right)); !errors.Is(err, ErrMFAInvalid) {
			t.Fatalf("attempt %d: expected ErrMFAInvalid, got %v", i, err)
		}
	}
	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, right); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("after exhaustion: expected ErrMFAChallengeExpired, got %v", err)
	}

	// Wrong second factors never lock the password.
	if acc := h.account(t, "acc-1"); acc.FailedLogins != 0 || acc.IsLocked(h.clock.Now()) {
		t.Fatalf("mfa failures touched the lockout counter: %+v", acc)
	}
	if h.metric(MetricMFALoginFailure) != 5 || h.metric(MetricMFAChallengeExhausted) != 1 {
		t.Fatalf("failure=%d exhausted=%d", h.metric(MetricMFALoginFailure), h.metric(MetricMFAChallengeExhausted))
	}
	if events := h.audited(auditEventMFAAttemptsExceeded); len(events) != 1 {
		t.Fatalf("expected one mfa_attempts_exceeded event, got %d", len(events))
	}
}

func TestCompleteMFAExpiredOrForgedTicket(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	enr := h.enableMFA(t, "acc-1")
	ctx := context.Background()

	pending := h.pendingLogin(t, "alice@example.com", false)
	h.clock.Advance(4 * time.Minute)
	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, totpCode(t, enr.Secret, h.clock.Now())); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("expired ticket: expected ErrMFAChallengeExpired, got %v", err)
	}
	if _, err := h.engine.CompleteMFA(ctx, "eyJhbGciOiJub25lIn0.e30.", "123456"); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("forged ticket: expected ErrMFAChallengeExpired, got %v", err)
	}
}

func TestLoginWithBackupCode(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	enr := h.enableMFA(t, "acc-1")
	ctx := context.Background()

	pending := h.pendingLogin(t, "alice@example.com", false)
	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, enr.BackupCodes[0]); err != nil {
		t.Fatalf("CompleteMFA with backup code: %v", err)
	}
	st, _ := h.engine.MFAStatus(ctx, "acc-1")
	if st.BackupCodesRemaining != 9 {
		t.Fatalf("expected 9 backup codes left, got %d", st.BackupCodesRemaining)
	}

	pending = h.pendingLogin(t, "alice@example.com", false)
	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, enr.BackupCodes[0]); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("reused backup code: expected ErrMFAInvalid, got %v", err)
	}
	if h.metric(MetricBackupCodeUsed) != 1 {
		t.Fatal("backup code metric not recorded")
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	enr := h.enableMFA(t, "acc-1")
	ctx := context.Background()

	if _, err := h.engine.RegenerateBackupCodes(ctx, "acc-1", enr.BackupCodes[1]); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("backup code accepted for regeneration: %v", err)
	}
	codes, err := h.engine.RegenerateBackupCodes(ctx, "acc-1", totpCode(t, enr.Secret, h.clock.Now()))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}

	pending := h.pendingLogin(t, "alice@example.com", false)
	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, enr.BackupCodes[2]); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("old backup code still valid: %v", err)
	}
	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, codes[0]); err != nil {
		t.Fatalf("new backup code rejected: %v", err)
	}
}

func TestDisableMFA(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	h.enableMFA(t, "acc-1")
	ctx := context.Background()

	if err := h.engine.DisableMFA(ctx, "acc-1", "Wrong-Password-1!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if acc := h.account(t, "acc-1"); acc.FailedLogins != 0 {
		t.Fatal("wrong password on disable counted toward lockout")
	}
	if err := h.engine.DisableMFA(ctx, "acc-1", testPassword); err != nil {
		t.Fatalf("DisableMFA: %v", err)
	}

	st, _ := h.engine.MFAStatus(ctx, "acc-1")
	if st.Enabled || st.Pending || st.BackupCodesRemaining != 0 {
		t.Fatalf("expected MFA fully off, got %+v", st)
	}
	alert, ok := h.outbox.Last(notify.KindSecurityAlert, "alice@example.com")
	if !ok || alert.Alert.Reason != "mfa_disabled" {
		t.Fatalf("expected mfa_disabled alert, got %+v", alert)
	}
	if res := h.login(t, "alice@example.com", testPassword); res.State != LoginAuthenticated {
		t.Fatalf("expected direct login after disabling MFA, got %s", res.State)
	}
	if _, err := h.engine.RegenerateBackupCodes(ctx, "acc-1", "123456"); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled, got %v", err)
	}
	if events := h.audited(auditEventMFADisableFailure); len(events) != 1 {
		t.Fatalf("expected one mfa_disable_failure event, got %d", len(events))
	}
}

func TestCompleteMFAForDeactivatedAccount(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "acc-1", "alice@example.com", identity.RoleUser)
	enr := h.enableMFA(t, "acc-1")
	ctx := context.Background()

	pending := h.pendingLogin(t, "alice@example.com", false)
	acc := h.account(t, "acc-1")
	acc.Active = false
	if _, err := h.store.UpdateAccount(ctx, acc); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, totpCode(t, enr.Secret, h.clock.Now())); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := h.engine.CompleteMFA(ctx, pending.ChallengeTicket, totpCode(t, enr.Secret, h.clock.Now())); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("challenge should be consumed, got %v", err)
	}
}
