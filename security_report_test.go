package authcore

import (
	"testing"
	"time"
)

func TestSecurityReport(t *testing.T) {
	h := newHarness(t)
	r := h.engine.SecurityReport()

	if r.ChallengeSigningMethod != "hs256" || r.EphemeralChallengeKey {
		t.Fatalf("unexpected challenge settings %+v", r)
	}
	if r.ChallengeTTL != 3*time.Minute || r.ChallengeMaxAttempts != 5 {
		t.Fatalf("unexpected challenge limits %+v", r)
	}
	if r.Argon2.Memory != 8*1024 || r.Argon2.Time != 1 {
		t.Fatalf("argon2 parameters not reported: %+v", r.Argon2)
	}
	if r.LockoutThreshold != 5 || r.LockoutDuration != 15*time.Minute {
		t.Fatalf("lockout not reported: %+v", r)
	}
	if r.SessionTimeout != 30*time.Minute || r.MaxSessionsPerAccount != 5 {
		t.Fatalf("session settings not reported: %+v", r)
	}
	if !r.RequireVerifiedEmail || !r.RateLimitingActive || !r.AuditEnabled || !r.MetricsEnabled {
		t.Fatalf("flags not reported: %+v", r)
	}
	if len(r.Roles) != 4 || r.Permissions == 0 {
		t.Fatalf("role table not reported: %v %d", r.Roles, r.Permissions)
	}
}

func TestSecurityReportEphemeralKeyAndNoLimits(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Challenge.SigningKey = ""
		c.RateLimit.RegisterLimit = 0
		c.RateLimit.ResetLimit = 0
		c.RateLimit.VerificationLimit = 0
	})
	r := h.engine.SecurityReport()
	if !r.EphemeralChallengeKey || r.RateLimitingActive {
		t.Fatalf("unexpected report %+v", r)
	}

	var nilEngine *Engine
	if got := nilEngine.SecurityReport(); got.ChallengeSigningMethod != "" {
		t.Fatalf("nil engine report %+v", got)
	}
}
