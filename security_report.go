package authcore

import "time"

// SecurityReport summarizes the security-relevant settings an Engine runs
// with, for startup logs and health endpoints. It holds no secrets.
type SecurityReport struct {
	ChallengeSigningMethod string
	EphemeralChallengeKey  bool
	ChallengeTTL           time.Duration
	ChallengeMaxAttempts   int
	Argon2                 PasswordConfigReport
	PasswordMinLength      int
	PasswordMinScore       int
	LockoutThreshold       int
	LockoutDuration        time.Duration
	SessionTimeout         time.Duration
	RememberMeTimeout      time.Duration
	SessionMaxLifetime     time.Duration
	MaxSessionsPerAccount  int
	RequireVerifiedEmail   bool
	RateLimitingActive     bool
	AuditEnabled           bool
	MetricsEnabled         bool
	Roles                  []string
	Permissions            int
}

// PasswordConfigReport mirrors the Argon2id cost parameters.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config

	rateLimiting := c.RateLimit.RegisterLimit > 0 ||
		c.RateLimit.ResetLimit > 0 ||
		c.RateLimit.VerificationLimit > 0

	return SecurityReport{
		ChallengeSigningMethod: c.Challenge.SigningMethod,
		EphemeralChallengeKey:  c.Challenge.SigningKey == "",
		ChallengeTTL:           c.Challenge.TTL,
		ChallengeMaxAttempts:   c.Challenge.MaxAttempts,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		PasswordMinLength:     c.Policy.MinLength,
		PasswordMinScore:      c.Policy.MinScore,
		LockoutThreshold:      c.Guard.Threshold,
		LockoutDuration:       c.Guard.LockoutDuration,
		SessionTimeout:        c.Session.DefaultTimeout,
		RememberMeTimeout:     c.Session.RememberMeTimeout,
		SessionMaxLifetime:    c.Session.MaxLifetime,
		MaxSessionsPerAccount: c.Session.MaxSessions,
		RequireVerifiedEmail:  c.RequireVerifiedEmail,
		RateLimitingActive:    rateLimiting,
		AuditEnabled:          c.Audit.Enabled,
		MetricsEnabled:        c.Metrics.Enabled,
		Roles:                 e.roles.Roles(),
		Permissions:           e.roles.Permissions(),
	}
}
