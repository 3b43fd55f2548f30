package authcore

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}
	if cfg.Session.DefaultTimeout != 30*time.Minute || cfg.Guard.Threshold != 5 || cfg.Challenge.TTL != 3*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short hs256 key", func(c *Config) { c.Challenge.SigningKey = "short" }},
		{"ed25519 without key", func(c *Config) { c.Challenge.SigningMethod = "ed25519" }},
		{"unknown signing method", func(c *Config) { c.Challenge.SigningMethod = "rs512" }},
		{"long challenge ttl", func(c *Config) { c.Challenge.TTL = 20 * time.Minute }},
		{"zero challenge attempts", func(c *Config) { c.Challenge.MaxAttempts = 0 }},
		{"seven digits", func(c *Config) { c.MFA.Digits = 7 }},
		{"wide skew", func(c *Config) { c.MFA.Skew = 3 }},
		{"short backup codes", func(c *Config) { c.MFA.BackupCodeLength = 4 }},
		{"tiny min length", func(c *Config) { c.Policy.MinLength = 2 }},
		{"max below min", func(c *Config) { c.Policy.MaxLength = 6 }},
		{"score out of range", func(c *Config) { c.Policy.MinScore = 6 }},
		{"zero session timeout", func(c *Config) { c.Session.DefaultTimeout = 0 }},
		{"remember me shorter", func(c *Config) { c.Session.RememberMeTimeout = time.Minute }},
		{"negative max sessions", func(c *Config) { c.Session.MaxSessions = -1 }},
		{"bad timezone", func(c *Config) { c.Guard.Timezone = "Mars/Olympus" }},
		{"reset ttl too long", func(c *Config) { c.Tokens.ResetTTL = 48 * time.Hour }},
		{"limit without window", func(c *Config) { c.RateLimit.ResetWindow = 0 }},
		{"negative limit", func(c *Config) { c.RateLimit.RegisterLimit = -1 }},
		{"zero store timeout", func(c *Config) { c.Timeouts.Store = 0 }},
		{"audit without buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"blank default role", func(c *Config) { c.DefaultRole = " " }},
		{"zero hash memory", func(c *Config) { c.Password.Memory = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
			if KindOf(err) != KindStartup {
				t.Fatalf("expected startup kind, got %s", KindOf(err))
			}
		})
	}
}

func TestConfigValidateAllowsDisabledLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.ResetLimit = 0
	cfg.RateLimit.ResetWindow = 0
	cfg.Audit.Enabled = false
	cfg.Audit.BufferSize = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled limit and audit should validate: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHCORE_SESSION_TIMEOUT", "45m")
	t.Setenv("AUTHCORE_GUARD_THRESHOLD", "7")
	t.Setenv("AUTHCORE_DEFAULT_ROLE", "viewer")
	t.Setenv("AUTHCORE_REQUIRE_VERIFIED_EMAIL", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.DefaultTimeout != 45*time.Minute {
		t.Fatalf("timeout = %v", cfg.Session.DefaultTimeout)
	}
	if cfg.Guard.Threshold != 7 || cfg.DefaultRole != "viewer" || cfg.RequireVerifiedEmail {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	// Unset variables keep their defaults.
	if cfg.Session.RememberMeTimeout != 30*24*time.Hour || cfg.MFA.Digits != 6 || cfg.Tokens.ResetTTL != 15*time.Minute {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidEnv(t *testing.T) {
	t.Setenv("AUTHCORE_MFA_DIGITS", "7")
	if _, err := LoadConfig(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoadConfigRejectsUnparsableEnv(t *testing.T) {
	t.Setenv("AUTHCORE_SESSION_TIMEOUT", "forever")
	if _, err := LoadConfig(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestConfigUsageListsVariables(t *testing.T) {
	usage := ConfigUsage()
	for _, name := range []string{"AUTHCORE_SESSION_TIMEOUT", "AUTHCORE_CHALLENGE_SIGNING_KEY"} {
		if !strings.Contains(usage, name) {
			t.Fatalf("usage missing %s", name)
		}
	}
}

func TestPasswordPolicyFollowsConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 14
	cfg.Policy.MinScore = 4

	p := cfg.PasswordPolicy()
	if p.MinLength != 14 || p.MinScore != 4 {
		t.Fatalf("policy not applied: %+v", p)
	}
}
