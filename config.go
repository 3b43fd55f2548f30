package authcore

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/MrEthical07/authcore/guard"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Config is the complete engine configuration. Every field carries an
// environment binding so LoadConfig can populate it; programmatic callers
// start from DefaultConfig and override what they need.
type Config struct {
	Password  PasswordConfig
	Policy    PolicyConfig
	Session   SessionConfig
	Guard     GuardConfig
	MFA       MFAConfig
	Challenge ChallengeConfig
	Tokens    TokenConfig
	RateLimit RateLimitConfig
	Timeouts  TimeoutConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// RequireVerifiedEmail rejects logins of accounts that never confirmed
	// their email address.
	RequireVerifiedEmail bool `env:"AUTHCORE_REQUIRE_VERIFIED_EMAIL" env-default:"true"`
	// DefaultRole is assigned to self-registered accounts.
	DefaultRole string `env:"AUTHCORE_DEFAULT_ROLE" env-default:"user"`
	// SweepInterval drives RunSessionSweeper.
	SweepInterval time.Duration `env:"AUTHCORE_SWEEP_INTERVAL" env-default:"5m"`
}

/*
====================================
PASSWORD HASHING CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost parameters.
type PasswordConfig struct {
	Memory           uint32 `env:"AUTHCORE_PASSWORD_MEMORY_KB" env-default:"65536"`
	Time             uint32 `env:"AUTHCORE_PASSWORD_TIME" env-default:"3"`
	Parallelism      uint8  `env:"AUTHCORE_PASSWORD_PARALLELISM" env-default:"2"`
	SaltLength       uint32 `env:"AUTHCORE_PASSWORD_SALT_LENGTH" env-default:"16"`
	KeyLength        uint32 `env:"AUTHCORE_PASSWORD_KEY_LENGTH" env-default:"32"`
	MaxPasswordBytes int    `env:"AUTHCORE_PASSWORD_MAX_BYTES" env-default:"1024"`
}

/*
====================================
PASSWORD POLICY CONFIG
====================================
*/

// PolicyConfig tunes the password policy. The common-word and keyboard
// sequence lists come from password.DefaultPolicy.
type PolicyConfig struct {
	MinLength  int `env:"AUTHCORE_POLICY_MIN_LENGTH" env-default:"8"`
	MaxLength  int `env:"AUTHCORE_POLICY_MAX_LENGTH" env-default:"128"`
	MinScore   int `env:"AUTHCORE_POLICY_MIN_SCORE" env-default:"3"`
	LongLength int `env:"AUTHCORE_POLICY_LONG_LENGTH" env-default:"12"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetimes, limits and the Redis layout.
type SessionConfig struct {
	DefaultTimeout    time.Duration `env:"AUTHCORE_SESSION_TIMEOUT" env-default:"30m"`
	RememberMeTimeout time.Duration `env:"AUTHCORE_SESSION_REMEMBER_ME_TIMEOUT" env-default:"720h"`
	MaxLifetime       time.Duration `env:"AUTHCORE_SESSION_MAX_LIFETIME" env-default:"0s"`
	MaxSessions       int           `env:"AUTHCORE_SESSION_MAX_SESSIONS" env-default:"5"`
	RetentionGrace    time.Duration `env:"AUTHCORE_SESSION_RETENTION_GRACE" env-default:"10m"`
	SweepBatch        int           `env:"AUTHCORE_SESSION_SWEEP_BATCH" env-default:"500"`
	RedisPrefix       string        `env:"AUTHCORE_SESSION_REDIS_PREFIX" env-default:"acs"`
}

/*
====================================
ACCOUNT GUARD CONFIG
====================================
*/

// GuardConfig controls lockout and the suspicious-activity heuristics.
type GuardConfig struct {
	Threshold            int           `env:"AUTHCORE_GUARD_THRESHOLD" env-default:"5"`
	LockoutDuration      time.Duration `env:"AUTHCORE_GUARD_LOCKOUT_DURATION" env-default:"15m"`
	FailureWindow        time.Duration `env:"AUTHCORE_GUARD_FAILURE_WINDOW" env-default:"1h"`
	FailureAlertCount    int           `env:"AUTHCORE_GUARD_FAILURE_ALERT_COUNT" env-default:"3"`
	ActivityWindow       time.Duration `env:"AUTHCORE_GUARD_ACTIVITY_WINDOW" env-default:"24h"`
	MaxDistinctIPs       int           `env:"AUTHCORE_GUARD_MAX_DISTINCT_IPS" env-default:"2"`
	MaxDistinctCountries int           `env:"AUTHCORE_GUARD_MAX_DISTINCT_COUNTRIES" env-default:"1"`
	OffHoursStart        int           `env:"AUTHCORE_GUARD_OFF_HOURS_START" env-default:"22"`
	OffHoursEnd          int           `env:"AUTHCORE_GUARD_OFF_HOURS_END" env-default:"6"`
	// Timezone is an IANA name used to evaluate off-hours logins.
	Timezone string `env:"AUTHCORE_GUARD_TIMEZONE" env-default:"UTC"`
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls TOTP parameters and backup codes.
type MFAConfig struct {
	Issuer           string `env:"AUTHCORE_MFA_ISSUER" env-default:"authcore"`
	Period           uint   `env:"AUTHCORE_MFA_PERIOD" env-default:"30"`
	Digits           int    `env:"AUTHCORE_MFA_DIGITS" env-default:"6"`
	Skew             uint   `env:"AUTHCORE_MFA_SKEW" env-default:"1"`
	BackupCodeCount  int    `env:"AUTHCORE_MFA_BACKUP_CODE_COUNT" env-default:"10"`
	BackupCodeLength int    `env:"AUTHCORE_MFA_BACKUP_CODE_LENGTH" env-default:"10"`
}

/*
====================================
MFA CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls the signed ticket returned by Login while the
// second factor is pending.
type ChallengeConfig struct {
	TTL         time.Duration `env:"AUTHCORE_CHALLENGE_TTL" env-default:"3m"`
	MaxAttempts int           `env:"AUTHCORE_CHALLENGE_MAX_ATTEMPTS" env-default:"5"`
	// SigningMethod is "hs256" or "ed25519".
	SigningMethod string `env:"AUTHCORE_CHALLENGE_SIGNING_METHOD" env-default:"hs256"`
	// SigningKey is the HS256 secret or a PEM Ed25519 private key. When
	// empty, Build generates a process-local HS256 secret; tickets then do
	// not survive a restart.
	SigningKey  string `env:"AUTHCORE_CHALLENGE_SIGNING_KEY"`
	Issuer      string `env:"AUTHCORE_CHALLENGE_ISSUER" env-default:"authcore"`
	Audience    string `env:"AUTHCORE_CHALLENGE_AUDIENCE" env-default:"authcore-mfa"`
	RedisPrefix string `env:"AUTHCORE_CHALLENGE_REDIS_PREFIX" env-default:"amc"`
}

/*
====================================
SINGLE-USE TOKEN CONFIG
====================================
*/

// TokenConfig sets the lifetimes of reset and verification tokens.
type TokenConfig struct {
	ResetTTL        time.Duration `env:"AUTHCORE_TOKEN_RESET_TTL" env-default:"15m"`
	VerificationTTL time.Duration `env:"AUTHCORE_TOKEN_VERIFICATION_TTL" env-default:"24h"`
}

/*
====================================
REQUEST THROTTLE CONFIG
====================================
*/

// RateLimitConfig bounds how often a single email can trigger outbound
// mail. A zero limit disables the scope.
type RateLimitConfig struct {
	RedisPrefix        string        `env:"AUTHCORE_RATE_REDIS_PREFIX" env-default:"acr"`
	RegisterLimit      int           `env:"AUTHCORE_RATE_REGISTER_LIMIT" env-default:"3"`
	RegisterWindow     time.Duration `env:"AUTHCORE_RATE_REGISTER_WINDOW" env-default:"1h"`
	ResetLimit         int           `env:"AUTHCORE_RATE_RESET_LIMIT" env-default:"3"`
	ResetWindow        time.Duration `env:"AUTHCORE_RATE_RESET_WINDOW" env-default:"15m"`
	VerificationLimit  int           `env:"AUTHCORE_RATE_VERIFICATION_LIMIT" env-default:"3"`
	VerificationWindow time.Duration `env:"AUTHCORE_RATE_VERIFICATION_WINDOW" env-default:"1h"`
}

/*
====================================
TIMEOUT CONFIG
====================================
*/

// TimeoutConfig bounds every call to an external dependency.
type TimeoutConfig struct {
	Store    time.Duration `env:"AUTHCORE_TIMEOUT_STORE" env-default:"2s"`
	Notifier time.Duration `env:"AUTHCORE_TIMEOUT_NOTIFIER" env-default:"5s"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"AUTHCORE_AUDIT_ENABLED" env-default:"true"`
	BufferSize int  `env:"AUTHCORE_AUDIT_BUFFER_SIZE" env-default:"1024"`
	DropIfFull bool `env:"AUTHCORE_AUDIT_DROP_IF_FULL" env-default:"true"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `env:"AUTHCORE_METRICS_ENABLED" env-default:"true"`
	EnableLatencyHistograms bool `env:"AUTHCORE_METRICS_LATENCY_HISTOGRAMS" env-default:"false"`
}

// DefaultConfig returns the production defaults. They match the
// env-default values used by LoadConfig.
func DefaultConfig() Config {
	sess := session.DefaultConfig()
	g := guard.DefaultConfig()
	m := mfa.DefaultConfig()
	pw := password.DefaultConfig()
	pol := password.DefaultPolicy()

	return Config{
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: pw.MaxPasswordBytes,
		},
		Policy: PolicyConfig{
			MinLength:  pol.MinLength,
			MaxLength:  pol.MaxLength,
			MinScore:   pol.MinScore,
			LongLength: pol.LongLength,
		},
		Session: SessionConfig{
			DefaultTimeout:    sess.DefaultTimeout,
			RememberMeTimeout: sess.RememberMeTimeout,
			MaxSessions:       sess.MaxSessions,
			RetentionGrace:    sess.RetentionGrace,
			SweepBatch:        sess.SweepBatch,
			RedisPrefix:       "acs",
		},
		Guard: GuardConfig{
			Threshold:            g.Threshold,
			LockoutDuration:      g.LockoutDuration,
			FailureWindow:        g.FailureWindow,
			FailureAlertCount:    g.FailureAlertCount,
			ActivityWindow:       g.ActivityWindow,
			MaxDistinctIPs:       g.MaxDistinctIPs,
			MaxDistinctCountries: g.MaxDistinctCountries,
			OffHoursStart:        g.OffHoursStart,
			OffHoursEnd:          g.OffHoursEnd,
			Timezone:             "UTC",
		},
		MFA: MFAConfig{
			Issuer:           m.Issuer,
			Period:           m.Period,
			Digits:           m.Digits,
			Skew:             m.Skew,
			BackupCodeCount:  m.BackupCodeCount,
			BackupCodeLength: m.BackupCodeLength,
		},
		Challenge: ChallengeConfig{
			TTL:           3 * time.Minute,
			MaxAttempts:   5,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "authcore",
			Audience:      "authcore-mfa",
			RedisPrefix:   "amc",
		},
		Tokens: TokenConfig{
			ResetTTL:        15 * time.Minute,
			VerificationTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix:        "acr",
			RegisterLimit:      3,
			RegisterWindow:     time.Hour,
			ResetLimit:         3,
			ResetWindow:        15 * time.Minute,
			VerificationLimit:  3,
			VerificationWindow: time.Hour,
		},
		Timeouts: TimeoutConfig{
			Store:    2 * time.Second,
			Notifier: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		RequireVerifiedEmail: true,
		DefaultRole:          "user",
		SweepInterval:        5 * time.Minute,
	}
}

// LoadConfig reads the configuration from environment variables. Unset
// variables take their documented defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigUsage returns a description of every supported environment variable.
func ConfigUsage() string {
	var cfg Config
	usage, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return usage
}

// Validate checks the configuration for values that would weaken or
// disable a control. Every failure wraps ErrConfigInvalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrConfigInvalid}, args...)...)
	}

	// Password
	if _, err := password.NewHasher(c.hasherConfig()); err != nil {
		return invalid("password: %v", err)
	}
	if c.Policy.MinLength < 4 {
		return invalid("Policy MinLength must be >= 4")
	}
	if c.Policy.MaxLength < c.Policy.MinLength {
		return invalid("Policy MaxLength must be >= MinLength")
	}
	if c.Policy.MinScore < 0 || c.Policy.MinScore > 5 {
		return invalid("Policy MinScore must be in [0,5]")
	}

	// Session
	if c.Session.DefaultTimeout <= 0 {
		return invalid("Session DefaultTimeout must be > 0")
	}
	if c.Session.RememberMeTimeout < c.Session.DefaultTimeout {
		return invalid("Session RememberMeTimeout must be >= DefaultTimeout")
	}
	if c.Session.MaxLifetime < 0 {
		return invalid("Session MaxLifetime must be >= 0")
	}
	if c.Session.MaxSessions < 0 {
		return invalid("Session MaxSessions must be >= 0")
	}
	if c.Session.RetentionGrace < 0 {
		return invalid("Session RetentionGrace must be >= 0")
	}

	// Guard
	gc, err := c.guardConfig()
	if err != nil {
		return invalid("Guard Timezone: %v", err)
	}
	if err := gc.Validate(); err != nil {
		return invalid("%v", err)
	}

	// MFA
	if c.MFA.Digits != 6 && c.MFA.Digits != 8 {
		return invalid("MFA Digits must be 6 or 8")
	}
	if c.MFA.Period == 0 {
		return invalid("MFA Period must be > 0")
	}
	if c.MFA.Skew > 2 {
		return invalid("MFA Skew must be <= 2")
	}
	if c.MFA.BackupCodeCount < 1 || c.MFA.BackupCodeLength < 8 {
		return invalid("MFA requires at least one backup code of length >= 8")
	}

	// Challenge
	if c.Challenge.TTL <= 0 || c.Challenge.TTL > 15*time.Minute {
		return invalid("Challenge TTL must be in (0,15m]")
	}
	if c.Challenge.MaxAttempts < 1 {
		return invalid("Challenge MaxAttempts must be >= 1")
	}
	switch jwt.SigningMethod(strings.ToLower(c.Challenge.SigningMethod)) {
	case jwt.MethodHS256:
		if c.Challenge.SigningKey != "" && len(c.Challenge.SigningKey) < 32 {
			return invalid("Challenge SigningKey must be at least 32 bytes for hs256")
		}
	case jwt.MethodEd25519:
		if c.Challenge.SigningKey == "" {
			return invalid("Challenge SigningKey is required for ed25519")
		}
	default:
		return invalid("Challenge SigningMethod %q is not supported", c.Challenge.SigningMethod)
	}

	// Tokens
	if c.Tokens.ResetTTL <= 0 || c.Tokens.ResetTTL > 24*time.Hour {
		return invalid("Tokens ResetTTL must be in (0,24h]")
	}
	if c.Tokens.VerificationTTL <= 0 {
		return invalid("Tokens VerificationTTL must be > 0")
	}

	// Rate limits
	for _, p := range []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{"Register", c.RateLimit.RegisterLimit, c.RateLimit.RegisterWindow},
		{"Reset", c.RateLimit.ResetLimit, c.RateLimit.ResetWindow},
		{"Verification", c.RateLimit.VerificationLimit, c.RateLimit.VerificationWindow},
	} {
		if p.limit < 0 {
			return invalid("RateLimit %sLimit must be >= 0", p.name)
		}
		if p.limit > 0 && p.window <= 0 {
			return invalid("RateLimit %sWindow must be > 0 when the limit is set", p.name)
		}
	}

	// Timeouts
	if c.Timeouts.Store <= 0 || c.Timeouts.Notifier <= 0 {
		return invalid("Timeouts must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0 when enabled")
	}

	if c.SweepInterval <= 0 {
		return invalid("SweepInterval must be > 0")
	}
	if strings.TrimSpace(c.DefaultRole) == "" {
		return invalid("DefaultRole must be set")
	}
	return nil
}

func (c *Config) hasherConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxPasswordBytes,
	}
}

// PasswordPolicy returns the strength policy the engine enforces.
func (c *Config) PasswordPolicy() password.Policy { return c.policy() }

func (c *Config) policy() password.Policy {
	p := password.DefaultPolicy()
	p.MinLength = c.Policy.MinLength
	p.MaxLength = c.Policy.MaxLength
	p.MinScore = c.Policy.MinScore
	if c.Policy.LongLength > 0 {
		p.LongLength = c.Policy.LongLength
	}
	return p
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		DefaultTimeout:    c.Session.DefaultTimeout,
		RememberMeTimeout: c.Session.RememberMeTimeout,
		MaxLifetime:       c.Session.MaxLifetime,
		MaxSessions:       c.Session.MaxSessions,
		RetentionGrace:    c.Session.RetentionGrace,
		SweepBatch:        c.Session.SweepBatch,
	}
}

func (c *Config) guardConfig() (guard.Config, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(c.Guard.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return guard.Config{}, err
		}
		loc = l
	}
	return guard.Config{
		Threshold:            c.Guard.Threshold,
		LockoutDuration:      c.Guard.LockoutDuration,
		FailureWindow:        c.Guard.FailureWindow,
		FailureAlertCount:    c.Guard.FailureAlertCount,
		ActivityWindow:       c.Guard.ActivityWindow,
		MaxDistinctIPs:       c.Guard.MaxDistinctIPs,
		MaxDistinctCountries: c.Guard.MaxDistinctCountries,
		OffHoursStart:        c.Guard.OffHoursStart,
		OffHoursEnd:          c.Guard.OffHoursEnd,
		Location:             loc,
	}, nil
}

func (c *Config) mfaConfig() mfa.Config {
	return mfa.Config{
		Issuer:           c.MFA.Issuer,
		Period:           c.MFA.Period,
		Digits:           c.MFA.Digits,
		Skew:             c.MFA.Skew,
		BackupCodeCount:  c.MFA.BackupCodeCount,
		BackupCodeLength: c.MFA.BackupCodeLength,
	}
}

func (c *Config) rateConfig() rate.Config {
	return rate.Config{
		Prefix: c.RateLimit.RedisPrefix,
		Policies: map[rate.Scope]rate.Policy{
			rate.ScopeRegister:     {Limit: c.RateLimit.RegisterLimit, Window: c.RateLimit.RegisterWindow},
			rate.ScopeResetRequest: {Limit: c.RateLimit.ResetLimit, Window: c.RateLimit.ResetWindow},
			rate.ScopeVerification: {Limit: c.RateLimit.VerificationLimit, Window: c.RateLimit.VerificationWindow},
		},
	}
}

func (c *Config) challengeConfig(key []byte) jwt.Config {
	return jwt.Config{
		TTL:           c.Challenge.TTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(c.Challenge.SigningMethod)),
		PrivateKey:    key,
		Issuer:        c.Challenge.Issuer,
		Audience:      c.Challenge.Audience,
	}
}
