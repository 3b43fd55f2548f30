package mfa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/keylock"
	"github.com/MrEthical07/authcore/internal/random"
)

var (
	// ErrAlreadyEnabled is returned by Enroll and Confirm once MFA is active.
	ErrAlreadyEnabled = errors.New("mfa: already enabled")
	// ErrNotEnrolled is returned by Confirm without a pending enrollment.
	ErrNotEnrolled = errors.New("mfa: no pending enrollment")
	// ErrNotEnabled is returned by operations that need active MFA.
	ErrNotEnabled = errors.New("mfa: not enabled")
	// ErrInvalidCode is returned by Confirm for a wrong TOTP code.
	ErrInvalidCode = errors.New("mfa: invalid code")
)

var errUnchanged = errors.New("mfa: unchanged")

/*
====================================
MFA CONFIG
====================================
*/

// Config controls TOTP parameters and backup code generation.
type Config struct {
	Issuer     string
	Period     uint
	Digits     int
	Skew       uint
	SecretSize uint

	BackupCodeCount  int
	BackupCodeLength int

	MaxCASRetries int
}

// DefaultConfig returns RFC 6238 defaults compatible with common
// authenticator apps.
func DefaultConfig() Config {
	return Config{
		Issuer:           "authcore",
		Period:           30,
		Digits:           6,
		Skew:             1,
		SecretSize:       20,
		BackupCodeCount:  10,
		BackupCodeLength: 10,
		MaxCASRetries:    5,
	}
}

// Store is the subset of identity.Store the service needs.
type Store interface {
	GetAccountByID(ctx context.Context, id string) (identity.Account, error)
	GetSecuritySettings(ctx context.Context, accountID string) (identity.SecuritySettings, error)
	UpdateSecuritySettings(ctx context.Context, settings identity.SecuritySettings) (identity.SecuritySettings, error)
}

// Enrollment is returned once by Enroll. It is the only time the secret
// and the plaintext backup codes leave the service.
type Enrollment struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// Status summarizes an account's MFA state.
type Status struct {
	Enabled              bool
	Pending              bool
	BackupCodesRemaining int
}

// Method identifies which factor satisfied Verify.
type Method string

const (
	MethodNone       Method = ""
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c identity.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithAudit sets the audit sink.
func WithAudit(a audit.Sink) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service is the MFAService.
type Service struct {
	store  Store
	cfg    Config
	clock  identity.Clock
	audit  audit.Sink
	logger *slog.Logger
	locks  *keylock.Locker
}

// New builds a Service. Zero config fields take defaults.
func New(store Store, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		cfg.Digits = def.Digits
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = def.SecretSize
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = def.BackupCodeCount
	}
	if cfg.BackupCodeLength <= 0 {
		cfg.BackupCodeLength = def.BackupCodeLength
	}
	if cfg.MaxCASRetries <= 0 {
		cfg.MaxCASRetries = def.MaxCASRetries
	}

	s := &Service{
		store:  store,
		cfg:    cfg,
		clock:  identity.SystemClock{},
		audit:  audit.NoOpSink{},
		logger: slog.Default(),
		locks:  keylock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.cfg.Period,
		Skew:      0,
		Digits:    otp.Digits(s.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Enroll generates a fresh secret and backup codes. MFA stays disabled
// until Confirm succeeds. Enrolling again replaces a pending enrollment.
func (s *Service) Enroll(ctx context.Context, accountID string) (Enrollment, error) {
	acc, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return Enrollment{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: acc.Email,
		Period:      s.cfg.Period,
		SecretSize:  s.cfg.SecretSize,
		Digits:      otp.Digits(s.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("%w: %v", random.ErrEntropy, err)
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return Enrollment{}, err
	}

	_, err = s.mutate(ctx, accountID, func(st *identity.SecuritySettings) error {
		if st.MFAEnabled {
			return ErrAlreadyEnabled
		}
		st.MFASecret = key.Secret()
		st.BackupCodes = hashes
		st.MFALastStep = 0
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	s.audit.Emit(ctx, audit.Event{
		EventType:   "mfa_enrolled",
		Description: "MFA enrollment started",
		AccountID:   accountID,
		Severity:    audit.SeverityLow,
		Success:     true,
	})
	return Enrollment{Secret: key.Secret(), URI: key.URL(), BackupCodes: codes}, nil
}

// Confirm activates a pending enrollment with a TOTP code.
func (s *Service) Confirm(ctx context.Context, accountID, code string) error {
	_, err := s.mutate(ctx, accountID, func(st *identity.SecuritySettings) error {
		if st.MFAEnabled {
			return ErrAlreadyEnabled
		}
		if st.MFASecret == "" {
			return ErrNotEnrolled
		}
		step, ok := s.matchTOTP(st.MFASecret, code, st.MFALastStep)
		if !ok {
			return ErrInvalidCode
		}
		st.MFAEnabled = true
		st.MFALastStep = step
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Emit(ctx, audit.Event{
		EventType:   "mfa_enabled",
		Description: "MFA enabled",
		AccountID:   accountID,
		Severity:    audit.SeverityMedium,
		Success:     true,
	})
	return nil
}

// Verify checks a second-factor code. Numeric codes of the configured
// length are checked as TOTP; anything else as a backup code, which is
// consumed on success. A TOTP step is accepted at most once.
func (s *Service) Verify(ctx context.Context, accountID, code string) (bool, error) {
	m, err := s.VerifyMethod(ctx, accountID, code)
	return m != MethodNone, err
}

// VerifyMethod is Verify that also reports which factor matched.
func (s *Service) VerifyMethod(ctx context.Context, accountID, code string) (Method, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return MethodNone, nil
	}
	isTOTP := s.looksLikeTOTP(code)

	var remaining int
	_, err := s.mutate(ctx, accountID, func(st *identity.SecuritySettings) error {
		if !st.MFAEnabled {
			return ErrNotEnabled
		}
		if isTOTP {
			step, ok := s.matchTOTP(st.MFASecret, code, st.MFALastStep)
			if !ok {
				return errUnchanged
			}
			st.MFALastStep = step
			return nil
		}

		idx := matchBackupCode(st.BackupCodes, code)
		if idx < 0 {
			return errUnchanged
		}
		st.BackupCodes = append(st.BackupCodes[:idx:idx], st.BackupCodes[idx+1:]...)
		remaining = len(st.BackupCodes)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return MethodNone, nil
	}
	if err != nil {
		return MethodNone, err
	}

	if isTOTP {
		return MethodTOTP, nil
	}
	s.audit.Emit(ctx, audit.Event{
		EventType:   "backup_code_used",
		Description: "MFA backup code consumed",
		AccountID:   accountID,
		Severity:    audit.SeverityMedium,
		Success:     true,
		Metadata:    map[string]string{"remaining": strconv.Itoa(remaining)},
	})
	return MethodBackupCode, nil
}

// Disable removes the secret, backup codes and replay state.
func (s *Service) Disable(ctx context.Context, accountID string) error {
	_, err := s.mutate(ctx, accountID, func(st *identity.SecuritySettings) error {
		if !st.MFAEnabled && st.MFASecret == "" {
			return ErrNotEnabled
		}
		st.MFAEnabled = false
		st.MFASecret = ""
		st.BackupCodes = nil
		st.MFALastStep = 0
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Emit(ctx, audit.Event{
		EventType:   "mfa_disabled",
		Description: "MFA disabled",
		AccountID:   accountID,
		Severity:    audit.SeverityHigh,
		Success:     true,
	})
	return nil
}

// RegenerateBackupCodes replaces every backup code of an MFA-enabled account.
func (s *Service) RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	_, err = s.mutate(ctx, accountID, func(st *identity.SecuritySettings) error {
		if !st.MFAEnabled {
			return ErrNotEnabled
		}
		st.BackupCodes = hashes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.Event{
		EventType:   "backup_codes_regenerated",
		Description: "MFA backup codes regenerated",
		AccountID:   accountID,
		Severity:    audit.SeverityMedium,
		Success:     true,
	})
	return codes, nil
}

// Status reports the account's MFA state.
func (s *Service) Status(ctx context.Context, accountID string) (Status, error) {
	st, err := s.store.GetSecuritySettings(ctx, accountID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Enabled:              st.MFAEnabled,
		Pending:              st.MFAPending(),
		BackupCodesRemaining: len(st.BackupCodes),
	}, nil
}

func (s *Service) mutate(ctx context.Context, accountID string, fn func(*identity.SecuritySettings) error) (identity.SecuritySettings, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	for i := 0; i <= s.cfg.MaxCASRetries; i++ {
		st, err := s.store.GetSecuritySettings(ctx, accountID)
		if err != nil {
			return identity.SecuritySettings{}, err
		}
		if err := fn(&st); err != nil {
			return identity.SecuritySettings{}, err
		}
		st.UpdatedAt = s.clock.Now()

		updated, err := s.store.UpdateSecuritySettings(ctx, st)
		if err != nil {
			if errors.Is(err, identity.ErrConflict) {
				continue
			}
			return identity.SecuritySettings{}, err
		}
		return updated, nil
	}
	return identity.SecuritySettings{}, fmt.Errorf("mfa: %w after %d retries", identity.ErrConflict, s.cfg.MaxCASRetries)
}

func (s *Service) looksLikeTOTP(code string) bool {
	if len(code) != s.cfg.Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// matchTOTP returns the matching time step within the skew window. Steps
// at or below lastStep are rejected as replays.
func (s *Service) matchTOTP(secret, code string, lastStep int64) (int64, bool) {
	if !s.looksLikeTOTP(code) || secret == "" {
		return 0, false
	}

	period := int64(s.cfg.Period)
	base := s.clock.Now().Unix() / period
	skew := int64(s.cfg.Skew)
	opts := s.validateOpts()

	for step := base - skew; step <= base+skew; step++ {
		if step < 0 {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			if step <= lastStep {
				return 0, false
			}
			return step, true
		}
	}
	return 0, false
}

// matchBackupCode returns the index of the stored hash matching code, or -1.
// Every entry is compared so timing does not reveal the position.
func matchBackupCode(hashes []string, code string) int {
	sum := []byte(random.HashToken(random.NormalizeBackupCode(code)))
	idx := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), sum) == 1 && idx < 0 {
			idx = i
		}
	}
	return idx
}

func (s *Service) newBackupCodes() ([]string, []string, error) {
	codes := make([]string, s.cfg.BackupCodeCount)
	hashes := make([]string, s.cfg.BackupCodeCount)
	for i := range codes {
		c, err := random.BackupCode(s.cfg.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		codes[i] = c
		hashes[i] = random.HashToken(random.NormalizeBackupCode(c))
	}
	return codes, hashes, nil
}
