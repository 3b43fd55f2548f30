package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/authcore/identity"
)

const uniqueViolation = "23505"

// Store implements identity.Store and identity.AttemptLog on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ identity.Store      = (*Store)(nil)
	_ identity.AttemptLog = (*Store)(nil)
)

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

const accountColumns = `id, email, full_name, role, active, email_verified, failed_logins,
	locked_until, last_login_at, login_count, password_hash, password_changed_at,
	created_at, updated_at, version`

func scanAccount(row pgx.Row) (identity.Account, error) {
	var (
		a                                       identity.Account
		role                                    string
		lockedUntil, lastLogin, passwordChanged *time.Time
	)
	err := row.Scan(&a.ID, &a.Email, &a.FullName, &role, &a.Active, &a.EmailVerified, &a.FailedLogins,
		&lockedUntil, &lastLogin, &a.LoginCount, &a.PasswordHash, &passwordChanged,
		&a.CreatedAt, &a.UpdatedAt, &a.Version)
	if err != nil {
		return identity.Account{}, notFound(err)
	}
	a.Role = identity.Role(role)
	a.LockedUntil = fromNull(lockedUntil)
	a.LastLoginAt = fromNull(lastLogin)
	a.PasswordChangedAt = fromNull(passwordChanged)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (identity.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		identity.NormalizeEmail(email))
	return scanAccount(row)
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (identity.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// CreateAccount inserts the account and its settings in one transaction.
func (s *Store) CreateAccount(ctx context.Context, a identity.Account, st identity.SecuritySettings) (identity.Account, error) {
	a.Email = identity.NormalizeEmail(a.Email)
	a.Version = 1

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			a.ID, a.Email, a.FullName, string(a.Role), a.Active, a.EmailVerified, a.FailedLogins,
			toNull(a.LockedUntil), toNull(a.LastLoginAt), a.LoginCount, a.PasswordHash, toNull(a.PasswordChangedAt),
			a.CreatedAt, a.UpdatedAt, a.Version)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				if pgErr.ConstraintName == "accounts_email_key" {
					return identity.ErrDuplicateEmail
				}
				return identity.ErrConflict
			}
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO security_settings (account_id, mfa_enabled, mfa_secret,
			backup_codes, mfa_last_step, max_concurrent_sessions, session_timeout_us,
			login_notifications, suspicious_activity_alerts, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`,
			a.ID, st.MFAEnabled, st.MFASecret, codes(st.BackupCodes), st.MFALastStep,
			st.MaxConcurrentSessions, st.SessionTimeout.Microseconds(),
			st.LoginNotifications, st.SuspiciousActivityAlerts, toNull(st.UpdatedAt))
		return err
	})
	if err != nil {
		return identity.Account{}, err
	}
	return a, nil
}

// UpdateAccount writes a only when the stored version equals a.Version.
func (s *Store) UpdateAccount(ctx context.Context, a identity.Account) (identity.Account, error) {
	a.Email = identity.NormalizeEmail(a.Email)

	var version int64
	err := s.pool.QueryRow(ctx, `UPDATE accounts SET
			email = $3, full_name = $4, role = $5, active = $6, email_verified = $7,
			failed_logins = $8, locked_until = $9, last_login_at = $10, login_count = $11,
			password_hash = $12, password_changed_at = $13, updated_at = $14,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`,
		a.ID, a.Version, a.Email, a.FullName, string(a.Role), a.Active, a.EmailVerified,
		a.FailedLogins, toNull(a.LockedUntil), toNull(a.LastLoginAt), a.LoginCount,
		a.PasswordHash, toNull(a.PasswordChangedAt), a.UpdatedAt,
	).Scan(&version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.Account{}, identity.ErrDuplicateEmail
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Account{}, s.missingOrConflict(ctx, `SELECT 1 FROM accounts WHERE id = $1`, a.ID)
		}
		return identity.Account{}, err
	}
	a.Version = version
	return a, nil
}

func (s *Store) GetSecuritySettings(ctx context.Context, accountID string) (identity.SecuritySettings, error) {
	var (
		st        identity.SecuritySettings
		timeoutUS int64
		updatedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT account_id, mfa_enabled, mfa_secret, backup_codes,
			mfa_last_step, max_concurrent_sessions, session_timeout_us, login_notifications,
			suspicious_activity_alerts, updated_at, version
		FROM security_settings WHERE account_id = $1`, accountID,
	).Scan(&st.AccountID, &st.MFAEnabled, &st.MFASecret, &st.BackupCodes, &st.MFALastStep,
		&st.MaxConcurrentSessions, &timeoutUS, &st.LoginNotifications,
		&st.SuspiciousActivityAlerts, &updatedAt, &st.Version)
	if err != nil {
		return identity.SecuritySettings{}, notFound(err)
	}
	st.SessionTimeout = time.Duration(timeoutUS) * time.Microsecond
	st.UpdatedAt = fromNull(updatedAt)
	if len(st.BackupCodes) == 0 {
		st.BackupCodes = nil
	}
	return st, nil
}

// UpdateSecuritySettings writes st only when the stored version equals st.Version.
func (s *Store) UpdateSecuritySettings(ctx context.Context, st identity.SecuritySettings) (identity.SecuritySettings, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `UPDATE security_settings SET
			mfa_enabled = $3, mfa_secret = $4, backup_codes = $5, mfa_last_step = $6,
			max_concurrent_sessions = $7, session_timeout_us = $8, login_notifications = $9,
			suspicious_activity_alerts = $10, updated_at = $11, version = version + 1
		WHERE account_id = $1 AND version = $2
		RETURNING version`,
		st.AccountID, st.Version, st.MFAEnabled, st.MFASecret, codes(st.BackupCodes), st.MFALastStep,
		st.MaxConcurrentSessions, st.SessionTimeout.Microseconds(), st.LoginNotifications,
		st.SuspiciousActivityAlerts, toNull(st.UpdatedAt),
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.SecuritySettings{}, s.missingOrConflict(ctx,
				`SELECT 1 FROM security_settings WHERE account_id = $1`, st.AccountID)
		}
		return identity.SecuritySettings{}, err
	}
	out := st.Clone()
	out.Version = version
	return out, nil
}

func (s *Store) InsertToken(ctx context.Context, t identity.Token) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tokens (kind, hash, account_id, issued_at, expires_at, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(t.Kind), t.Hash, t.AccountID, t.IssuedAt, t.ExpiresAt, toNull(t.UsedAt))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return identity.ErrConflict
	}
	return err
}

func (s *Store) GetToken(ctx context.Context, kind identity.TokenKind, hash string) (identity.Token, error) {
	return scanToken(s.pool.QueryRow(ctx, `SELECT kind, hash, account_id, issued_at, expires_at, used_at
		FROM tokens WHERE kind = $1 AND hash = $2`, string(kind), hash))
}

// ConsumeToken marks the token used in a single conditional UPDATE, so at
// most one concurrent caller succeeds.
func (s *Store) ConsumeToken(ctx context.Context, kind identity.TokenKind, hash string, at time.Time) (identity.Token, error) {
	tok, err := scanToken(s.pool.QueryRow(ctx, `UPDATE tokens SET used_at = $3
		WHERE kind = $1 AND hash = $2 AND used_at IS NULL AND expires_at > $3
		RETURNING kind, hash, account_id, issued_at, expires_at, used_at`,
		string(kind), hash, at))
	if !errors.Is(err, identity.ErrNotFound) {
		return tok, err
	}

	cur, err := s.GetToken(ctx, kind, hash)
	if err != nil {
		return identity.Token{}, err
	}
	if err := cur.Usable(at); err != nil {
		return identity.Token{}, err
	}
	return identity.Token{}, identity.ErrTokenUsed
}

func scanToken(row pgx.Row) (identity.Token, error) {
	var (
		t      identity.Token
		kind   string
		usedAt *time.Time
	)
	if err := row.Scan(&kind, &t.Hash, &t.AccountID, &t.IssuedAt, &t.ExpiresAt, &usedAt); err != nil {
		return identity.Token{}, notFound(err)
	}
	t.Kind = identity.TokenKind(kind)
	t.IssuedAt = t.IssuedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.UsedAt = fromNull(usedAt)
	return t, nil
}

// DeleteExpiredTokens removes tokens that expired before cutoff and
// returns how many were deleted.
func (s *Store) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) missingOrConflict(ctx context.Context, query, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, query, id).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return identity.ErrNotFound
	case err != nil:
		return err
	default:
		return identity.ErrConflict
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.ErrNotFound
	}
	return err
}

func toNull(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNull(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func codes(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}
