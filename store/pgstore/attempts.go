package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/identity"
)

func (s *Store) AppendAttempt(ctx context.Context, a identity.LoginAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var accountID *string
	if a.AccountID != "" {
		accountID = &a.AccountID
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO login_attempts
		(id, account_id, email, success, failure_reason, ip, user_agent, country, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, accountID, a.Email, a.Success, string(a.FailureReason), a.IP, a.UserAgent, a.Country, a.At)
	return err
}

func (s *Store) ListAttempts(ctx context.Context, accountID string, since time.Time) ([]identity.LoginAttempt, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, email, success, failure_reason, ip, user_agent, country, at
		FROM login_attempts
		WHERE account_id = $1 AND at >= $2
		ORDER BY at, id`, accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.LoginAttempt
	for rows.Next() {
		a := identity.LoginAttempt{AccountID: accountID}
		var reason string
		if err := rows.Scan(&a.ID, &a.Email, &a.Success, &reason, &a.IP, &a.UserAgent, &a.Country, &a.At); err != nil {
			return nil, err
		}
		a.FailureReason = identity.FailureReason(reason)
		a.At = a.At.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttemptsBefore prunes the attempt log and returns how many rows
// were removed.
func (s *Store) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM login_attempts WHERE at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
