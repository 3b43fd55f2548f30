//go:build integration

package pgstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("authcore"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func seedAccount(t *testing.T, s *Store, id, email string) identity.Account {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	acc, err := s.CreateAccount(context.Background(), identity.Account{
		ID:           id,
		Email:        email,
		FullName:     "Test User",
		Role:         identity.RoleUser,
		Active:       true,
		PasswordHash: "$argon2id$stub",
		CreatedAt:    now,
		UpdatedAt:    now,
	}, identity.DefaultSecuritySettings(id, 5, 8*time.Hour))
	require.NoError(t, err)
	return acc
}

func TestPostgresStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t.Run("AccountRoundTrip", func(t *testing.T) {
		acc := seedAccount(t, s, "acc-1", "  Alice@Example.com ")
		assert.Equal(t, int64(1), acc.Version)

		got, err := s.GetAccountByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", got.ID)
		assert.Equal(t, identity.RoleUser, got.Role)
		assert.True(t, got.LockedUntil.IsZero())

		_, err = s.GetAccountByID(ctx, "missing")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		seedAccount(t, s, "acc-dup-1", "dup@example.com")
		_, err := s.CreateAccount(ctx, identity.Account{
			ID: "acc-dup-2", Email: "DUP@example.com", Role: identity.RoleUser,
		}, identity.DefaultSecuritySettings("acc-dup-2", 5, time.Hour))
		assert.ErrorIs(t, err, identity.ErrDuplicateEmail)
	})

	t.Run("OptimisticConcurrency", func(t *testing.T) {
		acc := seedAccount(t, s, "acc-cas", "cas@example.com")

		first := acc
		first.FailedLogins = 1
		updated, err := s.UpdateAccount(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		stale := acc
		stale.FailedLogins = 7
		_, err = s.UpdateAccount(ctx, stale)
		assert.ErrorIs(t, err, identity.ErrConflict)

		missing := acc
		missing.ID = "nobody"
		_, err = s.UpdateAccount(ctx, missing)
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("SecuritySettings", func(t *testing.T) {
		seedAccount(t, s, "acc-st", "st@example.com")
		st, err := s.GetSecuritySettings(ctx, "acc-st")
		require.NoError(t, err)
		assert.Equal(t, 8*time.Hour, st.SessionTimeout)

		st.MFASecret = "SECRET"
		st.BackupCodes = []string{"h1", "h2"}
		next, err := s.UpdateSecuritySettings(ctx, st)
		require.NoError(t, err)
		assert.Equal(t, st.Version+1, next.Version)

		_, err = s.UpdateSecuritySettings(ctx, st)
		assert.ErrorIs(t, err, identity.ErrConflict)

		got, err := s.GetSecuritySettings(ctx, "acc-st")
		require.NoError(t, err)
		assert.Equal(t, []string{"h1", "h2"}, got.BackupCodes)
	})

	t.Run("TokenConsumedOnce", func(t *testing.T) {
		seedAccount(t, s, "acc-tok", "tok@example.com")
		now := time.Now().UTC()
		require.NoError(t, s.InsertToken(ctx, identity.Token{
			Hash: "h-1", Kind: identity.TokenPasswordReset, AccountID: "acc-tok",
			IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		}))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ConsumeToken(ctx, identity.TokenPasswordReset, "h-1", now); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)

		_, err := s.ConsumeToken(ctx, identity.TokenPasswordReset, "h-1", now)
		assert.ErrorIs(t, err, identity.ErrTokenUsed)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		seedAccount(t, s, "acc-exp", "exp@example.com")
		now := time.Now().UTC()
		require.NoError(t, s.InsertToken(ctx, identity.Token{
			Hash: "h-exp", Kind: identity.TokenEmailVerification, AccountID: "acc-exp",
			IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
		}))
		_, err := s.ConsumeToken(ctx, identity.TokenEmailVerification, "h-exp", now)
		assert.ErrorIs(t, err, identity.ErrTokenExpired)

		n, err := s.DeleteExpiredTokens(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
	})

	t.Run("Attempts", func(t *testing.T) {
		seedAccount(t, s, "acc-att", "att@example.com")
		base := time.Now().UTC().Truncate(time.Second)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.AppendAttempt(ctx, identity.LoginAttempt{
				AccountID: "acc-att", Email: "att@example.com",
				FailureReason: identity.FailureInvalidPassword, At: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, s.AppendAttempt(ctx, identity.LoginAttempt{
			Email: "ghost@example.com", FailureReason: identity.FailureUnknownAccount, At: base,
		}))

		got, err := s.ListAttempts(ctx, "acc-att", base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].At.Before(got[1].At))
		assert.Equal(t, identity.FailureInvalidPassword, got[0].FailureReason)
	})

	t.Run("AuditSink", func(t *testing.T) {
		sink := NewAuditSink(s.Pool(), nil)
		ev := audit.Event{EventType: "login_success", AccountID: "acc-1", Success: true,
			Metadata: map[string]string{"method": "password"}}
		ev.Stamp(time.Now().UTC())
		sink.Emit(ctx, ev)

		events, err := sink.ListAuditEvents(ctx, "acc-1", 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "login_success", events[0].EventType)
		assert.Equal(t, "password", events[0].Metadata["method"])
	})
}
