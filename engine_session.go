package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/internal/random"
	"github.com/MrEthical07/authcore/session"
)

// ValidateSession describes the validatesession operation and its observable behavior.
//
// ValidateSession resolves a bearer token, slides its idle expiry and
// re-checks the owning account. Unknown or revoked tokens return
// ErrSessionInvalid and expired ones ErrSessionExpired. When the account
// was deactivated or removed every one of its sessions is revoked and
// ErrSessionInvalid is returned.
//
// Permissions are resolved from the account's current role, so a role
// change takes effect on the next call.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*SessionInfo, error) {
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	sess, err := e.sessions.Validate(ctx, token)
	if err != nil {
		return nil, sessionErr(err)
	}

	acc, err := e.store.GetAccountByID(ctx, sess.AccountID)
	if err != nil && !isNotFound(err) {
		return nil, storeErr(err)
	}
	if err != nil || !acc.Active {
		n, rerr := e.sessions.RevokeAll(ctx, sess.AccountID)
		if rerr != nil {
			e.logger.Warn("sessions of inactive account not revoked", "account_id", sess.AccountID, "error", rerr)
		}
		e.metrics.Add(MetricSessionInvalidated, uint64(n))
		return nil, ErrSessionInvalid
	}

	settings, err := e.store.GetSecuritySettings(ctx, acc.ID)
	if err != nil && !isNotFound(err) {
		return nil, storeErr(err)
	}

	return &SessionInfo{
		SessionID:     sess.ID,
		AccountID:     acc.ID,
		Email:         acc.Email,
		FullName:      acc.FullName,
		Role:          acc.Role,
		EmailVerified: acc.EmailVerified,
		MFAEnabled:    settings.MFAEnabled,
		Permissions:   e.roles.EffectivePermissions(string(acc.Role)),
		ExpiresAt:     sess.ExpiresAt,
	}, nil
}

// Logout revokes the session behind token. Unknown tokens are a no-op.
func (e *Engine) Logout(ctx context.Context, token string) error {
	var accountID, sessionID string
	if sess, err := e.sessions.Validate(ctx, token); err == nil {
		accountID, sessionID = sess.AccountID, sess.ID
	}

	if err := e.sessions.Revoke(ctx, token); err != nil {
		return storeErr(err)
	}
	if sessionID == "" {
		return nil
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLogout,
		severity:  audit.SeverityLow,
		accountID: accountID,
		sessionID: sessionID,
		success:   true,
	})
	return nil
}

// LogoutAll revokes every session of accountID and returns the count.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	n, err := e.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return n, storeErr(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLogoutAll,
		severity:  audit.SeverityMedium,
		accountID: accountID,
		success:   true,
		metadata:  map[string]string{"revoked": strconv.Itoa(n)},
	})
	return n, nil
}

// LogoutOthers revokes every session of the token's account except the
// one behind token. The token itself must be a live session.
func (e *Engine) LogoutOthers(ctx context.Context, token string) (int, error) {
	sess, err := e.sessions.Validate(ctx, token)
	if err != nil {
		return 0, sessionErr(err)
	}

	n, err := e.sessions.RevokeOthers(ctx, sess.AccountID, token)
	if err != nil {
		return n, storeErr(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLogoutAll,
		severity:  audit.SeverityMedium,
		accountID: sess.AccountID,
		sessionID: sess.ID,
		success:   true,
		metadata: map[string]string{
			"revoked":   strconv.Itoa(n),
			"kept_self": "true",
		},
	})
	return n, nil
}

// ListSessions returns the live sessions of accountID, most recently
// active first. currentToken, when set, marks the caller's own session.
func (e *Engine) ListSessions(ctx context.Context, accountID, currentToken string) ([]SessionView, error) {
	all, err := e.sessions.List(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}

	current := ""
	if currentToken != "" {
		current = random.HashToken(currentToken)
	}

	out := make([]SessionView, 0, len(all))
	for _, s := range all {
		out = append(out, SessionView{
			ID:             s.ID,
			IP:             s.IP,
			UserAgent:      s.UserAgent,
			DeviceName:     s.DeviceName,
			Country:        s.Country,
			RememberMe:     s.RememberMe,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
			Current:        s.ID == current,
		})
	}
	return out, nil
}

// RevokeSession deletes one of accountID's sessions by its id, as listed
// by ListSessions. It reports false when the id does not belong to the
// account.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) (bool, error) {
	ok, err := e.sessions.RevokeByID(ctx, accountID, sessionID)
	if err != nil {
		return false, storeErr(err)
	}
	if ok {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLogout,
			severity:  audit.SeverityLow,
			accountID: accountID,
			sessionID: sessionID,
			success:   true,
		})
	}
	return ok, nil
}

func sessionErr(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionInvalid
	case errors.Is(err, session.ErrSessionExpired):
		return ErrSessionExpired
	default:
		return storeErr(err)
	}
}
