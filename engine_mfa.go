package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/internal/random"
	"github.com/MrEthical07/authcore/mfa"
)

// EnrollMFA starts TOTP enrollment. The returned secret and backup codes
// are shown once; MFA stays off until ConfirmMFA succeeds.
func (e *Engine) EnrollMFA(ctx context.Context, accountID string) (*MFAEnrollment, error) {
	if _, err := e.activeAccount(ctx, accountID); err != nil {
		return nil, err
	}

	en, err := e.mfa.Enroll(ctx, accountID)
	if err != nil {
		return nil, mfaErr(err)
	}
	return &MFAEnrollment{
		Secret:          en.Secret,
		ProvisioningURI: en.URI,
		BackupCodes:     en.BackupCodes,
	}, nil
}

// ConfirmMFA activates a pending enrollment with a code from the
// authenticator app.
func (e *Engine) ConfirmMFA(ctx context.Context, accountID, code string) error {
	if err := e.mfa.Confirm(ctx, accountID, code); err != nil {
		return mfaErr(err)
	}
	e.metricInc(MetricMFAEnabled)
	return nil
}

// DisableMFA describes the disablemfa operation and its observable behavior.
//
// DisableMFA requires the account password. A wrong password is audited
// as mfa_disable_failure and returns ErrInvalidCredentials; it does not
// count toward lockout.
func (e *Engine) DisableMFA(ctx context.Context, accountID, currentPassword string) error {
	acc, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if ok, _ := e.hasher.Verify(currentPassword, acc.PasswordHash); !ok {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventMFADisableFailure,
			severity:  audit.SeverityHigh,
			accountID: acc.ID,
			err:       ErrInvalidCredentials,
		})
		return ErrInvalidCredentials
	}

	if err := e.mfa.Disable(ctx, acc.ID); err != nil {
		return mfaErr(err)
	}
	e.metricInc(MetricMFADisabled)
	_ = e.notifier.SendSecurityAlert(ctx, recipient(acc), alertFor("mfa_disabled", e.clock.Now(),
		"Two-factor authentication was turned off for your account."))
	return nil
}

// RegenerateBackupCodes replaces every backup code after re-authenticating
// with a current TOTP code. Backup codes are not accepted here.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if _, err := e.activeAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if !e.looksLikeTOTP(totpCode) {
		return nil, ErrMFAInvalid
	}

	method, err := e.mfa.VerifyMethod(ctx, accountID, totpCode)
	if err != nil {
		return nil, mfaErr(err)
	}
	if method != mfa.MethodTOTP {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventMFAFailure,
			severity:  audit.SeverityMedium,
			accountID: accountID,
			err:       ErrMFAInvalid,
			metadata:  map[string]string{"operation": "regenerate_backup_codes"},
		})
		return nil, ErrMFAInvalid
	}

	codes, err := e.mfa.RegenerateBackupCodes(ctx, accountID)
	if err != nil {
		return nil, mfaErr(err)
	}
	e.metricInc(MetricBackupCodeRegenerated)
	return codes, nil
}

// MFAStatus reports whether MFA is enabled or pending and how many
// backup codes remain.
func (e *Engine) MFAStatus(ctx context.Context, accountID string) (MFAStatus, error) {
	st, err := e.mfa.Status(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return MFAStatus{}, ErrAccountNotFound
		}
		return MFAStatus{}, storeErr(err)
	}
	return MFAStatus{
		Enabled:              st.Enabled,
		Pending:              st.Pending,
		BackupCodesRemaining: st.BackupCodesRemaining,
	}, nil
}

func (e *Engine) looksLikeTOTP(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != e.config.MFA.Digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mfaErr(err error) error {
	switch {
	case errors.Is(err, mfa.ErrInvalidCode):
		return ErrMFAInvalid
	case errors.Is(err, mfa.ErrAlreadyEnabled):
		return ErrMFAAlreadyEnabled
	case errors.Is(err, mfa.ErrNotEnrolled), errors.Is(err, mfa.ErrNotEnabled):
		return ErrMFANotEnabled
	case isNotFound(err):
		return ErrAccountNotFound
	case errors.Is(err, random.ErrEntropy):
		return errors.Join(ErrInsecureRandom, err)
	default:
		return storeErr(err)
	}
}
