package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/permission"
)

// ChangeRole describes the changerole operation and its observable behavior.
//
// The actor must be allowed to assign both the target's current role and
// the new one, so an hr_manager can neither promote to nor demote from
// admin. Actors cannot change their own role. Unknown roles are a
// *ValidationError.
func (e *Engine) ChangeRole(ctx context.Context, actorID, targetID string, role identity.Role) error {
	next, ok := identity.ParseRole(string(role))
	if !ok {
		verr := &ValidationError{}
		verr.add("role", "unknown role")
		return verr
	}

	actor, err := e.activeAccount(ctx, actorID)
	if err != nil {
		return e.denied(ctx, actorID, "change_role", err)
	}
	if actor.ID == targetID {
		return e.denied(ctx, actor.ID, "change_role", ErrPermissionDenied)
	}

	var previous identity.Role
	_, err = e.mutateAccount(ctx, targetID, func(a *identity.Account) error {
		if !e.roles.CanAssignRole(string(actor.Role), string(a.Role)) ||
			!e.roles.CanAssignRole(string(actor.Role), string(next)) {
			return ErrPermissionDenied
		}
		previous = a.Role
		if a.Role == next {
			return errUnchanged
		}
		a.Role = next
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return e.denied(ctx, actor.ID, "change_role", err)
		}
		return err
	}
	if previous == next {
		return nil
	}

	e.metricInc(MetricRoleChanged)
	e.emitAudit(ctx, auditRecord{
		eventType:   auditEventRoleChanged,
		description: "role changed",
		severity:    audit.SeverityHigh,
		accountID:   targetID,
		success:     true,
		metadata: map[string]string{
			"actor_id": actor.ID,
			"from":     string(previous),
			"to":       string(next),
		},
	})
	return nil
}

// DeactivateAccount disables the target account and revokes all of its
// sessions. The actor needs users.manage and cannot deactivate itself.
func (e *Engine) DeactivateAccount(ctx context.Context, actorID, targetID string) error {
	actor, err := e.requireManager(ctx, actorID, "deactivate_account")
	if err != nil {
		return err
	}
	if actor.ID == targetID {
		return e.denied(ctx, actor.ID, "deactivate_account", ErrPermissionDenied)
	}

	changed := false
	target, err := e.mutateAccount(ctx, targetID, func(a *identity.Account) error {
		if !a.Active {
			return errUnchanged
		}
		a.Active = false
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	revoked, err := e.sessions.RevokeAll(ctx, target.ID)
	if err != nil {
		return storeErr(err)
	}
	e.metrics.Add(MetricSessionInvalidated, uint64(revoked))

	e.metricInc(MetricAccountDisabled)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventAccountDeactivated,
		severity:  audit.SeverityHigh,
		accountID: target.ID,
		success:   true,
		metadata:  map[string]string{"actor_id": actor.ID},
	})
	return nil
}

// ReactivateAccount re-enables a deactivated account. The actor needs
// users.manage.
func (e *Engine) ReactivateAccount(ctx context.Context, actorID, targetID string) error {
	actor, err := e.requireManager(ctx, actorID, "reactivate_account")
	if err != nil {
		return err
	}

	changed := false
	target, err := e.mutateAccount(ctx, targetID, func(a *identity.Account) error {
		if a.Active {
			return errUnchanged
		}
		a.Active = true
		changed = true
		return nil
	})
	if err != nil || !changed {
		return err
	}

	e.metricInc(MetricAccountReactivated)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventAccountReactivated,
		severity:  audit.SeverityHigh,
		accountID: target.ID,
		success:   true,
		metadata:  map[string]string{"actor_id": actor.ID},
	})
	return nil
}

// UnlockAccount clears the failed-login counter and lock window of the
// target account. The actor needs users.manage.
func (e *Engine) UnlockAccount(ctx context.Context, actorID, targetID string) error {
	actor, err := e.requireManager(ctx, actorID, "unlock_account")
	if err != nil {
		return err
	}
	if _, err := e.loadAccount(ctx, targetID); err != nil {
		return err
	}

	if err := e.guard.Unlock(ctx, targetID); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventAccountUnlocked,
		severity:  audit.SeverityMedium,
		accountID: targetID,
		success:   true,
		metadata:  map[string]string{"actor_id": actor.ID},
	})
	return nil
}

// Authorize validates token and requires every permission in perms.
// A live session lacking a permission returns ErrPermissionDenied and the
// denial is audited.
func (e *Engine) Authorize(ctx context.Context, token string, perms ...string) (*SessionInfo, error) {
	info, err := e.ValidateSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if !e.roles.HasAll(string(info.Role), perms...) {
		return nil, e.denied(ctx, info.AccountID, strings.Join(perms, ","), ErrPermissionDenied)
	}
	return info, nil
}

// requireManager loads the actor and checks it holds users.manage.
func (e *Engine) requireManager(ctx context.Context, actorID, operation string) (identity.Account, error) {
	actor, err := e.activeAccount(ctx, actorID)
	if err != nil {
		return identity.Account{}, e.denied(ctx, actorID, operation, err)
	}
	if !e.roles.HasPermission(string(actor.Role), permission.PermUsersManage) {
		return identity.Account{}, e.denied(ctx, actor.ID, operation, ErrPermissionDenied)
	}
	return actor, nil
}

// denied audits an authorization failure. Unknown or deactivated actors
// are reported as ErrPermissionDenied; infrastructure errors pass through.
func (e *Engine) denied(ctx context.Context, actorID, operation string, cause error) error {
	if KindOf(cause) == KindInfrastructure {
		return cause
	}
	e.metricInc(MetricPermissionDenied)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventPermissionDenied,
		severity:  audit.SeverityMedium,
		accountID: actorID,
		err:       ErrPermissionDenied,
		metadata:  map[string]string{"operation": operation},
	})
	return ErrPermissionDenied
}
