// Package service holds the QC workflows: identity, template lifecycle,
// checklist execution, offline sync and photo evidence. Every mutating
// operation runs inside one store transaction together with its audit entry.
package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

func utcNow() time.Time { return time.Now().UTC() }

// authorize checks that actor is an active user holding one of roles.
// No roles means any authenticated user.
func authorize(actor *models.User, roles []models.UserRole) error {
	if actor == nil || actor.ID == 0 {
		return models.ErrUnauthenticated
	}
	if !actor.IsActive {
		return fmt.Errorf("%w: user is inactive", models.ErrUnauthenticated)
	}
	if len(roles) > 0 && !actor.HasRole(roles...) {
		return fmt.Errorf("%w: role %s not allowed", models.ErrForbidden, actor.Role)
	}
	return nil
}

func audit(ctx context.Context, tx store.Audit, actor *models.User, entity string, entityID uint, action, details string) error {
	var uid uint
	if actor != nil {
		uid = actor.ID
	}
	if err := tx.CreateAuditLog(ctx, &models.AuditLog{
		UserID:   uid,
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
		Details:  details,
	}); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

// checkLen rejects values wider than their column.
func checkLen(field, v string, max int) error {
	if utf8.RuneCountInString(v) > max {
		return invalid("%s must be at most %d characters", field, max)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
