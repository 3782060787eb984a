package database

import (
	"context"

	"qc-standards/internal/models"
)

// CreateAuditLog appends to the journal; callers run it inside the operation's transaction.
func (s *Store) CreateAuditLog(ctx context.Context, l *models.AuditLog) error {
	return s.create(ctx, l, "audit log")
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	q := s.q(ctx).Preload("User").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var logs []models.AuditLog
	err := q.Find(&logs).Error
	return logs, translateError(err, "audit logs")
}
