package service

import (
	"context"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

const auditPageSize = 200

type AuditService struct {
	store store.Store
}

func NewAuditService(st store.Store) *AuditService {
	return &AuditService{store: st}
}

// Latest returns the most recent journal entries, newest first.
func (s *AuditService) Latest(ctx context.Context, actor *models.User) ([]models.AuditLog, error) {
	if err := authorize(actor, models.AuditReaders); err != nil {
		return nil, err
	}
	return s.store.ListAuditLogs(ctx, auditPageSize)
}
