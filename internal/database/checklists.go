package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

func (s *Store) CreateQCDoc(ctx context.Context, d *models.QCDoc) error {
	return s.create(ctx, d, "qc doc")
}

func (s *Store) GetQCDoc(ctx context.Context, id uint) (*models.QCDoc, error) {
	var d models.QCDoc
	if err := s.get(ctx, &d, id, "qc doc"); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetQCDocByClientID(ctx context.Context, clientID string) (*models.QCDoc, error) {
	var d models.QCDoc
	if err := s.q(ctx).Where("client_id = ?", clientID).First(&d).Error; err != nil {
		return nil, translateError(err, "qc doc "+clientID)
	}
	return &d, nil
}

func (s *Store) UpdateQCDoc(ctx context.Context, d *models.QCDoc) error {
	return s.update(ctx, &models.QCDoc{}, d, d.ID, "qc doc")
}

func (s *Store) DeleteQCDoc(ctx context.Context, id uint) error {
	return s.q(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Photo{}).Where("qc_doc_id = ?", id).
			Updates(map[string]any{"qc_doc_id": nil, "qc_result_id": nil}).Error; err != nil {
			return translateError(err, "photos")
		}
		if err := tx.Where("qc_doc_id = ?", id).Delete(&models.QCResult{}).Error; err != nil {
			return translateError(err, "qc results")
		}
		return (&Store{db: tx}).deleteByID(ctx, &models.QCDoc{}, id, "qc doc")
	})
}

func (s *Store) ListQCDocs(ctx context.Context, f store.QCDocFilter) ([]models.QCDoc, int64, error) {
	q := s.q(ctx).Model(&models.QCDoc{})
	if f.TemplateID != nil {
		q = q.Where("template_id = ?", *f.TemplateID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.SerialNo != "" {
		q = q.Where("serial_no = ?", f.SerialNo)
	}
	if f.CreatedByID != nil {
		q = q.Where("created_by_id = ?", *f.CreatedByID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "qc docs")
	}
	var docs []models.QCDoc
	if err := paginate(q.Order("id DESC"), f.Page).Find(&docs).Error; err != nil {
		return nil, 0, translateError(err, "qc docs")
	}
	return docs, total, nil
}

func (s *Store) ListQCDocsForUser(ctx context.Context, userID uint, since *time.Time) ([]models.QCDoc, error) {
	q := s.q(ctx).Where("created_by_id = ? OR signed_off_by_id = ?", userID, userID)
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	var docs []models.QCDoc
	err := q.Order("id").Find(&docs).Error
	return docs, translateError(err, "qc docs")
}

func (s *Store) CountQCDocsByTemplate(ctx context.Context, templateID uint) (int64, error) {
	var n int64
	err := s.q(ctx).Model(&models.QCDoc{}).Where("template_id = ?", templateID).Count(&n).Error
	return n, translateError(err, "qc docs")
}

// results

func (s *Store) CreateResult(ctx context.Context, r *models.QCResult) error {
	return s.create(ctx, r, fmt.Sprintf("result for step %d", r.StepID))
}

func (s *Store) GetResult(ctx context.Context, id uint) (*models.QCResult, error) {
	var r models.QCResult
	if err := s.get(ctx, &r, id, "qc result"); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) FindResultByStep(ctx context.Context, docID, stepID uint) (*models.QCResult, error) {
	var r models.QCResult
	err := s.q(ctx).Where("qc_doc_id = ? AND step_id = ?", docID, stepID).First(&r).Error
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("result for step %d", stepID))
	}
	return &r, nil
}

func (s *Store) UpdateResult(ctx context.Context, r *models.QCResult) error {
	return s.update(ctx, &models.QCResult{}, r, r.ID, fmt.Sprintf("result for step %d", r.StepID))
}

func (s *Store) ListResults(ctx context.Context, docID uint) ([]models.QCResult, error) {
	var results []models.QCResult
	err := s.q(ctx).Where("qc_doc_id = ?", docID).Order("id").Find(&results).Error
	return results, translateError(err, "qc results")
}

// photos

func (s *Store) CreatePhoto(ctx context.Context, p *models.Photo) error {
	return s.create(ctx, p, "photo "+p.Filename)
}

func (s *Store) GetPhoto(ctx context.Context, id uint) (*models.Photo, error) {
	var p models.Photo
	if err := s.get(ctx, &p, id, "photo"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPhotoByPath(ctx context.Context, path string) (*models.Photo, error) {
	var p models.Photo
	if err := s.q(ctx).Where("path = ?", path).First(&p).Error; err != nil {
		return nil, translateError(err, "photo "+path)
	}
	return &p, nil
}

func (s *Store) DeletePhoto(ctx context.Context, id uint) error {
	return s.deleteByID(ctx, &models.Photo{}, id, "photo")
}
