package database

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

func (s *Store) CreateTemplate(ctx context.Context, t *models.Template) error {
	return s.create(ctx, t, "template")
}

func (s *Store) GetTemplate(ctx context.Context, id uint) (*models.Template, error) {
	var t models.Template
	if err := s.get(ctx, &t, id, "template"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) FindTemplateByCodeRevision(ctx context.Context, code, revision string) (*models.Template, error) {
	var t models.Template
	err := s.q(ctx).Where("code = ? AND revision = ?", code, revision).First(&t).Error
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("template %s rev %s", code, revision))
	}
	return &t, nil
}

func (s *Store) CountTemplatesByCode(ctx context.Context, code string) (int64, error) {
	var n int64
	err := s.q(ctx).Model(&models.Template{}).Where("code = ?", code).Count(&n).Error
	return n, translateError(err, "templates")
}

func (s *Store) UpdateTemplate(ctx context.Context, t *models.Template) error {
	return s.update(ctx, &models.Template{}, t, t.ID, "template")
}

func (s *Store) DeleteTemplate(ctx context.Context, id uint) error {
	return s.q(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.QCDoc{}).Where("template_id = ?", id).Count(&refs).Error; err != nil {
			return translateError(err, "qc docs")
		}
		if refs > 0 {
			return fmt.Errorf("%w: template %d is referenced by %d checklists", models.ErrConflict, id, refs)
		}
		if err := tx.Where("template_id = ?", id).Delete(&models.Step{}).Error; err != nil {
			return translateError(err, "steps")
		}
		return (&Store{db: tx}).deleteByID(ctx, &models.Template{}, id, "template")
	})
}

func (s *Store) ListTemplates(ctx context.Context, f store.TemplateFilter) ([]models.Template, int64, error) {
	q := s.q(ctx).Model(&models.Template{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ExcludeArchived {
		q = q.Where("status <> ?", models.TemplateArchived)
	}
	if f.Code != "" {
		q = q.Where("code = ?", f.Code)
	}
	if f.ModelID != nil {
		q = q.Where("model_id = ?", *f.ModelID)
	}
	if f.StageID != nil {
		q = q.Where("stage_id = ?", *f.StageID)
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		like := "%" + search + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", like, like)
	}
	if f.UpdatedAfter != nil {
		q = q.Where("updated_at > ?", *f.UpdatedAfter)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "templates")
	}
	var items []models.Template
	if err := paginate(q.Order("id DESC"), f.Page).Find(&items).Error; err != nil {
		return nil, 0, translateError(err, "templates")
	}
	return items, total, nil
}

// steps

func (s *Store) CreateStep(ctx context.Context, st *models.Step) error {
	return s.create(ctx, st, "step "+st.Code)
}

func (s *Store) GetStep(ctx context.Context, id uint) (*models.Step, error) {
	var st models.Step
	if err := s.get(ctx, &st, id, "step"); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) UpdateStep(ctx context.Context, st *models.Step) error {
	return s.update(ctx, &models.Step{}, st, st.ID, "step "+st.Code)
}

func (s *Store) DeleteStep(ctx context.Context, id uint) error {
	var refs int64
	if err := s.q(ctx).Model(&models.QCResult{}).Where("step_id = ?", id).Count(&refs).Error; err != nil {
		return translateError(err, "qc results")
	}
	if refs > 0 {
		return fmt.Errorf("%w: step %d has recorded results", models.ErrConflict, id)
	}
	return s.deleteByID(ctx, &models.Step{}, id, "step")
}

func (s *Store) ListSteps(ctx context.Context, templateID uint) ([]models.Step, error) {
	var steps []models.Step
	err := s.q(ctx).Where("template_id = ?", templateID).Order("position, id").Find(&steps).Error
	return steps, translateError(err, "steps")
}
