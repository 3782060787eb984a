// Package store declares the persistence boundary of the QC service. The gorm
// implementation lives in internal/database, an in-memory one in memstore.
package store

import (
	"context"
	"time"

	"qc-standards/internal/models"
)

// Page selects a window of a list. Size <= 0 means no limit.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Size <= 0 || p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

type TemplateFilter struct {
	Status          models.TemplateStatus
	ExcludeArchived bool
	Code            string
	ModelID         *uint
	StageID         *uint
	Search          string
	UpdatedAfter    *time.Time
	Page            Page
}

type QCDocFilter struct {
	TemplateID  *uint
	Status      models.QCDocStatus
	SerialNo    string
	CreatedByID *uint
	Page        Page
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, page Page) ([]models.User, int64, error)
	CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error)
}

type Catalog interface {
	CreateProductModel(ctx context.Context, m *models.ProductModel) error
	GetProductModel(ctx context.Context, id uint) (*models.ProductModel, error)
	UpdateProductModel(ctx context.Context, m *models.ProductModel) error
	ListProductModels(ctx context.Context, page Page) ([]models.ProductModel, int64, error)
	CreateStage(ctx context.Context, s *models.Stage) error
	GetStage(ctx context.Context, id uint) (*models.Stage, error)
	UpdateStage(ctx context.Context, s *models.Stage) error
	ListStages(ctx context.Context, page Page) ([]models.Stage, int64, error)
}

// Templates persists template headers only; steps go through Steps.
type Templates interface {
	CreateTemplate(ctx context.Context, t *models.Template) error
	GetTemplate(ctx context.Context, id uint) (*models.Template, error)
	FindTemplateByCodeRevision(ctx context.Context, code, revision string) (*models.Template, error)
	CountTemplatesByCode(ctx context.Context, code string) (int64, error)
	UpdateTemplate(ctx context.Context, t *models.Template) error
	DeleteTemplate(ctx context.Context, id uint) error
	ListTemplates(ctx context.Context, f TemplateFilter) ([]models.Template, int64, error)
}

type Steps interface {
	CreateStep(ctx context.Context, s *models.Step) error
	GetStep(ctx context.Context, id uint) (*models.Step, error)
	UpdateStep(ctx context.Context, s *models.Step) error
	DeleteStep(ctx context.Context, id uint) error
	// ListSteps returns the template's steps ordered by position, then id.
	ListSteps(ctx context.Context, templateID uint) ([]models.Step, error)
}

// QCDocs persists checklist headers only; results go through Results.
type QCDocs interface {
	CreateQCDoc(ctx context.Context, d *models.QCDoc) error
	GetQCDoc(ctx context.Context, id uint) (*models.QCDoc, error)
	GetQCDocByClientID(ctx context.Context, clientID string) (*models.QCDoc, error)
	UpdateQCDoc(ctx context.Context, d *models.QCDoc) error
	// DeleteQCDoc removes the doc together with its results.
	DeleteQCDoc(ctx context.Context, id uint) error
	ListQCDocs(ctx context.Context, f QCDocFilter) ([]models.QCDoc, int64, error)
	// ListQCDocsForUser returns docs created or signed off by userID, updated after since when set.
	ListQCDocsForUser(ctx context.Context, userID uint, since *time.Time) ([]models.QCDoc, error)
	CountQCDocsByTemplate(ctx context.Context, templateID uint) (int64, error)
}

type Results interface {
	CreateResult(ctx context.Context, r *models.QCResult) error
	GetResult(ctx context.Context, id uint) (*models.QCResult, error)
	FindResultByStep(ctx context.Context, docID, stepID uint) (*models.QCResult, error)
	UpdateResult(ctx context.Context, r *models.QCResult) error
	ListResults(ctx context.Context, docID uint) ([]models.QCResult, error)
}

type Photos interface {
	CreatePhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, id uint) (*models.Photo, error)
	GetPhotoByPath(ctx context.Context, path string) (*models.Photo, error)
	DeletePhoto(ctx context.Context, id uint) error
}

type Audit interface {
	CreateAuditLog(ctx context.Context, l *models.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// Store is the full persistence surface. Transaction runs fn atomically:
// every write made through tx commits together or none does.
type Store interface {
	Users
	Catalog
	Templates
	Steps
	QCDocs
	Results
	Photos
	Audit

	Transaction(ctx context.Context, fn func(tx Store) error) error
}
