package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

// CatalogService manages product models and production stages.
type CatalogService struct {
	store store.Store
	log   zerolog.Logger
}

func NewCatalogService(st store.Store, log zerolog.Logger) *CatalogService {
	return &CatalogService{store: st, log: log}
}

type CatalogInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CatalogPatch struct {
	Name        models.Optional[string] `json:"name"`
	Description models.Optional[string] `json:"description"`
}

func catalogName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalid("name is required")
	}
	return name, checkLen("name", name, models.MaxNameLen)
}

func (s *CatalogService) CreateModel(ctx context.Context, actor *models.User, in CatalogInput) (*models.ProductModel, error) {
	if err := authorize(actor, models.CatalogEditors); err != nil {
		return nil, err
	}
	name, err := catalogName(in.Name)
	if err != nil {
		return nil, err
	}
	m := &models.ProductModel{Name: name, Description: in.Description}
	if err := s.store.CreateProductModel(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *CatalogService) GetModel(ctx context.Context, actor *models.User, id uint) (*models.ProductModel, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	return s.store.GetProductModel(ctx, id)
}

func (s *CatalogService) UpdateModel(ctx context.Context, actor *models.User, id uint, p CatalogPatch) (*models.ProductModel, error) {
	if err := authorize(actor, models.CatalogEditors); err != nil {
		return nil, err
	}
	var out *models.ProductModel
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		m, err := tx.GetProductModel(ctx, id)
		if err != nil {
			return err
		}
		if p.Name.Set {
			if m.Name, err = catalogName(p.Name.Value); err != nil {
				return err
			}
		}
		p.Description.Apply(&m.Description)
		m.UpdatedAt = utcNow()
		out = m
		return tx.UpdateProductModel(ctx, m)
	})
	return out, err
}

func (s *CatalogService) ListModels(ctx context.Context, actor *models.User, page store.Page) ([]models.ProductModel, int64, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, 0, err
	}
	return s.store.ListProductModels(ctx, page)
}

func (s *CatalogService) CreateStage(ctx context.Context, actor *models.User, in CatalogInput) (*models.Stage, error) {
	if err := authorize(actor, models.CatalogEditors); err != nil {
		return nil, err
	}
	name, err := catalogName(in.Name)
	if err != nil {
		return nil, err
	}
	st := &models.Stage{Name: name, Description: in.Description}
	if err := s.store.CreateStage(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *CatalogService) GetStage(ctx context.Context, actor *models.User, id uint) (*models.Stage, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	return s.store.GetStage(ctx, id)
}

func (s *CatalogService) UpdateStage(ctx context.Context, actor *models.User, id uint, p CatalogPatch) (*models.Stage, error) {
	if err := authorize(actor, models.CatalogEditors); err != nil {
		return nil, err
	}
	var out *models.Stage
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		st, err := tx.GetStage(ctx, id)
		if err != nil {
			return err
		}
		if p.Name.Set {
			if st.Name, err = catalogName(p.Name.Value); err != nil {
				return err
			}
		}
		p.Description.Apply(&st.Description)
		st.UpdatedAt = utcNow()
		out = st
		return tx.UpdateStage(ctx, st)
	})
	return out, err
}

func (s *CatalogService) ListStages(ctx context.Context, actor *models.User, page store.Page) ([]models.Stage, int64, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, 0, err
	}
	return s.store.ListStages(ctx, page)
}
