package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

// Store implements store.Store on gorm. Associations are never written
// implicitly; every child row goes through its own method.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) q(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func paginate(db *gorm.DB, p store.Page) *gorm.DB {
	if p.Size <= 0 {
		return db
	}
	return db.Offset(p.Offset()).Limit(p.Size)
}

func (s *Store) create(ctx context.Context, value any, what string) error {
	return translateError(s.q(ctx).Omit(clause.Associations).Create(value).Error, what)
}

func (s *Store) get(ctx context.Context, dst any, id uint, what string) error {
	return translateError(s.q(ctx).First(dst, id).Error, fmt.Sprintf("%s %d", what, id))
}

// update writes every column of value. Save would insert a missing row, so
// existence is checked first.
func (s *Store) update(ctx context.Context, model, value any, id uint, what string) error {
	var n int64
	if err := s.q(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return translateError(err, what)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", models.ErrNotFound, what, id)
	}
	return translateError(s.q(ctx).Omit(clause.Associations).Save(value).Error, what)
}

func (s *Store) deleteByID(ctx context.Context, model any, id uint, what string) error {
	res := s.q(ctx).Delete(model, id)
	if res.Error != nil {
		return translateError(res.Error, what)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %d", models.ErrNotFound, what, id)
	}
	return nil
}

// users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.create(ctx, u, "user")
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.get(ctx, &u, id, "user"); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.q(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translateError(err, "user "+username)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.q(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translateError(err, "user "+email)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	return s.update(ctx, &models.User{}, u, u.ID, "user")
}

func (s *Store) ListUsers(ctx context.Context, page store.Page) ([]models.User, int64, error) {
	var (
		users []models.User
		total int64
	)
	q := s.q(ctx).Model(&models.User{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "users")
	}
	if err := paginate(q.Order("username"), page).Find(&users).Error; err != nil {
		return nil, 0, translateError(err, "users")
	}
	return users, total, nil
}

func (s *Store) CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error) {
	var n int64
	err := s.q(ctx).Model(&models.User{}).Where("role = ?", role).Count(&n).Error
	return n, translateError(err, "users")
}

// catalog

func (s *Store) CreateProductModel(ctx context.Context, m *models.ProductModel) error {
	return s.create(ctx, m, "product model")
}

func (s *Store) GetProductModel(ctx context.Context, id uint) (*models.ProductModel, error) {
	var m models.ProductModel
	if err := s.get(ctx, &m, id, "product model"); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateProductModel(ctx context.Context, m *models.ProductModel) error {
	return s.update(ctx, &models.ProductModel{}, m, m.ID, "product model")
}

func (s *Store) ListProductModels(ctx context.Context, page store.Page) ([]models.ProductModel, int64, error) {
	var (
		items []models.ProductModel
		total int64
	)
	q := s.q(ctx).Model(&models.ProductModel{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "product models")
	}
	if err := paginate(q.Order("name"), page).Find(&items).Error; err != nil {
		return nil, 0, translateError(err, "product models")
	}
	return items, total, nil
}

func (s *Store) CreateStage(ctx context.Context, st *models.Stage) error {
	return s.create(ctx, st, "stage")
}

func (s *Store) GetStage(ctx context.Context, id uint) (*models.Stage, error) {
	var st models.Stage
	if err := s.get(ctx, &st, id, "stage"); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) UpdateStage(ctx context.Context, st *models.Stage) error {
	return s.update(ctx, &models.Stage{}, st, st.ID, "stage")
}

func (s *Store) ListStages(ctx context.Context, page store.Page) ([]models.Stage, int64, error) {
	var (
		items []models.Stage
		total int64
	)
	q := s.q(ctx).Model(&models.Stage{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "stages")
	}
	if err := paginate(q.Order("name"), page).Find(&items).Error; err != nil {
		return nil, 0, translateError(err, "stages")
	}
	return items, total, nil
}
