package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

type UserService struct {
	store store.Store
	auth  *AuthService
	log   zerolog.Logger
}

func NewUserService(st store.Store, auth *AuthService, log zerolog.Logger) *UserService {
	return &UserService{store: st, auth: auth, log: log}
}

type ProfilePatch struct {
	FullName models.Optional[string] `json:"full_name"`
	Email    models.Optional[string] `json:"email"`
	Password models.Optional[string] `json:"password"`
}

type UserPatch struct {
	FullName models.Optional[string]          `json:"full_name"`
	Email    models.Optional[string]          `json:"email"`
	Role     models.Optional[models.UserRole] `json:"role"`
	IsActive models.Optional[bool]            `json:"is_active"`
}

func (s *UserService) Me(actor *models.User) (*models.User, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	return actor, nil
}

func (s *UserService) UpdateMe(ctx context.Context, actor *models.User, p ProfilePatch) (*models.User, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	var out *models.User
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		u, err := tx.GetUser(ctx, actor.ID)
		if err != nil {
			return err
		}
		if p.FullName.Set {
			u.FullName = strings.TrimSpace(p.FullName.Value)
			if err := checkLen("full_name", u.FullName, models.MaxNameLen); err != nil {
				return err
			}
		}
		if p.Email.Set {
			email, err := normalizeEmail(p.Email.Value)
			if err != nil {
				return err
			}
			u.Email = email
		}
		if p.Password.Set && p.Password.Value != "" {
			if err := validatePassword(p.Password.Value); err != nil {
				return err
			}
			hash, err := s.auth.hash(p.Password.Value)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
		}
		u.UpdatedAt = utcNow()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		out = u
		return audit(ctx, tx, actor, "user", u.ID, "update_profile", "")
	})
	return out, err
}

func (s *UserService) List(ctx context.Context, actor *models.User, page store.Page) ([]models.User, int64, error) {
	if err := authorize(actor, models.UserAdmins); err != nil {
		return nil, 0, err
	}
	return s.store.ListUsers(ctx, page)
}

// Get is open to admins and to the user themself.
func (s *UserService) Get(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	if actor.ID != id && !actor.HasRole(models.UserAdmins...) {
		return nil, fmt.Errorf("%w: not enough permissions", models.ErrForbidden)
	}
	return s.store.GetUser(ctx, id)
}

func (s *UserService) Update(ctx context.Context, actor *models.User, id uint, p UserPatch) (*models.User, error) {
	if err := authorize(actor, models.UserAdmins); err != nil {
		return nil, err
	}
	if p.Role.Set && !p.Role.Value.Valid() {
		return nil, invalid("unknown role %q", p.Role.Value)
	}
	var out *models.User
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if u.ID == actor.ID && ((p.Role.Set && p.Role.Value != models.RoleAdmin) || (p.IsActive.Set && !p.IsActive.Value)) {
			return invalid("admins cannot demote or deactivate themselves")
		}
		if p.FullName.Set {
			u.FullName = strings.TrimSpace(p.FullName.Value)
			if err := checkLen("full_name", u.FullName, models.MaxNameLen); err != nil {
				return err
			}
		}
		if p.Email.Set {
			email, err := normalizeEmail(p.Email.Value)
			if err != nil {
				return err
			}
			u.Email = email
		}
		p.Role.Apply(&u.Role)
		p.IsActive.Apply(&u.IsActive)
		u.UpdatedAt = utcNow()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		out = u
		return audit(ctx, tx, actor, "user", u.ID, "update", fmt.Sprintf("role=%s active=%t", u.Role, u.IsActive))
	})
	return out, err
}
