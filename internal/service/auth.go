package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
	"qc-standards/internal/token"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

type AuthService struct {
	store  store.Store
	tokens *token.Issuer
	log    zerolog.Logger
	cost   int
}

func NewAuthService(st store.Store, tokens *token.Issuer, log zerolog.Logger) *AuthService {
	return &AuthService{store: st, tokens: tokens, log: log, cost: bcrypt.DefaultCost}
}

type RegisterInput struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
}

type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

func (s *AuthService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", invalid("email %q is not valid", raw)
	}
	return email, checkLen("email", email, models.MaxEmailLen)
}

func validatePassword(p string) error {
	if len(p) < minPasswordLen {
		return invalid("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

// Register creates an active account. Admin cannot be picked here.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if len(in.Username) < minUsernameLen {
		return nil, invalid("username must be at least %d characters", minUsernameLen)
	}
	if err := checkLen("username", in.Username, models.MaxUsernameLen); err != nil {
		return nil, err
	}
	if err := checkLen("full_name", strings.TrimSpace(in.FullName), models.MaxNameLen); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleQCOperator
	}
	if !models.SelfRegisterable(in.Role) {
		return nil, invalid("role %q cannot be chosen at registration", in.Role)
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Username:     in.Username,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
		IsActive:     true,
		PasswordHash: hash,
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetUserByUsername(ctx, u.Username); err == nil {
			return fmt.Errorf("%w: username already registered", models.ErrConflict)
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if _, err := tx.GetUserByEmail(ctx, u.Email); err == nil {
			return fmt.Errorf("%w: email already registered", models.ErrConflict)
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		return audit(ctx, tx, u, "user", u.ID, "register", "role="+string(u.Role))
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("user_id", u.ID).Str("username", u.Username).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

var errBadCredentials = fmt.Errorf("%w: incorrect username or password", models.ErrUnauthenticated)

// Login verifies the password and issues an access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: inactive user", models.ErrUnauthenticated)
	}

	tok, exp, err := s.tokens.Generate(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: tok, TokenType: "bearer", ExpiresAt: exp, User: u}, nil
}

// Authenticate loads the user behind a session or token subject.
func (s *AuthService) Authenticate(ctx context.Context, userID uint) (*models.User, error) {
	if userID == 0 {
		return nil, models.ErrUnauthenticated
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", models.ErrUnauthenticated)
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: inactive user", models.ErrUnauthenticated)
	}
	return u, nil
}

func (s *AuthService) AuthenticateToken(ctx context.Context, raw string) (*models.User, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}
	return s.Authenticate(ctx, claims.UserID)
}

// EnsureAdmin creates the bootstrap administrator when no admin exists yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	n, err := s.store.CountUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if n > 0 {
		return nil
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	admin := &models.User{
		Username:     username,
		Email:        strings.ToLower(email),
		FullName:     "System Administrator",
		Role:         models.RoleAdmin,
		IsActive:     true,
		IsSuperuser:  true,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}
	s.log.Warn().Str("username", username).Msg("created default admin user, change its password")
	return nil
}

type demoUser struct {
	username string
	password string
	role     models.UserRole
}

var demoUsers = []demoUser{
	{"engineer", "Engineer123!", models.RoleQCEngineer},
	{"leader", "Leader123!", models.RoleProductionLeader},
	{"operator", "Operator123!", models.RoleQCOperator},
}

// EnsureDemoUsers adds one account per working role; existing ones are skipped.
func (s *AuthService) EnsureDemoUsers(ctx context.Context) error {
	for _, d := range demoUsers {
		if _, err := s.store.GetUserByUsername(ctx, d.username); err == nil {
			continue
		} else if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("check seed user %s: %w", d.username, err)
		}
		hash, err := s.hash(d.password)
		if err != nil {
			return err
		}
		u := &models.User{
			Username:     d.username,
			Email:        d.username + "@qc.local",
			Role:         d.role,
			IsActive:     true,
			PasswordHash: hash,
		}
		if err := s.store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create seed user %s: %w", d.username, err)
		}
		s.log.Info().Str("username", d.username).Str("role", string(d.role)).Msg("created seed user")
	}
	return nil
}
