package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"qc-standards/internal/models"
	"qc-standards/internal/photostore"
	"qc-standards/internal/store/memstore"
	"qc-standards/internal/token"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	ctx   context.Context
	store *memstore.Store
	fs    afero.Fs
	clock *testClock

	auth       *AuthService
	users      *UserService
	catalog    *CatalogService
	templates  *TemplateService
	checklists *ChecklistService
	sync       *SyncService
	photos     *PhotoService
	audit      *AuditService

	admin, engineer, leader, operator, viewer *models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/uploads", 0o755))
	fs := afero.NewBasePathFs(mem, "/uploads")
	files := photostore.New(fs, []string{".jpg", ".jpeg", ".png"}, 1<<20)
	log := zerolog.Nop()
	clock := &testClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}

	e := &env{ctx: context.Background(), store: st, fs: fs, clock: clock}
	e.auth = NewAuthService(st, token.NewIssuer("test-secret", 1), log)
	e.auth.cost = bcrypt.MinCost
	e.users = NewUserService(st, e.auth, log)
	e.catalog = NewCatalogService(st, log)
	e.templates = NewTemplateService(st, log)
	e.templates.now = clock.now
	e.checklists = NewChecklistService(st, files, log)
	e.checklists.now = clock.now
	e.sync = NewSyncService(st, log)
	e.sync.now = clock.now
	e.photos = NewPhotoService(st, files, log, "/api/v1/files")
	e.audit = NewAuditService(st)

	e.admin = e.user(t, "admin", models.RoleAdmin)
	e.engineer = e.user(t, "engineer", models.RoleQCEngineer)
	e.leader = e.user(t, "leader", models.RoleProductionLeader)
	e.operator = e.user(t, "operator", models.RoleQCOperator)
	e.viewer = e.user(t, "viewer", models.RoleViewer)
	return e
}

func (e *env) user(t *testing.T, name string, role models.UserRole) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@qc.test", Role: role, IsActive: true}
	require.NoError(t, e.store.CreateUser(e.ctx, u))
	return u
}

func stepInputs(n int) []StepInput {
	steps := make([]StepInput, n)
	for i := range steps {
		steps[i] = StepInput{
			Code:        fmt.Sprintf("S%d", i+1),
			Description: fmt.Sprintf("check point %d", i+1),
			Category:    models.CategoryMajor,
		}
	}
	return steps
}

func (e *env) draftTemplate(t *testing.T, code string, steps int) *models.Template {
	t.Helper()
	tpl, err := e.templates.Create(e.ctx, e.engineer, TemplateInput{
		Code: code, Name: code + " inspection", Revision: "A", Steps: stepInputs(steps),
	})
	require.NoError(t, err)
	return tpl
}

func (e *env) publishedTemplate(t *testing.T, code string, steps int) *models.Template {
	t.Helper()
	tpl := e.draftTemplate(t, code, steps)
	tpl, err := e.templates.Publish(e.ctx, e.engineer, tpl.ID)
	require.NoError(t, err)
	return tpl
}
