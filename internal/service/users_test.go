package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

func TestUpdateMeChangesPassword(t *testing.T) {
	e := newEnv(t)
	u, err := e.auth.Register(e.ctx, RegisterInput{Username: "tanya", Email: "tanya@qc.test", Password: "secret1"})
	require.NoError(t, err)

	_, err = e.users.UpdateMe(e.ctx, u, ProfilePatch{Password: models.Some("123")})
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := e.users.UpdateMe(e.ctx, u, ProfilePatch{
		FullName: models.Some(" Tanya K "),
		Email:    models.Some("Tanya.K@QC.test"),
		Password: models.Some("secret2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Tanya K", got.FullName)
	assert.Equal(t, "tanya.k@qc.test", got.Email)

	_, err = e.auth.Login(e.ctx, "tanya", "secret1")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = e.auth.Login(e.ctx, "tanya", "secret2")
	assert.NoError(t, err)

	_, err = e.users.UpdateMe(e.ctx, u, ProfilePatch{Email: models.Some(e.engineer.Email)})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUserAdministration(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.users.List(e.ctx, e.engineer, store.Page{})
	assert.ErrorIs(t, err, models.ErrForbidden)
	items, total, err := e.users.List(e.ctx, e.admin, store.Page{Number: 1, Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, items, 2)

	_, err = e.users.Get(e.ctx, e.operator, e.engineer.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	self, err := e.users.Get(e.ctx, e.operator, e.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "operator", self.Username)

	promoted, err := e.users.Update(e.ctx, e.admin, e.operator.ID, UserPatch{Role: models.Some(models.RoleProductionLeader)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleProductionLeader, promoted.Role)
	assert.True(t, promoted.IsActive)

	_, err = e.users.Update(e.ctx, e.admin, e.operator.ID, UserPatch{Role: models.Some(models.UserRole("boss"))})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.users.Update(e.ctx, e.admin, e.admin.ID, UserPatch{IsActive: models.Some(false)})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.users.Update(e.ctx, e.admin, e.admin.ID, UserPatch{Role: models.Some(models.RoleViewer)})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.users.Update(e.ctx, e.admin, 999, UserPatch{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCatalog(t *testing.T) {
	e := newEnv(t)

	_, err := e.catalog.CreateModel(e.ctx, e.operator, CatalogInput{Name: "E-Bike 500"})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = e.catalog.CreateModel(e.ctx, e.engineer, CatalogInput{Name: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)

	m, err := e.catalog.CreateModel(e.ctx, e.engineer, CatalogInput{Name: "E-Bike 500", Description: "city"})
	require.NoError(t, err)
	_, err = e.catalog.CreateModel(e.ctx, e.admin, CatalogInput{Name: "E-Bike 500"})
	assert.ErrorIs(t, err, models.ErrConflict)

	m, err = e.catalog.UpdateModel(e.ctx, e.engineer, m.ID, CatalogPatch{Description: models.Some("city, 2024")})
	require.NoError(t, err)
	assert.Equal(t, "E-Bike 500", m.Name)
	assert.Equal(t, "city, 2024", m.Description)

	st, err := e.catalog.CreateStage(e.ctx, e.engineer, CatalogInput{Name: "Final assembly"})
	require.NoError(t, err)
	_, err = e.catalog.UpdateStage(e.ctx, e.engineer, st.ID, CatalogPatch{Name: models.Some("")})
	assert.ErrorIs(t, err, models.ErrValidation)

	stages, total, err := e.catalog.ListStages(e.ctx, e.viewer, store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Final assembly", stages[0].Name)

	tpl, err := e.templates.Create(e.ctx, e.engineer, TemplateInput{Code: "QC-M", Name: "m", ModelID: &m.ID, StageID: &st.ID})
	require.NoError(t, err)
	assert.Equal(t, m.ID, *tpl.ModelID)

	byModel, _, err := e.templates.List(e.ctx, e.viewer, TemplateListFilter{ModelID: &m.ID})
	require.NoError(t, err)
	assert.Len(t, byModel, 1)
}

func TestAuditTrail(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-AU", 1)

	_, err := e.audit.Latest(e.ctx, e.engineer)
	assert.ErrorIs(t, err, models.ErrForbidden)

	logs, err := e.audit.Latest(e.ctx, e.admin)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "publish", logs[0].Action)
	assert.Equal(t, "create", logs[1].Action)
	assert.Equal(t, tpl.ID, logs[0].EntityID)
	assert.Equal(t, "template", logs[0].Entity)
	require.NotNil(t, logs[0].User)
	assert.Equal(t, "engineer", logs[0].User.Username)
}
