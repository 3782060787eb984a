package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

func seedTemplate(t *testing.T, s *Store) (*models.User, *models.Template) {
	t.Helper()
	ctx := context.Background()
	u := &models.User{Username: "eng", Email: "eng@example.com", Role: models.RoleQCEngineer, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	tpl := &models.Template{Code: "QC-1", Revision: "A", Name: "Frame", Status: models.TemplatePublished, CreatedByID: u.ID}
	require.NoError(t, s.CreateTemplate(ctx, tpl))
	return u, tpl
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, tpl := seedTemplate(t, s)

	err := s.CreateUser(ctx, &models.User{Username: "eng", Email: "other@example.com"})
	assert.ErrorIs(t, err, models.ErrConflict)

	err = s.CreateTemplate(ctx, &models.Template{Code: "QC-1", Revision: "A", Name: "dup"})
	assert.ErrorIs(t, err, models.ErrConflict)

	step := &models.Step{TemplateID: tpl.ID, Code: "S1", Description: "check"}
	require.NoError(t, s.CreateStep(ctx, step))
	assert.ErrorIs(t, s.CreateStep(ctx, &models.Step{TemplateID: tpl.ID, Code: "S1"}), models.ErrConflict)

	doc := &models.QCDoc{TemplateID: tpl.ID, SerialNo: "SN1", Status: models.QCDocInProgress, CreatedByID: u.ID}
	require.NoError(t, s.CreateQCDoc(ctx, doc))
	require.NoError(t, s.CreateResult(ctx, &models.QCResult{QCDocID: doc.ID, StepID: step.ID, OKFlag: true}))
	err = s.CreateResult(ctx, &models.QCResult{QCDocID: doc.ID, StepID: step.ID})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMissingReferencesAreValidationErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	missing := uint(42)

	err := s.CreateTemplate(ctx, &models.Template{Code: "QC-2", Revision: "A", ModelID: &missing})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = s.CreateQCDoc(ctx, &models.QCDoc{TemplateID: missing, SerialNo: "SN"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, tpl := seedTemplate(t, s)

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx store.Store) error {
		require.NoError(t, tx.CreateStep(ctx, &models.Step{TemplateID: tpl.ID, Code: "S1"}))
		return tx.Transaction(ctx, func(inner store.Store) error {
			require.NoError(t, inner.CreateStep(ctx, &models.Step{TemplateID: tpl.ID, Code: "S2"}))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	steps, err := s.ListSteps(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestReturnedMetadataIsACopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, tpl := seedTemplate(t, s)

	step := &models.Step{TemplateID: tpl.ID, Code: "S1", Metadata: map[string]interface{}{"tool": "gauge"}}
	require.NoError(t, s.CreateStep(ctx, step))

	got, err := s.GetStep(ctx, step.ID)
	require.NoError(t, err)
	got.Metadata["tool"] = "hammer"

	again, err := s.GetStep(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, "gauge", again.Metadata["tool"])
}

func TestListStepsOrdersByPosition(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, tpl := seedTemplate(t, s)

	for _, st := range []models.Step{
		{TemplateID: tpl.ID, Code: "C", Position: 3},
		{TemplateID: tpl.ID, Code: "A", Position: 1},
		{TemplateID: tpl.ID, Code: "B", Position: 2},
	} {
		st := st
		require.NoError(t, s.CreateStep(ctx, &st))
	}

	steps, err := s.ListSteps(ctx, tpl.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{steps[0].Code, steps[1].Code, steps[2].Code})
}

func TestListQCDocsForUserFiltersBySigner(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, tpl := seedTemplate(t, s)
	other := &models.User{Username: "op", Email: "op@example.com", Role: models.RoleQCOperator}
	require.NoError(t, s.CreateUser(ctx, other))

	require.NoError(t, s.CreateQCDoc(ctx, &models.QCDoc{TemplateID: tpl.ID, SerialNo: "A", CreatedByID: u.ID}))
	require.NoError(t, s.CreateQCDoc(ctx, &models.QCDoc{TemplateID: tpl.ID, SerialNo: "B", CreatedByID: other.ID, SignedOffByID: &u.ID}))
	require.NoError(t, s.CreateQCDoc(ctx, &models.QCDoc{TemplateID: tpl.ID, SerialNo: "C", CreatedByID: other.ID}))

	docs, err := s.ListQCDocsForUser(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, total, err := s.ListQCDocs(ctx, store.QCDocFilter{Page: store.Page{Number: 2, Size: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestDeleteTemplateReferencedByChecklist(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, tpl := seedTemplate(t, s)
	require.NoError(t, s.CreateQCDoc(ctx, &models.QCDoc{TemplateID: tpl.ID, SerialNo: "A", CreatedByID: u.ID}))

	assert.ErrorIs(t, s.DeleteTemplate(ctx, tpl.ID), models.ErrConflict)
}
