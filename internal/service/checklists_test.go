package service

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qc-standards/internal/models"
)

func countFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	n := 0
	err := afero.Walk(fs, "/", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestChecklistLifecycle(t *testing.T) {
	e := newEnv(t)

	tpl, err := e.templates.Create(e.ctx, e.engineer, TemplateInput{
		Code: "QC-100", Name: "Frame welding", Revision: "A",
		Steps: []StepInput{
			{Code: "S1", Description: "weld seam visual"},
			{Code: "S2", Description: "frame squareness", Category: models.CategoryCritical},
		},
	})
	require.NoError(t, err)
	_, err = e.templates.Publish(e.ctx, e.engineer, tpl.ID)
	require.NoError(t, err)

	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: tpl.ID, SerialNo: " SN123 "})
	require.NoError(t, err)
	assert.Equal(t, "SN123", doc.SerialNo)
	assert.Equal(t, models.QCDocInProgress, doc.Status)
	assert.Equal(t, e.operator.ID, doc.CreatedByID)
	assert.Empty(t, doc.Results)

	_, err = e.checklists.AddResult(e.ctx, e.operator, doc.ID, ResultInput{StepID: tpl.Steps[0].ID, OKFlag: true})
	require.NoError(t, err)

	_, err = e.checklists.Complete(e.ctx, e.operator, doc.ID, CompleteInput{})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "S2")

	_, err = e.checklists.AddResult(e.ctx, e.operator, doc.ID, ResultInput{StepID: tpl.Steps[1].ID, OKFlag: true})
	require.NoError(t, err)

	e.clock.advance(10 * time.Minute)
	done, err := e.checklists.Complete(e.ctx, e.operator, doc.ID, CompleteInput{SignedOffByID: &e.leader.ID})
	require.NoError(t, err)
	assert.Equal(t, models.QCDocCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, e.clock.now(), *done.CompletedAt)
	assert.Equal(t, e.leader.ID, *done.SignedOffByID)

	got, err := e.checklists.Get(e.ctx, e.viewer, doc.ID)
	require.NoError(t, err)
	assert.Len(t, got.Results, 2)
	assert.Equal(t, models.QCDocCompleted, got.Status)

	_, err = e.checklists.Complete(e.ctx, e.operator, doc.ID, CompleteInput{})
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = e.checklists.AddResult(e.ctx, e.operator, doc.ID, ResultInput{StepID: tpl.Steps[0].ID})
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = e.checklists.Reject(e.ctx, e.leader, doc.ID, RejectInput{Reason: "late"})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	logs, err := e.audit.Latest(e.ctx, e.admin)
	require.NoError(t, err)
	assert.Equal(t, "complete", logs[0].Action)
}

func TestCreateChecklistRequiresPublishedTemplate(t *testing.T) {
	e := newEnv(t)
	draft := e.draftTemplate(t, "QC-D", 1)

	_, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: draft.ID, SerialNo: "SN1"})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = e.templates.Archive(e.ctx, e.engineer, draft.ID)
	require.NoError(t, err)
	_, err = e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: draft.ID, SerialNo: "SN1"})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: 777, SerialNo: "SN1"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	pub := e.publishedTemplate(t, "QC-P", 1)
	_, err = e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: pub.ID, SerialNo: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: pub.ID, SerialNo: strings.Repeat("9", 51)})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.checklists.Create(e.ctx, e.viewer, ChecklistInput{TemplateID: pub.ID, SerialNo: "SN1"})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestChecklistResultRules(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-R", 2)
	other := e.publishedTemplate(t, "QC-OTHER", 1)

	_, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN1",
		Results: []ResultInput{{StepID: tpl.Steps[0].ID}, {StepID: tpl.Steps[0].ID}},
	})
	assert.ErrorIs(t, err, models.ErrConflict)
	_, total, err := e.checklists.List(e.ctx, e.viewer, ChecklistListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "a failed create leaves no checklist behind")

	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN1",
		Results: []ResultInput{{StepID: tpl.Steps[0].ID, OKFlag: true}},
	})
	require.NoError(t, err)
	require.Len(t, doc.Results, 1)

	_, err = e.checklists.AddResult(e.ctx, e.operator, doc.ID, ResultInput{StepID: tpl.Steps[0].ID})
	assert.ErrorIs(t, err, models.ErrConflict)
	_, err = e.checklists.AddResult(e.ctx, e.operator, doc.ID, ResultInput{StepID: other.Steps[0].ID})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.checklists.AddResult(e.ctx, e.operator, doc.ID, ResultInput{})
	assert.ErrorIs(t, err, models.ErrValidation)

	comment := "scratch on left rail"
	upd, err := e.checklists.UpdateResult(e.ctx, e.operator, doc.ID, doc.Results[0].ID, ResultPatch{
		OKFlag:  models.Some(false),
		Comment: models.Some(&comment),
	})
	require.NoError(t, err)
	assert.False(t, upd.OKFlag)
	assert.Equal(t, comment, *upd.Comment)

	second, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: tpl.ID, SerialNo: "SN2"})
	require.NoError(t, err)
	_, err = e.checklists.UpdateResult(e.ctx, e.operator, second.ID, doc.Results[0].ID, ResultPatch{OKFlag: models.Some(true)})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRejectChecklist(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-X", 1)
	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: tpl.ID, SerialNo: "SN9"})
	require.NoError(t, err)

	_, err = e.checklists.Reject(e.ctx, e.operator, doc.ID, RejectInput{Reason: "bent"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	missing := uint(404)
	_, err = e.checklists.Reject(e.ctx, e.leader, doc.ID, RejectInput{SignedOffByID: &missing})
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := e.checklists.Reject(e.ctx, e.leader, doc.ID, RejectInput{SignedOffByID: &e.leader.ID, Reason: " bent frame "})
	require.NoError(t, err)
	assert.Equal(t, models.QCDocRejected, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, "bent frame", got.Metadata["rejection_reason"])

	_, err = e.checklists.Complete(e.ctx, e.operator, doc.ID, CompleteInput{})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestDeleteChecklist(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-DEL", 1)
	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN1",
		Results: []ResultInput{{StepID: tpl.Steps[0].ID, OKFlag: true}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, e.checklists.Delete(e.ctx, e.leader, doc.ID), models.ErrForbidden)
	require.NoError(t, e.checklists.Delete(e.ctx, e.operator, doc.ID))

	_, err = e.checklists.Get(e.ctx, e.operator, doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = e.store.GetResult(e.ctx, doc.Results[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, e.templates.Delete(e.ctx, e.engineer, tpl.ID), "template is free again")
}

func TestAttachPhoto(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-PH", 1)
	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN1",
		Results: []ResultInput{{StepID: tpl.Steps[0].ID, OKFlag: true}},
	})
	require.NoError(t, err)
	resultID := doc.Results[0].ID

	body := []byte("\xff\xd8\xff fake jpeg")
	_, err = e.checklists.AttachPhoto(e.ctx, e.operator, doc.ID, resultID, "weld.gif", int64(len(body)), "image/gif", bytes.NewReader(body))
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, countFiles(t, e.fs))

	_, err = e.checklists.AttachPhoto(e.ctx, e.operator, doc.ID, 999, "weld.jpg", int64(len(body)), "image/jpeg", bytes.NewReader(body))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, countFiles(t, e.fs))

	r, err := e.checklists.AttachPhoto(e.ctx, e.operator, doc.ID, resultID, "Weld.JPG", int64(len(body)), "image/jpeg", bytes.NewReader(body))
	require.NoError(t, err)
	require.NotNil(t, r.PhotoPath)
	assert.True(t, strings.HasPrefix(*r.PhotoPath, "qcdocs/"))
	assert.True(t, strings.HasSuffix(*r.PhotoPath, ".jpg"))

	stored, err := afero.ReadFile(e.fs, *r.PhotoPath)
	require.NoError(t, err)
	assert.Equal(t, body, stored)

	p, err := e.store.GetPhotoByPath(e.ctx, *r.PhotoPath)
	require.NoError(t, err)
	assert.Equal(t, "Weld.JPG", p.OriginalFilename)
	assert.Equal(t, int64(len(body)), p.Size)
	assert.Equal(t, doc.ID, *p.QCDocID)
	assert.Equal(t, resultID, *p.QCResultID)
}

func TestAttachPhotoTooLarge(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-BIG", 1)
	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN1",
		Results: []ResultInput{{StepID: tpl.Steps[0].ID}},
	})
	require.NoError(t, err)

	body := bytes.Repeat([]byte{0xAB}, 1<<20+1)
	_, err = e.checklists.AttachPhoto(e.ctx, e.operator, doc.ID, doc.Results[0].ID, "big.png", -1, "image/png", bytes.NewReader(body))
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, countFiles(t, e.fs))

	got, err := e.checklists.Get(e.ctx, e.operator, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Results[0].PhotoPath)
}
