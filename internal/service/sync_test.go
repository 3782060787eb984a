package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
	"qc-standards/internal/store/memstore"
)

func decodeSync(t *testing.T, raw string) SyncChecklistsRequest {
	t.Helper()
	var req SyncChecklistsRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return req
}

func TestSyncIsIdempotentByClientID(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-SY", 2)
	clientID := uuid.NewString()

	payload := func(ok bool) SyncChecklistsRequest {
		return SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{{
			ClientID:   models.Some(&clientID),
			TemplateID: models.Some(tpl.ID),
			SerialNo:   models.Some("SN-OFF-1"),
			Results: []SyncResultPayload{
				{StepID: models.Some(&tpl.Steps[0].ID), OKFlag: models.Some(ok)},
			},
		}}}
	}

	first, err := e.sync.Checklists(e.ctx, e.operator, payload(true))
	require.NoError(t, err)
	require.Len(t, first.Outcomes, 1)
	assert.Equal(t, SyncCreated, first.Outcomes[0].Action)
	assert.Equal(t, clientID, *first.Outcomes[0].ClientID)

	second, err := e.sync.Checklists(e.ctx, e.operator, payload(false))
	require.NoError(t, err)
	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, SyncUpdated, second.Outcomes[0].Action)
	assert.Equal(t, first.Outcomes[0].ID, second.Outcomes[0].ID)

	_, total, err := e.checklists.List(e.ctx, e.operator, ChecklistListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	doc, err := e.checklists.Get(e.ctx, e.operator, first.Outcomes[0].ID)
	require.NoError(t, err)
	require.Len(t, doc.Results, 1, "result matched by step, not duplicated")
	assert.False(t, doc.Results[0].OKFlag)
	assert.Equal(t, e.operator.ID, doc.CreatedByID)
}

func TestSyncUpdateTouchesOnlyPresentFields(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-PF", 1)
	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN1", ExecutionTime: intPtr(120),
		Metadata: map[string]interface{}{"line": "2"},
	})
	require.NoError(t, err)

	req := decodeSync(t, `{"offline_checklists":[{"id":`+jsonUint(doc.ID)+`,"serial_no":"SN1-B","signed_off_by_id":null}]}`)
	_, err = e.sync.Checklists(e.ctx, e.operator, req)
	require.NoError(t, err)

	got, err := e.checklists.Get(e.ctx, e.operator, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "SN1-B", got.SerialNo)
	assert.Nil(t, got.SignedOffByID)
	require.NotNil(t, got.ExecutionTime)
	assert.Equal(t, 120, *got.ExecutionTime)
	assert.Equal(t, "2", got.Metadata["line"])
	assert.Equal(t, models.QCDocInProgress, got.Status)

	e.clock.advance(time.Minute)
	step := jsonUint(tpl.Steps[0].ID)
	req = decodeSync(t, `{"offline_checklists":[{"id":`+jsonUint(doc.ID)+`,"status":"completed","execution_time":null,"metadata":{},`+
		`"results":[{"step_id":`+step+`,"ok_flag":true}]}]}`)
	_, err = e.sync.Checklists(e.ctx, e.operator, req)
	require.NoError(t, err)

	got, err = e.checklists.Get(e.ctx, e.operator, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QCDocCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, e.clock.now(), *got.CompletedAt)
	assert.Nil(t, got.ExecutionTime)
	assert.Empty(t, got.Metadata)
	assert.Equal(t, "SN1-B", got.SerialNo)
}

func TestSyncCompletionNeedsEveryStep(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-CV", 3)

	_, err := e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{{
		TemplateID: models.Some(tpl.ID),
		SerialNo:   models.Some("SN-EMPTY"),
		Status:     models.Some(models.QCDocCompleted),
	}}})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "S1, S2, S3")
	_, total, err := e.checklists.List(e.ctx, e.admin, ChecklistListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	doc, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN-PART",
		Results: []ResultInput{{StepID: tpl.Steps[0].ID, OKFlag: true}},
	})
	require.NoError(t, err)
	_, err = e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{{
		ID:      models.Some(&doc.ID),
		Status:  models.Some(models.QCDocCompleted),
		Results: []SyncResultPayload{{StepID: models.Some(&tpl.Steps[1].ID), OKFlag: models.Some(true)}},
	}}})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "S3")
	got, err := e.checklists.Get(e.ctx, e.operator, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QCDocInProgress, got.Status)
	assert.Len(t, got.Results, 1)

	stamped := e.clock.now().Add(-time.Hour)
	results := make([]SyncResultPayload, len(tpl.Steps))
	for i := range tpl.Steps {
		results[i] = SyncResultPayload{StepID: models.Some(&tpl.Steps[i].ID), OKFlag: models.Some(true)}
	}
	resp, err := e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{{
		TemplateID:  models.Some(tpl.ID),
		SerialNo:    models.Some("SN-FULL"),
		Status:      models.Some(models.QCDocCompleted),
		CompletedAt: models.Some(&stamped),
		Results:     results,
	}}})
	require.NoError(t, err)
	full, err := e.checklists.Get(e.ctx, e.operator, resp.Outcomes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.QCDocCompleted, full.Status)
	require.NotNil(t, full.CompletedAt)
	assert.Equal(t, stamped, *full.CompletedAt, "client completion time is kept")
}

func TestSyncTemplateChange(t *testing.T) {
	e := newEnv(t)
	first := e.publishedTemplate(t, "QC-TA", 1)
	second := e.publishedTemplate(t, "QC-TB", 1)
	draft := e.draftTemplate(t, "QC-TC", 1)

	move := func(docID, templateID uint) error {
		_, err := e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{{
			ID: models.Some(&docID), TemplateID: models.Some(templateID),
		}}})
		return err
	}

	empty, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: first.ID, SerialNo: "SN-E"})
	require.NoError(t, err)
	assert.ErrorIs(t, move(empty.ID, draft.ID), models.ErrInvalidState)
	require.NoError(t, move(empty.ID, second.ID))
	got, err := e.checklists.Get(e.ctx, e.operator, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.TemplateID)

	filled, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: first.ID, SerialNo: "SN-F",
		Results: []ResultInput{{StepID: first.Steps[0].ID, OKFlag: true}},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, move(filled.ID, second.ID), models.ErrInvalidState)
	got, err = e.checklists.Get(e.ctx, e.operator, filled.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.TemplateID)

	_, err = e.checklists.Complete(e.ctx, e.operator, filled.ID, CompleteInput{})
	assert.NoError(t, err)
}

func jsonUint(v uint) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestSyncBatchIsAtomic(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-AT", 1)

	req := SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{
		{TemplateID: models.Some(tpl.ID), SerialNo: models.Some("SN-GOOD")},
		{
			TemplateID: models.Some(tpl.ID),
			SerialNo:   models.Some("SN-BAD"),
			Results:    []SyncResultPayload{{OKFlag: models.Some(true)}},
		},
	}}
	_, err := e.sync.Checklists(e.ctx, e.operator, req)
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "checklist #1")

	_, total, err := e.checklists.List(e.ctx, e.admin, ChecklistListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSyncCreateRules(t *testing.T) {
	e := newEnv(t)
	draft := e.draftTemplate(t, "QC-DR", 1)
	pub := e.publishedTemplate(t, "QC-PB", 1)
	bad := "not-a-uuid"

	cases := []struct {
		name string
		p    SyncChecklistPayload
		want error
	}{
		{"no template", SyncChecklistPayload{SerialNo: models.Some("SN")}, models.ErrValidation},
		{"unknown template", SyncChecklistPayload{TemplateID: models.Some(uint(999)), SerialNo: models.Some("SN")}, models.ErrValidation},
		{"draft template", SyncChecklistPayload{TemplateID: models.Some(draft.ID), SerialNo: models.Some("SN")}, models.ErrInvalidState},
		{"no serial", SyncChecklistPayload{TemplateID: models.Some(pub.ID)}, models.ErrValidation},
		{"bad client id", SyncChecklistPayload{TemplateID: models.Some(pub.ID), SerialNo: models.Some("SN"), ClientID: models.Some(&bad)}, models.ErrValidation},
		{"bad status", SyncChecklistPayload{TemplateID: models.Some(pub.ID), SerialNo: models.Some("SN"), Status: models.Some(models.QCDocStatus("lost"))}, models.ErrValidation},
		{"serial too long", SyncChecklistPayload{TemplateID: models.Some(pub.ID), SerialNo: models.Some(strings.Repeat("9", 51))}, models.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{tc.p}})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// archived templates still accept checklists collected before archival
	_, err := e.templates.Archive(e.ctx, e.engineer, pub.ID)
	require.NoError(t, err)
	resp, err := e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{
		{TemplateID: models.Some(pub.ID), SerialNo: models.Some("SN-LATE"), CreatedByID: models.Some(e.admin.ID)},
	}})
	require.NoError(t, err)
	doc, err := e.checklists.Get(e.ctx, e.operator, resp.Outcomes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, e.operator.ID, doc.CreatedByID, "creator is always the caller")
}

func TestSyncUpdateOwnership(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-OW", 1)
	doc, err := e.checklists.Create(e.ctx, e.leader, ChecklistInput{TemplateID: tpl.ID, SerialNo: "SN1"})
	require.NoError(t, err)

	touch := SyncChecklistsRequest{OfflineChecklists: []SyncChecklistPayload{
		{ID: models.Some(&doc.ID), SerialNo: models.Some("SN1-X")},
	}}
	_, err = e.sync.Checklists(e.ctx, e.operator, touch)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.sync.Checklists(e.ctx, e.engineer, touch)
	assert.NoError(t, err)
}

func TestSyncDownloadsChangedChecklists(t *testing.T) {
	e := newEnv(t)
	tpl := e.publishedTemplate(t, "QC-DL", 1)

	old, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{TemplateID: tpl.ID, SerialNo: "SN-OLD"})
	require.NoError(t, err)
	_, err = e.checklists.Create(e.ctx, e.leader, ChecklistInput{TemplateID: tpl.ID, SerialNo: "SN-LEADER"})
	require.NoError(t, err)

	e.clock.advance(time.Hour)
	lastSync := e.clock.now()
	e.clock.advance(time.Minute)

	fresh, err := e.checklists.Create(e.ctx, e.operator, ChecklistInput{
		TemplateID: tpl.ID, SerialNo: "SN-NEW",
		Results: []ResultInput{{StepID: tpl.Steps[0].ID, OKFlag: true}},
	})
	require.NoError(t, err)

	all, err := e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Checklists, 2)
	assert.Empty(t, all.Outcomes)

	resp, err := e.sync.Checklists(e.ctx, e.operator, SyncChecklistsRequest{LastSync: &lastSync})
	require.NoError(t, err)
	require.Len(t, resp.Checklists, 1)
	assert.Equal(t, fresh.ID, resp.Checklists[0].ID)
	assert.Len(t, resp.Checklists[0].Results, 1)
	assert.Equal(t, e.clock.now(), resp.SyncTime)
	assert.NotEqual(t, old.ID, resp.Checklists[0].ID)
}

func TestSyncTemplates(t *testing.T) {
	e := newEnv(t)
	pub := e.publishedTemplate(t, "QC-T1", 2)
	gone := e.publishedTemplate(t, "QC-T2", 1)
	_, err := e.templates.Archive(e.ctx, e.engineer, gone.ID)
	require.NoError(t, err)

	resp, err := e.sync.Templates(e.ctx, e.viewer, nil)
	require.NoError(t, err)
	require.Len(t, resp.Templates, 1)
	assert.Equal(t, pub.ID, resp.Templates[0].ID)
	assert.Len(t, resp.Templates[0].Steps, 2)

	e.clock.advance(time.Hour)
	since := e.clock.now()
	resp, err = e.sync.Templates(e.ctx, e.viewer, &since)
	require.NoError(t, err)
	assert.Empty(t, resp.Templates)

	e.clock.advance(time.Minute)
	_, err = e.templates.Update(e.ctx, e.engineer, pub.ID, TemplatePatch{Name: models.Some("renamed")})
	require.NoError(t, err)
	resp, err = e.sync.Templates(e.ctx, e.viewer, &since)
	require.NoError(t, err)
	require.Len(t, resp.Templates, 1)
	assert.Equal(t, "renamed", resp.Templates[0].Name)
}

// slowStore lets time pass while the download queries run.
type slowStore struct {
	*memstore.Store
	during func()
}

func (s slowStore) ListQCDocsForUser(ctx context.Context, userID uint, since *time.Time) ([]models.QCDoc, error) {
	defer s.during()
	return s.Store.ListQCDocsForUser(ctx, userID, since)
}

func (s slowStore) ListTemplates(ctx context.Context, f store.TemplateFilter) ([]models.Template, int64, error) {
	defer s.during()
	return s.Store.ListTemplates(ctx, f)
}

func TestSyncTimeIsTakenBeforeDownload(t *testing.T) {
	e := newEnv(t)
	svc := NewSyncService(slowStore{Store: e.store, during: func() { e.clock.advance(time.Minute) }}, zerolog.Nop())
	svc.now = e.clock.now

	before := e.clock.now()
	resp, err := svc.Checklists(e.ctx, e.operator, SyncChecklistsRequest{})
	require.NoError(t, err)
	assert.Equal(t, before, resp.SyncTime)

	before = e.clock.now()
	tpls, err := svc.Templates(e.ctx, e.viewer, nil)
	require.NoError(t, err)
	assert.Equal(t, before, tpls.SyncTime)
}
