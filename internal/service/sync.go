package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

// SyncService reconciles checklists collected offline with the server and
// hands out the data an offline client needs.
type SyncService struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewSyncService(st store.Store, log zerolog.Logger) *SyncService {
	return &SyncService{store: st, log: log, now: utcNow}
}

// SyncResultPayload carries one result; only fields present in the JSON are applied.
type SyncResultPayload struct {
	ID            models.Optional[*uint]             `json:"id"`
	StepID        models.Optional[*uint]             `json:"step_id"`
	OKFlag        models.Optional[bool]              `json:"ok_flag"`
	Comment       models.Optional[*string]           `json:"comment"`
	PhotoPath     models.Optional[*string]           `json:"photo_path"`
	ExecutionTime models.Optional[*int]              `json:"execution_time"`
	Metadata      models.Optional[datatypes.JSONMap] `json:"metadata"`
}

type SyncChecklistPayload struct {
	ID            models.Optional[*uint]              `json:"id"`
	ClientID      models.Optional[*string]            `json:"client_id"`
	TemplateID    models.Optional[uint]               `json:"template_id"`
	SerialNo      models.Optional[string]             `json:"serial_no"`
	Status        models.Optional[models.QCDocStatus] `json:"status"`
	CreatedByID   models.Optional[uint]               `json:"created_by_id"`
	SignedOffByID models.Optional[*uint]              `json:"signed_off_by_id"`
	CompletedAt   models.Optional[*time.Time]         `json:"completed_at"`
	ExecutionTime models.Optional[*int]               `json:"execution_time"`
	Metadata      models.Optional[datatypes.JSONMap]  `json:"metadata"`
	Results       []SyncResultPayload                 `json:"results"`
}

type SyncChecklistsRequest struct {
	LastSync          *time.Time             `json:"last_sync"`
	OfflineChecklists []SyncChecklistPayload `json:"offline_checklists"`
}

const (
	SyncCreated = "created"
	SyncUpdated = "updated"
)

// SyncOutcome maps one submitted payload to the server row it ended up in.
type SyncOutcome struct {
	Index    int     `json:"index"`
	ClientID *string `json:"client_id,omitempty"`
	ID       uint    `json:"id"`
	Action   string  `json:"action"`
}

type SyncChecklistsResponse struct {
	SyncTime   time.Time      `json:"sync_time"`
	Checklists []models.QCDoc `json:"checklists"`
	Outcomes   []SyncOutcome  `json:"outcomes"`
}

type SyncTemplatesResponse struct {
	SyncTime  time.Time         `json:"sync_time"`
	Templates []models.Template `json:"templates"`
}

// Templates returns every non-archived template changed after lastSync, with steps.
func (s *SyncService) Templates(ctx context.Context, actor *models.User, lastSync *time.Time) (*SyncTemplatesResponse, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	syncTime := s.now()
	templates, _, err := s.store.ListTemplates(ctx, store.TemplateFilter{ExcludeArchived: true, UpdatedAfter: lastSync})
	if err != nil {
		return nil, err
	}
	for i := range templates {
		if templates[i].Steps, err = s.store.ListSteps(ctx, templates[i].ID); err != nil {
			return nil, err
		}
	}
	return &SyncTemplatesResponse{SyncTime: syncTime, Templates: templates}, nil
}

// Checklists applies the offline batch in one transaction, then returns every
// checklist the caller created or signed that changed after LastSync.
func (s *SyncService) Checklists(ctx context.Context, actor *models.User, req SyncChecklistsRequest) (*SyncChecklistsResponse, error) {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return nil, err
	}

	outcomes := make([]SyncOutcome, 0, len(req.OfflineChecklists))
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var created, updated int
		for i, p := range req.OfflineChecklists {
			existing, err := s.resolveDoc(ctx, tx, p)
			if err != nil {
				return fmt.Errorf("checklist #%d: %w", i, err)
			}
			var d *models.QCDoc
			if existing != nil {
				d, err = s.updateDoc(ctx, tx, actor, existing, p)
				updated++
			} else {
				d, err = s.createDoc(ctx, tx, actor, p)
				created++
			}
			if err != nil {
				return fmt.Errorf("checklist #%d: %w", i, err)
			}
			action := SyncCreated
			if existing != nil {
				action = SyncUpdated
			}
			outcomes = append(outcomes, SyncOutcome{Index: i, ClientID: d.ClientID, ID: d.ID, Action: action})
		}
		if len(req.OfflineChecklists) == 0 {
			return nil
		}
		return audit(ctx, tx, actor, "sync", 0, "checklists", fmt.Sprintf("created=%d updated=%d", created, updated))
	})
	if err != nil {
		return nil, err
	}

	// sync_time must not be later than the query
	syncTime := s.now()
	docs, err := s.store.ListQCDocsForUser(ctx, actor.ID, req.LastSync)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].Results, err = s.store.ListResults(ctx, docs[i].ID); err != nil {
			return nil, err
		}
	}

	s.log.Info().Uint("user_id", actor.ID).Int("uploaded", len(req.OfflineChecklists)).Int("downloaded", len(docs)).Msg("checklists synced")
	return &SyncChecklistsResponse{SyncTime: syncTime, Checklists: docs, Outcomes: outcomes}, nil
}

// resolveDoc finds the server row for p by id, then by client id. nil means create.
func (s *SyncService) resolveDoc(ctx context.Context, tx store.Store, p SyncChecklistPayload) (*models.QCDoc, error) {
	if p.ID.Set && p.ID.Value != nil {
		d, err := tx.GetQCDoc(ctx, *p.ID.Value)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	if p.ClientID.Set && p.ClientID.Value != nil {
		clientID, err := normalizeClientID(*p.ClientID.Value)
		if err != nil {
			return nil, err
		}
		d, err := tx.GetQCDocByClientID(ctx, clientID)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func normalizeClientID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", invalid("client_id %q is not a UUID", raw)
	}
	return id.String(), nil
}

func syncTemplate(ctx context.Context, tx store.Store, id uint) (*models.Template, error) {
	t, err := tx.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, invalid("template %d does not exist", id)
		}
		return nil, err
	}
	return t, nil
}

// runnableTemplate loads a template a synced checklist may point at: published or archived.
func runnableTemplate(ctx context.Context, tx store.Store, id uint) (*models.Template, error) {
	t, err := syncTemplate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == models.TemplateDraft {
		return nil, fmt.Errorf("%w: template %s rev %s is a draft", models.ErrInvalidState, t.Code, t.Revision)
	}
	return t, nil
}

func syncSerial(raw string) (string, error) {
	serial := strings.TrimSpace(raw)
	if serial == "" {
		return "", invalid("serial_no is required")
	}
	return serial, checkLen("serial_no", serial, models.MaxSerialNoLen)
}

// finishCompleted stamps completed_at and checks step coverage when d ends up completed.
func (s *SyncService) finishCompleted(ctx context.Context, tx store.Store, d *models.QCDoc) error {
	if d.Status != models.QCDocCompleted {
		return nil
	}
	if err := checkCoverage(ctx, tx, d); err != nil {
		return err
	}
	if d.CompletedAt == nil {
		d.CompletedAt = ptr(s.now())
		return tx.UpdateQCDoc(ctx, d)
	}
	return nil
}

func checkUser(ctx context.Context, tx store.Store, id uint, field string) error {
	if _, err := tx.GetUser(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return invalid("%s %d does not exist", field, id)
		}
		return err
	}
	return nil
}

func (s *SyncService) createDoc(ctx context.Context, tx store.Store, actor *models.User, p SyncChecklistPayload) (*models.QCDoc, error) {
	if !p.TemplateID.Set {
		return nil, invalid("template_id is required")
	}
	t, err := runnableTemplate(ctx, tx, p.TemplateID.Value)
	if err != nil {
		return nil, err
	}
	serial, err := syncSerial(p.SerialNo.Value)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := &models.QCDoc{
		TemplateID:  t.ID,
		SerialNo:    serial,
		Status:      models.QCDocInProgress,
		CreatedByID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.ClientID.Set && p.ClientID.Value != nil {
		clientID, err := normalizeClientID(*p.ClientID.Value)
		if err != nil {
			return nil, err
		}
		d.ClientID = &clientID
	}
	if p.Status.Set {
		if !p.Status.Value.Valid() {
			return nil, invalid("unknown status %q", p.Status.Value)
		}
		d.Status = p.Status.Value
	}
	if p.SignedOffByID.Set && p.SignedOffByID.Value != nil {
		if err := checkUser(ctx, tx, *p.SignedOffByID.Value, "signed_off_by_id"); err != nil {
			return nil, err
		}
		d.SignedOffByID = p.SignedOffByID.Value
	}
	p.CompletedAt.Apply(&d.CompletedAt)
	p.ExecutionTime.Apply(&d.ExecutionTime)
	if p.Metadata.Set {
		d.Metadata = models.CopyJSONMap(p.Metadata.Value)
	}
	if err := tx.CreateQCDoc(ctx, d); err != nil {
		return nil, err
	}

	for j, rp := range p.Results {
		if err := s.insertResult(ctx, tx, d, rp); err != nil {
			return nil, fmt.Errorf("result #%d: %w", j, err)
		}
	}
	if err := s.finishCompleted(ctx, tx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// updateDoc overwrites every field present in p; last write wins.
func (s *SyncService) updateDoc(ctx context.Context, tx store.Store, actor *models.User, d *models.QCDoc, p SyncChecklistPayload) (*models.QCDoc, error) {
	mine := d.CreatedByID == actor.ID || (d.SignedOffByID != nil && *d.SignedOffByID == actor.ID)
	if !mine && !actor.HasRole(models.ChecklistJudges...) {
		return nil, fmt.Errorf("%w: checklist %d belongs to another user", models.ErrForbidden, d.ID)
	}

	if p.ClientID.Set {
		if p.ClientID.Value == nil {
			d.ClientID = nil
		} else {
			clientID, err := normalizeClientID(*p.ClientID.Value)
			if err != nil {
				return nil, err
			}
			d.ClientID = &clientID
		}
	}
	if p.TemplateID.Set && p.TemplateID.Value != d.TemplateID {
		if _, err := runnableTemplate(ctx, tx, p.TemplateID.Value); err != nil {
			return nil, err
		}
		results, err := tx.ListResults(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return nil, fmt.Errorf("%w: checklist %d already has results against template %d",
				models.ErrInvalidState, d.ID, d.TemplateID)
		}
		d.TemplateID = p.TemplateID.Value
	}
	if p.SerialNo.Set {
		serial, err := syncSerial(p.SerialNo.Value)
		if err != nil {
			return nil, err
		}
		d.SerialNo = serial
	}
	if p.Status.Set {
		if !p.Status.Value.Valid() {
			return nil, invalid("unknown status %q", p.Status.Value)
		}
		d.Status = p.Status.Value
	}
	if p.CreatedByID.Set && p.CreatedByID.Value != d.CreatedByID {
		if err := checkUser(ctx, tx, p.CreatedByID.Value, "created_by_id"); err != nil {
			return nil, err
		}
		d.CreatedByID = p.CreatedByID.Value
	}
	if p.SignedOffByID.Set {
		if p.SignedOffByID.Value != nil {
			if err := checkUser(ctx, tx, *p.SignedOffByID.Value, "signed_off_by_id"); err != nil {
				return nil, err
			}
		}
		d.SignedOffByID = p.SignedOffByID.Value
	}
	p.CompletedAt.Apply(&d.CompletedAt)
	p.ExecutionTime.Apply(&d.ExecutionTime)
	if p.Metadata.Set {
		d.Metadata = models.CopyJSONMap(p.Metadata.Value)
	}
	d.UpdatedAt = s.now()
	if err := tx.UpdateQCDoc(ctx, d); err != nil {
		return nil, err
	}

	for j, rp := range p.Results {
		r, err := resolveResult(ctx, tx, d.ID, rp)
		if err != nil {
			return nil, fmt.Errorf("result #%d: %w", j, err)
		}
		if r == nil {
			err = s.insertResult(ctx, tx, d, rp)
		} else {
			err = s.patchResult(ctx, tx, d, r, rp)
		}
		if err != nil {
			return nil, fmt.Errorf("result #%d: %w", j, err)
		}
	}
	if err := s.finishCompleted(ctx, tx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// resolveResult looks a result up by id within the doc, then by (doc, step).
func resolveResult(ctx context.Context, tx store.Store, docID uint, rp SyncResultPayload) (*models.QCResult, error) {
	if rp.ID.Set && rp.ID.Value != nil {
		r, err := tx.GetResult(ctx, *rp.ID.Value)
		switch {
		case err == nil && r.QCDocID == docID:
			return r, nil
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}
	if rp.StepID.Set && rp.StepID.Value != nil {
		r, err := tx.FindResultByStep(ctx, docID, *rp.StepID.Value)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *SyncService) insertResult(ctx context.Context, tx store.Store, d *models.QCDoc, rp SyncResultPayload) error {
	if !rp.StepID.Set || rp.StepID.Value == nil {
		return invalid("step_id is required for a new result")
	}
	st, err := stepForDoc(ctx, tx, d, *rp.StepID.Value)
	if err != nil {
		return err
	}
	if _, err := tx.FindResultByStep(ctx, d.ID, st.ID); err == nil {
		return fmt.Errorf("%w: result for step %s submitted twice", models.ErrConflict, st.Code)
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	now := s.now()
	r := &models.QCResult{QCDocID: d.ID, StepID: st.ID, CreatedAt: now, UpdatedAt: now}
	applyResultPayload(r, rp)
	return tx.CreateResult(ctx, r)
}

func (s *SyncService) patchResult(ctx context.Context, tx store.Store, d *models.QCDoc, r *models.QCResult, rp SyncResultPayload) error {
	if rp.StepID.Set && rp.StepID.Value != nil && *rp.StepID.Value != r.StepID {
		if _, err := stepForDoc(ctx, tx, d, *rp.StepID.Value); err != nil {
			return err
		}
		r.StepID = *rp.StepID.Value
	}
	applyResultPayload(r, rp)
	r.UpdatedAt = s.now()
	return tx.UpdateResult(ctx, r)
}

func applyResultPayload(r *models.QCResult, rp SyncResultPayload) {
	rp.OKFlag.Apply(&r.OKFlag)
	rp.Comment.Apply(&r.Comment)
	rp.PhotoPath.Apply(&r.PhotoPath)
	rp.ExecutionTime.Apply(&r.ExecutionTime)
	if rp.Metadata.Set {
		r.Metadata = models.CopyJSONMap(rp.Metadata.Value)
	}
}
