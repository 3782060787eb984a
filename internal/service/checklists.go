package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"qc-standards/internal/models"
	"qc-standards/internal/photostore"
	"qc-standards/internal/store"
)

type ChecklistService struct {
	store  store.Store
	photos *photostore.Store
	log    zerolog.Logger
	now    func() time.Time
}

func NewChecklistService(st store.Store, photos *photostore.Store, log zerolog.Logger) *ChecklistService {
	return &ChecklistService{store: st, photos: photos, log: log, now: utcNow}
}

type ResultInput struct {
	StepID        uint              `json:"step_id"`
	OKFlag        bool              `json:"ok_flag"`
	Comment       *string           `json:"comment"`
	PhotoPath     *string           `json:"photo_path"`
	ExecutionTime *int              `json:"execution_time"`
	Metadata      datatypes.JSONMap `json:"metadata"`
}

type ResultPatch struct {
	OKFlag        models.Optional[bool]              `json:"ok_flag"`
	Comment       models.Optional[*string]           `json:"comment"`
	PhotoPath     models.Optional[*string]           `json:"photo_path"`
	ExecutionTime models.Optional[*int]              `json:"execution_time"`
	Metadata      models.Optional[datatypes.JSONMap] `json:"metadata"`
}

type ChecklistInput struct {
	TemplateID    uint              `json:"template_id"`
	SerialNo      string            `json:"serial_no"`
	ExecutionTime *int              `json:"execution_time"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	Results       []ResultInput     `json:"results"`
}

type CompleteInput struct {
	SignedOffByID *uint `json:"signed_off_by_id"`
	ExecutionTime *int  `json:"execution_time"`
}

type RejectInput struct {
	SignedOffByID *uint  `json:"signed_off_by_id"`
	Reason        string `json:"reason"`
}

type ChecklistListFilter struct {
	TemplateID  *uint
	Status      models.QCDocStatus
	SerialNo    string
	CreatedByID *uint
	Page        store.Page
}

func requireInProgress(d *models.QCDoc) error {
	if d.Status != models.QCDocInProgress {
		return fmt.Errorf("%w: checklist %d is %s", models.ErrInvalidState, d.ID, d.Status)
	}
	return nil
}

func checkSigner(ctx context.Context, tx store.Store, id *uint) error {
	if id == nil {
		return nil
	}
	if _, err := tx.GetUser(ctx, *id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return invalid("signing user %d does not exist", *id)
		}
		return err
	}
	return nil
}

// stepForDoc returns the step when it belongs to the template d runs against.
func stepForDoc(ctx context.Context, tx store.Store, d *models.QCDoc, stepID uint) (*models.Step, error) {
	st, err := tx.GetStep(ctx, stepID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, invalid("step %d does not exist", stepID)
		}
		return nil, err
	}
	if st.TemplateID != d.TemplateID {
		return nil, invalid("step %d does not belong to template %d", stepID, d.TemplateID)
	}
	return st, nil
}

func (s *ChecklistService) addResult(ctx context.Context, tx store.Store, d *models.QCDoc, in ResultInput) (*models.QCResult, error) {
	if in.StepID == 0 {
		return nil, invalid("step_id is required")
	}
	st, err := stepForDoc(ctx, tx, d, in.StepID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.FindResultByStep(ctx, d.ID, st.ID); err == nil {
		return nil, fmt.Errorf("%w: checklist %d already has a result for step %s", models.ErrConflict, d.ID, st.Code)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	now := s.now()
	r := &models.QCResult{
		QCDocID:       d.ID,
		StepID:        st.ID,
		OKFlag:        in.OKFlag,
		Comment:       in.Comment,
		PhotoPath:     in.PhotoPath,
		ExecutionTime: in.ExecutionTime,
		Metadata:      models.CopyJSONMap(in.Metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.CreateResult(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ChecklistService) touch(ctx context.Context, tx store.Store, d *models.QCDoc) error {
	d.UpdatedAt = s.now()
	return tx.UpdateQCDoc(ctx, d)
}

func (s *ChecklistService) Create(ctx context.Context, actor *models.User, in ChecklistInput) (*models.QCDoc, error) {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return nil, err
	}
	in.SerialNo = strings.TrimSpace(in.SerialNo)
	if in.SerialNo == "" {
		return nil, invalid("serial_no is required")
	}
	if err := checkLen("serial_no", in.SerialNo, models.MaxSerialNoLen); err != nil {
		return nil, err
	}

	var out *models.QCDoc
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		t, err := tx.GetTemplate(ctx, in.TemplateID)
		if err != nil {
			return err
		}
		if t.Status != models.TemplatePublished {
			return fmt.Errorf("%w: template %s rev %s is %s, only published templates can be executed",
				models.ErrInvalidState, t.Code, t.Revision, t.Status)
		}

		now := s.now()
		d := &models.QCDoc{
			TemplateID:    t.ID,
			SerialNo:      in.SerialNo,
			Status:        models.QCDocInProgress,
			CreatedByID:   actor.ID,
			CreatedAt:     now,
			UpdatedAt:     now,
			ExecutionTime: in.ExecutionTime,
			Metadata:      models.CopyJSONMap(in.Metadata),
		}
		if err := tx.CreateQCDoc(ctx, d); err != nil {
			return err
		}
		for _, ri := range in.Results {
			r, err := s.addResult(ctx, tx, d, ri)
			if err != nil {
				return err
			}
			d.Results = append(d.Results, *r)
		}
		if d.Results == nil {
			d.Results = []models.QCResult{}
		}
		out = d
		return audit(ctx, tx, actor, "qc_doc", d.ID, "create", fmt.Sprintf("%s rev %s, serial %s", t.Code, t.Revision, d.SerialNo))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ChecklistService) Get(ctx context.Context, actor *models.User, id uint) (*models.QCDoc, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	return loadDoc(ctx, s.store, id)
}

func loadDoc(ctx context.Context, st store.Store, id uint) (*models.QCDoc, error) {
	d, err := st.GetQCDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Results, err = st.ListResults(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *ChecklistService) List(ctx context.Context, actor *models.User, f ChecklistListFilter) ([]models.QCDoc, int64, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalid("unknown status %q", f.Status)
	}
	return s.store.ListQCDocs(ctx, store.QCDocFilter{
		TemplateID:  f.TemplateID,
		Status:      f.Status,
		SerialNo:    f.SerialNo,
		CreatedByID: f.CreatedByID,
		Page:        f.Page,
	})
}

func (s *ChecklistService) AddResult(ctx context.Context, actor *models.User, docID uint, in ResultInput) (*models.QCResult, error) {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return nil, err
	}
	var out *models.QCResult
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		d, err := tx.GetQCDoc(ctx, docID)
		if err != nil {
			return err
		}
		if err := requireInProgress(d); err != nil {
			return err
		}
		if out, err = s.addResult(ctx, tx, d, in); err != nil {
			return err
		}
		return s.touch(ctx, tx, d)
	})
	return out, err
}

func resultOf(ctx context.Context, tx store.Store, docID, resultID uint) (*models.QCResult, error) {
	r, err := tx.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if r.QCDocID != docID {
		return nil, fmt.Errorf("%w: result %d in checklist %d", models.ErrNotFound, resultID, docID)
	}
	return r, nil
}

func (s *ChecklistService) UpdateResult(ctx context.Context, actor *models.User, docID, resultID uint, p ResultPatch) (*models.QCResult, error) {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return nil, err
	}
	var out *models.QCResult
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		d, err := tx.GetQCDoc(ctx, docID)
		if err != nil {
			return err
		}
		if err := requireInProgress(d); err != nil {
			return err
		}
		r, err := resultOf(ctx, tx, docID, resultID)
		if err != nil {
			return err
		}
		p.OKFlag.Apply(&r.OKFlag)
		p.Comment.Apply(&r.Comment)
		p.PhotoPath.Apply(&r.PhotoPath)
		p.ExecutionTime.Apply(&r.ExecutionTime)
		if p.Metadata.Set {
			r.Metadata = models.CopyJSONMap(p.Metadata.Value)
		}
		r.UpdatedAt = s.now()
		if err := tx.UpdateResult(ctx, r); err != nil {
			return err
		}
		out = r
		return s.touch(ctx, tx, d)
	})
	return out, err
}

// missingSteps lists the codes of steps without a result.
func missingSteps(steps []models.Step, results []models.QCResult) []string {
	covered := make(map[uint]bool, len(results))
	for _, r := range results {
		covered[r.StepID] = true
	}
	var missing []string
	for _, st := range steps {
		if !covered[st.ID] {
			missing = append(missing, st.Code)
		}
	}
	sort.Strings(missing)
	return missing
}

// checkCoverage fails unless every step of d's template has a result.
func checkCoverage(ctx context.Context, tx store.Store, d *models.QCDoc) error {
	steps, err := tx.ListSteps(ctx, d.TemplateID)
	if err != nil {
		return err
	}
	results, err := tx.ListResults(ctx, d.ID)
	if err != nil {
		return err
	}
	if missing := missingSteps(steps, results); len(missing) > 0 || len(steps) != len(results) {
		return invalid("checklist %d has %d results for %d steps; missing: %s",
			d.ID, len(results), len(steps), strings.Join(missing, ", "))
	}
	return nil
}

// Complete closes the checklist once every template step has a result.
func (s *ChecklistService) Complete(ctx context.Context, actor *models.User, docID uint, in CompleteInput) (*models.QCDoc, error) {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return nil, err
	}
	var out *models.QCDoc
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		d, err := loadDoc(ctx, tx, docID)
		if err != nil {
			return err
		}
		if err := requireInProgress(d); err != nil {
			return err
		}
		if err := checkCoverage(ctx, tx, d); err != nil {
			return err
		}
		if err := checkSigner(ctx, tx, in.SignedOffByID); err != nil {
			return err
		}

		now := s.now()
		d.Status = models.QCDocCompleted
		d.CompletedAt = &now
		d.UpdatedAt = now
		if in.SignedOffByID != nil {
			d.SignedOffByID = in.SignedOffByID
		}
		if in.ExecutionTime != nil {
			d.ExecutionTime = in.ExecutionTime
		}
		if err := tx.UpdateQCDoc(ctx, d); err != nil {
			return err
		}
		out = d
		return audit(ctx, tx, actor, "qc_doc", d.ID, "complete", "serial "+d.SerialNo)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("qc_doc_id", out.ID).Str("serial_no", out.SerialNo).Uint("user_id", actor.ID).Msg("checklist completed")
	return out, nil
}

func (s *ChecklistService) Reject(ctx context.Context, actor *models.User, docID uint, in RejectInput) (*models.QCDoc, error) {
	if err := authorize(actor, models.ChecklistJudges); err != nil {
		return nil, err
	}
	var out *models.QCDoc
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		d, err := loadDoc(ctx, tx, docID)
		if err != nil {
			return err
		}
		if err := requireInProgress(d); err != nil {
			return err
		}
		if err := checkSigner(ctx, tx, in.SignedOffByID); err != nil {
			return err
		}
		d.Status = models.QCDocRejected
		d.UpdatedAt = s.now()
		if in.SignedOffByID != nil {
			d.SignedOffByID = in.SignedOffByID
		}
		if reason := strings.TrimSpace(in.Reason); reason != "" {
			if d.Metadata == nil {
				d.Metadata = datatypes.JSONMap{}
			}
			d.Metadata["rejection_reason"] = reason
		}
		if err := tx.UpdateQCDoc(ctx, d); err != nil {
			return err
		}
		out = d
		return audit(ctx, tx, actor, "qc_doc", d.ID, "reject", in.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("qc_doc_id", out.ID).Str("serial_no", out.SerialNo).Uint("user_id", actor.ID).Msg("checklist rejected")
	return out, nil
}

// Delete removes the checklist and its results. Admins delete any, others only their own.
func (s *ChecklistService) Delete(ctx context.Context, actor *models.User, docID uint) error {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return err
	}
	return s.store.Transaction(ctx, func(tx store.Store) error {
		d, err := tx.GetQCDoc(ctx, docID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && d.CreatedByID != actor.ID {
			return fmt.Errorf("%w: only the creator or an admin may delete checklist %d", models.ErrForbidden, docID)
		}
		if err := tx.DeleteQCDoc(ctx, docID); err != nil {
			return err
		}
		return audit(ctx, tx, actor, "qc_doc", docID, "delete", "serial "+d.SerialNo)
	})
}

func resultPhotoPath(docID, resultID uint, ext string) string {
	return fmt.Sprintf("qcdocs/%d/results/%d/%s%s", docID, resultID, uuid.NewString(), ext)
}

// AttachPhoto stores evidence for one result and points the result at it.
// The file is removed again when the database update fails.
func (s *ChecklistService) AttachPhoto(ctx context.Context, actor *models.User, docID, resultID uint,
	filename string, size int64, contentType string, body io.Reader) (*models.QCResult, error) {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return nil, err
	}
	ext, err := s.photos.Validate(filename, size)
	if err != nil {
		return nil, err
	}

	var (
		out   *models.QCResult
		saved string
	)
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		d, err := tx.GetQCDoc(ctx, docID)
		if err != nil {
			return err
		}
		r, err := resultOf(ctx, tx, docID, resultID)
		if err != nil {
			return err
		}
		if err := requireInProgress(d); err != nil {
			return err
		}

		rel := resultPhotoPath(d.ID, r.ID, ext)
		n, err := s.photos.Save(rel, body)
		if err != nil {
			return err
		}
		saved = rel

		now := s.now()
		r.PhotoPath = &rel
		r.UpdatedAt = now
		if err := tx.UpdateResult(ctx, r); err != nil {
			return err
		}
		if err := tx.CreatePhoto(ctx, &models.Photo{
			Filename:         rel[strings.LastIndex(rel, "/")+1:],
			OriginalFilename: filename,
			Path:             rel,
			Size:             n,
			ContentType:      contentType,
			UploadedByID:     actor.ID,
			QCDocID:          &d.ID,
			QCResultID:       &r.ID,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		out = r
		return s.touch(ctx, tx, d)
	})
	if err != nil {
		if saved != "" {
			if rmErr := s.photos.Remove(saved); rmErr != nil {
				s.log.Error().Err(rmErr).Str("path", saved).Msg("failed to remove orphaned photo")
			}
		}
		return nil, err
	}
	return out, nil
}
