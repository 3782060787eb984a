package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

const defaultRevision = "A"

type TemplateService struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewTemplateService(st store.Store, log zerolog.Logger) *TemplateService {
	return &TemplateService{store: st, log: log, now: utcNow}
}

type StepInput struct {
	Code               string              `json:"code"`
	Position           *int                `json:"position"`
	Description        string              `json:"description"`
	Requirement        string              `json:"requirement"`
	Category           models.StepCategory `json:"category"`
	AcceptanceCriteria string              `json:"acceptance_criteria"`
	RequiresPhoto      bool                `json:"requires_photo"`
	StdTimeSeconds     *int                `json:"std_time_seconds"`
	Metadata           datatypes.JSONMap   `json:"metadata"`
}

type TemplateInput struct {
	Code     string              `json:"code"`
	Name     string              `json:"name"`
	Revision string              `json:"revision"`
	Tier     models.TemplateTier `json:"tier"`
	ModelID  *uint               `json:"model_id"`
	StageID  *uint               `json:"stage_id"`
	Metadata datatypes.JSONMap   `json:"metadata"`
	Steps    []StepInput         `json:"steps"`
}

// TemplatePatch lists the fields a generic update may touch. Status changes
// are routed through Publish and Archive.
type TemplatePatch struct {
	Name         models.Optional[string]                `json:"name"`
	Revision     models.Optional[string]                `json:"revision"`
	Tier         models.Optional[models.TemplateTier]   `json:"tier"`
	ModelID      models.Optional[*uint]                 `json:"model_id"`
	StageID      models.Optional[*uint]                 `json:"stage_id"`
	Metadata     models.Optional[datatypes.JSONMap]     `json:"metadata"`
	ApprovedByID models.Optional[*uint]                 `json:"approved_by_id"`
	Status       models.Optional[models.TemplateStatus] `json:"status"`
}

type StepPatch struct {
	Code               models.Optional[string]              `json:"code"`
	Position           models.Optional[int]                 `json:"position"`
	Description        models.Optional[string]              `json:"description"`
	Requirement        models.Optional[string]              `json:"requirement"`
	Category           models.Optional[models.StepCategory] `json:"category"`
	AcceptanceCriteria models.Optional[string]              `json:"acceptance_criteria"`
	RequiresPhoto      models.Optional[bool]                `json:"requires_photo"`
	StdTimeSeconds     models.Optional[int]                 `json:"std_time_seconds"`
	Metadata           models.Optional[datatypes.JSONMap]   `json:"metadata"`
}

type TemplateListFilter struct {
	Status  models.TemplateStatus
	Code    string
	ModelID *uint
	StageID *uint
	Search  string
	Page    store.Page
}

func validateStep(st *models.Step) error {
	st.Code = strings.TrimSpace(st.Code)
	if st.Code == "" {
		return invalid("step code is required")
	}
	if err := checkLen("step code", st.Code, models.MaxStepCodeLen); err != nil {
		return err
	}
	if strings.TrimSpace(st.Description) == "" {
		return invalid("step %s: description is required", st.Code)
	}
	if st.Category == "" {
		st.Category = models.CategoryMajor
	}
	if !st.Category.Valid() {
		return invalid("step %s: unknown category %q", st.Code, st.Category)
	}
	if st.StdTimeSeconds < 0 {
		return invalid("step %s: std_time_seconds must not be negative", st.Code)
	}
	return nil
}

func (in StepInput) toStep(templateID uint, defaultPos int) (models.Step, error) {
	st := models.Step{
		TemplateID:         templateID,
		Position:           defaultPos,
		Code:               in.Code,
		Description:        in.Description,
		Requirement:        in.Requirement,
		Category:           in.Category,
		AcceptanceCriteria: in.AcceptanceCriteria,
		RequiresPhoto:      in.RequiresPhoto,
		StdTimeSeconds:     models.DefaultStdTimeSeconds,
		Metadata:           models.CopyJSONMap(in.Metadata),
	}
	if in.Position != nil {
		st.Position = *in.Position
	}
	if in.StdTimeSeconds != nil {
		st.StdTimeSeconds = *in.StdTimeSeconds
	}
	return st, validateStep(&st)
}

// canEdit: admins edit any template, authors only their own.
func canEdit(actor *models.User, t *models.Template) error {
	if actor.Role == models.RoleAdmin || t.CreatedByID == actor.ID {
		return nil
	}
	return fmt.Errorf("%w: only the author or an admin may change template %d", models.ErrForbidden, t.ID)
}

func requireDraft(t *models.Template) error {
	if t.Status != models.TemplateDraft {
		return fmt.Errorf("%w: template %s rev %s is %s; clone it to a new revision to change steps",
			models.ErrInvalidState, t.Code, t.Revision, t.Status)
	}
	return nil
}

func checkCatalogRefs(ctx context.Context, tx store.Store, modelID, stageID *uint) error {
	if modelID != nil {
		if _, err := tx.GetProductModel(ctx, *modelID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return invalid("product model %d does not exist", *modelID)
			}
			return err
		}
	}
	if stageID != nil {
		if _, err := tx.GetStage(ctx, *stageID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return invalid("stage %d does not exist", *stageID)
			}
			return err
		}
	}
	return nil
}

func (s *TemplateService) Create(ctx context.Context, actor *models.User, in TemplateInput) (*models.Template, error) {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return nil, err
	}
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Revision = strings.TrimSpace(in.Revision)
	if in.Code == "" || in.Name == "" {
		return nil, invalid("template code and name are required")
	}
	if in.Revision == "" {
		in.Revision = defaultRevision
	}
	if !in.Tier.Valid() {
		return nil, invalid("unknown tier %q", in.Tier)
	}
	for _, err := range []error{
		checkLen("code", in.Code, models.MaxTemplateCodeLen),
		checkLen("revision", in.Revision, models.MaxRevisionLen),
		checkLen("name", in.Name, models.MaxNameLen),
	} {
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	t := &models.Template{
		Code:        in.Code,
		Name:        in.Name,
		Revision:    in.Revision,
		Status:      models.TemplateDraft,
		Tier:        in.Tier,
		ModelID:     in.ModelID,
		StageID:     in.StageID,
		Metadata:    models.CopyJSONMap(in.Metadata),
		CreatedByID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		n, err := tx.CountTemplatesByCode(ctx, t.Code)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: template code %s already exists", models.ErrConflict, t.Code)
		}
		if err := checkCatalogRefs(ctx, tx, t.ModelID, t.StageID); err != nil {
			return err
		}
		if err := tx.CreateTemplate(ctx, t); err != nil {
			return err
		}

		seen := map[string]bool{}
		for i, si := range in.Steps {
			st, err := si.toStep(t.ID, i+1)
			if err != nil {
				return err
			}
			if seen[st.Code] {
				return fmt.Errorf("%w: duplicate step code %s", models.ErrConflict, st.Code)
			}
			seen[st.Code] = true
			if err := tx.CreateStep(ctx, &st); err != nil {
				return err
			}
		}
		if t.Steps, err = tx.ListSteps(ctx, t.ID); err != nil {
			return err
		}
		return audit(ctx, tx, actor, "template", t.ID, "create", fmt.Sprintf("%s rev %s, %d steps", t.Code, t.Revision, len(t.Steps)))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, actor *models.User, id uint) (*models.Template, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	return s.load(ctx, s.store, id)
}

func (s *TemplateService) load(ctx context.Context, st store.Store, id uint) (*models.Template, error) {
	t, err := st.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Steps, err = st.ListSteps(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) List(ctx context.Context, actor *models.User, f TemplateListFilter) ([]models.Template, int64, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalid("unknown status %q", f.Status)
	}
	return s.store.ListTemplates(ctx, store.TemplateFilter{
		Status:  f.Status,
		Code:    f.Code,
		ModelID: f.ModelID,
		StageID: f.StageID,
		Search:  f.Search,
		Page:    f.Page,
	})
}

// publish stamps the published state on t. Both Publish and Update go through it.
func (s *TemplateService) publish(ctx context.Context, tx store.Store, actor *models.User, t *models.Template) error {
	if t.Status != models.TemplateDraft {
		return fmt.Errorf("%w: template %s rev %s is %s, only drafts can be published",
			models.ErrInvalidState, t.Code, t.Revision, t.Status)
	}
	now := s.now()
	t.Status = models.TemplatePublished
	t.PublishedAt = &now
	if t.ApprovedByID == nil {
		t.ApprovedByID = ptr(actor.ID)
	}
	t.UpdatedAt = now
	if err := tx.UpdateTemplate(ctx, t); err != nil {
		return err
	}
	return audit(ctx, tx, actor, "template", t.ID, "publish", t.Code+" rev "+t.Revision)
}

func (s *TemplateService) archive(ctx context.Context, tx store.Store, actor *models.User, t *models.Template) error {
	if t.Status == models.TemplateArchived {
		return fmt.Errorf("%w: template %s rev %s is already archived", models.ErrInvalidState, t.Code, t.Revision)
	}
	t.Status = models.TemplateArchived
	t.UpdatedAt = s.now()
	if err := tx.UpdateTemplate(ctx, t); err != nil {
		return err
	}
	return audit(ctx, tx, actor, "template", t.ID, "archive", t.Code+" rev "+t.Revision)
}

func (s *TemplateService) Publish(ctx context.Context, actor *models.User, id uint) (*models.Template, error) {
	return s.transition(ctx, actor, id, s.publish, "template published")
}

func (s *TemplateService) Archive(ctx context.Context, actor *models.User, id uint) (*models.Template, error) {
	return s.transition(ctx, actor, id, s.archive, "template archived")
}

func (s *TemplateService) transition(ctx context.Context, actor *models.User, id uint,
	apply func(context.Context, store.Store, *models.User, *models.Template) error, msg string) (*models.Template, error) {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return nil, err
	}
	var out *models.Template
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		t, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := apply(ctx, tx, actor, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("template_id", out.ID).Str("code", out.Code).Str("revision", out.Revision).Uint("user_id", actor.ID).Msg(msg)
	return out, nil
}

// Clone copies a template and all its steps into a new draft revision.
func (s *TemplateService) Clone(ctx context.Context, actor *models.User, id uint, newRevision string) (*models.Template, error) {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return nil, err
	}
	newRevision = strings.TrimSpace(newRevision)
	if newRevision == "" {
		return nil, invalid("new_revision is required")
	}
	if err := checkLen("new_revision", newRevision, models.MaxRevisionLen); err != nil {
		return nil, err
	}

	var out *models.Template
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		src, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.FindTemplateByCodeRevision(ctx, src.Code, newRevision); err == nil {
			return fmt.Errorf("%w: template %s rev %s already exists", models.ErrConflict, src.Code, newRevision)
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		now := s.now()
		dst := &models.Template{
			Code:        src.Code,
			Name:        src.Name,
			Revision:    newRevision,
			Status:      models.TemplateDraft,
			Tier:        src.Tier,
			ModelID:     src.ModelID,
			StageID:     src.StageID,
			Metadata:    models.CopyJSONMap(src.Metadata),
			CreatedByID: actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateTemplate(ctx, dst); err != nil {
			return err
		}
		for _, st := range src.Steps {
			cp := st.CloneFor(dst.ID)
			if err := tx.CreateStep(ctx, &cp); err != nil {
				return err
			}
		}
		if dst.Steps, err = tx.ListSteps(ctx, dst.ID); err != nil {
			return err
		}
		out = dst
		return audit(ctx, tx, actor, "template", dst.ID, "clone",
			fmt.Sprintf("%s rev %s -> rev %s", src.Code, src.Revision, newRevision))
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("source_id", id).Uint("template_id", out.ID).Str("revision", newRevision).Msg("template cloned")
	return out, nil
}

func (s *TemplateService) Update(ctx context.Context, actor *models.User, id uint, p TemplatePatch) (*models.Template, error) {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return nil, err
	}
	if p.Tier.Set && !p.Tier.Value.Valid() {
		return nil, invalid("unknown tier %q", p.Tier.Value)
	}
	if p.Status.Set && !p.Status.Value.Valid() {
		return nil, invalid("unknown status %q", p.Status.Value)
	}

	var out *models.Template
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		t, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := canEdit(actor, t); err != nil {
			return err
		}

		if p.Name.Set {
			name := strings.TrimSpace(p.Name.Value)
			if name == "" {
				return invalid("name must not be empty")
			}
			if err := checkLen("name", name, models.MaxNameLen); err != nil {
				return err
			}
			t.Name = name
		}
		if p.Revision.Set {
			rev := strings.TrimSpace(p.Revision.Value)
			if rev == "" {
				return invalid("revision must not be empty")
			}
			if err := checkLen("revision", rev, models.MaxRevisionLen); err != nil {
				return err
			}
			if rev != t.Revision {
				if _, err := tx.FindTemplateByCodeRevision(ctx, t.Code, rev); err == nil {
					return fmt.Errorf("%w: template %s rev %s already exists", models.ErrConflict, t.Code, rev)
				} else if !errors.Is(err, models.ErrNotFound) {
					return err
				}
				t.Revision = rev
			}
		}
		p.Tier.Apply(&t.Tier)
		p.ModelID.Apply(&t.ModelID)
		p.StageID.Apply(&t.StageID)
		p.ApprovedByID.Apply(&t.ApprovedByID)
		if p.Metadata.Set {
			t.Metadata = models.CopyJSONMap(p.Metadata.Value)
		}
		if p.ModelID.Set || p.StageID.Set {
			if err := checkCatalogRefs(ctx, tx, t.ModelID, t.StageID); err != nil {
				return err
			}
		}

		t.UpdatedAt = s.now()
		if err := tx.UpdateTemplate(ctx, t); err != nil {
			return err
		}
		if err := audit(ctx, tx, actor, "template", t.ID, "update", ""); err != nil {
			return err
		}

		if p.Status.Set && p.Status.Value != t.Status {
			switch p.Status.Value {
			case models.TemplatePublished:
				err = s.publish(ctx, tx, actor, t)
			case models.TemplateArchived:
				err = s.archive(ctx, tx, actor, t)
			default:
				err = fmt.Errorf("%w: template %s rev %s cannot return to draft", models.ErrInvalidState, t.Code, t.Revision)
			}
			if err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (s *TemplateService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return err
	}
	return s.store.Transaction(ctx, func(tx store.Store) error {
		t, err := tx.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		if err := canEdit(actor, t); err != nil {
			return err
		}
		if err := tx.DeleteTemplate(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, actor, "template", id, "delete", t.Code+" rev "+t.Revision)
	})
}

// Stats reports execution figures for one template revision. FPY counts a
// completed checklist as first-pass when every result is ok.
func (s *TemplateService) Stats(ctx context.Context, actor *models.User, id uint) (*models.TemplateStats, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	if _, err := s.store.GetTemplate(ctx, id); err != nil {
		return nil, err
	}
	steps, err := s.store.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, total, err := s.store.ListQCDocs(ctx, store.QCDocFilter{TemplateID: &id})
	if err != nil {
		return nil, err
	}

	stats := &models.TemplateStats{TemplateID: id, StepCount: int64(len(steps)), ChecklistCount: total}
	var passed, timed, timeSum int64
	for _, d := range docs {
		if d.ExecutionTime != nil {
			timed++
			timeSum += int64(*d.ExecutionTime)
		}
		if d.Status != models.QCDocCompleted {
			continue
		}
		stats.CompletedCount++
		results, err := s.store.ListResults(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		firstPass := true
		for _, r := range results {
			if !r.OKFlag {
				firstPass = false
				break
			}
		}
		if firstPass {
			passed++
		}
	}
	if stats.CompletedCount > 0 {
		fpy := math.Round(float64(passed)/float64(stats.CompletedCount)*10000) / 100
		stats.FPYPercentage = &fpy
	}
	if timed > 0 {
		avg := int(timeSum / timed)
		stats.AverageExecutionTime = &avg
	}
	return stats, nil
}

// steps

func (s *TemplateService) ListSteps(ctx context.Context, actor *models.User, templateID uint) ([]models.Step, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.store.ListSteps(ctx, templateID)
}

func (s *TemplateService) editableTemplate(ctx context.Context, tx store.Store, actor *models.User, id uint) (*models.Template, error) {
	t, err := tx.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canEdit(actor, t); err != nil {
		return nil, err
	}
	if err := requireDraft(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) touch(ctx context.Context, tx store.Store, t *models.Template) error {
	t.UpdatedAt = s.now()
	return tx.UpdateTemplate(ctx, t)
}

func (s *TemplateService) AddStep(ctx context.Context, actor *models.User, templateID uint, in StepInput) (*models.Step, error) {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return nil, err
	}
	var out *models.Step
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		t, err := s.editableTemplate(ctx, tx, actor, templateID)
		if err != nil {
			return err
		}
		existing, err := tx.ListSteps(ctx, t.ID)
		if err != nil {
			return err
		}
		next := 1
		if n := len(existing); n > 0 {
			next = existing[n-1].Position + 1
		}
		st, err := in.toStep(t.ID, next)
		if err != nil {
			return err
		}
		if err := tx.CreateStep(ctx, &st); err != nil {
			return err
		}
		out = &st
		if err := s.touch(ctx, tx, t); err != nil {
			return err
		}
		return audit(ctx, tx, actor, "template", t.ID, "add_step", st.Code)
	})
	return out, err
}

func (s *TemplateService) stepOf(ctx context.Context, tx store.Store, templateID, stepID uint) (*models.Step, error) {
	st, err := tx.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if st.TemplateID != templateID {
		return nil, fmt.Errorf("%w: step %d in template %d", models.ErrNotFound, stepID, templateID)
	}
	return st, nil
}

func (s *TemplateService) UpdateStep(ctx context.Context, actor *models.User, templateID, stepID uint, p StepPatch) (*models.Step, error) {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return nil, err
	}
	var out *models.Step
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		t, err := s.editableTemplate(ctx, tx, actor, templateID)
		if err != nil {
			return err
		}
		st, err := s.stepOf(ctx, tx, templateID, stepID)
		if err != nil {
			return err
		}
		p.Code.Apply(&st.Code)
		p.Position.Apply(&st.Position)
		p.Description.Apply(&st.Description)
		p.Requirement.Apply(&st.Requirement)
		p.Category.Apply(&st.Category)
		p.AcceptanceCriteria.Apply(&st.AcceptanceCriteria)
		p.RequiresPhoto.Apply(&st.RequiresPhoto)
		p.StdTimeSeconds.Apply(&st.StdTimeSeconds)
		if p.Metadata.Set {
			st.Metadata = models.CopyJSONMap(p.Metadata.Value)
		}
		if err := validateStep(st); err != nil {
			return err
		}
		if err := tx.UpdateStep(ctx, st); err != nil {
			return err
		}
		out = st
		if err := s.touch(ctx, tx, t); err != nil {
			return err
		}
		return audit(ctx, tx, actor, "template", t.ID, "update_step", st.Code)
	})
	return out, err
}

func (s *TemplateService) DeleteStep(ctx context.Context, actor *models.User, templateID, stepID uint) error {
	if err := authorize(actor, models.TemplateAuthors); err != nil {
		return err
	}
	return s.store.Transaction(ctx, func(tx store.Store) error {
		t, err := s.editableTemplate(ctx, tx, actor, templateID)
		if err != nil {
			return err
		}
		st, err := s.stepOf(ctx, tx, templateID, stepID)
		if err != nil {
			return err
		}
		if err := tx.DeleteStep(ctx, st.ID); err != nil {
			return err
		}
		if err := s.touch(ctx, tx, t); err != nil {
			return err
		}
		return audit(ctx, tx, actor, "template", t.ID, "delete_step", st.Code)
	})
}
