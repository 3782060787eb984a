// Package memstore is an in-memory, transactional implementation of
// store.Store. It enforces the same uniqueness and reference rules as the
// database schema and is used by service and handler tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"qc-standards/internal/models"
	"qc-standards/internal/store"
)

type state struct {
	seq           map[string]uint
	users         map[uint]models.User
	productModels map[uint]models.ProductModel
	stages        map[uint]models.Stage
	templates     map[uint]models.Template
	steps         map[uint]models.Step
	docs          map[uint]models.QCDoc
	results       map[uint]models.QCResult
	photos        map[uint]models.Photo
	audit         []models.AuditLog
}

func newState() *state {
	return &state{
		seq:           map[string]uint{},
		users:         map[uint]models.User{},
		productModels: map[uint]models.ProductModel{},
		stages:        map[uint]models.Stage{},
		templates:     map[uint]models.Template{},
		steps:         map[uint]models.Step{},
		docs:          map[uint]models.QCDoc{},
		results:       map[uint]models.QCResult{},
		photos:        map[uint]models.Photo{},
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.seq {
		out.seq[k] = v
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.productModels {
		out.productModels[k] = v
	}
	for k, v := range st.stages {
		out.stages[k] = v
	}
	for k, v := range st.templates {
		out.templates[k] = v
	}
	for k, v := range st.steps {
		out.steps[k] = v
	}
	for k, v := range st.docs {
		out.docs[k] = v
	}
	for k, v := range st.results {
		out.results[k] = v
	}
	for k, v := range st.photos {
		out.photos[k] = v
	}
	out.audit = append([]models.AuditLog(nil), st.audit...)
	return out
}

func (st *state) next(table string) uint {
	st.seq[table]++
	return st.seq[table]
}

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// Transaction serializes transactions and restores the previous state when fn fails.
func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(txView{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txView is handed to transaction bodies; nested transactions join the outer one.
type txView struct {
	*Store
}

func (v txView) Transaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(v)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrConflict, fmt.Sprintf(format, args...))
}

func notFound(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", models.ErrNotFound, entity, id)
}

func missingRef(entity string, id any) error {
	return fmt.Errorf("%w: referenced %s %v does not exist", models.ErrValidation, entity, id)
}

func paginate[T any](items []T, p store.Page) []T {
	if p.Size <= 0 {
		return items
	}
	off := p.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

func stampCreate(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}

// users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.users {
		if existing.Username == u.Username {
			return conflict("username %q already registered", u.Username)
		}
		if existing.Email == u.Email {
			return conflict("email %q already registered", u.Email)
		}
	}
	u.ID = s.st.next("users")
	stampCreate(&u.CreatedAt, &u.UpdatedAt)
	s.st.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.st.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, notFound("user", username)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.st.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, notFound("user", email)
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.users[u.ID]; !ok {
		return notFound("user", u.ID)
	}
	for id, existing := range s.st.users {
		if id == u.ID {
			continue
		}
		if existing.Username == u.Username {
			return conflict("username %q already registered", u.Username)
		}
		if existing.Email == u.Email {
			return conflict("email %q already registered", u.Email)
		}
	}
	s.st.users[u.ID] = *u
	return nil
}

func (s *Store) ListUsers(_ context.Context, page store.Page) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.st.users))
	for _, u := range s.st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return paginate(out, page), int64(len(out)), nil
}

func (s *Store) CountUsersByRole(_ context.Context, role models.UserRole) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.st.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// catalog

func (s *Store) CreateProductModel(_ context.Context, m *models.ProductModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.productModels {
		if existing.Name == m.Name {
			return conflict("product model %q already exists", m.Name)
		}
	}
	m.ID = s.st.next("product_models")
	stampCreate(&m.CreatedAt, &m.UpdatedAt)
	s.st.productModels[m.ID] = *m
	return nil
}

func (s *Store) GetProductModel(_ context.Context, id uint) (*models.ProductModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.st.productModels[id]
	if !ok {
		return nil, notFound("product model", id)
	}
	return &m, nil
}

func (s *Store) UpdateProductModel(_ context.Context, m *models.ProductModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.productModels[m.ID]; !ok {
		return notFound("product model", m.ID)
	}
	for id, existing := range s.st.productModels {
		if id != m.ID && existing.Name == m.Name {
			return conflict("product model %q already exists", m.Name)
		}
	}
	s.st.productModels[m.ID] = *m
	return nil
}

func (s *Store) ListProductModels(_ context.Context, page store.Page) ([]models.ProductModel, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProductModel, 0, len(s.st.productModels))
	for _, m := range s.st.productModels {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, page), int64(len(out)), nil
}

func (s *Store) CreateStage(_ context.Context, st *models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.stages {
		if existing.Name == st.Name {
			return conflict("stage %q already exists", st.Name)
		}
	}
	st.ID = s.st.next("stages")
	stampCreate(&st.CreatedAt, &st.UpdatedAt)
	s.st.stages[st.ID] = *st
	return nil
}

func (s *Store) GetStage(_ context.Context, id uint) (*models.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.st.stages[id]
	if !ok {
		return nil, notFound("stage", id)
	}
	return &st, nil
}

func (s *Store) UpdateStage(_ context.Context, st *models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.stages[st.ID]; !ok {
		return notFound("stage", st.ID)
	}
	for id, existing := range s.st.stages {
		if id != st.ID && existing.Name == st.Name {
			return conflict("stage %q already exists", st.Name)
		}
	}
	s.st.stages[st.ID] = *st
	return nil
}

func (s *Store) ListStages(_ context.Context, page store.Page) ([]models.Stage, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Stage, 0, len(s.st.stages))
	for _, st := range s.st.stages {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, page), int64(len(out)), nil
}

// templates

func (s *Store) checkTemplateRefs(t *models.Template) error {
	if t.ModelID != nil {
		if _, ok := s.st.productModels[*t.ModelID]; !ok {
			return missingRef("product model", *t.ModelID)
		}
	}
	if t.StageID != nil {
		if _, ok := s.st.stages[*t.StageID]; !ok {
			return missingRef("stage", *t.StageID)
		}
	}
	return nil
}

func (s *Store) CreateTemplate(_ context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.templates {
		if existing.Code == t.Code && existing.Revision == t.Revision {
			return conflict("template %s rev %s already exists", t.Code, t.Revision)
		}
	}
	if err := s.checkTemplateRefs(t); err != nil {
		return err
	}
	t.ID = s.st.next("templates")
	stampCreate(&t.CreatedAt, &t.UpdatedAt)
	row := *t
	row.Steps = nil
	row.Model, row.Stage = nil, nil
	row.Metadata = models.CopyJSONMap(t.Metadata)
	s.st.templates[t.ID] = row
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id uint) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.templates[id]
	if !ok {
		return nil, notFound("template", id)
	}
	t.Metadata = models.CopyJSONMap(t.Metadata)
	return &t, nil
}

func (s *Store) FindTemplateByCodeRevision(_ context.Context, code, revision string) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.st.templates {
		if t.Code == code && t.Revision == revision {
			t.Metadata = models.CopyJSONMap(t.Metadata)
			return &t, nil
		}
	}
	return nil, notFound("template", code+"@"+revision)
}

func (s *Store) CountTemplatesByCode(_ context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.st.templates {
		if t.Code == code {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateTemplate(_ context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.templates[t.ID]; !ok {
		return notFound("template", t.ID)
	}
	for id, existing := range s.st.templates {
		if id != t.ID && existing.Code == t.Code && existing.Revision == t.Revision {
			return conflict("template %s rev %s already exists", t.Code, t.Revision)
		}
	}
	if err := s.checkTemplateRefs(t); err != nil {
		return err
	}
	row := *t
	row.Steps = nil
	row.Model, row.Stage = nil, nil
	row.Metadata = models.CopyJSONMap(t.Metadata)
	s.st.templates[t.ID] = row
	return nil
}

func (s *Store) DeleteTemplate(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.templates[id]; !ok {
		return notFound("template", id)
	}
	for _, d := range s.st.docs {
		if d.TemplateID == id {
			return conflict("template %d is referenced by checklists", id)
		}
	}
	for sid, st := range s.st.steps {
		if st.TemplateID == id {
			delete(s.st.steps, sid)
		}
	}
	delete(s.st.templates, id)
	return nil
}

func (s *Store) ListTemplates(_ context.Context, f store.TemplateFilter) ([]models.Template, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []models.Template{}
	for _, t := range s.st.templates {
		switch {
		case f.Status != "" && t.Status != f.Status:
			continue
		case f.ExcludeArchived && t.Status == models.TemplateArchived:
			continue
		case f.Code != "" && t.Code != f.Code:
			continue
		case f.ModelID != nil && (t.ModelID == nil || *t.ModelID != *f.ModelID):
			continue
		case f.StageID != nil && (t.StageID == nil || *t.StageID != *f.StageID):
			continue
		case search != "" && !strings.Contains(strings.ToLower(t.Name), search) && !strings.Contains(strings.ToLower(t.Code), search):
			continue
		case f.UpdatedAfter != nil && !t.UpdatedAt.After(*f.UpdatedAfter):
			continue
		}
		t.Metadata = models.CopyJSONMap(t.Metadata)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page), int64(len(out)), nil
}

// steps

func (s *Store) CreateStep(_ context.Context, st *models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.templates[st.TemplateID]; !ok {
		return missingRef("template", st.TemplateID)
	}
	for _, existing := range s.st.steps {
		if existing.TemplateID == st.TemplateID && existing.Code == st.Code {
			return conflict("step code %q already used in template %d", st.Code, st.TemplateID)
		}
	}
	st.ID = s.st.next("steps")
	row := *st
	row.Metadata = models.CopyJSONMap(st.Metadata)
	s.st.steps[st.ID] = row
	return nil
}

func (s *Store) GetStep(_ context.Context, id uint) (*models.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.st.steps[id]
	if !ok {
		return nil, notFound("step", id)
	}
	st.Metadata = models.CopyJSONMap(st.Metadata)
	return &st, nil
}

func (s *Store) UpdateStep(_ context.Context, st *models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.steps[st.ID]; !ok {
		return notFound("step", st.ID)
	}
	for id, existing := range s.st.steps {
		if id != st.ID && existing.TemplateID == st.TemplateID && existing.Code == st.Code {
			return conflict("step code %q already used in template %d", st.Code, st.TemplateID)
		}
	}
	row := *st
	row.Metadata = models.CopyJSONMap(st.Metadata)
	s.st.steps[st.ID] = row
	return nil
}

func (s *Store) DeleteStep(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.steps[id]; !ok {
		return notFound("step", id)
	}
	for _, r := range s.st.results {
		if r.StepID == id {
			return conflict("step %d has recorded results", id)
		}
	}
	delete(s.st.steps, id)
	return nil
}

func (s *Store) ListSteps(_ context.Context, templateID uint) ([]models.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Step{}
	for _, st := range s.st.steps {
		if st.TemplateID == templateID {
			st.Metadata = models.CopyJSONMap(st.Metadata)
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// qc docs

func (s *Store) checkDocRefs(d *models.QCDoc) error {
	if _, ok := s.st.templates[d.TemplateID]; !ok {
		return missingRef("template", d.TemplateID)
	}
	if _, ok := s.st.users[d.CreatedByID]; !ok {
		return missingRef("user", d.CreatedByID)
	}
	if d.SignedOffByID != nil {
		if _, ok := s.st.users[*d.SignedOffByID]; !ok {
			return missingRef("user", *d.SignedOffByID)
		}
	}
	return nil
}

func (s *Store) clientIDTaken(id uint, clientID *string) bool {
	if clientID == nil {
		return false
	}
	for other, d := range s.st.docs {
		if other != id && d.ClientID != nil && *d.ClientID == *clientID {
			return true
		}
	}
	return false
}

func (s *Store) CreateQCDoc(_ context.Context, d *models.QCDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDocRefs(d); err != nil {
		return err
	}
	if s.clientIDTaken(0, d.ClientID) {
		return conflict("client id %s already synced", *d.ClientID)
	}
	d.ID = s.st.next("qc_docs")
	stampCreate(&d.CreatedAt, &d.UpdatedAt)
	row := *d
	row.Results = nil
	row.Template = nil
	row.Metadata = models.CopyJSONMap(d.Metadata)
	s.st.docs[d.ID] = row
	return nil
}

func (s *Store) GetQCDoc(_ context.Context, id uint) (*models.QCDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.st.docs[id]
	if !ok {
		return nil, notFound("qc doc", id)
	}
	d.Metadata = models.CopyJSONMap(d.Metadata)
	return &d, nil
}

func (s *Store) GetQCDocByClientID(_ context.Context, clientID string) (*models.QCDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.st.docs {
		if d.ClientID != nil && *d.ClientID == clientID {
			d.Metadata = models.CopyJSONMap(d.Metadata)
			return &d, nil
		}
	}
	return nil, notFound("qc doc", clientID)
}

func (s *Store) UpdateQCDoc(_ context.Context, d *models.QCDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.docs[d.ID]; !ok {
		return notFound("qc doc", d.ID)
	}
	if err := s.checkDocRefs(d); err != nil {
		return err
	}
	if s.clientIDTaken(d.ID, d.ClientID) {
		return conflict("client id %s already synced", *d.ClientID)
	}
	row := *d
	row.Results = nil
	row.Template = nil
	row.Metadata = models.CopyJSONMap(d.Metadata)
	s.st.docs[d.ID] = row
	return nil
}

func (s *Store) DeleteQCDoc(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.docs[id]; !ok {
		return notFound("qc doc", id)
	}
	for rid, r := range s.st.results {
		if r.QCDocID == id {
			delete(s.st.results, rid)
		}
	}
	for pid, p := range s.st.photos {
		if p.QCDocID != nil && *p.QCDocID == id {
			p.QCDocID, p.QCResultID = nil, nil
			s.st.photos[pid] = p
		}
	}
	delete(s.st.docs, id)
	return nil
}

func (s *Store) ListQCDocs(_ context.Context, f store.QCDocFilter) ([]models.QCDoc, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.QCDoc{}
	for _, d := range s.st.docs {
		switch {
		case f.TemplateID != nil && d.TemplateID != *f.TemplateID:
			continue
		case f.Status != "" && d.Status != f.Status:
			continue
		case f.SerialNo != "" && d.SerialNo != f.SerialNo:
			continue
		case f.CreatedByID != nil && d.CreatedByID != *f.CreatedByID:
			continue
		}
		d.Metadata = models.CopyJSONMap(d.Metadata)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page), int64(len(out)), nil
}

func (s *Store) ListQCDocsForUser(_ context.Context, userID uint, since *time.Time) ([]models.QCDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.QCDoc{}
	for _, d := range s.st.docs {
		mine := d.CreatedByID == userID || (d.SignedOffByID != nil && *d.SignedOffByID == userID)
		if !mine {
			continue
		}
		if since != nil && !d.UpdatedAt.After(*since) {
			continue
		}
		d.Metadata = models.CopyJSONMap(d.Metadata)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountQCDocsByTemplate(_ context.Context, templateID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.st.docs {
		if d.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

// results

func (s *Store) checkResult(r *models.QCResult) error {
	if _, ok := s.st.docs[r.QCDocID]; !ok {
		return missingRef("qc doc", r.QCDocID)
	}
	if _, ok := s.st.steps[r.StepID]; !ok {
		return missingRef("step", r.StepID)
	}
	for id, existing := range s.st.results {
		if id != r.ID && existing.QCDocID == r.QCDocID && existing.StepID == r.StepID {
			return conflict("result for step %d already recorded on qc doc %d", r.StepID, r.QCDocID)
		}
	}
	return nil
}

func (s *Store) CreateResult(_ context.Context, r *models.QCResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = 0
	if err := s.checkResult(r); err != nil {
		return err
	}
	r.ID = s.st.next("qc_results")
	stampCreate(&r.CreatedAt, &r.UpdatedAt)
	row := *r
	row.Metadata = models.CopyJSONMap(r.Metadata)
	s.st.results[r.ID] = row
	return nil
}

func (s *Store) GetResult(_ context.Context, id uint) (*models.QCResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.results[id]
	if !ok {
		return nil, notFound("qc result", id)
	}
	r.Metadata = models.CopyJSONMap(r.Metadata)
	return &r, nil
}

func (s *Store) FindResultByStep(_ context.Context, docID, stepID uint) (*models.QCResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.st.results {
		if r.QCDocID == docID && r.StepID == stepID {
			r.Metadata = models.CopyJSONMap(r.Metadata)
			return &r, nil
		}
	}
	return nil, notFound("qc result", fmt.Sprintf("doc %d step %d", docID, stepID))
}

func (s *Store) UpdateResult(_ context.Context, r *models.QCResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.results[r.ID]; !ok {
		return notFound("qc result", r.ID)
	}
	if err := s.checkResult(r); err != nil {
		return err
	}
	row := *r
	row.Metadata = models.CopyJSONMap(r.Metadata)
	s.st.results[r.ID] = row
	return nil
}

func (s *Store) ListResults(_ context.Context, docID uint) ([]models.QCResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.QCResult{}
	for _, r := range s.st.results {
		if r.QCDocID == docID {
			r.Metadata = models.CopyJSONMap(r.Metadata)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// photos

func (s *Store) CreatePhoto(_ context.Context, p *models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.photos {
		if existing.Filename == p.Filename {
			return conflict("photo %q already stored", p.Filename)
		}
	}
	if p.QCDocID != nil {
		if _, ok := s.st.docs[*p.QCDocID]; !ok {
			return missingRef("qc doc", *p.QCDocID)
		}
	}
	p.ID = s.st.next("photos")
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.st.photos[p.ID] = *p
	return nil
}

func (s *Store) GetPhoto(_ context.Context, id uint) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.photos[id]
	if !ok {
		return nil, notFound("photo", id)
	}
	return &p, nil
}

func (s *Store) GetPhotoByPath(_ context.Context, path string) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.st.photos {
		if p.Path == path {
			return &p, nil
		}
	}
	return nil, notFound("photo", path)
}

func (s *Store) DeletePhoto(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.photos[id]; !ok {
		return notFound("photo", id)
	}
	delete(s.st.photos, id)
	return nil
}

// audit

func (s *Store) CreateAuditLog(_ context.Context, l *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.st.next("audit_logs")
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.st.audit = append(s.st.audit, *l)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, 0, len(s.st.audit))
	for i := len(s.st.audit) - 1; i >= 0; i-- {
		l := s.st.audit[i]
		if u, ok := s.st.users[l.UserID]; ok {
			l.User = &u
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
