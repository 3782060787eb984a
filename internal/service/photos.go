package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"qc-standards/internal/models"
	"qc-standards/internal/photostore"
	"qc-standards/internal/store"
)

type PhotoService struct {
	store  store.Store
	files  *photostore.Store
	log    zerolog.Logger
	prefix string
}

// NewPhotoService serves photo URLs under urlPrefix, e.g. "/api/v1/files/".
func NewPhotoService(st store.Store, files *photostore.Store, log zerolog.Logger, urlPrefix string) *PhotoService {
	return &PhotoService{store: st, files: files, log: log, prefix: strings.TrimSuffix(urlPrefix, "/") + "/"}
}

type UploadInput struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
	ChecklistID *uint
	Note        *string
}

type PhotoView struct {
	models.Photo
	URL string `json:"url"`
}

func (s *PhotoService) view(p *models.Photo) *PhotoView {
	return &PhotoView{Photo: *p, URL: s.prefix + p.Path}
}

func (s *PhotoService) Upload(ctx context.Context, actor *models.User, in UploadInput) (*PhotoView, error) {
	if err := authorize(actor, models.ChecklistRunners); err != nil {
		return nil, err
	}
	ext, err := s.files.Validate(in.Filename, in.Size)
	if err != nil {
		return nil, err
	}
	if in.ChecklistID != nil {
		if _, err := s.store.GetQCDoc(ctx, *in.ChecklistID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, invalid("checklist %d does not exist", *in.ChecklistID)
			}
			return nil, err
		}
	}

	name := uuid.NewString() + ext
	rel := "photos/" + name
	n, err := s.files.Save(rel, in.Body)
	if err != nil {
		return nil, err
	}
	p := &models.Photo{
		Filename:         name,
		OriginalFilename: in.Filename,
		Path:             rel,
		Size:             n,
		ContentType:      in.ContentType,
		UploadedByID:     actor.ID,
		Note:             in.Note,
		QCDocID:          in.ChecklistID,
	}
	if err := s.store.CreatePhoto(ctx, p); err != nil {
		if rmErr := s.files.Remove(rel); rmErr != nil {
			s.log.Error().Err(rmErr).Str("path", rel).Msg("failed to remove orphaned photo")
		}
		return nil, err
	}
	return s.view(p), nil
}

func (s *PhotoService) Get(ctx context.Context, actor *models.User, id uint) (*PhotoView, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	p, err := s.store.GetPhoto(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(p), nil
}

// Open returns the stored bytes of photo id. The caller closes the file.
func (s *PhotoService) Open(ctx context.Context, actor *models.User, id uint) (*models.Photo, afero.File, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, nil, err
	}
	p, err := s.store.GetPhoto(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.files.Open(p.Path)
	if err != nil {
		return nil, nil, err
	}
	return p, f, nil
}

// OpenPath serves a file by its storage path, e.g. a result's photo_path.
func (s *PhotoService) OpenPath(actor *models.User, path string) (afero.File, error) {
	if err := authorize(actor, nil); err != nil {
		return nil, err
	}
	return s.files.Open(path)
}

// Delete removes the photo row and its file. A result still pointing at the
// file loses its photo_path in the same transaction.
func (s *PhotoService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := authorize(actor, nil); err != nil {
		return err
	}
	var p *models.Photo
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		if p, err = tx.GetPhoto(ctx, id); err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && p.UploadedByID != actor.ID {
			return fmt.Errorf("%w: only the uploader or an admin may delete photo %d", models.ErrForbidden, id)
		}
		if err := tx.DeletePhoto(ctx, id); err != nil {
			return err
		}
		if p.QCResultID == nil {
			return nil
		}
		r, err := tx.GetResult(ctx, *p.QCResultID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if r.PhotoPath == nil || *r.PhotoPath != p.Path {
			return nil
		}
		r.PhotoPath = nil
		r.UpdatedAt = utcNow()
		return tx.UpdateResult(ctx, r)
	})
	if err != nil {
		return err
	}
	if err := s.files.Remove(p.Path); err != nil {
		s.log.Error().Err(err).Str("path", p.Path).Msg("failed to remove photo file")
	}
	return nil
}
