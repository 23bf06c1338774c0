package service

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/repository/database"
)

// PhotoService attaches an optional captured photo to a region check.
type PhotoService struct {
	checks database.RegionCheckRepository
	photos database.PhotoRepository
	now    func() time.Time
}

func NewPhotoService(checks database.RegionCheckRepository, photos database.PhotoRepository) *PhotoService {
	return &PhotoService{checks: checks, photos: photos, now: time.Now}
}

func (s *PhotoService) Attach(ctx context.Context, checkID string, data []byte) (*domain.Photo, error) {
	mt := mimetype.Detect(data)
	if !isImage(mt) {
		return nil, domain.ErrNotAnImage
	}

	if _, err := s.checks.GetByID(ctx, checkID); err != nil {
		return nil, err
	}

	photo := &domain.Photo{
		CheckID:     checkID,
		ContentType: mt.String(),
		Data:        data,
		CapturedAt:  s.now(),
	}
	if err := s.photos.Save(ctx, photo); err != nil {
		return nil, eris.Wrap(err, "save photo")
	}
	return photo, nil
}

func (s *PhotoService) Get(ctx context.Context, checkID string) (*domain.Photo, error) {
	return s.photos.Get(ctx, checkID)
}

func isImage(mt *mimetype.MIME) bool {
	return strings.HasPrefix(mt.String(), "image/")
}
