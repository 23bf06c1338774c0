package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/region-check/module/core/domain"
)

type mockPhotoRepo struct {
	saved []*domain.Photo
	getFn func(ctx context.Context, checkID string) (*domain.Photo, error)
}

func (m *mockPhotoRepo) Save(_ context.Context, photo *domain.Photo) error {
	m.saved = append(m.saved, photo)
	return nil
}

func (m *mockPhotoRepo) Get(ctx context.Context, checkID string) (*domain.Photo, error) {
	return m.getFn(ctx, checkID)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestAttachPhoto_Success(t *testing.T) {
	checks := &mockCheckRepo{
		getByIDFn: func(_ context.Context, id string) (*domain.RegionCheck, error) {
			return &domain.RegionCheck{ID: id}, nil
		},
	}
	photos := &mockPhotoRepo{}
	svc := NewPhotoService(checks, photos)

	photo, err := svc.Attach(context.Background(), "c1", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", photo.ContentType)
	assert.Equal(t, "c1", photo.CheckID)
	require.Len(t, photos.saved, 1)
}

func TestAttachPhoto_NotAnImage(t *testing.T) {
	svc := NewPhotoService(&mockCheckRepo{}, &mockPhotoRepo{})

	_, err := svc.Attach(context.Background(), "c1", []byte("just some text"))
	assert.ErrorIs(t, err, domain.ErrNotAnImage)
}

func TestAttachPhoto_UnknownCheck(t *testing.T) {
	checks := &mockCheckRepo{
		getByIDFn: func(_ context.Context, _ string) (*domain.RegionCheck, error) {
			return nil, domain.ErrCheckNotFound
		},
	}
	photos := &mockPhotoRepo{}
	svc := NewPhotoService(checks, photos)

	_, err := svc.Attach(context.Background(), "missing", pngHeader)
	assert.True(t, errors.Is(err, domain.ErrCheckNotFound))
	assert.Empty(t, photos.saved)
}
