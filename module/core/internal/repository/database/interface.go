package database

import (
	"context"

	"github.com/nandanugg/region-check/module/core/domain"
)

// RegionCheckRepository returns domain.ErrCheckNotFound when a lookup matches nothing.
type RegionCheckRepository interface {
	Insert(ctx context.Context, check *domain.RegionCheck) error
	GetByID(ctx context.Context, id string) (*domain.RegionCheck, error)
	GetLatest(ctx context.Context, deviceID string) (*domain.RegionCheck, error)
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.RegionCheck, error)
	GetAllDevices(ctx context.Context) ([]domain.Device, error)
}

type PhotoRepository interface {
	Save(ctx context.Context, photo *domain.Photo) error
	Get(ctx context.Context, checkID string) (*domain.Photo, error)
}
