package service

import (
	"context"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/repository/database"
)

type LocationService struct {
	repo database.RegionCheckRepository
}

func NewLocationService(repo database.RegionCheckRepository) *LocationService {
	return &LocationService{repo: repo}
}

func (s *LocationService) GetCheck(ctx context.Context, checkID string) (*domain.RegionCheck, error) {
	return s.repo.GetByID(ctx, checkID)
}

func (s *LocationService) GetLatest(ctx context.Context, deviceID string) (*domain.RegionCheck, error) {
	return s.repo.GetLatest(ctx, deviceID)
}

func (s *LocationService) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.RegionCheck, error) {
	return s.repo.GetHistory(ctx, query)
}

func (s *LocationService) GetAllDevices(ctx context.Context) ([]domain.Device, error) {
	return s.repo.GetAllDevices(ctx)
}
