package service

import (
	"context"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/provider"
)

type fixChecker interface {
	Check(ctx context.Context, fix domain.Fix) (*domain.RegionCheck, error)
}

// LocateService asks a device for a fresh fix and checks it. There is no
// retry policy: a failed request is retried by calling Locate again.
type LocateService struct {
	provider provider.LocationProvider
	checker  fixChecker
	opts     domain.LocateOptions
}

func NewLocateService(p provider.LocationProvider, checker fixChecker, opts domain.LocateOptions) *LocateService {
	return &LocateService{provider: p, checker: checker, opts: opts}
}

func (s *LocateService) Locate(ctx context.Context, deviceID string) (*domain.RegionCheck, error) {
	fix, err := s.provider.Locate(ctx, deviceID, s.opts)
	if err != nil {
		return nil, err
	}
	if fix.DeviceID == "" {
		fix.DeviceID = deviceID
	}
	return s.checker.Check(ctx, fix)
}
