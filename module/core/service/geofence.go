package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/repository/database"
	"github.com/nandanugg/region-check/module/core/internal/repository/publisher"
)

type RegionCheckService struct {
	repo              database.RegionCheckRepository
	publisher         publisher.RegionPublisher
	geofence          domain.GeofenceConfig
	accuracyThreshold float64
	devices           deviceLocks

	newID func() string
	now   func() time.Time
}

func NewRegionCheckService(
	repo database.RegionCheckRepository,
	pub publisher.RegionPublisher,
	geofence domain.GeofenceConfig,
	accuracyThreshold float64,
) *RegionCheckService {
	return &RegionCheckService{
		repo:              repo,
		publisher:         pub,
		geofence:          geofence,
		accuracyThreshold: accuracyThreshold,
		newID:             uuid.NewString,
		now:               time.Now,
	}
}

func (s *RegionCheckService) Geofence() domain.GeofenceConfig {
	return s.geofence
}

// Check evaluates fix, stores the result and publishes the events it implies.
// Nothing is published when the check cannot be stored. Checks for one device
// run one at a time, so each transition is derived from the check stored
// before it.
func (s *RegionCheckService) Check(ctx context.Context, fix domain.Fix) (*domain.RegionCheck, error) {
	result := Evaluate(fix.Point, s.geofence)

	unlock := s.devices.lock(fix.DeviceID)
	defer unlock()

	prev, err := s.repo.GetLatest(ctx, fix.DeviceID)
	if err != nil && !errors.Is(err, domain.ErrCheckNotFound) {
		return nil, eris.Wrap(err, "load previous check")
	}

	check := &domain.RegionCheck{
		ID:          s.newID(),
		Fix:         fix,
		Result:      result,
		LowAccuracy: s.accuracyThreshold > 0 && fix.AccuracyMeters > s.accuracyThreshold,
		CheckedAt:   s.now(),
	}

	if err := s.repo.Insert(ctx, check); err != nil {
		return nil, eris.Wrap(err, "store check")
	}

	zap.L().Debug("region check",
		zap.String("device_id", fix.DeviceID),
		zap.Float64("distance_meters", result.DistanceMeters),
		zap.Bool("inside", result.Inside),
		zap.Bool("low_accuracy", check.LowAccuracy),
	)

	events := []domain.RegionEventType{domain.RegionCheckEvent}
	if t, ok := transition(prev, result.Inside); ok {
		events = append(events, t)
	}
	for _, typ := range events {
		if err := s.publisher.PublishEvent(ctx, toEvent(check, typ)); err != nil {
			return check, eris.Wrapf(err, "publish %s", typ)
		}
	}
	return check, nil
}

// transition reports an entry or exit relative to the previous check. A
// device seen for the first time inside the region has entered it.
func transition(prev *domain.RegionCheck, inside bool) (domain.RegionEventType, bool) {
	switch {
	case prev == nil && inside:
		return domain.RegionEntry, true
	case prev == nil:
		return "", false
	case !prev.Result.Inside && inside:
		return domain.RegionEntry, true
	case prev.Result.Inside && !inside:
		return domain.RegionExit, true
	}
	return "", false
}

func toEvent(check *domain.RegionCheck, typ domain.RegionEventType) *domain.RegionEvent {
	return &domain.RegionEvent{
		CheckID:        check.ID,
		DeviceID:       check.Fix.DeviceID,
		Event:          typ,
		Location:       check.Fix.Point,
		DistanceMeters: check.Result.DistanceMeters,
		Inside:         check.Result.Inside,
		Timestamp:      check.Fix.Timestamp.Unix(),
	}
}

// deviceLocks hands out one mutex per device id, dropped once unused.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	sync.Mutex
	refs int
}

func (d *deviceLocks) lock(deviceID string) (unlock func()) {
	d.mu.Lock()
	if d.locks == nil {
		d.locks = make(map[string]*deviceLock)
	}
	l, ok := d.locks[deviceID]
	if !ok {
		l = &deviceLock{}
		d.locks[deviceID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, deviceID)
		}
		d.mu.Unlock()
	}
}
