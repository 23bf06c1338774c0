package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/repository/database"
)

var _ database.RegionCheckRepository = (*RegionCheckRepo)(nil)

const checkColumns = `id, device_id, latitude, longitude, accuracy, distance_meters, inside, low_accuracy, fix_timestamp, checked_at`

type RegionCheckRepo struct {
	db *sql.DB
}

func NewRegionCheckRepo(db *sql.DB) *RegionCheckRepo {
	return &RegionCheckRepo{db: db}
}

func (r *RegionCheckRepo) Insert(ctx context.Context, c *domain.RegionCheck) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO region_checks (`+checkColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Fix.DeviceID, c.Fix.Point.Lat, c.Fix.Point.Lon, c.Fix.AccuracyMeters,
		c.Result.DistanceMeters, c.Result.Inside, c.LowAccuracy, c.Fix.Timestamp, c.CheckedAt,
	)
	return err
}

func (r *RegionCheckRepo) GetByID(ctx context.Context, id string) (*domain.RegionCheck, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM region_checks WHERE id = $1`,
		id,
	)
	return scanOne(row)
}

func (r *RegionCheckRepo) GetLatest(ctx context.Context, deviceID string) (*domain.RegionCheck, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM region_checks WHERE device_id = $1 ORDER BY checked_at DESC LIMIT 1`,
		deviceID,
	)
	return scanOne(row)
}

func (r *RegionCheckRepo) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.RegionCheck, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+checkColumns+` FROM region_checks WHERE device_id = $1 AND checked_at >= $2 AND checked_at <= $3 ORDER BY checked_at ASC`,
		query.DeviceID, query.Start, query.End,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.RegionCheck
	for rows.Next() {
		var c domain.RegionCheck
		if err := rows.Scan(checkDest(&c)...); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *RegionCheckRepo) GetAllDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT device_id FROM region_checks ORDER BY device_id`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.DeviceID); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func scanOne(row *sql.Row) (*domain.RegionCheck, error) {
	var c domain.RegionCheck
	if err := row.Scan(checkDest(&c)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckNotFound
		}
		return nil, err
	}
	return &c, nil
}

func checkDest(c *domain.RegionCheck) []any {
	return []any{
		&c.ID, &c.Fix.DeviceID, &c.Fix.Point.Lat, &c.Fix.Point.Lon, &c.Fix.AccuracyMeters,
		&c.Result.DistanceMeters, &c.Result.Inside, &c.LowAccuracy, &c.Fix.Timestamp, &c.CheckedAt,
	}
}
