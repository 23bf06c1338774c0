package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nandanugg/region-check/module/core/domain"
	"github.com/nandanugg/region-check/module/core/internal/repository/database"
)

var _ database.PhotoRepository = (*PhotoRepo)(nil)

type PhotoRepo struct {
	db *sql.DB
}

func NewPhotoRepo(db *sql.DB) *PhotoRepo {
	return &PhotoRepo{db: db}
}

// Save replaces any photo already attached to the check.
func (r *PhotoRepo) Save(ctx context.Context, p *domain.Photo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO check_photos (check_id, content_type, data, captured_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (check_id) DO UPDATE SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, captured_at = EXCLUDED.captured_at`,
		p.CheckID, p.ContentType, p.Data, p.CapturedAt,
	)
	return err
}

func (r *PhotoRepo) Get(ctx context.Context, checkID string) (*domain.Photo, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT check_id, content_type, data, captured_at FROM check_photos WHERE check_id = $1`,
		checkID,
	)

	var p domain.Photo
	if err := row.Scan(&p.CheckID, &p.ContentType, &p.Data, &p.CapturedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPhotoNotFound
		}
		return nil, err
	}
	return &p, nil
}
