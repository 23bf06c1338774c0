package postgres

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS region_checks (
	id              TEXT PRIMARY KEY,
	device_id       TEXT NOT NULL,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	accuracy        DOUBLE PRECISION NOT NULL,
	distance_meters DOUBLE PRECISION NOT NULL,
	inside          BOOLEAN NOT NULL,
	low_accuracy    BOOLEAN NOT NULL,
	fix_timestamp   TIMESTAMPTZ NOT NULL,
	checked_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS region_checks_device_checked_at ON region_checks (device_id, checked_at);
CREATE TABLE IF NOT EXISTS check_photos (
	check_id     TEXT PRIMARY KEY REFERENCES region_checks (id) ON DELETE CASCADE,
	content_type TEXT NOT NULL,
	data         BYTEA NOT NULL,
	captured_at  TIMESTAMPTZ NOT NULL
);`

func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
