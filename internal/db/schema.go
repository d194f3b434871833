package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS locations (
    id         INTEGER PRIMARY KEY,
    type       TEXT NOT NULL CHECK (type IN ('factory', 'site', 'global', 'external')),
    owner_ref  INTEGER,
    label      TEXT NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    CHECK ((type IN ('factory', 'site') AND owner_ref IS NOT NULL)
        OR (type IN ('global', 'external') AND owner_ref IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_locations_singleton
    ON locations(type) WHERE type IN ('global', 'external');
CREATE UNIQUE INDEX IF NOT EXISTS idx_locations_owner
    ON locations(type, owner_ref) WHERE owner_ref IS NOT NULL;

CREATE TABLE IF NOT EXISTS users (
    id               INTEGER PRIMARY KEY,
    username         TEXT NOT NULL,
    password_hash    TEXT NOT NULL,
    role             TEXT NOT NULL DEFAULT 'driver' CHECK (role IN ('admin', 'manager', 'clerk', 'driver')),
    home_location_id INTEGER REFERENCES locations(id),
    created_at       DATETIME NOT NULL,
    deleted_at       DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS consumables (
    id         INTEGER PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    unit       TEXT NOT NULL DEFAULT 'pcs',
    active     BOOLEAN NOT NULL DEFAULT 1,
    image      BLOB,
    image_mime TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
    id                 INTEGER PRIMARY KEY,
    ref                TEXT NOT NULL UNIQUE,
    biz_date           TEXT NOT NULL,
    from_location_id   INTEGER NOT NULL REFERENCES locations(id),
    to_location_id     INTEGER NOT NULL REFERENCES locations(id),
    kind               TEXT NOT NULL,
    verification_level INTEGER NOT NULL DEFAULT 0,
    note               TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL CHECK (status IN ('submitted', 'approved', 'confirmed', 'voided')),
    created_by         INTEGER NOT NULL REFERENCES users(id),
    created_at         DATETIME NOT NULL,
    approved_by        INTEGER REFERENCES users(id),
    approved_at        DATETIME,
    confirmed_by       INTEGER REFERENCES users(id),
    confirmed_at       DATETIME,
    voided_by          INTEGER REFERENCES users(id),
    voided_at          DATETIME,
    CHECK (from_location_id <> to_location_id)
);

CREATE INDEX IF NOT EXISTS idx_transfers_created_at ON transfers(created_at);
CREATE INDEX IF NOT EXISTS idx_transfers_approved_at ON transfers(approved_at);
CREATE INDEX IF NOT EXISTS idx_transfers_confirmed_at ON transfers(confirmed_at);
CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_location_id, approved_at);
CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_location_id, approved_at);

CREATE TABLE IF NOT EXISTS transfer_lines (
    id            INTEGER PRIMARY KEY,
    transfer_id   INTEGER NOT NULL REFERENCES transfers(id),
    consumable_id INTEGER NOT NULL REFERENCES consumables(id),
    qty           INTEGER NOT NULL CHECK (qty > 0)
);

CREATE INDEX IF NOT EXISTS idx_transfer_lines_transfer ON transfer_lines(transfer_id);
CREATE INDEX IF NOT EXISTS idx_transfer_lines_consumable ON transfer_lines(consumable_id);

CREATE TABLE IF NOT EXISTS adjustments (
    id          INTEGER PRIMARY KEY,
    ref         TEXT NOT NULL UNIQUE,
    transfer_id INTEGER NOT NULL REFERENCES transfers(id),
    note        TEXT NOT NULL DEFAULT '',
    created_by  INTEGER NOT NULL REFERENCES users(id),
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adjustments_transfer ON adjustments(transfer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_adjustments_created_at ON adjustments(created_at);

CREATE TABLE IF NOT EXISTS adjustment_lines (
    id            INTEGER PRIMARY KEY,
    adjustment_id INTEGER NOT NULL REFERENCES adjustments(id),
    consumable_id INTEGER NOT NULL REFERENCES consumables(id),
    delta_qty     INTEGER NOT NULL CHECK (delta_qty <> 0),
    reason        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_adjustment_lines_adjustment ON adjustment_lines(adjustment_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS locations (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    type       TEXT NOT NULL CHECK (type IN ('factory', 'site', 'global', 'external')),
    owner_ref  BIGINT,
    label      TEXT NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    CHECK ((type IN ('factory', 'site') AND owner_ref IS NOT NULL)
        OR (type IN ('global', 'external') AND owner_ref IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_locations_singleton
    ON locations(type) WHERE type IN ('global', 'external');
CREATE UNIQUE INDEX IF NOT EXISTS idx_locations_owner
    ON locations(type, owner_ref) WHERE owner_ref IS NOT NULL;

CREATE TABLE IF NOT EXISTS users (
    id               BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    username         TEXT NOT NULL,
    password_hash    TEXT NOT NULL,
    role             TEXT NOT NULL DEFAULT 'driver' CHECK (role IN ('admin', 'manager', 'clerk', 'driver')),
    home_location_id BIGINT REFERENCES locations(id),
    created_at       TIMESTAMPTZ NOT NULL,
    deleted_at       TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS consumables (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    unit       TEXT NOT NULL DEFAULT 'pcs',
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    image      BYTEA,
    image_mime TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
    id                 BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    ref                TEXT NOT NULL UNIQUE,
    biz_date           TEXT NOT NULL,
    from_location_id   BIGINT NOT NULL REFERENCES locations(id),
    to_location_id     BIGINT NOT NULL REFERENCES locations(id),
    kind               TEXT NOT NULL,
    verification_level INTEGER NOT NULL DEFAULT 0,
    note               TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL CHECK (status IN ('submitted', 'approved', 'confirmed', 'voided')),
    created_by         BIGINT NOT NULL REFERENCES users(id),
    created_at         TIMESTAMPTZ NOT NULL,
    approved_by        BIGINT REFERENCES users(id),
    approved_at        TIMESTAMPTZ,
    confirmed_by       BIGINT REFERENCES users(id),
    confirmed_at       TIMESTAMPTZ,
    voided_by          BIGINT REFERENCES users(id),
    voided_at          TIMESTAMPTZ,
    CHECK (from_location_id <> to_location_id)
);

CREATE INDEX IF NOT EXISTS idx_transfers_created_at ON transfers(created_at);
CREATE INDEX IF NOT EXISTS idx_transfers_approved_at ON transfers(approved_at);
CREATE INDEX IF NOT EXISTS idx_transfers_confirmed_at ON transfers(confirmed_at);
CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_location_id, approved_at);
CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_location_id, approved_at);

CREATE TABLE IF NOT EXISTS transfer_lines (
    id            BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    transfer_id   BIGINT NOT NULL REFERENCES transfers(id),
    consumable_id BIGINT NOT NULL REFERENCES consumables(id),
    qty           BIGINT NOT NULL CHECK (qty > 0)
);

CREATE INDEX IF NOT EXISTS idx_transfer_lines_transfer ON transfer_lines(transfer_id);
CREATE INDEX IF NOT EXISTS idx_transfer_lines_consumable ON transfer_lines(consumable_id);

CREATE TABLE IF NOT EXISTS adjustments (
    id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    ref         TEXT NOT NULL UNIQUE,
    transfer_id BIGINT NOT NULL REFERENCES transfers(id),
    note        TEXT NOT NULL DEFAULT '',
    created_by  BIGINT NOT NULL REFERENCES users(id),
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adjustments_transfer ON adjustments(transfer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_adjustments_created_at ON adjustments(created_at);

CREATE TABLE IF NOT EXISTS adjustment_lines (
    id            BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    adjustment_id BIGINT NOT NULL REFERENCES adjustments(id),
    consumable_id BIGINT NOT NULL REFERENCES consumables(id),
    delta_qty     BIGINT NOT NULL CHECK (delta_qty <> 0),
    reason        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_adjustment_lines_adjustment ON adjustment_lines(adjustment_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// singletons are the locations every ledger has exactly one of.
var singletons = []struct {
	typ   string
	label string
}{
	{"global", "Global pool"},
	{"external", "External"},
}

// EnsureSchema creates all tables and indexes if they don't already exist and
// seeds the global and external locations.
func EnsureSchema(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, s := range singletons {
		_, err := db.ExecContext(ctx, db.Rebind(
			`INSERT INTO locations (type, label, active, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`),
			s.typ, s.label, true, now,
		)
		if err != nil {
			return fmt.Errorf("seeding %s location: %w", s.typ, err)
		}
	}

	return nil
}
