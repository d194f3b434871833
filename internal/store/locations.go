package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/povratna/internal/model"
)

const locationColumns = `id, type, owner_ref, label, active, created_at`

// CreateLocation creates a factory or site location. Global and external
// locations are seeded with the schema and cannot be created again.
func CreateLocation(ctx context.Context, db *sqlx.DB, typ model.LocationType, ownerRef int64, label string) (*model.Location, error) {
	if !typ.Valid() {
		return nil, invalid("type", "unknown location type %q", typ)
	}
	if !typ.HasOwner() {
		return nil, &ConflictError{Entity: "location", Msg: fmt.Sprintf("%s location already exists", typ)}
	}
	if ownerRef <= 0 {
		return nil, invalid("owner_ref", "%s location requires an owner reference", typ)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, invalid("label", "required")
	}

	var id int64
	err := db.QueryRowxContext(ctx, db.Rebind(
		`INSERT INTO locations (type, owner_ref, label, active, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`),
		typ, ownerRef, label, true, now(),
	).Scan(&id)
	if err != nil {
		return nil, translate("creating location", "location", err)
	}

	return GetLocation(ctx, db, id)
}

// GetLocation returns a location by ID.
func GetLocation(ctx context.Context, db sqlx.ExtContext, id int64) (*model.Location, error) {
	loc := &model.Location{}
	err := sqlx.GetContext(ctx, db, loc, db.Rebind(`SELECT `+locationColumns+` FROM locations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return loc, nil
}

// GetSingleton returns the global or external location.
func GetSingleton(ctx context.Context, db *sqlx.DB, typ model.LocationType) (*model.Location, error) {
	loc := &model.Location{}
	err := db.GetContext(ctx, loc, db.Rebind(`SELECT `+locationColumns+` FROM locations WHERE type = ?`), typ)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s location: %w", typ, err)
	}
	return loc, nil
}

// ListLocations returns locations, optionally filtered by type.
func ListLocations(ctx context.Context, db *sqlx.DB, typ model.LocationType, includeInactive bool) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE 1=1`
	var args []any

	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	if !includeInactive {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY type, label, id`

	var locations []model.Location
	if err := db.SelectContext(ctx, &locations, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	return locations, nil
}

// RenameLocation changes a location's label. Type and owner never change.
func RenameLocation(ctx context.Context, db *sqlx.DB, id int64, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return invalid("label", "required")
	}
	return updateLocation(ctx, db, id, `UPDATE locations SET label = ? WHERE id = ?`, label, id)
}

// SetLocationActive hides or shows a location in new-entry forms. Inactive
// locations keep their history and balances.
func SetLocationActive(ctx context.Context, db *sqlx.DB, id int64, active bool) error {
	return updateLocation(ctx, db, id, `UPDATE locations SET active = ? WHERE id = ?`, active, id)
}

func updateLocation(ctx context.Context, db *sqlx.DB, id int64, query string, args ...any) error {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("updating location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "location", ID: id}
	}
	return nil
}

// locationsByID loads the given locations keyed by ID.
func locationsByID(ctx context.Context, db sqlx.ExtContext, ids []int64) (map[int64]model.Location, error) {
	out := make(map[int64]model.Location, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+locationColumns+` FROM locations WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building location query: %w", err)
	}

	var locations []model.Location
	if err := sqlx.SelectContext(ctx, db, &locations, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("loading locations: %w", err)
	}
	for _, l := range locations {
		out[l.ID] = l
	}
	return out, nil
}
