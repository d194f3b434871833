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

const consumableColumns = `id, code, name, unit, active, COALESCE(image_mime, '') AS image_mime, created_at, updated_at`

// CreateConsumable adds a consumable to the catalog. Codes are unique.
func CreateConsumable(ctx context.Context, db *sqlx.DB, code, name, unit string) (*model.Consumable, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" {
		return nil, invalid("code", "required")
	}
	if name == "" {
		return nil, invalid("name", "required")
	}
	if unit = strings.TrimSpace(unit); unit == "" {
		unit = "pcs"
	}

	ts := now()
	var id int64
	err := db.QueryRowxContext(ctx, db.Rebind(
		`INSERT INTO consumables (code, name, unit, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		code, name, unit, true, ts, ts,
	).Scan(&id)
	if err != nil {
		return nil, translate("creating consumable", "consumable", err)
	}

	return GetConsumable(ctx, db, id)
}

// GetConsumable returns a consumable by ID.
func GetConsumable(ctx context.Context, db sqlx.ExtContext, id int64) (*model.Consumable, error) {
	c := &model.Consumable{}
	err := sqlx.GetContext(ctx, db, c, db.Rebind(`SELECT `+consumableColumns+` FROM consumables WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting consumable: %w", err)
	}
	return c, nil
}

// GetConsumableByCode returns a consumable by its unique code.
func GetConsumableByCode(ctx context.Context, db *sqlx.DB, code string) (*model.Consumable, error) {
	c := &model.Consumable{}
	err := db.GetContext(ctx, c, db.Rebind(`SELECT `+consumableColumns+` FROM consumables WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting consumable by code: %w", err)
	}
	return c, nil
}

// ListConsumables returns the catalog ordered by code.
func ListConsumables(ctx context.Context, db *sqlx.DB, includeInactive bool) ([]model.Consumable, error) {
	query := `SELECT ` + consumableColumns + ` FROM consumables`
	var args []any
	if !includeInactive {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY code`

	var consumables []model.Consumable
	if err := db.SelectContext(ctx, &consumables, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing consumables: %w", err)
	}
	return consumables, nil
}

// UpdateConsumable updates a consumable's name and unit. The code is fixed.
func UpdateConsumable(ctx context.Context, db *sqlx.DB, id int64, name, unit string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name", "required")
	}
	if unit = strings.TrimSpace(unit); unit == "" {
		unit = "pcs"
	}
	return updateConsumable(ctx, db, id,
		`UPDATE consumables SET name = ?, unit = ?, updated_at = ? WHERE id = ?`,
		name, unit, now(), id)
}

// SetConsumableActive hides or shows a consumable in new-entry forms.
func SetConsumableActive(ctx context.Context, db *sqlx.DB, id int64, active bool) error {
	return updateConsumable(ctx, db, id,
		`UPDATE consumables SET active = ?, updated_at = ? WHERE id = ?`,
		active, now(), id)
}

// SetConsumableImage sets a consumable's image data.
func SetConsumableImage(ctx context.Context, db *sqlx.DB, id int64, image []byte, mime string) error {
	return updateConsumable(ctx, db, id,
		`UPDATE consumables SET image = ?, image_mime = ?, updated_at = ? WHERE id = ?`,
		image, mime, now(), id)
}

// GetConsumableImage returns a consumable's image data and MIME type.
func GetConsumableImage(ctx context.Context, db *sqlx.DB, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowxContext(ctx, db.Rebind(
		`SELECT image, image_mime FROM consumables WHERE id = ?`), id,
	).Scan(&image, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting consumable image: %w", err)
	}
	return image, mime.String, nil
}

func updateConsumable(ctx context.Context, db *sqlx.DB, id int64, query string, args ...any) error {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("updating consumable: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "consumable", ID: id}
	}
	return nil
}

// consumablesByID loads the given consumables keyed by ID.
func consumablesByID(ctx context.Context, db sqlx.ExtContext, ids []int64) (map[int64]model.Consumable, error) {
	out := make(map[int64]model.Consumable, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+consumableColumns+` FROM consumables WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building consumable query: %w", err)
	}

	var consumables []model.Consumable
	if err := sqlx.SelectContext(ctx, db, &consumables, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("loading consumables: %w", err)
	}
	for _, c := range consumables {
		out[c.ID] = c
	}
	return out, nil
}
