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

const userColumns = `id, username, password_hash, role, home_location_id, created_at, deleted_at`

// CreateUser creates a new user. homeLocationID is optional and scopes the
// user to one location.
func CreateUser(ctx context.Context, db *sqlx.DB, username, passwordHash, role string, homeLocationID *int64) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("username", "required")
	}
	if !model.ValidRole(role) {
		return nil, invalid("role", "unknown role %q", role)
	}
	if err := checkHomeLocation(ctx, db, homeLocationID); err != nil {
		return nil, err
	}

	var id int64
	err := db.QueryRowxContext(ctx, db.Rebind(
		`INSERT INTO users (username, password_hash, role, home_location_id, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`),
		username, passwordHash, role, homeLocationID, now(),
	).Scan(&id)
	if err != nil {
		return nil, translate("creating user", "user", err)
	}

	return GetUser(ctx, db, id)
}

func checkHomeLocation(ctx context.Context, db *sqlx.DB, id *int64) error {
	if id == nil {
		return nil
	}
	loc, err := GetLocation(ctx, db, *id)
	if err != nil {
		return err
	}
	if loc == nil {
		return &NotFoundError{Entity: "location", ID: *id}
	}
	return nil
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sqlx.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := db.GetContext(ctx, u, db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db *sqlx.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := db.GetContext(ctx, u, db.Rebind(
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`), username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db *sqlx.DB) ([]model.User, error) {
	var users []model.User
	err := db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// UpdateUser updates a user's role and home location.
func UpdateUser(ctx context.Context, db *sqlx.DB, id int64, role string, homeLocationID *int64) error {
	if !model.ValidRole(role) {
		return invalid("role", "unknown role %q", role)
	}
	if err := checkHomeLocation(ctx, db, homeLocationID); err != nil {
		return err
	}
	return updateUser(ctx, db, id,
		`UPDATE users SET role = ?, home_location_id = ? WHERE id = ? AND deleted_at IS NULL`,
		role, homeLocationID, id)
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sqlx.DB, id int64, passwordHash string) error {
	return updateUser(ctx, db, id,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id)
}

// DeleteUser soft-deletes a user. Ledger rows keep referencing it.
func DeleteUser(ctx context.Context, db *sqlx.DB, id int64) error {
	return updateUser(ctx, db, id,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now(), id)
}

func updateUser(ctx context.Context, db *sqlx.DB, id int64, query string, args ...any) error {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return translate("updating user", "user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "user", ID: id}
	}
	return nil
}
