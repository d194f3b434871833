package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/povratna/internal/model"
)

// NewTransfer is the input for CreateTransfer.
type NewTransfer struct {
	FromLocationID    int64
	ToLocationID      int64
	Kind              string
	BizDate           string
	VerificationLevel int
	Note              string
	Lines             []NewTransferLine
}

// NewTransferLine is one requested line of a new transfer.
type NewTransferLine struct {
	ConsumableID int64
	Qty          int64
}

const transferSelect = `SELECT t.id, t.ref, t.biz_date, t.from_location_id, t.to_location_id, t.kind,
       t.verification_level, t.note, t.status, t.created_by, t.created_at,
       t.approved_by, t.approved_at, t.confirmed_by, t.confirmed_at, t.voided_by, t.voided_at,
       fl.label AS from_label, tl.label AS to_label
FROM transfers t
JOIN locations fl ON fl.id = t.from_location_id
JOIN locations tl ON tl.id = t.to_location_id`

func (in *NewTransfer) validate() error {
	if in.FromLocationID <= 0 {
		return invalid("from_location_id", "required")
	}
	if in.ToLocationID <= 0 {
		return invalid("to_location_id", "required")
	}
	if in.FromLocationID == in.ToLocationID {
		return invalid("to_location_id", "must differ from from_location_id")
	}
	if !validKind(in.Kind) {
		return invalid("kind", "must be a lowercase identifier")
	}
	if _, err := time.Parse(model.BizDateLayout, in.BizDate); err != nil {
		return invalid("biz_date", "must be a date in YYYY-MM-DD format")
	}
	if in.VerificationLevel < 0 {
		return invalid("verification_level", "must not be negative")
	}
	if len(in.Lines) == 0 {
		return invalid("lines", "at least one line required")
	}

	seen := make(map[int64]bool, len(in.Lines))
	for i, l := range in.Lines {
		if l.ConsumableID <= 0 {
			return invalid(fmt.Sprintf("lines[%d].consumable_id", i), "required")
		}
		if l.Qty <= 0 {
			return invalid(fmt.Sprintf("lines[%d].qty", i), "must be positive")
		}
		if seen[l.ConsumableID] {
			return invalid(fmt.Sprintf("lines[%d].consumable_id", i), "duplicate consumable %d", l.ConsumableID)
		}
		seen[l.ConsumableID] = true
	}
	return nil
}

func validKind(kind string) bool {
	if kind == "" || len(kind) > 64 {
		return false
	}
	for _, r := range kind {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// CreateTransfer records a new submitted transfer. Header and lines are
// written in one transaction; nothing is persisted when validation fails.
func CreateTransfer(ctx context.Context, db *sqlx.DB, in NewTransfer, actor model.Actor) (*model.Transfer, error) {
	in.Kind = strings.TrimSpace(in.Kind)
	in.Note = strings.TrimSpace(in.Note)
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := checkEndpoints(ctx, db, in.FromLocationID, in.ToLocationID); err != nil {
		return nil, err
	}

	ids := make([]int64, len(in.Lines))
	for i, l := range in.Lines {
		ids[i] = l.ConsumableID
	}
	if err := checkConsumables(ctx, db, ids, true); err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(
		`INSERT INTO transfers (ref, biz_date, from_location_id, to_location_id, kind,
		                        verification_level, note, status, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		uuid.NewString(), in.BizDate, in.FromLocationID, in.ToLocationID, in.Kind,
		in.VerificationLevel, in.Note, model.StatusSubmitted, actor.UserID, now(),
	).Scan(&id)
	if err != nil {
		return nil, translate("recording transfer", "transfer", err)
	}

	for _, l := range in.Lines {
		_, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO transfer_lines (transfer_id, consumable_id, qty) VALUES (?, ?, ?)`),
			id, l.ConsumableID, l.Qty,
		)
		if err != nil {
			return nil, translate("recording transfer line", "transfer line", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}

	return GetTransfer(ctx, db, id)
}

// checkEndpoints verifies both locations exist and accept new transfers.
func checkEndpoints(ctx context.Context, db *sqlx.DB, from, to int64) error {
	locations, err := locationsByID(ctx, db, []int64{from, to})
	if err != nil {
		return err
	}
	for _, id := range []int64{from, to} {
		loc, ok := locations[id]
		if !ok {
			return &NotFoundError{Entity: "location", ID: id}
		}
		if !loc.Active {
			return invalid("location", "location %d is inactive", id)
		}
	}
	return nil
}

// checkConsumables verifies the consumables exist and, if requireActive, are active.
func checkConsumables(ctx context.Context, db *sqlx.DB, ids []int64, requireActive bool) error {
	consumables, err := consumablesByID(ctx, db, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		c, ok := consumables[id]
		if !ok {
			return &NotFoundError{Entity: "consumable", ID: id}
		}
		if requireActive && !c.Active {
			return invalid("consumable", "consumable %d is inactive", id)
		}
	}
	return nil
}

// ApproveTransfer moves a submitted transfer to approved. The status check and
// write are a single conditional update, so of two concurrent approvals exactly
// one succeeds and the other gets a ConflictError.
func ApproveTransfer(ctx context.Context, db *sqlx.DB, id int64, actor model.Actor) (*model.Transfer, error) {
	return transition(ctx, db, id, "approve",
		`UPDATE transfers SET status = ?, approved_by = ?, approved_at = ? WHERE id = ? AND status = ?`,
		model.StatusApproved, actor.UserID, now(), id, model.StatusSubmitted)
}

// VoidTransfer cancels a submitted transfer. Approved transfers can only be
// corrected with an adjustment.
func VoidTransfer(ctx context.Context, db *sqlx.DB, id int64, actor model.Actor) (*model.Transfer, error) {
	return transition(ctx, db, id, "void",
		`UPDATE transfers SET status = ?, voided_by = ?, voided_at = ? WHERE id = ? AND status = ?`,
		model.StatusVoided, actor.UserID, now(), id, model.StatusSubmitted)
}

// ConfirmTransfer moves an approved transfer to the confirmed tier when the
// deployment enables confirmation for its kind.
func ConfirmTransfer(ctx context.Context, db *sqlx.DB, id int64, actor model.Actor, policy model.ConfirmPolicy) (*model.Transfer, error) {
	var kind string
	err := db.GetContext(ctx, &kind, db.Rebind(`SELECT kind FROM transfers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "transfer", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer kind: %w", err)
	}
	if !policy.Allows(kind) {
		return nil, invalid("kind", "confirmation is not enabled for %q transfers", kind)
	}

	return transition(ctx, db, id, "confirm",
		`UPDATE transfers SET status = ?, confirmed_by = ?, confirmed_at = ? WHERE id = ? AND status = ?`,
		model.StatusConfirmed, actor.UserID, now(), id, model.StatusApproved)
}

func transition(ctx context.Context, db *sqlx.DB, id int64, verb, query string, args ...any) (*model.Transfer, error) {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, translate(verb+" transfer", "transfer", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s transfer: %w", verb, err)
	}

	if n == 0 {
		var status model.Status
		err := db.GetContext(ctx, &status, db.Rebind(`SELECT status FROM transfers WHERE id = ?`), id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "transfer", ID: id}
		}
		if err != nil {
			return nil, fmt.Errorf("checking transfer status: %w", err)
		}
		return nil, &ConflictError{Entity: "transfer", ID: id, Msg: fmt.Sprintf("cannot %s, transfer is %s", verb, status)}
	}

	return GetTransfer(ctx, db, id)
}

// GetTransfer returns a transfer with its lines and adjustments.
func GetTransfer(ctx context.Context, db *sqlx.DB, id int64) (*model.Transfer, error) {
	t := &model.Transfer{}
	err := db.GetContext(ctx, t, db.Rebind(transferSelect+` WHERE t.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}

	if err := db.SelectContext(ctx, &t.Lines, db.Rebind(
		`SELECT l.id, l.transfer_id, l.consumable_id, l.qty, c.code AS consumable_code
		 FROM transfer_lines l
		 JOIN consumables c ON c.id = l.consumable_id
		 WHERE l.transfer_id = ?
		 ORDER BY l.id`), id,
	); err != nil {
		return nil, fmt.Errorf("getting transfer lines: %w", err)
	}

	adjustments, err := ListAdjustments(ctx, db, id)
	if err != nil {
		return nil, err
	}
	t.Adjustments = adjustments

	return t, nil
}

// TransferFilter narrows ListTransfers. Zero values mean no filter.
type TransferFilter struct {
	LocationID    int64
	Status        model.Status
	Kind          string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// DefaultListLimit caps ListTransfers when no limit is given.
const DefaultListLimit = 200

// ListTransfers returns transfer headers, newest first.
func ListTransfers(ctx context.Context, db *sqlx.DB, f TransferFilter) ([]model.Transfer, error) {
	query := transferSelect + ` WHERE 1=1`
	var args []any

	if f.LocationID > 0 {
		query += ` AND (t.from_location_id = ? OR t.to_location_id = ?)`
		args = append(args, f.LocationID, f.LocationID)
	}
	if f.Status != "" {
		query += ` AND t.status = ?`
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		query += ` AND t.kind = ?`
		args = append(args, f.Kind)
	}
	if !f.CreatedAfter.IsZero() {
		query += ` AND t.created_at >= ?`
		args = append(args, f.CreatedAfter.UTC())
	}
	if !f.CreatedBefore.IsZero() {
		query += ` AND t.created_at <= ?`
		args = append(args, f.CreatedBefore.UTC())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC LIMIT ?`
	args = append(args, limit)

	var transfers []model.Transfer
	if err := db.SelectContext(ctx, &transfers, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	return transfers, nil
}
