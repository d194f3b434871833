package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/povratna/internal/model"
)

// NewAdjustment is the input for CreateAdjustment.
type NewAdjustment struct {
	TransferID int64
	Note       string
	Lines      []NewAdjustmentLine
}

// NewAdjustmentLine is one signed correction line.
type NewAdjustmentLine struct {
	ConsumableID int64
	DeltaQty     int64
	Reason       string
}

// CreateAdjustment attaches a correction to an existing transfer. The parent is
// never modified; the adjustment only counts once the parent counts.
func CreateAdjustment(ctx context.Context, db *sqlx.DB, in NewAdjustment, actor model.Actor) (*model.Adjustment, error) {
	in.Note = strings.TrimSpace(in.Note)
	if in.TransferID <= 0 {
		return nil, invalid("transfer_id", "required")
	}
	if len(in.Lines) == 0 {
		return nil, invalid("lines", "at least one line required")
	}

	ids := make([]int64, len(in.Lines))
	for i, l := range in.Lines {
		if l.ConsumableID <= 0 {
			return nil, invalid(fmt.Sprintf("lines[%d].consumable_id", i), "required")
		}
		if l.DeltaQty == 0 {
			return nil, invalid(fmt.Sprintf("lines[%d].delta_qty", i), "must not be zero")
		}
		ids[i] = l.ConsumableID
	}

	var exists bool
	err := db.GetContext(ctx, &exists, db.Rebind(`SELECT EXISTS(SELECT 1 FROM transfers WHERE id = ?)`), in.TransferID)
	if err != nil {
		return nil, fmt.Errorf("checking transfer: %w", err)
	}
	if !exists {
		return nil, &NotFoundError{Entity: "transfer", ID: in.TransferID}
	}
	if err := checkConsumables(ctx, db, ids, false); err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	adj := &model.Adjustment{
		Ref:        uuid.NewString(),
		TransferID: in.TransferID,
		Note:       in.Note,
		CreatedBy:  actor.UserID,
		CreatedAt:  now(),
	}
	err = tx.QueryRowxContext(ctx, tx.Rebind(
		`INSERT INTO adjustments (ref, transfer_id, note, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`),
		adj.Ref, adj.TransferID, adj.Note, adj.CreatedBy, adj.CreatedAt,
	).Scan(&adj.ID)
	if err != nil {
		return nil, translate("recording adjustment", "adjustment", err)
	}

	for _, l := range in.Lines {
		line := model.AdjustmentLine{
			AdjustmentID: adj.ID,
			ConsumableID: l.ConsumableID,
			DeltaQty:     l.DeltaQty,
			Reason:       strings.TrimSpace(l.Reason),
		}
		err := tx.QueryRowxContext(ctx, tx.Rebind(
			`INSERT INTO adjustment_lines (adjustment_id, consumable_id, delta_qty, reason)
			 VALUES (?, ?, ?, ?) RETURNING id`),
			line.AdjustmentID, line.ConsumableID, line.DeltaQty, line.Reason,
		).Scan(&line.ID)
		if err != nil {
			return nil, translate("recording adjustment line", "adjustment line", err)
		}
		adj.Lines = append(adj.Lines, line)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing adjustment: %w", err)
	}

	return adj, nil
}

// ListAdjustments returns the adjustments of a transfer in creation order.
func ListAdjustments(ctx context.Context, db sqlx.ExtContext, transferID int64) ([]model.Adjustment, error) {
	var adjustments []model.Adjustment
	err := sqlx.SelectContext(ctx, db, &adjustments, db.Rebind(
		`SELECT id, ref, transfer_id, note, created_by, created_at
		 FROM adjustments WHERE transfer_id = ?
		 ORDER BY created_at, id`), transferID)
	if err != nil {
		return nil, fmt.Errorf("listing adjustments: %w", err)
	}
	if len(adjustments) == 0 {
		return adjustments, nil
	}

	var lines []model.AdjustmentLine
	err = sqlx.SelectContext(ctx, db, &lines, db.Rebind(
		`SELECT l.id, l.adjustment_id, l.consumable_id, l.delta_qty, l.reason
		 FROM adjustment_lines l
		 JOIN adjustments a ON a.id = l.adjustment_id
		 WHERE a.transfer_id = ?
		 ORDER BY l.id`), transferID)
	if err != nil {
		return nil, fmt.Errorf("listing adjustment lines: %w", err)
	}

	index := make(map[int64]int, len(adjustments))
	for i, a := range adjustments {
		index[a.ID] = i
	}
	for _, l := range lines {
		i := index[l.AdjustmentID]
		adjustments[i].Lines = append(adjustments[i].Lines, l)
	}
	return adjustments, nil
}
