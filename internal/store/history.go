package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/povratna/internal/db"
	"github.com/erazemk/povratna/internal/model"
)

type historyRow struct {
	TransferID     int64      `db:"transfer_id"`
	Ref            string     `db:"ref"`
	Kind           string     `db:"kind"`
	BizDate        string     `db:"biz_date"`
	FromLocationID int64      `db:"from_location_id"`
	ToLocationID   int64      `db:"to_location_id"`
	ApprovedAt     *time.Time `db:"approved_at"`
	ConfirmedAt    *time.Time `db:"confirmed_at"`
	AdjustmentID   int64      `db:"adjustment_id"`
	AdjustedAt     *time.Time `db:"adjusted_at"`
	LineID         int64      `db:"line_id"`
	ConsumableID   int64      `db:"consumable_id"`
	Qty            int64      `db:"qty"`
	ActorID        int64      `db:"actor_id"`
	Note           string     `db:"note"`
	Reason         string     `db:"reason"`
}

const historyTransferLines = `SELECT t.id AS transfer_id, t.ref, t.kind, t.biz_date,
       t.from_location_id, t.to_location_id, t.approved_at, t.confirmed_at,
       0 AS adjustment_id, NULL AS adjusted_at,
       l.id AS line_id, l.consumable_id, l.qty,
       t.created_by AS actor_id, t.note, '' AS reason
FROM transfers t
JOIN transfer_lines l ON l.transfer_id = t.id
WHERE (t.from_location_id = ? OR t.to_location_id = ?) AND t.status IN (?)`

const historyAdjustmentLines = `SELECT t.id AS transfer_id, t.ref, t.kind, t.biz_date,
       t.from_location_id, t.to_location_id, t.approved_at, t.confirmed_at,
       a.id AS adjustment_id, a.created_at AS adjusted_at,
       l.id AS line_id, l.consumable_id, l.delta_qty AS qty,
       a.created_by AS actor_id, a.note, l.reason
FROM adjustment_lines l
JOIN adjustments a ON a.id = l.adjustment_id
JOIN transfers t ON t.id = a.transfer_id
WHERE (t.from_location_id = ? OR t.to_location_id = ?) AND t.status IN (?)`

// History replays every counted event at a location in the order it took
// effect, with a running total per consumable. The last running total of a
// consumable equals its current balance at the same threshold.
func History(ctx context.Context, dbx *sqlx.DB, locationID int64, minStatus model.Status) ([]model.HistoryEvent, error) {
	statuses, _, err := countingStatuses(minStatus)
	if err != nil {
		return nil, err
	}
	if minStatus == "" {
		minStatus = model.StatusApproved
	}

	tx, err := db.BeginSnapshot(ctx, dbx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	loc, err := GetLocation(ctx, tx, locationID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, &NotFoundError{Entity: "location", ID: locationID}
	}

	var rows []historyRow
	for _, part := range []struct{ name, query string }{
		{"transfer lines", historyTransferLines},
		{"adjustment lines", historyAdjustmentLines},
	} {
		query, args, err := sqlx.In(part.query, locationID, locationID, statuses)
		if err != nil {
			return nil, fmt.Errorf("building history query: %w", err)
		}
		var partRows []historyRow
		if err := sqlx.SelectContext(ctx, tx, &partRows, tx.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("loading history %s: %w", part.name, err)
		}
		rows = append(rows, partRows...)
	}

	events := make([]model.HistoryEvent, 0, len(rows))
	for _, r := range rows {
		ev, ok := r.event(locationID, minStatus)
		if ok {
			events = append(events, ev)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		if a.TransferID != b.TransferID {
			return a.TransferID < b.TransferID
		}
		if a.AdjustmentID != b.AdjustmentID {
			return a.AdjustmentID < b.AdjustmentID
		}
		return a.LineID < b.LineID
	})

	totals := make(map[int64]int64)
	for i := range events {
		totals[events[i].ConsumableID] += events[i].Delta
		events[i].RunningTotal = totals[events[i].ConsumableID]
	}

	return events, nil
}

// event converts a row into a signed event at locationID. Rows whose transfer
// has no timestamp for the threshold are skipped.
func (r historyRow) event(locationID int64, minStatus model.Status) (model.HistoryEvent, bool) {
	effective := r.ApprovedAt
	if minStatus == model.StatusConfirmed {
		effective = r.ConfirmedAt
	}
	if effective == nil {
		return model.HistoryEvent{}, false
	}

	ev := model.HistoryEvent{
		At:           effective.UTC(),
		TransferID:   r.TransferID,
		TransferRef:  r.Ref,
		AdjustmentID: r.AdjustmentID,
		LineID:       r.LineID,
		Kind:         r.Kind,
		BizDate:      r.BizDate,
		ConsumableID: r.ConsumableID,
		Delta:        r.Qty,
		ActorID:      r.ActorID,
		Note:         r.Note,
	}

	if r.AdjustmentID != 0 {
		ev.Kind = "adjustment"
		if r.Reason != "" {
			ev.Note = r.Reason
		}
		if r.AdjustedAt != nil && r.AdjustedAt.After(ev.At) {
			ev.At = r.AdjustedAt.UTC()
		}
	}

	if r.ToLocationID == locationID {
		ev.CounterpartID = r.FromLocationID
	} else {
		ev.Delta = -ev.Delta
		ev.CounterpartID = r.ToLocationID
	}

	return ev, true
}
