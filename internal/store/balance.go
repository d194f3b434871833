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

// BalanceQuery selects what BalanceAsOf reconstructs. A zero AsOf means the
// current ledger state.
type BalanceQuery struct {
	AsOf         time.Time
	MinStatus    model.Status
	LocationType model.LocationType
}

// ledgerRow is one signed line contribution: a transfer line or an adjustment line.
type ledgerRow struct {
	FromLocationID int64 `db:"from_location_id"`
	ToLocationID   int64 `db:"to_location_id"`
	ConsumableID   int64 `db:"consumable_id"`
	Qty            int64 `db:"qty"`
}

// ledgerStatuses are the transfer statuses in lifecycle order.
var ledgerStatuses = []model.Status{
	model.StatusSubmitted, model.StatusApproved, model.StatusConfirmed, model.StatusVoided,
}

// countingStatuses returns the statuses that meet minimum, and the timestamp
// column recording when a transfer reached it.
func countingStatuses(minimum model.Status) ([]model.Status, string, error) {
	minimum, ok := model.ParseMinStatus(string(minimum))
	if !ok {
		return nil, "", invalid("min_status", "must be approved or confirmed")
	}

	var statuses []model.Status
	for _, s := range ledgerStatuses {
		if s.AtLeast(minimum) {
			statuses = append(statuses, s)
		}
	}

	column := "approved_at"
	if minimum == model.StatusConfirmed {
		column = "confirmed_at"
	}
	return statuses, column, nil
}

// BalanceAsOf replays the ledger into net quantities per location and
// consumable. Pairs that never saw counted activity are omitted; pairs whose
// movements cancel out are reported with zero.
func BalanceAsOf(ctx context.Context, dbx *sqlx.DB, q BalanceQuery) ([]model.Balance, error) {
	if q.LocationType != "" && !q.LocationType.Valid() {
		return nil, invalid("location_type", "unknown location type %q", q.LocationType)
	}

	tx, err := db.BeginSnapshot(ctx, dbx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sums, err := BalanceMap(ctx, tx, q.AsOf, q.MinStatus)
	if err != nil {
		return nil, err
	}

	var locIDs, consIDs []int64
	seenCons := map[int64]bool{}
	seenLoc := map[int64]bool{}
	for k := range sums {
		if !seenLoc[k.LocationID] {
			seenLoc[k.LocationID] = true
			locIDs = append(locIDs, k.LocationID)
		}
		if !seenCons[k.ConsumableID] {
			seenCons[k.ConsumableID] = true
			consIDs = append(consIDs, k.ConsumableID)
		}
	}

	locations, err := locationsByID(ctx, tx, locIDs)
	if err != nil {
		return nil, err
	}
	consumables, err := consumablesByID(ctx, tx, consIDs)
	if err != nil {
		return nil, err
	}

	balances := make([]model.Balance, 0, len(sums))
	for k, qty := range sums {
		loc := locations[k.LocationID]
		if q.LocationType != "" && loc.Type != q.LocationType {
			continue
		}
		balances = append(balances, model.Balance{
			LocationID:     k.LocationID,
			ConsumableID:   k.ConsumableID,
			NetQty:         qty,
			LocationType:   loc.Type,
			LocationLabel:  loc.Label,
			ConsumableCode: consumables[k.ConsumableID].Code,
		})
	}

	sort.Slice(balances, func(i, j int) bool {
		if balances[i].LocationID != balances[j].LocationID {
			return balances[i].LocationID < balances[j].LocationID
		}
		return balances[i].ConsumableID < balances[j].ConsumableID
	})

	return balances, nil
}

// BalanceMap accumulates the raw ledger into a (location, consumable) map.
// It reads through the given queryer, so callers wanting a consistent view
// pass a snapshot transaction.
func BalanceMap(ctx context.Context, q sqlx.ExtContext, asOf time.Time, minStatus model.Status) (map[model.BalanceKey]int64, error) {
	statuses, column, err := countingStatuses(minStatus)
	if err != nil {
		return nil, err
	}

	transferQuery := `SELECT t.from_location_id, t.to_location_id, l.consumable_id, l.qty
		FROM transfers t
		JOIN transfer_lines l ON l.transfer_id = t.id
		WHERE t.status IN (?)`
	adjustmentQuery := `SELECT t.from_location_id, t.to_location_id, l.consumable_id, l.delta_qty AS qty
		FROM adjustment_lines l
		JOIN adjustments a ON a.id = l.adjustment_id
		JOIN transfers t ON t.id = a.transfer_id
		WHERE t.status IN (?)`
	transferArgs := []any{statuses}
	adjustmentArgs := []any{statuses}

	if !asOf.IsZero() {
		asOf = asOf.UTC()
		transferQuery += ` AND t.` + column + ` <= ?`
		adjustmentQuery += ` AND t.` + column + ` <= ? AND a.created_at <= ?`
		transferArgs = append(transferArgs, asOf)
		adjustmentArgs = append(adjustmentArgs, asOf, asOf)
	}

	sums := make(map[model.BalanceKey]int64)
	for _, part := range []struct {
		name  string
		query string
		args  []any
	}{
		{"transfer lines", transferQuery, transferArgs},
		{"adjustment lines", adjustmentQuery, adjustmentArgs},
	} {
		query, args, err := sqlx.In(part.query, part.args...)
		if err != nil {
			return nil, fmt.Errorf("building %s query: %w", part.name, err)
		}
		var rows []ledgerRow
		if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("loading %s: %w", part.name, err)
		}
		for _, r := range rows {
			sums[model.BalanceKey{LocationID: r.ToLocationID, ConsumableID: r.ConsumableID}] += r.Qty
			sums[model.BalanceKey{LocationID: r.FromLocationID, ConsumableID: r.ConsumableID}] -= r.Qty
		}
	}

	return sums, nil
}
