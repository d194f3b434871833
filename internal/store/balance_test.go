package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/erazemk/povratna/internal/db"
	"github.com/erazemk/povratna/internal/model"
)

func TestBalanceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := CreateTransfer(ctx, f.db, NewTransfer{
		FromLocationID: f.external.ID,
		ToLocationID:   f.f1.ID,
		Kind:           model.KindInitialIntake,
		BizDate:        "2026-03-02",
		Lines:          []NewTransferLine{{ConsumableID: f.crate.ID, Qty: 100}},
	}, f.actor)
	if err != nil {
		t.Fatalf("CreateTransfer A: %v", err)
	}
	if _, err := ApproveTransfer(ctx, f.db, a.ID, f.actor); err != nil {
		t.Fatalf("ApproveTransfer A: %v", err)
	}

	got := f.balances(t, BalanceQuery{})
	if got[key(f.f1, f.crate)] != 100 {
		t.Fatalf("after A: expected F1=100, got %d", got[key(f.f1, f.crate)])
	}

	b := f.moveApproved(t, f.f1, f.s1, f.crate, 30)
	got = f.balances(t, BalanceQuery{})
	if got[key(f.f1, f.crate)] != 70 || got[key(f.s1, f.crate)] != 30 {
		t.Fatalf("after B: expected F1=70 S1=30, got F1=%d S1=%d", got[key(f.f1, f.crate)], got[key(f.s1, f.crate)])
	}

	f.adjust(t, b, f.crate, -5)
	got = f.balances(t, BalanceQuery{})
	if got[key(f.f1, f.crate)] != 75 || got[key(f.s1, f.crate)] != 25 {
		t.Fatalf("after adjustment: expected F1=75 S1=25, got F1=%d S1=%d", got[key(f.f1, f.crate)], got[key(f.s1, f.crate)])
	}

	events, err := History(ctx, f.db, f.s1.ID, model.StatusApproved)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var totals []int64
	for _, ev := range events {
		if ev.ConsumableID == f.crate.ID {
			totals = append(totals, ev.RunningTotal)
		}
	}
	if !reflect.DeepEqual(totals, []int64{30, 25}) {
		t.Errorf("expected running totals [30 25], got %v", totals)
	}
}

func TestBalanceConservation(t *testing.T) {
	f := newFixture(t)

	f.moveApproved(t, f.external, f.f1, f.crate, 100)
	f.moveApproved(t, f.external, f.f1, f.pallet, 12)

	systemTotal := func(c *model.Consumable) int64 {
		var sum int64
		for k, qty := range f.balances(t, BalanceQuery{}) {
			if k.ConsumableID == c.ID && k.LocationID != f.external.ID {
				sum += qty
			}
		}
		return sum
	}

	before := systemTotal(f.crate)

	toS1 := f.moveApproved(t, f.f1, f.s1, f.crate, 30)
	f.moveApproved(t, f.s1, f.s2, f.crate, 10)
	f.moveApproved(t, f.s2, f.global, f.crate, 5)
	f.moveApproved(t, f.global, f.f1, f.crate, 2)
	f.moveApproved(t, f.f1, f.s2, f.pallet, 3)
	f.adjust(t, toS1, f.crate, -3)
	f.move(t, f.f1, f.s2, f.crate, 50)

	if after := systemTotal(f.crate); after != before {
		t.Errorf("relocations changed the crate total: before %d, after %d", before, after)
	}
	if got := systemTotal(f.pallet); got != 12 {
		t.Errorf("expected 12 pallets in the system, got %d", got)
	}

	got := f.balances(t, BalanceQuery{})
	if got[key(f.external, f.crate)] != -100 {
		t.Errorf("expected external crate balance -100, got %d", got[key(f.external, f.crate)])
	}

	f.moveApproved(t, f.s2, f.external, f.crate, 4)
	if after := systemTotal(f.crate); after != before-4 {
		t.Errorf("write-off: expected total %d, got %d", before-4, after)
	}
}

func TestBalanceIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.moveApproved(t, f.external, f.f1, f.crate, 40)
	f.moveApproved(t, f.f1, f.s1, f.crate, 15)
	f.adjust(t, tr, f.crate, 2)

	q := BalanceQuery{AsOf: f.clock.peek(), MinStatus: model.StatusApproved}
	first, err := BalanceAsOf(ctx, f.db, q)
	if err != nil {
		t.Fatal(err)
	}
	second, err := BalanceAsOf(ctx, f.db, q)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated reads differ:\n%+v\n%+v", first, second)
	}
}

func TestBalanceIgnoresSubmittedAndVoided(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.move(t, f.external, f.f1, f.crate, 10)
	voided := f.move(t, f.external, f.f1, f.crate, 20)
	f.adjust(t, voided, f.crate, 5)
	if _, err := VoidTransfer(ctx, f.db, voided.ID, f.actor); err != nil {
		t.Fatal(err)
	}

	if got := f.balances(t, BalanceQuery{}); len(got) != 0 {
		t.Errorf("expected no balances, got %v", got)
	}
}

func TestBalanceUsesApprovalTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.move(t, f.external, f.f1, f.crate, 10)
	beforeApproval := f.clock.peek()
	approved, err := ApproveTransfer(ctx, f.db, tr.ID, f.actor)
	if err != nil {
		t.Fatal(err)
	}

	if got := f.balances(t, BalanceQuery{AsOf: beforeApproval}); len(got) != 0 {
		t.Errorf("transfer approved after asOf must not count, got %v", got)
	}
	got := f.balances(t, BalanceQuery{AsOf: *approved.ApprovedAt})
	if got[key(f.f1, f.crate)] != 10 {
		t.Errorf("expected F1=10 at approval instant, got %d", got[key(f.f1, f.crate)])
	}
}

func TestAdjustmentVisibilityBoundary(t *testing.T) {
	f := newFixture(t)

	f.moveApproved(t, f.external, f.f1, f.crate, 100)
	b := f.moveApproved(t, f.f1, f.s1, f.crate, 30)
	asOf := f.clock.peek()
	f.adjust(t, b, f.crate, -5)

	got := f.balances(t, BalanceQuery{AsOf: asOf})
	if got[key(f.f1, f.crate)] != 70 || got[key(f.s1, f.crate)] != 30 {
		t.Errorf("adjustment after asOf leaked: F1=%d S1=%d", got[key(f.f1, f.crate)], got[key(f.s1, f.crate)])
	}

	got = f.balances(t, BalanceQuery{})
	if got[key(f.f1, f.crate)] != 75 || got[key(f.s1, f.crate)] != 25 {
		t.Errorf("current: expected F1=75 S1=25, got F1=%d S1=%d", got[key(f.f1, f.crate)], got[key(f.s1, f.crate)])
	}
}

func TestAdjustmentFollowsParentApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.move(t, f.external, f.f1, f.crate, 10)
	f.adjust(t, tr, f.crate, 3)
	adjusted := f.clock.peek()

	if got := f.balances(t, BalanceQuery{}); len(got) != 0 {
		t.Errorf("adjustment on submitted transfer must not count, got %v", got)
	}

	if _, err := ApproveTransfer(ctx, f.db, tr.ID, f.actor); err != nil {
		t.Fatal(err)
	}
	got := f.balances(t, BalanceQuery{})
	if got[key(f.f1, f.crate)] != 13 {
		t.Errorf("expected F1=13 after approval, got %d", got[key(f.f1, f.crate)])
	}
	if got := f.balances(t, BalanceQuery{AsOf: adjusted}); len(got) != 0 {
		t.Errorf("parent not yet approved at asOf, got %v", got)
	}
}

func TestBalanceConfirmedThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	policy := model.ParseConfirmPolicy("*")

	confirmed := f.moveApproved(t, f.external, f.f1, f.crate, 50)
	approvedOnly := f.moveApproved(t, f.f1, f.s1, f.crate, 20)
	beforeConfirm := f.clock.peek()
	if _, err := ConfirmTransfer(ctx, f.db, confirmed.ID, f.actor, policy); err != nil {
		t.Fatal(err)
	}

	strict := f.balances(t, BalanceQuery{MinStatus: model.StatusConfirmed})
	if strict[key(f.f1, f.crate)] != 50 {
		t.Errorf("confirmed threshold: expected F1=50, got %d", strict[key(f.f1, f.crate)])
	}
	if _, ok := strict[key(f.s1, f.crate)]; ok {
		t.Errorf("approved-only transfer %d must not count at confirmed threshold", approvedOnly.ID)
	}

	loose := f.balances(t, BalanceQuery{MinStatus: model.StatusApproved})
	if loose[key(f.f1, f.crate)] != 30 || loose[key(f.s1, f.crate)] != 20 {
		t.Errorf("approved threshold: expected F1=30 S1=20, got %v", loose)
	}

	if got := f.balances(t, BalanceQuery{AsOf: beforeConfirm, MinStatus: model.StatusConfirmed}); len(got) != 0 {
		t.Errorf("confirmation after asOf must not count, got %v", got)
	}
}

func TestBalanceKeepsZeroNetAndFiltersByType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.moveApproved(t, f.external, f.f1, f.crate, 10)
	f.moveApproved(t, f.f1, f.s1, f.crate, 4)
	f.moveApproved(t, f.s1, f.f1, f.crate, 4)

	sites, err := BalanceAsOf(ctx, f.db, BalanceQuery{LocationType: model.LocationSite})
	if err != nil {
		t.Fatal(err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected one site balance, got %+v", sites)
	}
	b := sites[0]
	if b.LocationID != f.s1.ID || b.NetQty != 0 || b.LocationLabel != "Site 1" || b.ConsumableCode != "CRATE" {
		t.Errorf("unexpected site balance %+v", b)
	}

	all, err := BalanceAsOf(ctx, f.db, BalanceQuery{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].LocationID > all[i].LocationID {
			t.Errorf("balances not sorted by location: %+v", all)
		}
	}

	if _, err := BalanceAsOf(ctx, f.db, BalanceQuery{LocationType: "warehouse"}); !IsValidation(err) {
		t.Errorf("expected ValidationError for bad location type, got %v", err)
	}
	if _, err := BalanceAsOf(ctx, f.db, BalanceQuery{MinStatus: model.StatusSubmitted}); !IsValidation(err) {
		t.Errorf("expected ValidationError for submitted threshold, got %v", err)
	}
}

func TestBalanceMapSnapshotIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.moveApproved(t, f.external, f.f1, f.crate, 100)

	tx, err := db.BeginSnapshot(ctx, f.db)
	if err != nil {
		t.Fatalf("BeginSnapshot: %v", err)
	}
	defer tx.Rollback()

	first, err := BalanceMap(ctx, tx, time.Time{}, model.StatusApproved)
	if err != nil {
		t.Fatalf("first BalanceMap: %v", err)
	}

	// Committed through the pool, outside the snapshot.
	f.moveApproved(t, f.f1, f.s1, f.crate, 30)

	second, err := BalanceMap(ctx, tx, time.Time{}, model.StatusApproved)
	if err != nil {
		t.Fatalf("second BalanceMap: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshot changed mid-read: first=%v second=%v", first, second)
	}
	if first[key(f.f1, f.crate)] != 100 {
		t.Errorf("expected 100 at F1 inside the snapshot, got %d", first[key(f.f1, f.crate)])
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	after := f.balances(t, BalanceQuery{})
	if after[key(f.f1, f.crate)] != 70 || after[key(f.s1, f.crate)] != 30 {
		t.Errorf("expected 70/30 after the snapshot closed, got %d/%d",
			after[key(f.f1, f.crate)], after[key(f.s1, f.crate)])
	}
}

func TestCountingStatuses(t *testing.T) {
	tests := []struct {
		minimum  model.Status
		statuses []model.Status
		column   string
	}{
		{"", []model.Status{model.StatusApproved, model.StatusConfirmed}, "approved_at"},
		{model.StatusApproved, []model.Status{model.StatusApproved, model.StatusConfirmed}, "approved_at"},
		{model.StatusConfirmed, []model.Status{model.StatusConfirmed}, "confirmed_at"},
	}
	for _, tt := range tests {
		statuses, column, err := countingStatuses(tt.minimum)
		if err != nil {
			t.Fatalf("countingStatuses(%q): %v", tt.minimum, err)
		}
		if !reflect.DeepEqual(statuses, tt.statuses) || column != tt.column {
			t.Errorf("countingStatuses(%q) = %v, %s; want %v, %s", tt.minimum, statuses, column, tt.statuses, tt.column)
		}
	}

	for _, bad := range []model.Status{model.StatusSubmitted, model.StatusVoided, "pending"} {
		if _, _, err := countingStatuses(bad); !IsValidation(err) {
			t.Errorf("countingStatuses(%q): expected ValidationError, got %v", bad, err)
		}
	}
}
