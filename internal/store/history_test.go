package store

import (
	"context"
	"testing"

	"github.com/erazemk/povratna/internal/model"
)

func TestHistoryMatchesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intake := f.moveApproved(t, f.external, f.f1, f.crate, 100)
	f.moveApproved(t, f.external, f.f1, f.pallet, 8)
	toS1 := f.moveApproved(t, f.f1, f.s1, f.crate, 30)
	f.moveApproved(t, f.s1, f.s2, f.crate, 12)
	f.moveApproved(t, f.f1, f.s1, f.pallet, 2)
	f.adjust(t, toS1, f.crate, -5)
	f.adjust(t, intake, f.crate, 7)
	f.move(t, f.f1, f.s1, f.crate, 40)

	balances := f.balances(t, BalanceQuery{})

	for _, loc := range []*model.Location{f.external, f.f1, f.s1, f.s2} {
		events, err := History(ctx, f.db, loc.ID, "")
		if err != nil {
			t.Fatalf("History(%s): %v", loc.Label, err)
		}

		last := map[int64]int64{}
		for i, ev := range events {
			prev := last[ev.ConsumableID]
			if ev.RunningTotal != prev+ev.Delta {
				t.Errorf("%s event %d: running total %d != %d + %d", loc.Label, i, ev.RunningTotal, prev, ev.Delta)
			}
			last[ev.ConsumableID] = ev.RunningTotal
			if i > 0 && ev.At.Before(events[i-1].At) {
				t.Errorf("%s event %d out of order", loc.Label, i)
			}
		}

		for c, total := range last {
			k := model.BalanceKey{LocationID: loc.ID, ConsumableID: c}
			if balances[k] != total {
				t.Errorf("%s consumable %d: history ends at %d, balance is %d", loc.Label, c, total, balances[k])
			}
		}
	}
}

func TestHistoryEventDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.move(t, f.f1, f.s1, f.crate, 10)
	adj := f.adjust(t, tr, f.crate, 2)
	approved, err := ApproveTransfer(ctx, f.db, tr.ID, f.actor)
	if err != nil {
		t.Fatal(err)
	}

	events, err := History(ctx, f.db, f.f1.ID, model.StatusApproved)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	base, correction := events[0], events[1]
	if base.AdjustmentID != 0 || base.Delta != -10 || base.RunningTotal != -10 {
		t.Errorf("unexpected base event %+v", base)
	}
	if base.Kind != model.KindDriverDelivery || base.CounterpartID != f.s1.ID {
		t.Errorf("unexpected base kind/counterpart %+v", base)
	}
	if !base.At.Equal(*approved.ApprovedAt) {
		t.Errorf("base event at %v, expected approval time %v", base.At, approved.ApprovedAt)
	}

	// An adjustment recorded before approval takes effect with its parent.
	if correction.AdjustmentID != adj.ID || correction.Kind != "adjustment" {
		t.Errorf("unexpected correction event %+v", correction)
	}
	if !correction.At.Equal(base.At) {
		t.Errorf("correction at %v, expected %v", correction.At, base.At)
	}
	if correction.Delta != -2 || correction.RunningTotal != -12 || correction.Note != "recount" {
		t.Errorf("unexpected correction values %+v", correction)
	}
}

func TestHistoryConfirmedThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.moveApproved(t, f.external, f.s1, f.crate, 9)
	f.moveApproved(t, f.external, f.s1, f.pallet, 3)
	if _, err := ConfirmTransfer(ctx, f.db, tr.ID, f.actor, model.ParseConfirmPolicy("*")); err != nil {
		t.Fatal(err)
	}

	events, err := History(ctx, f.db, f.s1.ID, model.StatusConfirmed)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ConsumableID != f.crate.ID {
		t.Errorf("expected only the confirmed crate event, got %+v", events)
	}
}

func TestHistoryUnknownLocation(t *testing.T) {
	f := newFixture(t)

	if _, err := History(context.Background(), f.db, 4242, ""); !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
