package store

import (
	"context"
	"testing"
)

func TestCreateAdjustment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.moveApproved(t, f.f1, f.s1, f.crate, 30)
	adj, err := CreateAdjustment(ctx, f.db, NewAdjustment{
		TransferID: tr.ID,
		Note:       " miscounted ",
		Lines: []NewAdjustmentLine{
			{ConsumableID: f.crate.ID, DeltaQty: -5, Reason: "broken"},
			{ConsumableID: f.pallet.ID, DeltaQty: 1},
		},
	}, f.actor)
	if err != nil {
		t.Fatalf("CreateAdjustment: %v", err)
	}
	if adj.Ref == "" || adj.Note != "miscounted" || len(adj.Lines) != 2 {
		t.Errorf("unexpected adjustment %+v", adj)
	}

	got, err := GetTransfer(ctx, f.db, tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Lines) != 1 || got.Lines[0].Qty != 30 {
		t.Errorf("parent lines must be untouched, got %+v", got.Lines)
	}
	if len(got.Adjustments) != 1 || len(got.Adjustments[0].Lines) != 2 {
		t.Fatalf("expected the adjustment with 2 lines on the transfer, got %+v", got.Adjustments)
	}
	if got.Adjustments[0].Lines[0].Reason != "broken" {
		t.Errorf("expected reason to be kept, got %q", got.Adjustments[0].Lines[0].Reason)
	}
}

func TestCreateAdjustmentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.moveApproved(t, f.f1, f.s1, f.crate, 30)

	tests := []struct {
		name     string
		in       NewAdjustment
		notFound bool
	}{
		{"no lines", NewAdjustment{TransferID: tr.ID}, false},
		{"zero delta", NewAdjustment{TransferID: tr.ID, Lines: []NewAdjustmentLine{{ConsumableID: f.crate.ID}}}, false},
		{"missing consumable id", NewAdjustment{TransferID: tr.ID, Lines: []NewAdjustmentLine{{DeltaQty: 1}}}, false},
		{"missing transfer id", NewAdjustment{Lines: []NewAdjustmentLine{{ConsumableID: f.crate.ID, DeltaQty: 1}}}, false},
		{"unknown transfer", NewAdjustment{TransferID: 4242, Lines: []NewAdjustmentLine{{ConsumableID: f.crate.ID, DeltaQty: 1}}}, true},
		{"unknown consumable", NewAdjustment{TransferID: tr.ID, Lines: []NewAdjustmentLine{{ConsumableID: 4242, DeltaQty: 1}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateAdjustment(ctx, f.db, tt.in, f.actor)
			if tt.notFound && !IsNotFound(err) {
				t.Fatalf("expected NotFoundError, got %v", err)
			}
			if !tt.notFound && !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	if n := countRows(t, f.db, "adjustments"); n != 0 {
		t.Errorf("expected no adjustments persisted, got %d", n)
	}
}

func TestAdjustmentAllowsInactiveConsumable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.moveApproved(t, f.f1, f.s1, f.crate, 30)
	if err := SetConsumableActive(ctx, f.db, f.crate.ID, false); err != nil {
		t.Fatal(err)
	}

	if _, err := CreateAdjustment(ctx, f.db, NewAdjustment{
		TransferID: tr.ID,
		Lines:      []NewAdjustmentLine{{ConsumableID: f.crate.ID, DeltaQty: -1}},
	}, f.actor); err != nil {
		t.Errorf("adjusting a retired consumable: %v", err)
	}

	got := f.balances(t, BalanceQuery{})
	if got[key(f.s1, f.crate)] != 29 {
		t.Errorf("expected S1=29, got %d", got[key(f.s1, f.crate)])
	}
}
