package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/povratna/internal/db"
	"github.com/erazemk/povratna/internal/model"
)

// fakeClock replaces the ledger clock. Every reading advances it by one
// second so timestamps are strictly increasing and easy to reason about.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func useFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	c := &fakeClock{cur: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	prev := now
	now = c.tick
	t.Cleanup(func() { now = prev })
	return c
}

func (c *fakeClock) tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// peek returns the last handed out time without advancing.
func (c *fakeClock) peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

type fixture struct {
	db       *sqlx.DB
	clock    *fakeClock
	actor    model.Actor
	external *model.Location
	global   *model.Location
	f1       *model.Location
	s1       *model.Location
	s2       *model.Location
	crate    *model.Consumable
	pallet   *model.Consumable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{db: db.NewTestDB(t), clock: useFakeClock(t)}

	u, err := CreateUser(ctx, f.db, "manager", "hash", model.RoleManager, nil)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	f.actor = model.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}

	if f.external, err = GetSingleton(ctx, f.db, model.LocationExternal); err != nil || f.external == nil {
		t.Fatalf("GetSingleton external: %v", err)
	}
	if f.global, err = GetSingleton(ctx, f.db, model.LocationGlobal); err != nil || f.global == nil {
		t.Fatalf("GetSingleton global: %v", err)
	}
	f.f1 = mustLocation(t, f.db, model.LocationFactory, 1, "Factory 1")
	f.s1 = mustLocation(t, f.db, model.LocationSite, 1, "Site 1")
	f.s2 = mustLocation(t, f.db, model.LocationSite, 2, "Site 2")

	if f.crate, err = CreateConsumable(ctx, f.db, "CRATE", "Plastic crate", ""); err != nil {
		t.Fatalf("CreateConsumable: %v", err)
	}
	if f.pallet, err = CreateConsumable(ctx, f.db, "PALLET", "Euro pallet", "pcs"); err != nil {
		t.Fatalf("CreateConsumable: %v", err)
	}

	return f
}

func mustLocation(t *testing.T, database *sqlx.DB, typ model.LocationType, owner int64, label string) *model.Location {
	t.Helper()
	loc, err := CreateLocation(context.Background(), database, typ, owner, label)
	if err != nil {
		t.Fatalf("CreateLocation(%s, %d): %v", typ, owner, err)
	}
	return loc
}

// move creates a single line transfer and returns it still submitted.
func (f *fixture) move(t *testing.T, from, to *model.Location, c *model.Consumable, qty int64) *model.Transfer {
	t.Helper()
	tr, err := CreateTransfer(context.Background(), f.db, NewTransfer{
		FromLocationID: from.ID,
		ToLocationID:   to.ID,
		Kind:           model.KindDriverDelivery,
		BizDate:        "2026-03-02",
		Lines:          []NewTransferLine{{ConsumableID: c.ID, Qty: qty}},
	}, f.actor)
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	return tr
}

// moveApproved creates and approves a single line transfer.
func (f *fixture) moveApproved(t *testing.T, from, to *model.Location, c *model.Consumable, qty int64) *model.Transfer {
	t.Helper()
	tr := f.move(t, from, to, c, qty)
	approved, err := ApproveTransfer(context.Background(), f.db, tr.ID, f.actor)
	if err != nil {
		t.Fatalf("ApproveTransfer: %v", err)
	}
	return approved
}

func (f *fixture) adjust(t *testing.T, tr *model.Transfer, c *model.Consumable, delta int64) *model.Adjustment {
	t.Helper()
	adj, err := CreateAdjustment(context.Background(), f.db, NewAdjustment{
		TransferID: tr.ID,
		Lines:      []NewAdjustmentLine{{ConsumableID: c.ID, DeltaQty: delta, Reason: "recount"}},
	}, f.actor)
	if err != nil {
		t.Fatalf("CreateAdjustment: %v", err)
	}
	return adj
}

func (f *fixture) balances(t *testing.T, q BalanceQuery) map[model.BalanceKey]int64 {
	t.Helper()
	list, err := BalanceAsOf(context.Background(), f.db, q)
	if err != nil {
		t.Fatalf("BalanceAsOf: %v", err)
	}
	out := make(map[model.BalanceKey]int64, len(list))
	for _, b := range list {
		out[model.BalanceKey{LocationID: b.LocationID, ConsumableID: b.ConsumableID}] = b.NetQty
	}
	return out
}

func key(loc *model.Location, c *model.Consumable) model.BalanceKey {
	return model.BalanceKey{LocationID: loc.ID, ConsumableID: c.ID}
}

func countRows(t *testing.T, database *sqlx.DB, table string) int {
	t.Helper()
	var n int
	if err := database.Get(&n, `SELECT COUNT(*) FROM `+table); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
