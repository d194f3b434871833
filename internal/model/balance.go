package model

import "time"

// Balance is the net quantity of one consumable at one location.
type Balance struct {
	LocationID   int64 `json:"location_id"`
	ConsumableID int64 `json:"consumable_id"`
	NetQty       int64 `json:"net_qty"`

	LocationType   LocationType `json:"location_type,omitempty"`
	LocationLabel  string       `json:"location_label,omitempty"`
	ConsumableCode string       `json:"consumable_code,omitempty"`
}

// BalanceKey identifies an accumulator cell.
type BalanceKey struct {
	LocationID   int64
	ConsumableID int64
}

// HistoryEvent is one signed ledger event at a location with its running total.
type HistoryEvent struct {
	At           time.Time `json:"at"`
	TransferID   int64     `json:"transfer_id"`
	TransferRef  string    `json:"transfer_ref"`
	AdjustmentID int64     `json:"adjustment_id,omitempty"`
	LineID       int64     `json:"line_id"`
	Kind         string    `json:"kind"`
	BizDate      string    `json:"biz_date"`
	ConsumableID int64     `json:"consumable_id"`
	Delta        int64     `json:"delta"`
	RunningTotal int64     `json:"running_total"`
	ActorID      int64     `json:"actor_id"`
	Note         string    `json:"note,omitempty"`

	// CounterpartID is the location on the other side of the transfer.
	CounterpartID int64 `json:"counterpart_id"`
}
