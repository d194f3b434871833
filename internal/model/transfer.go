package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a transfer.
type Status string

// Transfer statuses. Confirmed is an optional tier above approved.
const (
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusConfirmed Status = "confirmed"
	StatusVoided    Status = "voided"
)

// Rank orders the counting statuses. Voided and unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusSubmitted:
		return 1
	case StatusApproved:
		return 2
	case StatusConfirmed:
		return 3
	}
	return 0
}

// AtLeast reports whether s meets or exceeds the minimum status.
func (s Status) AtLeast(minimum Status) bool {
	return s.Rank() > 0 && s.Rank() >= minimum.Rank()
}

// ParseMinStatus parses a balance threshold. Empty means approved.
func ParseMinStatus(v string) (Status, bool) {
	switch Status(v) {
	case "", StatusApproved:
		return StatusApproved, true
	case StatusConfirmed:
		return StatusConfirmed, true
	}
	return "", false
}

// Common transfer kinds. Kind is informational only and does not change
// how a transfer is counted.
const (
	KindDriverDelivery  = "driver_delivery"
	KindManagerRestock  = "manager_restock"
	KindAdminCorrection = "admin_correction"
	KindOpeningBalance  = "opening_balance"
	KindInitialIntake   = "initial_intake"
	KindDailyReturn     = "daily_return"
	KindWriteOff        = "write_off"
)

// BizDateLayout is the format of Transfer.BizDate.
const BizDateLayout = "2006-01-02"

// Transfer is a directed, multi-line movement of consumables between two locations.
type Transfer struct {
	ID                int64      `db:"id" json:"id"`
	Ref               string     `db:"ref" json:"ref"`
	BizDate           string     `db:"biz_date" json:"biz_date"`
	FromLocationID    int64      `db:"from_location_id" json:"from_location_id"`
	ToLocationID      int64      `db:"to_location_id" json:"to_location_id"`
	Kind              string     `db:"kind" json:"kind"`
	VerificationLevel int        `db:"verification_level" json:"verification_level"`
	Note              string     `db:"note" json:"note,omitempty"`
	Status            Status     `db:"status" json:"status"`
	CreatedBy         int64      `db:"created_by" json:"created_by"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	ApprovedBy        *int64     `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ConfirmedBy       *int64     `db:"confirmed_by" json:"confirmed_by,omitempty"`
	ConfirmedAt       *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	VoidedBy          *int64     `db:"voided_by" json:"voided_by,omitempty"`
	VoidedAt          *time.Time `db:"voided_at" json:"voided_at,omitempty"`

	// Joined fields (not always populated).
	FromLabel   string         `db:"from_label" json:"from_label,omitempty"`
	ToLabel     string         `db:"to_label" json:"to_label,omitempty"`
	Lines       []TransferLine `db:"-" json:"lines,omitempty"`
	Adjustments []Adjustment   `db:"-" json:"adjustments,omitempty"`
}

// EffectiveAt returns when the transfer reached the given status tier, or nil.
func (t *Transfer) EffectiveAt(minimum Status) *time.Time {
	if !t.Status.AtLeast(minimum) {
		return nil
	}
	if minimum == StatusConfirmed {
		return t.ConfirmedAt
	}
	return t.ApprovedAt
}

// TransferLine is one consumable quantity moved by a transfer.
type TransferLine struct {
	ID           int64 `db:"id" json:"id"`
	TransferID   int64 `db:"transfer_id" json:"transfer_id"`
	ConsumableID int64 `db:"consumable_id" json:"consumable_id"`
	Qty          int64 `db:"qty" json:"qty"`

	ConsumableCode string `db:"consumable_code" json:"consumable_code,omitempty"`
}

// Adjustment is an additive correction attached to an existing transfer.
// It inherits the transfer's direction.
type Adjustment struct {
	ID         int64            `db:"id" json:"id"`
	Ref        string           `db:"ref" json:"ref"`
	TransferID int64            `db:"transfer_id" json:"transfer_id"`
	Note       string           `db:"note" json:"note,omitempty"`
	CreatedBy  int64            `db:"created_by" json:"created_by"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	Lines      []AdjustmentLine `db:"-" json:"lines,omitempty"`
}

// AdjustmentLine is a signed delta. Positive increases the parent's effect on
// its destination (and decreases its source).
type AdjustmentLine struct {
	ID           int64  `db:"id" json:"id"`
	AdjustmentID int64  `db:"adjustment_id" json:"adjustment_id"`
	ConsumableID int64  `db:"consumable_id" json:"consumable_id"`
	DeltaQty     int64  `db:"delta_qty" json:"delta_qty"`
	Reason       string `db:"reason" json:"reason,omitempty"`
}

// ConfirmPolicy decides which transfer kinds support the confirmed tier.
type ConfirmPolicy struct {
	All   bool
	Kinds map[string]bool
}

// ParseConfirmPolicy parses a comma separated kind list. "*" enables all kinds,
// an empty list disables confirmation.
func ParseConfirmPolicy(v string) ConfirmPolicy {
	p := ConfirmPolicy{Kinds: map[string]bool{}}
	for _, k := range strings.Split(v, ",") {
		k = strings.TrimSpace(k)
		switch k {
		case "":
		case "*":
			p.All = true
		default:
			p.Kinds[k] = true
		}
	}
	return p
}

// Allows reports whether transfers of the given kind may be confirmed.
func (p ConfirmPolicy) Allows(kind string) bool {
	return p.All || p.Kinds[kind]
}

// Enabled reports whether any kind can be confirmed.
func (p ConfirmPolicy) Enabled() bool {
	return p.All || len(p.Kinds) > 0
}
