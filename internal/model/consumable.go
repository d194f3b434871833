package model

import "time"

// Consumable is a trackable type of reusable unit (e.g. a returnable box).
type Consumable struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Unit      string    `db:"unit" json:"unit"`
	Active    bool      `db:"active" json:"active"`
	ImageMime string    `db:"image_mime" json:"image_mime,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
