package model

import "time"

// LocationType is the kind of place where consumables can reside.
type LocationType string

// Location types. Global and external are singletons.
const (
	LocationFactory  LocationType = "factory"
	LocationSite     LocationType = "site"
	LocationGlobal   LocationType = "global"
	LocationExternal LocationType = "external"
)

// Valid reports whether t is a known location type.
func (t LocationType) Valid() bool {
	switch t {
	case LocationFactory, LocationSite, LocationGlobal, LocationExternal:
		return true
	}
	return false
}

// HasOwner reports whether locations of this type reference a factory or site.
func (t LocationType) HasOwner() bool {
	return t == LocationFactory || t == LocationSite
}

// Location is an addressable point where consumable quantity can reside.
type Location struct {
	ID        int64        `db:"id" json:"id"`
	Type      LocationType `db:"type" json:"type"`
	OwnerRef  *int64       `db:"owner_ref" json:"owner_ref,omitempty"`
	Label     string       `db:"label" json:"label"`
	Active    bool         `db:"active" json:"active"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
