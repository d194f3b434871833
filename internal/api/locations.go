package api

import (
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/povratna/internal/model"
	"github.com/erazemk/povratna/internal/store"
)

// LocationsHandler handles the location directory and per-location history.
type LocationsHandler struct {
	DB  *sqlx.DB
	Log *zap.Logger
}

type createLocationRequest struct {
	Type     model.LocationType `json:"type"`
	OwnerRef int64              `json:"owner_ref"`
	Label    string             `json:"label"`
}

type updateLocationRequest struct {
	Label  string `json:"label"`
	Active *bool  `json:"active"`
}

// List handles GET /api/locations.
func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := model.LocationType(q.Get("type"))
	if typ != "" && !typ.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid location type")
		return
	}
	includeInactive, _ := strconv.ParseBool(q.Get("inactive"))

	locations, err := store.ListLocations(r.Context(), h.DB, typ, includeInactive)
	if err != nil {
		storeError(w, h.Log, err, "failed to list locations")
		return
	}
	if locations == nil {
		locations = []model.Location{}
	}
	jsonResponse(w, http.StatusOK, locations)
}

// Create handles POST /api/locations.
func (h *LocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loc, err := store.CreateLocation(r.Context(), h.DB, req.Type, req.OwnerRef, req.Label)
	if err != nil {
		storeError(w, h.Log, err, "failed to create location")
		return
	}

	h.Log.Info("location created", zap.String("user", actorFrom(r).Username),
		zap.Int64("location_id", loc.ID), zap.String("type", string(loc.Type)), zap.String("label", loc.Label))
	jsonResponse(w, http.StatusCreated, loc)
}

// Get handles GET /api/locations/{id}.
func (h *LocationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	loc, err := store.GetLocation(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, h.Log, err, "failed to get location")
		return
	}
	if loc == nil {
		jsonError(w, http.StatusNotFound, "location not found")
		return
	}
	jsonResponse(w, http.StatusOK, loc)
}

// Update handles PUT /api/locations/{id}. Only the label and the active flag
// can change.
func (h *LocationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	var req updateLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Label != "" {
		if err := store.RenameLocation(r.Context(), h.DB, id, req.Label); err != nil {
			storeError(w, h.Log, err, "failed to rename location")
			return
		}
	}
	if req.Active != nil {
		if err := store.SetLocationActive(r.Context(), h.DB, id, *req.Active); err != nil {
			storeError(w, h.Log, err, "failed to update location")
			return
		}
	}

	loc, err := store.GetLocation(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, h.Log, err, "failed to get location")
		return
	}
	if loc == nil {
		jsonError(w, http.StatusNotFound, "location not found")
		return
	}

	h.Log.Info("location updated", zap.String("user", actorFrom(r).Username),
		zap.Int64("location_id", id), zap.String("label", loc.Label), zap.Bool("active", loc.Active))
	jsonResponse(w, http.StatusOK, loc)
}

// History handles GET /api/locations/{id}/history. Scoped users only see
// their home location.
func (h *LocationsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	actor := actorFrom(r)
	if actor.Scoped() && actor.HomeLocationID != id {
		jsonError(w, http.StatusForbidden, "location outside your scope")
		return
	}

	minStatus, ok := model.ParseMinStatus(r.URL.Query().Get("min_status"))
	if !ok {
		jsonError(w, http.StatusBadRequest, "min_status must be approved or confirmed")
		return
	}

	events, err := store.History(r.Context(), h.DB, id, minStatus)
	if err != nil {
		storeError(w, h.Log, err, "failed to get location history")
		return
	}
	if events == nil {
		events = []model.HistoryEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}
