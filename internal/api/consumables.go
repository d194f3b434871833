package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/povratna/internal/imaging"
	"github.com/erazemk/povratna/internal/model"
	"github.com/erazemk/povratna/internal/store"
)

// ConsumablesHandler handles the consumable catalog.
type ConsumablesHandler struct {
	DB  *sqlx.DB
	Log *zap.Logger
}

type createConsumableRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type updateConsumableRequest struct {
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Active *bool  `json:"active"`
}

// List handles GET /api/consumables. With ?code= it returns at most the one
// consumable carrying that code, active or not.
func (h *ConsumablesHandler) List(w http.ResponseWriter, r *http.Request) {
	if code := strings.TrimSpace(r.URL.Query().Get("code")); code != "" {
		c, err := store.GetConsumableByCode(r.Context(), h.DB, code)
		if err != nil {
			storeError(w, h.Log, err, "failed to look up consumable")
			return
		}
		consumables := []model.Consumable{}
		if c != nil {
			consumables = append(consumables, *c)
		}
		jsonResponse(w, http.StatusOK, consumables)
		return
	}

	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("inactive"))

	consumables, err := store.ListConsumables(r.Context(), h.DB, includeInactive)
	if err != nil {
		storeError(w, h.Log, err, "failed to list consumables")
		return
	}
	if consumables == nil {
		consumables = []model.Consumable{}
	}
	jsonResponse(w, http.StatusOK, consumables)
}

// Create handles POST /api/consumables.
func (h *ConsumablesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConsumableRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := store.CreateConsumable(r.Context(), h.DB, req.Code, req.Name, req.Unit)
	if err != nil {
		storeError(w, h.Log, err, "failed to create consumable")
		return
	}

	h.Log.Info("consumable created", zap.String("user", actorFrom(r).Username),
		zap.Int64("consumable_id", c.ID), zap.String("code", c.Code))
	jsonResponse(w, http.StatusCreated, c)
}

// Get handles GET /api/consumables/{id}.
func (h *ConsumablesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid consumable id")
		return
	}

	c, err := store.GetConsumable(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, h.Log, err, "failed to get consumable")
		return
	}
	if c == nil {
		jsonError(w, http.StatusNotFound, "consumable not found")
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// Update handles PUT /api/consumables/{id}. The code cannot change.
func (h *ConsumablesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid consumable id")
		return
	}

	var req updateConsumableRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		if err := store.UpdateConsumable(r.Context(), h.DB, id, req.Name, req.Unit); err != nil {
			storeError(w, h.Log, err, "failed to update consumable")
			return
		}
	}
	if req.Active != nil {
		if err := store.SetConsumableActive(r.Context(), h.DB, id, *req.Active); err != nil {
			storeError(w, h.Log, err, "failed to update consumable")
			return
		}
	}

	c, err := store.GetConsumable(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, h.Log, err, "failed to get consumable")
		return
	}
	if c == nil {
		jsonError(w, http.StatusNotFound, "consumable not found")
		return
	}

	h.Log.Info("consumable updated", zap.String("user", actorFrom(r).Username), zap.Int64("consumable_id", id))
	jsonResponse(w, http.StatusOK, c)
}

// UploadImage handles PUT /api/consumables/{id}/image.
func (h *ConsumablesHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid consumable id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Normalize(file)
	switch {
	case errors.Is(err, imaging.ErrUnsupported):
		jsonError(w, http.StatusBadRequest, "image must be JPEG or PNG")
		return
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	case err != nil:
		jsonError(w, http.StatusBadRequest, "invalid image")
		return
	}

	if err := store.SetConsumableImage(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		storeError(w, h.Log, err, "failed to save image")
		return
	}

	h.Log.Info("consumable image uploaded", zap.String("user", actorFrom(r).Username),
		zap.Int64("consumable_id", id), zap.Int("bytes", len(photo.Data)))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/consumables/{id}/image.
func (h *ConsumablesHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid consumable id")
		return
	}

	data, mime, err := store.GetConsumableImage(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, h.Log, err, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
