package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/povratna/internal/model"
	"github.com/erazemk/povratna/internal/store"
)

// TransfersHandler handles transfer and adjustment endpoints.
type TransfersHandler struct {
	DB            *sqlx.DB
	Log           *zap.Logger
	ConfirmPolicy model.ConfirmPolicy
}

type transferLineRequest struct {
	ConsumableID int64 `json:"consumable_id"`
	Qty          int64 `json:"qty"`
}

type createTransferRequest struct {
	FromLocationID    int64                 `json:"from_location_id"`
	ToLocationID      int64                 `json:"to_location_id"`
	Kind              string                `json:"kind"`
	BizDate           string                `json:"biz_date"`
	VerificationLevel int                   `json:"verification_level"`
	Note              string                `json:"note"`
	Lines             []transferLineRequest `json:"lines"`
}

type adjustmentLineRequest struct {
	ConsumableID int64  `json:"consumable_id"`
	DeltaQty     int64  `json:"delta_qty"`
	Reason       string `json:"reason"`
}

type createAdjustmentRequest struct {
	Note  string                  `json:"note"`
	Lines []adjustmentLineRequest `json:"lines"`
}

// Create handles POST /api/transfers. The transfer starts as submitted.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := actorFrom(r)
	if !actor.CanTouch(req.FromLocationID, req.ToLocationID) {
		jsonError(w, http.StatusForbidden, "transfer must involve your home location")
		return
	}

	in := store.NewTransfer{
		FromLocationID:    req.FromLocationID,
		ToLocationID:      req.ToLocationID,
		Kind:              req.Kind,
		BizDate:           req.BizDate,
		VerificationLevel: req.VerificationLevel,
		Note:              req.Note,
	}
	if in.BizDate == "" {
		in.BizDate = time.Now().UTC().Format(model.BizDateLayout)
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, store.NewTransferLine{ConsumableID: l.ConsumableID, Qty: l.Qty})
	}

	transfer, err := store.CreateTransfer(r.Context(), h.DB, in, actor)
	if err != nil {
		storeError(w, h.Log, err, "failed to create transfer")
		return
	}

	h.Log.Info("transfer created", zap.String("user", actor.Username),
		zap.Int64("transfer_id", transfer.ID), zap.String("kind", transfer.Kind),
		zap.String("from", transfer.FromLabel), zap.String("to", transfer.ToLabel),
		zap.Int("lines", len(transfer.Lines)))
	jsonResponse(w, http.StatusCreated, transfer)
}

// List handles GET /api/transfers. Scoped users only see transfers touching
// their home location.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	locationID, ok := queryID(r, "location_id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location_id")
		return
	}
	actor := actorFrom(r)
	if actor.Scoped() {
		if locationID != 0 && locationID != actor.HomeLocationID {
			jsonError(w, http.StatusForbidden, "location outside your scope")
			return
		}
		locationID = actor.HomeLocationID
	}

	filter := store.TransferFilter{
		LocationID: locationID,
		Status:     model.Status(q.Get("status")),
		Kind:       q.Get("kind"),
	}
	if filter.Status != "" && filter.Status.Rank() == 0 && filter.Status != model.StatusVoided {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	var err error
	if filter.CreatedAfter, err = parseTimeParam(q.Get("from"), false); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	if filter.CreatedBefore, err = parseTimeParam(q.Get("to"), true); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	transfers, err := store.ListTransfers(r.Context(), h.DB, filter)
	if err != nil {
		storeError(w, h.Log, err, "failed to list transfers")
		return
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	transfer, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, transfer)
}

// Approve handles POST /api/transfers/{id}/approve.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approved", func(id int64, actor model.Actor) (*model.Transfer, error) {
		return store.ApproveTransfer(r.Context(), h.DB, id, actor)
	})
}

// Void handles POST /api/transfers/{id}/void.
func (h *TransfersHandler) Void(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "voided", func(id int64, actor model.Actor) (*model.Transfer, error) {
		return store.VoidTransfer(r.Context(), h.DB, id, actor)
	})
}

// Confirm handles POST /api/transfers/{id}/confirm.
func (h *TransfersHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirmed", func(id int64, actor model.Actor) (*model.Transfer, error) {
		return store.ConfirmTransfer(r.Context(), h.DB, id, actor, h.ConfirmPolicy)
	})
}

func (h *TransfersHandler) transition(w http.ResponseWriter, r *http.Request, verb string,
	apply func(id int64, actor model.Actor) (*model.Transfer, error)) {
	current, ok := h.load(w, r)
	if !ok {
		return
	}

	actor := actorFrom(r)
	transfer, err := apply(current.ID, actor)
	if err != nil {
		storeError(w, h.Log, err, "failed to update transfer")
		return
	}

	h.Log.Info("transfer "+verb, zap.String("user", actor.Username),
		zap.Int64("transfer_id", transfer.ID), zap.String("ref", transfer.Ref))
	jsonResponse(w, http.StatusOK, transfer)
}

// CreateAdjustment handles POST /api/transfers/{id}/adjustments.
func (h *TransfersHandler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	transfer, ok := h.load(w, r)
	if !ok {
		return
	}

	var req createAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := store.NewAdjustment{TransferID: transfer.ID, Note: req.Note}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, store.NewAdjustmentLine{
			ConsumableID: l.ConsumableID,
			DeltaQty:     l.DeltaQty,
			Reason:       l.Reason,
		})
	}

	actor := actorFrom(r)
	adj, err := store.CreateAdjustment(r.Context(), h.DB, in, actor)
	if err != nil {
		storeError(w, h.Log, err, "failed to create adjustment")
		return
	}

	h.Log.Info("adjustment created", zap.String("user", actor.Username),
		zap.Int64("transfer_id", transfer.ID), zap.Int64("adjustment_id", adj.ID),
		zap.Int("lines", len(adj.Lines)))
	jsonResponse(w, http.StatusCreated, adj)
}

// load fetches the {id} transfer and enforces the caller's location scope.
// It writes the error response itself and reports whether to continue.
func (h *TransfersHandler) load(w http.ResponseWriter, r *http.Request) (*model.Transfer, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return nil, false
	}

	transfer, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, h.Log, err, "failed to get transfer")
		return nil, false
	}
	if transfer == nil {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return nil, false
	}
	if !actorFrom(r).CanTouch(transfer.FromLocationID, transfer.ToLocationID) {
		jsonError(w, http.StatusForbidden, "transfer outside your scope")
		return nil, false
	}
	return transfer, true
}

// parseTimeParam accepts RFC 3339 or a bare date. A bare date used as an upper
// bound means the end of that day.
func parseTimeParam(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(model.BizDateLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Microsecond)
	}
	return d, nil
}
