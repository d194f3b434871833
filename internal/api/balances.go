package api

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/povratna/internal/model"
	"github.com/erazemk/povratna/internal/store"
)

// BalancesHandler serves point-in-time balances.
type BalancesHandler struct {
	DB  *sqlx.DB
	Log *zap.Logger
}

var balanceCSVHeader = []string{
	"location_id", "location_type", "location_label", "consumable_id", "consumable_code", "net_qty",
}

// List handles GET /api/balances.
func (h *BalancesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asOf, err := parseTimeParam(q.Get("as_of"), true)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid as_of: "+err.Error())
		return
	}
	minStatus, ok := model.ParseMinStatus(q.Get("min_status"))
	if !ok {
		jsonError(w, http.StatusBadRequest, "min_status must be approved or confirmed")
		return
	}
	locType := model.LocationType(q.Get("location_type"))
	if locType != "" && !locType.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid location type")
		return
	}

	balances, err := store.BalanceAsOf(r.Context(), h.DB, store.BalanceQuery{
		AsOf:         asOf,
		MinStatus:    minStatus,
		LocationType: locType,
	})
	if err != nil {
		storeError(w, h.Log, err, "failed to compute balances")
		return
	}

	switch q.Get("format") {
	case "", "json":
		if balances == nil {
			balances = []model.Balance{}
		}
		jsonResponse(w, http.StatusOK, balances)
	case "csv":
		writeBalancesCSV(w, h.Log, balances)
	default:
		jsonError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

func writeBalancesCSV(w http.ResponseWriter, logger *zap.Logger, balances []model.Balance) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="balances.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(balanceCSVHeader)
	for _, b := range balances {
		_ = cw.Write([]string{
			strconv.FormatInt(b.LocationID, 10),
			string(b.LocationType),
			b.LocationLabel,
			strconv.FormatInt(b.ConsumableID, 10),
			b.ConsumableCode,
			strconv.FormatInt(b.NetQty, 10),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.Warn("failed to write balances csv", zap.Error(err))
	}
}
