package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/erazemk/povratna/internal/store"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		// The status line is already sent, nothing useful to do on failure.
		_ = json.NewEncoder(w).Encode(data)
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// storeError maps a typed store error to its HTTP status. Unexpected errors
// are logged and reported as 500 with the given message.
func storeError(w http.ResponseWriter, logger *zap.Logger, err error, message string) {
	var (
		validation *store.ValidationError
		notFound   *store.NotFoundError
		conflict   *store.ConflictError
		integrity  *store.IntegrityError
	)
	switch {
	case errors.As(err, &validation):
		jsonError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		jsonError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		jsonError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &integrity):
		jsonError(w, http.StatusConflict, "record is in use or references a missing record")
	default:
		logger.Error(message, zap.Error(err))
		jsonError(w, http.StatusInternalServerError, message)
	}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryID parses an optional positive id query parameter. Absent means 0.
func queryID(r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil && id > 0
}
