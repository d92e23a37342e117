package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/TaskDealer/internal/domain"
)

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// Client-facing messages for upload failures.
const (
	msgUnsupportedFormat = "unsupported file format; upload a .csv, .xlsx or .xls file"
	msgNoAgents          = "no agents available; create an agent before uploading"
	msgParseFailure      = "file could not be parsed"
	msgNotPersisted      = "distribution was not persisted; re-upload the file"
)

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, domain.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, msgUnsupportedFormat)
	case errors.Is(err, domain.ErrNoAgentsAvailable):
		writeError(w, http.StatusBadRequest, msgNoAgents)
	case errors.Is(err, domain.ErrParse):
		writeError(w, http.StatusUnprocessableEntity, msgParseFailure)
	case errors.Is(err, domain.ErrStorage):
		slog.ErrorContext(r.Context(), "storage failure", "error", err)
		writeError(w, http.StatusInternalServerError, msgNotPersisted)
	default:
		writeInternalError(w, r, err)
	}
}

// validationMessage returns the innermost validation detail of err,
// without the stage prefixes added on the way up.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "+domain.ErrValidation.Error()); i >= 0 {
		msg = msg[:i]
	}
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return msg
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
