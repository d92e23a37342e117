package http

import (
	"context"
	"net/http"
)

// ---------------------------------------------------------------------------
// Generic handler factories
// ---------------------------------------------------------------------------

// handleList creates a handler that lists resources and returns JSON.
// A nil result is written as an empty array.
func handleList[T any](listFn func(ctx context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := listFn(r.Context())
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleGet creates a handler that retrieves a single resource by URL param "id".
func handleGet[T any](getFn func(ctx context.Context, id string) (*T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), urlParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleDelete creates a handler that deletes a resource by URL param "id".
func handleDelete(deleteFn func(ctx context.Context, id string) error, notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deleteFn(r.Context(), urlParam(r, "id")); err != nil {
			writeDomainError(w, r, err, notFoundMsg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
