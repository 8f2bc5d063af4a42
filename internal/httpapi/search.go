// Package httpapi is the thin HTTP shell over the search service:
// request decoding and the error mapping the API contract promises
// (400 validation, 503 missing indexes, 500 otherwise). Everything
// interesting happens in internal/search.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/search"
	"github.com/maktabah/bahith/internal/vectordb"
)

// Searcher runs one search request.
type Searcher interface {
	Search(ctx context.Context, p search.Params) (*search.Response, error)
}

// SearchHandler serves POST /api/search.
type SearchHandler struct {
	svc    Searcher
	logger *zap.Logger
}

// NewSearchHandler constructs a new handler.
func NewSearchHandler(svc Searcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the search endpoint on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/search", h.handleSearch)
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var params search.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}

	resp, err := h.svc.Search(r.Context(), params)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeSearchError maps pipeline failures onto the API contract. The
// missing-collection case is the one remote error the pipeline
// promotes; everything else it already swallowed, so a 500 here means
// a genuine bug.
func (h *SearchHandler) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case search.IsValidation(err):
		writeError(w, http.StatusBadRequest, "invalid request", sanitizeErr(err.Error()))
	case errors.Is(err, vectordb.ErrCollectionNotFound):
		writeError(w, http.StatusServiceUnavailable, "search indexes not initialized", "Collection not found")
	default:
		h.logger.Error("search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, summary, message string) {
	writeJSON(w, status, errorBody{Error: summary, Message: message})
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sanitizeErr trims error messages for safe client output (UTF-8 safe).
func sanitizeErr(s string) string {
	runes := []rune(s)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return s
}
