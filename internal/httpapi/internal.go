package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/ttlcache"
)

// EmbeddingCache is the slice of the embedding service the purge
// endpoint needs.
type EmbeddingCache interface {
	CacheStats() ttlcache.Stats
	PurgeMemory()
}

// InternalHandler serves operator endpoints guarded by a bearer
// secret. With no secret configured the routes refuse every call
// rather than default open.
type InternalHandler struct {
	embeddings EmbeddingCache
	secret     string
	logger     *zap.Logger
}

// NewInternalHandler constructs a new handler. secret comes from
// INTERNAL_API_SECRET.
func NewInternalHandler(embeddings EmbeddingCache, secret string, logger *zap.Logger) *InternalHandler {
	return &InternalHandler{embeddings: embeddings, secret: secret, logger: logger}
}

// RegisterRoutes registers internal endpoints on the given mux.
func (h *InternalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/internal/cache/purge", h.handlePurge)
}

// handlePurge drops the in-memory embedding tier. The Redis tier and
// the backend stay untouched; the next lookups repopulate from there.
func (h *InternalHandler) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	before := h.embeddings.CacheStats()
	h.embeddings.PurgeMemory()
	h.logger.Info("embedding memory cache purged",
		zap.Int("entries", before.Size),
		zap.Uint64("hits", before.Hits),
		zap.Uint64("misses", before.Misses),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"purged": before.Size,
	})
}

func (h *InternalHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == h.secret
}
