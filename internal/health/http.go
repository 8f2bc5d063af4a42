package health

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler serves the aggregate dependency health.
//
//	GET /healthz          compact status, 503 when not ready
//	GET /healthz/detailed full per-component results (?cached=true
//	                      reads the background loop's last sweep)
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// RegisterRoutes registers the health endpoints on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/healthz/detailed", h.handleDetailed)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	ov := h.manager.Check(r.Context())
	components := make(map[string]Status, len(ov.Components))
	for name, res := range ov.Components {
		components[name] = res.Status
	}

	h.encode(w, statusCode(ov), map[string]interface{}{
		"status":     ov.Status,
		"message":    ov.Message,
		"ready":      ov.Ready,
		"components": components,
	})
}

func (h *Handler) handleDetailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var ov Overview
	if r.URL.Query().Get("cached") == "true" {
		ov = h.manager.Cached()
	} else {
		ov = h.manager.Check(r.Context())
	}
	h.encode(w, statusCode(ov), ov)
}

func (h *Handler) encode(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}

func statusCode(ov Overview) int {
	if ov.Ready {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
