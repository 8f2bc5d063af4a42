// Package graphctx resolves optional knowledge-graph context for a
// query: related entities to attach to the response and score boosts
// for ayahs the graph links to the query's concepts. The lookup runs
// beside the main pipeline and is dropped silently when it fails or
// exceeds its short deadline.
package graphctx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/circuitbreaker"
	ometrics "github.com/maktabah/bahith/internal/metrics"
	"github.com/maktabah/bahith/internal/tracing"
)

// Entity is one related node from the graph.
type Entity struct {
	Type  string  `json:"type"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// AyahBoost raises the score of one ayah in the final ranking.
type AyahBoost struct {
	Surah int     `json:"surah"`
	Ayah  int     `json:"ayah"`
	Boost float64 `json:"boost"`
}

// Context is the resolved graph side channel.
type Context struct {
	Entities   map[string][]Entity `json:"entities,omitempty"`
	AyahBoosts []AyahBoost         `json:"ayahBoosts,omitempty"`
}

// Config controls the resolver. An empty URL disables it.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Resolver queries the graph service.
type Resolver struct {
	cfg   Config
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Resolver{
		cfg:   cfg,
		httpw: circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: cfg.Timeout}, "graph", "graphctx", logger),
		log:   logger,
	}
}

// Enabled reports whether a graph service is configured.
func (r *Resolver) Enabled() bool { return r.cfg.URL != "" }

// Resolve returns the graph context for a query, or nil when the
// service is disabled, times out, or fails.
func (r *Resolver) Resolve(ctx context.Context, query string) *Context {
	if !r.Enabled() {
		return nil
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(r.cfg.URL, "/") + "/v1/context"
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body, _ := json.Marshal(map[string]string{"query": query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := r.httpw.Do(req)
	if err != nil {
		ometrics.RecordEngine("graph", "context", "error", time.Since(start).Seconds())
		r.log.Debug("graph context unavailable", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ometrics.RecordEngine("graph", "context", "error", time.Since(start).Seconds())
		r.log.Debug("graph context error status", zap.Int("status", resp.StatusCode))
		return nil
	}

	var gc Context
	if err := json.NewDecoder(resp.Body).Decode(&gc); err != nil {
		ometrics.RecordEngine("graph", "context", "error", time.Since(start).Seconds())
		return nil
	}
	if len(gc.Entities) == 0 && len(gc.AyahBoosts) == 0 {
		ometrics.RecordEngine("graph", "context", "empty", time.Since(start).Seconds())
		return nil
	}
	ometrics.RecordEngine("graph", "context", "ok", time.Since(start).Seconds())
	return &gc
}
