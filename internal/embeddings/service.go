// Package embeddings provides cached embedding generation behind two
// tiers: a bounded in-process TTL cache and a persistent Redis blob
// store. Only the residue after both tiers reaches a backend, in one
// batched call per chunk.
package embeddings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	ometrics "github.com/maktabah/bahith/internal/metrics"
	"github.com/maktabah/bahith/internal/ttlcache"
)

// Service generates embeddings with tiered caching.
type Service struct {
	cfg        Config
	memory     *ttlcache.Cache[[]float32]
	persistent PersistentCache // nil disables the second tier
	backends   map[string]Backend
	logger     *zap.Logger
}

// New builds a service with the OpenRouter and Jina backends wired.
func New(cfg Config, llmBaseURL string, persistent PersistentCache, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:        cfg,
		memory:     ttlcache.New[[]float32](cfg.MemoryTTL, cfg.MemoryMax, cfg.EvictCount),
		persistent: persistent,
		backends: map[string]Backend{
			"openrouter": newOpenRouterBackend(llmBaseURL, cfg.Timeout, logger),
			"jina":       newJinaBackend("", cfg.Timeout, logger),
		},
		logger: logger,
	}
}

// NewWithBackends is the constructor tests use to inject fakes.
func NewWithBackends(cfg Config, backends map[string]Backend, persistent PersistentCache, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:        cfg,
		memory:     ttlcache.New[[]float32](cfg.MemoryTTL, cfg.MemoryMax, cfg.EvictCount),
		persistent: persistent,
		backends:   backends,
		logger:     logger,
	}
}

// DefaultModel returns the configured model identifier.
func (s *Service) DefaultModel() string { return s.cfg.DefaultModel }

// Embed returns the vector for one text.
func (s *Service) Embed(ctx context.Context, text, modelID string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text}, modelID)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns vectors for texts in the original order. Tier
// lookups run first; persistent hits are promoted to memory; the residue
// goes to the backend in MaxBatch chunks.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, modelID string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if modelID == "" {
		modelID = s.cfg.DefaultModel
	}
	model, err := ParseModel(modelID)
	if err != nil {
		return nil, err
	}
	backend, ok := s.backends[model.Provider]
	if !ok {
		return nil, fmt.Errorf("no backend for provider %q", model.Provider)
	}

	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = MakeKey(model, t)
	}

	// Tier 1: memory.
	var missIdx []int
	memHits := s.memory.GetMany(keys)
	for i, k := range keys {
		if v, ok := memHits[k]; ok {
			results[i] = v
			ometrics.RecordEmbedding(model.Name, "memory_hit", 0)
			continue
		}
		missIdx = append(missIdx, i)
	}

	// Tier 2: persistent, one call for all remaining keys; hits are
	// promoted into memory.
	if s.persistent != nil && len(missIdx) > 0 {
		missKeys := make([]string, len(missIdx))
		for j, i := range missIdx {
			missKeys[j] = keys[i]
		}
		persisted := s.persistent.GetMany(ctx, missKeys)
		if len(persisted) > 0 {
			promote := make(map[string][]float32, len(persisted))
			still := missIdx[:0]
			for _, i := range missIdx {
				if v, ok := persisted[keys[i]]; ok {
					results[i] = v
					promote[keys[i]] = v
					ometrics.RecordEmbedding(model.Name, "redis_hit", 0)
					continue
				}
				still = append(still, i)
			}
			s.memory.SetMany(promote)
			missIdx = still
		}
	}

	if len(missIdx) == 0 {
		return results, nil
	}

	// Backend, chunked to the provider batch ceiling.
	for start := 0; start < len(missIdx); start += s.cfg.MaxBatch {
		end := start + s.cfg.MaxBatch
		if end > len(missIdx) {
			end = len(missIdx)
		}
		chunk := missIdx[start:end]
		chunkTexts := make([]string, len(chunk))
		for j, i := range chunk {
			chunkTexts[j] = texts[i]
		}

		vecs, err := backend.Embed(ctx, chunkTexts, model)
		if err != nil {
			ometrics.RecordEmbedding(model.Name, "error", 0)
			return nil, fmt.Errorf("embed batch: %w", err)
		}

		fresh := make(map[string][]float32, len(chunk))
		for j, i := range chunk {
			results[i] = vecs[j]
			fresh[keys[i]] = vecs[j]
		}
		s.memory.SetMany(fresh)
		if s.persistent != nil {
			s.persistent.SetMany(ctx, fresh)
		}
	}

	return results, nil
}

// CacheStats exposes memory-tier counters for the internal API.
func (s *Service) CacheStats() ttlcache.Stats { return s.memory.Stats() }

// PurgeMemory drops the in-process tier; the persistent tier is
// untouched.
func (s *Service) PurgeMemory() { s.memory.Clear() }
