package embeddings

import (
	"fmt"
	"strings"
	"time"
)

// Model identifies an embedding backend and model.
type Model struct {
	Provider string // "openrouter" or "jina"
	Name     string
	Dim      int
}

// knownModels maps the configured model identifiers to their dimensions.
// Exactly one model is selected per request; the vector collections are
// derived from it.
var knownModels = map[string]Model{
	"openrouter:text-embedding-3-large": {Provider: "openrouter", Name: "text-embedding-3-large", Dim: 3072},
	"jina:jina-embeddings-v3":           {Provider: "jina", Name: "jina-embeddings-v3", Dim: 1024},
}

// ParseModel resolves a "provider:name" identifier.
func ParseModel(id string) (Model, error) {
	if m, ok := knownModels[id]; ok {
		return m, nil
	}
	return Model{}, fmt.Errorf("unknown embedding model %q", id)
}

// CollectionSuffix is the per-model suffix appended to vector collection
// base names.
func (m Model) CollectionSuffix() string {
	return strings.ReplaceAll(m.Name, ".", "_")
}

// Config controls the embedding service.
type Config struct {
	DefaultModel string
	MemoryTTL    time.Duration
	MemoryMax    int
	EvictCount   int
	MaxBatch     int
	// Timeout bounds one backend attempt; the 429 retry series may run
	// longer than this.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultModel == "" {
		c.DefaultModel = "openrouter:text-embedding-3-large"
	}
	if c.MemoryTTL == 0 {
		c.MemoryTTL = 24 * time.Hour
	}
	if c.MemoryMax == 0 {
		c.MemoryMax = 4096
	}
	if c.EvictCount == 0 {
		c.EvictCount = 256
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = 64
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
}
