// Package expansion produces LLM paraphrases of a query for refine
// mode. Expansion is best-effort: any failure yields zero expansions
// and the original query still runs alone.
package expansion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/llm"
	ometrics "github.com/maktabah/bahith/internal/metrics"
	"github.com/maktabah/bahith/internal/ttlcache"
)

const (
	maxExpansions = 4
	minWeight     = 0.3
	maxWeight     = 1.0

	cacheTTL   = 10 * time.Minute
	cacheMax   = 2048
	cacheEvict = 128

	callDeadline = 10 * time.Second
)

// Expansion is one reformulation of the original query. The original is
// implicit with weight 1 and never appears in this list.
type Expansion struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"`
}

// Expander caches per-query expansions.
type Expander struct {
	llm   llm.Completer
	model string
	cache *ttlcache.Cache[[]Expansion]
	log   *zap.Logger
}

func New(completer llm.Completer, model string, logger *zap.Logger) *Expander {
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	return &Expander{
		llm:   completer,
		model: model,
		cache: ttlcache.New[[]Expansion](cacheTTL, cacheMax, cacheEvict),
		log:   logger,
	}
}

// Expand returns up to four weighted paraphrases for the query. Failed
// calls return an empty list and are not cached, so the next request
// retries.
func (e *Expander) Expand(ctx context.Context, query string) []Expansion {
	if cached, ok := e.cache.Get(query); ok {
		ometrics.ExpansionRequests.WithLabelValues("cache_hit").Inc()
		return cached
	}

	cctx, cancel := context.WithTimeout(ctx, callDeadline)
	defer cancel()

	reply, err := e.llm.Complete(cctx, e.model, expandPrompt(query))
	if err != nil {
		ometrics.ExpansionRequests.WithLabelValues("error").Inc()
		e.log.Warn("query expansion failed, searching with original only",
			zap.String("query", query), zap.Error(err))
		return nil
	}

	expansions, ok := parseExpansions(reply)
	if !ok {
		ometrics.ExpansionRequests.WithLabelValues("parse_fallback").Inc()
		e.log.Warn("query expansion reply unparseable",
			zap.String("query", query))
		return nil
	}
	ometrics.ExpansionRequests.WithLabelValues("ok").Inc()
	e.cache.Set(query, expansions)
	return expansions
}

func expandPrompt(query string) string {
	return fmt.Sprintf(`You expand search queries over classical Islamic texts (Quran, hadith, fiqh, and scholarly works).

Produce up to 4 reformulations of the query below: paraphrases, closely related juristic or theological phrasings, or the classical Arabic terminology for the same concept. Keep each reformulation short and searchable. Assign each a weight between 0.3 and 1.0 reflecting how faithful it is to the original intent.

Query: %s

Respond with ONLY a JSON array like:
[{"text":"...","weight":0.9,"reason":"..."}]
No prose before or after.`, query)
}

func parseExpansions(reply string) ([]Expansion, bool) {
	text := llm.StripFences(reply)
	// Tolerate prose around the array.
	if i := strings.Index(text, "["); i >= 0 {
		if j := strings.LastIndex(text, "]"); j > i {
			text = text[i : j+1]
		}
	}
	var raw []Expansion
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}

	out := make([]Expansion, 0, maxExpansions)
	for _, ex := range raw {
		ex.Text = strings.TrimSpace(ex.Text)
		if ex.Text == "" {
			continue
		}
		if ex.Weight < minWeight {
			ex.Weight = minWeight
		}
		if ex.Weight > maxWeight {
			ex.Weight = maxWeight
		}
		out = append(out, ex)
		if len(out) == maxExpansions {
			break
		}
	}
	return out, true
}
