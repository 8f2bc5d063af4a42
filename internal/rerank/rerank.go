// Package rerank reorders candidate lists with an LLM. Reranking is
// strictly best-effort: any timeout, transport error, or unparseable
// response falls back to the original order and the pipeline proceeds.
package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/llm"
	ometrics "github.com/maktabah/bahith/internal/metrics"
)

// Choice selects the rerank model tier.
type Choice string

const (
	ChoiceNone  Choice = "none"
	ChoiceSmall Choice = "small"
	ChoiceLarge Choice = "large"
	ChoiceFast  Choice = "fast"
)

const (
	fastDeadline     = 15 * time.Second
	standardDeadline = 20 * time.Second
	unifiedDeadline  = 25 * time.Second

	// candidateMaxChars bounds each candidate text in the prompt.
	candidateMaxChars = 800

	// unifiedMinCandidates: with fewer items there is nothing to reorder.
	unifiedMinCandidates = 3
)

// Config names the models behind each choice.
type Config struct {
	SmallModel string
	LargeModel string
	FastModel  string
}

func (c *Config) applyDefaults() {
	if c.SmallModel == "" {
		c.SmallModel = "google/gemini-2.0-flash-001"
	}
	if c.LargeModel == "" {
		c.LargeModel = "anthropic/claude-sonnet-4"
	}
	if c.FastModel == "" {
		c.FastModel = "google/gemini-2.0-flash-lite-001"
	}
}

// Reranker drives LLM-based reordering.
type Reranker struct {
	llm llm.Completer
	cfg Config
	log *zap.Logger
}

func New(completer llm.Completer, cfg Config, logger *zap.Logger) *Reranker {
	cfg.applyDefaults()
	return &Reranker{llm: completer, cfg: cfg, log: logger}
}

// indexArray matches the first bare JSON array of integers in a reply.
var indexArray = regexp.MustCompile(`\[\s*\d+(?:\s*,\s*\d+)*\s*\]`)

// Rerank returns 0-based indices into texts, best first, at most topN.
// timedOut reports that the deadline expired and the original order was
// kept.
func (r *Reranker) Rerank(ctx context.Context, query string, texts []string, topN int, choice Choice) (indices []int, timedOut bool) {
	if topN <= 0 || topN > len(texts) {
		topN = len(texts)
	}
	if choice == ChoiceNone || choice == "" || len(texts) == 0 {
		return identity(topN), false
	}

	model, deadline := r.modelFor(choice)
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	reply, err := r.llm.Complete(cctx, model, rankPrompt(query, texts))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			ometrics.RecordRerank(model, "timeout", time.Since(start).Seconds())
			r.log.Warn("rerank timed out, keeping original order",
				zap.String("model", model), zap.Int("candidates", len(texts)))
			return identity(topN), true
		}
		ometrics.RecordRerank(model, "error", time.Since(start).Seconds())
		r.log.Warn("rerank call failed, keeping original order",
			zap.String("model", model), zap.Error(err))
		return identity(topN), true
	}

	ranked, ok := parseIndices(reply, len(texts))
	if !ok {
		ometrics.RecordRerank(model, "parse_fallback", time.Since(start).Seconds())
		r.log.Warn("rerank reply unparseable, keeping original order",
			zap.String("model", model), zap.String("reply", truncate(reply, 200)))
		return identity(topN), false
	}
	ometrics.RecordRerank(model, "ok", time.Since(start).Seconds())

	// Candidates the model dropped keep their original relative order
	// behind the ranked ones.
	seen := make(map[int]bool, len(ranked))
	for _, i := range ranked {
		seen[i] = true
	}
	for i := 0; i < len(texts) && len(ranked) < topN; i++ {
		if !seen[i] {
			ranked = append(ranked, i)
		}
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, false
}

func (r *Reranker) modelFor(choice Choice) (string, time.Duration) {
	switch choice {
	case ChoiceFast:
		return r.cfg.FastModel, fastDeadline
	case ChoiceLarge:
		return r.cfg.LargeModel, standardDeadline
	default:
		return r.cfg.SmallModel, standardDeadline
	}
}

func rankPrompt(query string, texts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a relevance judge for classical Islamic texts.

Rank the numbered passages below by how well each answers the query. Consider direct topical relevance first, then completeness.

Query: %s

Passages:
`, query)
	for i, t := range texts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, truncate(t, candidateMaxChars))
	}
	b.WriteString(`
Respond with ONLY a JSON array of passage numbers, best first, e.g. [3,1,2]. No prose, no explanation.`)
	return b.String()
}

// parseIndices extracts the first integer array from the reply and
// validates it: 1-based, in range, no duplicates. Returns 0-based
// indices.
func parseIndices(reply string, n int) ([]int, bool) {
	raw := indexArray.FindString(llm.StripFences(reply))
	if raw == "" {
		return nil, false
	}
	var nums []int
	if err := json.Unmarshal([]byte(raw), &nums); err != nil {
		return nil, false
	}
	seen := make(map[int]bool, len(nums))
	out := make([]int, 0, len(nums))
	for _, v := range nums {
		if v < 1 || v > n || seen[v] {
			return nil, false
		}
		seen[v] = true
		out = append(out, v-1)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
