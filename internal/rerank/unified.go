package rerank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	ometrics "github.com/maktabah/bahith/internal/metrics"
)

// UnifiedInput packs the three refine-mode candidate lists. Each list
// must already be truncated to its own limit; Limit caps how many of
// each type the ranked output keeps.
type UnifiedInput struct {
	Books   []string
	Ayahs   []string
	Hadiths []string

	BookLimit   int
	AyahLimit   int
	HadithLimit int
}

// RankedIndex points back into one input list. Score is the synthetic
// monotone 1-rank/100 so downstream sorting stays stable.
type RankedIndex struct {
	Index int
	Score float64
}

// UnifiedOrder is the per-type result of a unified rerank.
type UnifiedOrder struct {
	Books   []RankedIndex
	Ayahs   []RankedIndex
	Hadiths []RankedIndex
}

type taggedCandidate struct {
	kind  string
	local int
	text  string
}

// RerankUnified ranks books, ayahs and hadiths in one LLM call. A nil
// order with timedOut=false means reranking was skipped or unparseable
// and the caller keeps its standard ordering.
func (r *Reranker) RerankUnified(ctx context.Context, query string, in UnifiedInput) (order *UnifiedOrder, timedOut bool) {
	candidates := packCandidates(in)
	if len(candidates) < unifiedMinCandidates {
		return nil, false
	}

	model := r.cfg.LargeModel
	cctx, cancel := context.WithTimeout(ctx, unifiedDeadline)
	defer cancel()

	start := time.Now()
	reply, err := r.llm.Complete(cctx, model, unifiedPrompt(query, candidates))
	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
		ometrics.RecordRerank(model, status, time.Since(start).Seconds())
		r.log.Warn("unified rerank failed, falling back to standard merge",
			zap.String("model", model), zap.Error(err))
		return nil, true
	}

	ranked, ok := parseIndices(reply, len(candidates))
	if !ok {
		ometrics.RecordRerank(model, "parse_fallback", time.Since(start).Seconds())
		r.log.Warn("unified rerank reply unparseable, falling back",
			zap.String("model", model), zap.String("reply", truncate(reply, 200)))
		return nil, false
	}
	ometrics.RecordRerank(model, "ok", time.Since(start).Seconds())

	out := &UnifiedOrder{}
	for rank, ci := range ranked {
		c := candidates[ci]
		ri := RankedIndex{Index: c.local, Score: 1.0 - float64(rank+1)/100.0}
		switch c.kind {
		case "book":
			if len(out.Books) < in.BookLimit {
				out.Books = append(out.Books, ri)
			}
		case "ayah":
			if len(out.Ayahs) < in.AyahLimit {
				out.Ayahs = append(out.Ayahs, ri)
			}
		default:
			if len(out.Hadiths) < in.HadithLimit {
				out.Hadiths = append(out.Hadiths, ri)
			}
		}
	}
	return out, false
}

func packCandidates(in UnifiedInput) []taggedCandidate {
	out := make([]taggedCandidate, 0, len(in.Books)+len(in.Ayahs)+len(in.Hadiths))
	for i, t := range in.Books {
		out = append(out, taggedCandidate{kind: "book", local: i, text: t})
	}
	for i, t := range in.Ayahs {
		out = append(out, taggedCandidate{kind: "ayah", local: i, text: t})
	}
	for i, t := range in.Hadiths {
		out = append(out, taggedCandidate{kind: "hadith", local: i, text: t})
	}
	return out
}

func unifiedPrompt(query string, candidates []taggedCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a relevance judge for classical Islamic texts.

Rank ALL the numbered passages below by relevance to the query, regardless of their type. Types are: book (a page from a classical work), ayah (a Quran verse), hadith (a prophetic narration).

Query: %s

Passages:
`, query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, c.kind, truncate(c.text, candidateMaxChars))
	}
	b.WriteString(`
Respond with ONLY a JSON array of passage numbers, best first, e.g. [3,1,2]. No prose, no explanation.`)
	return b.String()
}
