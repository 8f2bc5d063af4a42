// Package search is the top-level orchestrator: it fans a query out to
// the lexical and vector engines, fuses and reranks the candidates, and
// assembles the unified tri-domain response. Every remote branch is
// allowed to fail; only a missing vector collection aborts a request.
package search

import (
	"sync"
	"time"

	"github.com/maktabah/bahith/internal/graphctx"
)

// Response is the JSON shape the HTTP layer returns.
type Response struct {
	Query   string         `json:"query"`
	Mode    string         `json:"mode"`
	Count   int            `json:"count"`
	Results []BookResult   `json:"results"`
	Authors []AuthorResult `json:"authors"`
	Ayahs   []AyahResult   `json:"ayahs"`
	Hadiths []HadithResult `json:"hadiths"`

	GraphContext *graphctx.Context `json:"graphContext,omitempty"`

	Refined         bool            `json:"refined,omitempty"`
	ExpandedQueries []ExpandedQuery `json:"expandedQueries,omitempty"`

	DebugStats *DebugStats `json:"debugStats,omitempty"`
}

// BookResult is one ranked book page with its catalog metadata.
type BookResult struct {
	BookID             int64    `json:"bookId"`
	PageNumber         int      `json:"pageNumber"`
	TextSnippet        string   `json:"textSnippet"`
	HighlightedSnippet string   `json:"highlightedSnippet,omitempty"`
	SemanticScore      *float64 `json:"semanticScore,omitempty"`
	KeywordScore       *float64 `json:"keywordScore,omitempty"`
	FusedScore         float64  `json:"fusedScore"`
	MatchType          string   `json:"matchType"`
	ContentTranslation string   `json:"contentTranslation,omitempty"`
	TitleArabic        string   `json:"titleArabic,omitempty"`
	TitleLatin         string   `json:"titleLatin,omitempty"`
	Author             string   `json:"author,omitempty"`
}

// AuthorResult is one matching author record.
type AuthorResult struct {
	AuthorID   int64   `json:"authorId"`
	NameArabic string  `json:"nameArabic"`
	NameLatin  string  `json:"nameLatin,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// AyahResult is one ranked Quran verse.
type AyahResult struct {
	SurahNumber int     `json:"surahNumber"`
	AyahNumber  int     `json:"ayahNumber"`
	AyahEnd     int     `json:"ayahEnd,omitempty"`
	Text        string  `json:"text"`
	Translation string  `json:"translation,omitempty"`
	Score       float64 `json:"score"`
}

// HadithResult is one ranked hadith.
type HadithResult struct {
	CollectionSlug string  `json:"collectionSlug"`
	HadithNumber   int64   `json:"hadithNumber"`
	BookID         int64   `json:"bookId"`
	Text           string  `json:"text"`
	Chapter        string  `json:"chapter,omitempty"`
	Translation    string  `json:"translation,omitempty"`
	Score          float64 `json:"score"`
}

// ExpandedQuery echoes one refine-mode reformulation.
type ExpandedQuery struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason,omitempty"`
}

// DebugStats is attached outside production: per-branch timings and the
// errors each branch swallowed.
type DebugStats struct {
	Script              string            `json:"script"`
	SkipSemantic        bool              `json:"skipSemantic"`
	SkipLexical         bool              `json:"skipLexical"`
	SimilarityThreshold float64           `json:"similarityThreshold"`
	TimingsMS           map[string]int64  `json:"timingsMs"`
	BranchErrors        map[string]string `json:"branchErrors,omitempty"`
	RerankTimedOut      bool              `json:"rerankTimedOut,omitempty"`
}

// stats collects timings and swallowed errors across concurrent
// branches.
type stats struct {
	mu       sync.Mutex
	timings  map[string]int64
	branches map[string]string

	script         string
	skipSemantic   bool
	skipLexical    bool
	threshold      float64
	rerankTimedOut bool
}

func newStats() *stats {
	return &stats{
		timings:  make(map[string]int64),
		branches: make(map[string]string),
	}
}

// time runs fn and records its wall time under name.
func (s *stats) time(name string, fn func()) {
	start := time.Now()
	fn()
	ms := time.Since(start).Milliseconds()
	s.mu.Lock()
	s.timings[name] = ms
	s.mu.Unlock()
}

// branchError records the error a branch swallowed.
func (s *stats) branchError(name string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.branches[name] = err.Error()
	s.mu.Unlock()
}

func (s *stats) markRerankTimeout() {
	s.mu.Lock()
	s.rerankTimedOut = true
	s.mu.Unlock()
}

func (s *stats) snapshot() *DebugStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &DebugStats{
		Script:              s.script,
		SkipSemantic:        s.skipSemantic,
		SkipLexical:         s.skipLexical,
		SimilarityThreshold: s.threshold,
		TimingsMS:           make(map[string]int64, len(s.timings)),
		RerankTimedOut:      s.rerankTimedOut,
	}
	for k, v := range s.timings {
		out.TimingsMS[k] = v
	}
	if len(s.branches) > 0 {
		out.BranchErrors = make(map[string]string, len(s.branches))
		for k, v := range s.branches {
			out.BranchErrors[k] = v
		}
	}
	return out
}
