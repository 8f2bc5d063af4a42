package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maktabah/bahith/internal/analytics"
	"github.com/maktabah/bahith/internal/arabic"
	"github.com/maktabah/bahith/internal/db"
	"github.com/maktabah/bahith/internal/embeddings"
	"github.com/maktabah/bahith/internal/expansion"
	"github.com/maktabah/bahith/internal/fusion"
	"github.com/maktabah/bahith/internal/graphctx"
	"github.com/maktabah/bahith/internal/lexical"
	ometrics "github.com/maktabah/bahith/internal/metrics"
	"github.com/maktabah/bahith/internal/rerank"
	"github.com/maktabah/bahith/internal/vectordb"
)

// Per-branch deadlines. Every outbound call gets one; on expiry the
// branch contributes its empty sentinel and the request proceeds.
const (
	lexicalDeadline  = 5 * time.Second
	semanticDeadline = 5 * time.Second
	authorDeadline   = 5 * time.Second
	metadataDeadline = 5 * time.Second

	authorLimit = 5
)

// errEngineUnavailable marks a lexical branch that returned its nil
// sentinel instead of a result list.
var errEngineUnavailable = errors.New("engine unavailable")

// LexicalEngine is the keyword side of the pipeline. A nil slice means
// the engine was unreachable, an empty slice means no match.
type LexicalEngine interface {
	SearchBooks(ctx context.Context, q arabic.Query, limit int, bookIDs []int64) []lexical.BookHit
	SearchAyahs(ctx context.Context, q arabic.Query, limit int) []lexical.AyahHit
	SearchHadiths(ctx context.Context, q arabic.Query, limit int) []lexical.HadithHit
	SearchAuthors(ctx context.Context, q arabic.Query, limit int) []lexical.AuthorHit
}

// VectorEngine is the semantic side of the pipeline.
type VectorEngine interface {
	SearchPages(ctx context.Context, model embeddings.Model, vec []float32, limit int, threshold float64, bookIDs []int64) ([]vectordb.PageHit, error)
	SearchAyahs(ctx context.Context, model embeddings.Model, vec []float32, limit int, threshold float64) ([]vectordb.AyahHit, error)
	SearchHadiths(ctx context.Context, model embeddings.Model, vec []float32, limit int, threshold float64) ([]vectordb.HadithHit, error)
}

// Embedder turns query text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text, modelID string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, modelID string) ([][]float32, error)
}

// Reranker reorders candidates with an LLM.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string, topN int, choice rerank.Choice) ([]int, bool)
	RerankUnified(ctx context.Context, query string, in rerank.UnifiedInput) (*rerank.UnifiedOrder, bool)
}

// Expander produces refine-mode query variants.
type Expander interface {
	Expand(ctx context.Context, query string) []expansion.Expansion
}

// Merger joins stored translations into ranked results in place.
type Merger interface {
	MergeAyahs(ctx context.Context, results []fusion.AyahRankedResult, edition string)
	MergeHadiths(ctx context.Context, results []fusion.HadithRankedResult, language string)
	MergePages(ctx context.Context, results []fusion.RankedResult, language string)
}

// GraphResolver is the optional knowledge-graph side channel.
type GraphResolver interface {
	Resolve(ctx context.Context, query string) *graphctx.Context
}

// MetadataStore is the relational catalog.
type MetadataStore interface {
	BooksByID(ctx context.Context, ids []int64) (map[int64]db.Book, error)
	SearchAuthorsLike(ctx context.Context, name string, limit int) ([]db.Author, error)
}

// BookSet gates book results on fully indexed books. A nil set means
// "do not filter".
type BookSet interface {
	Current(ctx context.Context) map[int64]struct{}
}

// EventSink receives completed-search analytics.
type EventSink interface {
	Emit(ev analytics.Event)
}

// Options are the orchestrator tunables, normally filled from the
// search section of the config file.
type Options struct {
	DefaultLimit          int
	MaxLimit              int
	BaseSimilarity        float64
	RefineSimilarity      float64
	RefinePerQuery        int
	RequestTimeout        time.Duration
	DefaultEmbeddingModel string

	// Debug attaches per-branch stats to every response.
	Debug bool
}

func (o *Options) applyDefaults() {
	if o.DefaultLimit == 0 {
		o.DefaultLimit = 20
	}
	if o.MaxLimit == 0 {
		o.MaxLimit = 100
	}
	if o.BaseSimilarity == 0 {
		o.BaseSimilarity = 0.2
	}
	if o.RefineSimilarity == 0 {
		o.RefineSimilarity = 0.25
	}
	if o.RefinePerQuery == 0 {
		o.RefinePerQuery = 40
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.DefaultEmbeddingModel == "" {
		o.DefaultEmbeddingModel = "openrouter:text-embedding-3-large"
	}
}

// Deps carries the pipeline collaborators. Lexical, Vector and Embedder
// are required; every other dependency degrades to a no-op when nil.
type Deps struct {
	Lexical  LexicalEngine
	Vector   VectorEngine
	Embedder Embedder
	Reranker Reranker
	Expander Expander
	Merger   Merger
	Graph    GraphResolver
	Meta     MetadataStore
	Books    BookSet
	Events   EventSink
}

// Service orchestrates one search request end to end.
type Service struct {
	mu   sync.RWMutex
	opts Options
	deps Deps
	log  *zap.Logger
}

func New(opts Options, deps Deps, logger *zap.Logger) *Service {
	opts.applyDefaults()
	return &Service{opts: opts, deps: deps, log: logger}
}

// SetOptions swaps the tunables, typically on a config reload. Clients
// and deadlines are fixed at construction; only the option values here
// change.
func (s *Service) SetOptions(opts Options) {
	opts.applyDefaults()
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

func (s *Service) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// pipelineOut is the fused, pre-assembly state shared by both paths.
type pipelineOut struct {
	books   []fusion.RankedResult
	ayahs   []fusion.AyahRankedResult
	hadiths []fusion.HadithRankedResult

	authors    []AuthorResult
	graph      *graphctx.Context
	expansions []expansion.Expansion
}

// Search validates the request, runs the standard or refine pipeline
// and assembles the response. The only fatal remote failure is a
// missing vector collection; everything else degrades to an empty
// branch.
func (s *Service) Search(ctx context.Context, p Params) (*Response, error) {
	opts := s.options()
	if err := p.normalize(&opts); err != nil {
		return nil, err
	}
	ometrics.RecordSearchStarted(p.Mode, p.Refine)
	ctx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	q := arabic.ParseQuery(p.Query)
	st := newStats()
	st.script = string(q.Script)

	var (
		out *pipelineOut
		err error
	)
	if p.Refine {
		out, err = s.refine(ctx, q, p, st)
	} else {
		out, err = s.standard(ctx, q, p, st)
	}
	if err != nil {
		ometrics.RecordSearch(p.Mode, p.Refine, "error", time.Since(start).Seconds())
		return nil, err
	}

	resp := s.assemble(ctx, p, out, st)
	ometrics.RecordSearch(p.Mode, p.Refine, "ok", time.Since(start).Seconds())
	s.emit(q, p, resp, time.Since(start))
	return resp, nil
}

func (s *Service) assemble(ctx context.Context, p Params, out *pipelineOut, st *stats) *Response {
	if out.graph != nil {
		applyAyahBoosts(out.ayahs, out.graph.AyahBoosts)
	}
	s.mergeTranslations(ctx, p, out, st)

	resp := &Response{
		Query:        p.Query,
		Mode:         p.Mode,
		Results:      bookResults(out.books),
		Authors:      out.authors,
		Ayahs:        ayahResults(out.ayahs),
		Hadiths:      hadithResults(out.hadiths),
		GraphContext: out.graph,
	}
	resp.Count = len(resp.Results)
	if p.Refine {
		resp.Refined = true
		resp.ExpandedQueries = expandedQueries(out.expansions)
	}
	s.attachBookMeta(ctx, resp, st)
	if s.options().Debug {
		resp.DebugStats = st.snapshot()
	}
	return resp
}

func (s *Service) mergeTranslations(ctx context.Context, p Params, out *pipelineOut, st *stats) {
	if s.deps.Merger == nil {
		return
	}
	g := new(errgroup.Group)
	if p.AyahTranslation != "" && len(out.ayahs) > 0 {
		g.Go(func() error {
			st.time("translate_ayahs", func() {
				s.deps.Merger.MergeAyahs(ctx, out.ayahs, p.AyahTranslation)
			})
			return nil
		})
	}
	if p.HadithTranslation != "" && len(out.hadiths) > 0 {
		g.Go(func() error {
			st.time("translate_hadiths", func() {
				s.deps.Merger.MergeHadiths(ctx, out.hadiths, p.HadithTranslation)
			})
			return nil
		})
	}
	if p.PageTranslation != "" && len(out.books) > 0 {
		g.Go(func() error {
			st.time("translate_pages", func() {
				s.deps.Merger.MergePages(ctx, out.books, p.PageTranslation)
			})
			return nil
		})
	}
	_ = g.Wait()
}

// attachBookMeta enriches book results with catalog titles and author
// names. A lookup failure leaves the results bare.
func (s *Service) attachBookMeta(ctx context.Context, resp *Response, st *stats) {
	if s.deps.Meta == nil || len(resp.Results) == 0 {
		return
	}
	ids := make([]int64, 0, len(resp.Results))
	seen := make(map[int64]bool, len(resp.Results))
	for _, r := range resp.Results {
		if !seen[r.BookID] {
			seen[r.BookID] = true
			ids = append(ids, r.BookID)
		}
	}
	mctx, cancel := context.WithTimeout(ctx, metadataDeadline)
	defer cancel()
	var (
		books map[int64]db.Book
		err   error
	)
	st.time("book_metadata", func() { books, err = s.deps.Meta.BooksByID(mctx, ids) })
	if err != nil {
		st.branchError("book_metadata", err)
		s.log.Warn("book metadata lookup failed", zap.Error(err))
		return
	}
	for i := range resp.Results {
		if b, ok := books[resp.Results[i].BookID]; ok {
			resp.Results[i].TitleArabic = b.TitleArabic
			resp.Results[i].TitleLatin = b.TitleLatin
			resp.Results[i].Author = b.AuthorName
		}
	}
}

// lookupAuthors prefers the lexical author index and falls back to a
// catalog LIKE scan when the index is unreachable.
func (s *Service) lookupAuthors(ctx context.Context, q arabic.Query, st *stats) []AuthorResult {
	hits := s.deps.Lexical.SearchAuthors(ctx, q, authorLimit)
	if hits != nil {
		return authorsFromHits(hits)
	}
	st.branchError("authors_index", errEngineUnavailable)
	if s.deps.Meta == nil {
		return nil
	}
	rows, err := s.deps.Meta.SearchAuthorsLike(ctx, q.Normalized, authorLimit)
	if err != nil {
		st.branchError("authors_fallback", err)
		s.log.Warn("author fallback lookup failed", zap.Error(err))
		return nil
	}
	return authorsFromRows(rows)
}

func (s *Service) emit(q arabic.Query, p Params, resp *Response, took time.Duration) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Emit(analytics.Event{
		Query:       p.Query,
		Mode:        p.Mode,
		Script:      string(q.Script),
		Refined:     resp.Refined,
		BookCount:   len(resp.Results),
		AyahCount:   len(resp.Ayahs),
		HadithCount: len(resp.Hadiths),
		DurationMS:  took.Milliseconds(),
	})
}

// applyAyahBoosts raises the fused score of ayahs the graph linked to
// the query's concepts and restores descending order.
func applyAyahBoosts(ayahs []fusion.AyahRankedResult, boosts []graphctx.AyahBoost) {
	if len(ayahs) == 0 || len(boosts) == 0 {
		return
	}
	byKey := make(map[string]float64, len(boosts))
	for _, b := range boosts {
		byKey[fmt.Sprintf("%d:%d", b.Surah, b.Ayah)] += b.Boost
	}
	boosted := false
	for i := range ayahs {
		if boost, ok := byKey[ayahs[i].Key()]; ok {
			ayahs[i].FusedScore += boost
			boosted = true
		}
	}
	if boosted {
		sort.SliceStable(ayahs, func(i, j int) bool {
			return ayahs[i].FusedScore > ayahs[j].FusedScore
		})
	}
}
