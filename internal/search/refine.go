package search

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maktabah/bahith/internal/arabic"
	"github.com/maktabah/bahith/internal/embeddings"
	"github.com/maktabah/bahith/internal/expansion"
	"github.com/maktabah/bahith/internal/fusion"
	"github.com/maktabah/bahith/internal/graphctx"
	"github.com/maktabah/bahith/internal/lexical"
	"github.com/maktabah/bahith/internal/rerank"
	"github.com/maktabah/bahith/internal/vectordb"
)

// variant is one refine-mode query form: the original (weight 1) or an
// LLM reformulation. vec is nil when the batch embedding failed or the
// variant is too short for the semantic branch.
type variant struct {
	query  arabic.Query
	weight float64
	vec    []float32
}

// refine runs the multi-query pipeline: expand, fetch every variant in
// parallel at a lower similarity cutoff, dedupe with weighted RRF, then
// rerank all three domains in one LLM call. Rerank failure keeps the
// dedupe order. Refine never carries a book-scope filter.
func (s *Service) refine(ctx context.Context, q arabic.Query, p Params, st *stats) (*pipelineOut, error) {
	var exps []expansion.Expansion
	if s.deps.Expander != nil {
		st.time("expansion", func() { exps = s.deps.Expander.Expand(ctx, p.Query) })
	}

	variants := make([]variant, 0, 1+len(exps))
	variants = append(variants, variant{query: q, weight: 1.0})
	for _, ex := range exps {
		variants = append(variants, variant{query: arabic.ParseQuery(ex.Text), weight: ex.Weight})
	}

	st.skipSemantic = arabic.SkipSemantic(q)
	st.skipLexical = q.Script == arabic.ScriptLatin
	st.threshold = arabic.SimilarityThreshold(s.options().RefineSimilarity, q.Normalized)

	s.embedVariants(ctx, variants, p.EmbeddingModel, st)
	model, _ := embeddings.ParseModel(p.EmbeddingModel)

	bookLists := make([]fusion.WeightedList[fusion.RankedResult], len(variants))
	ayahLists := make([]fusion.WeightedList[fusion.AyahRankedResult], len(variants))
	hadithLists := make([]fusion.WeightedList[fusion.HadithRankedResult], len(variants))

	var (
		authors  []AuthorResult
		graph    *graphctx.Context
		eligible map[int64]struct{}
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := range variants {
		i := i
		v := variants[i]
		if p.includeBooks() {
			g.Go(func() error {
				items, err := s.refineBooks(gctx, v, p, model, st)
				if err != nil {
					return err
				}
				bookLists[i] = fusion.WeightedList[fusion.RankedResult]{Weight: v.weight, Items: items}
				return nil
			})
		}
		if p.includeQuran() {
			g.Go(func() error {
				items, err := s.refineAyahs(gctx, v, p, model, st)
				if err != nil {
					return err
				}
				ayahLists[i] = fusion.WeightedList[fusion.AyahRankedResult]{Weight: v.weight, Items: items}
				return nil
			})
		}
		if p.includeHadith() {
			g.Go(func() error {
				items, err := s.refineHadiths(gctx, v, p, model, st)
				if err != nil {
					return err
				}
				hadithLists[i] = fusion.WeightedList[fusion.HadithRankedResult]{Weight: v.weight, Items: items}
				return nil
			})
		}
	}
	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, authorDeadline)
		defer cancel()
		st.time("authors", func() { authors = s.lookupAuthors(actx, q, st) })
		return nil
	})
	if s.deps.Graph != nil {
		g.Go(func() error {
			st.time("graph", func() { graph = s.deps.Graph.Resolve(gctx, p.Query) })
			return nil
		})
	}
	if s.deps.Books != nil && p.includeBooks() {
		g.Go(func() error {
			st.time("indexed_set", func() { eligible = s.deps.Books.Current(gctx) })
			return nil
		})
	}

	var fanErr error
	st.time("refine_fetch", func() { fanErr = g.Wait() })
	if fanErr != nil {
		return nil, fanErr
	}

	books := fusion.DedupeWeighted(bookLists, rankedScores, mergeBookPayload)
	ayahs := fusion.DedupeWeighted(ayahLists, ayahScores, mergeAyahPayload)
	hadiths := fusion.DedupeWeighted(hadithLists, hadithScores, mergeHadithPayload)

	if eligible != nil {
		books = filterRanked(books, eligible)
	}
	books = head(books, p.Limit)
	ayahs = head(ayahs, p.AyahLimit)
	hadiths = head(hadiths, p.HadithLimit)

	s.rerankUnified(ctx, p, &books, &ayahs, &hadiths, st)

	return &pipelineOut{
		books:      books,
		ayahs:      ayahs,
		hadiths:    hadiths,
		authors:    authors,
		graph:      graph,
		expansions: exps,
	}, nil
}

// embedVariants fills variant vectors with one batched call. A batch
// failure degrades the whole refine pass to lexical-only.
func (s *Service) embedVariants(ctx context.Context, variants []variant, modelID string, st *stats) {
	texts := make([]string, 0, len(variants))
	idx := make([]int, 0, len(variants))
	for i, v := range variants {
		if arabic.SkipSemantic(v.query) {
			continue
		}
		texts = append(texts, v.query.Normalized)
		idx = append(idx, i)
	}
	if len(texts) == 0 {
		return
	}
	var (
		vecs [][]float32
		err  error
	)
	st.time("embedding", func() { vecs, err = s.deps.Embedder.EmbedBatch(ctx, texts, modelID) })
	if err != nil || len(vecs) != len(texts) {
		st.branchError("embedding", err)
		s.log.Warn("batch embedding failed, refine continues lexical-only", zap.Error(err))
		return
	}
	for j, i := range idx {
		variants[i].vec = vecs[j]
	}
}

// refineBooks is one (variant, books) fetch: lexical and semantic run
// in parallel at the per-query limit, fused hybrid.
func (s *Service) refineBooks(ctx context.Context, v variant, p Params, model embeddings.Model, st *stats) ([]fusion.RankedResult, error) {
	var (
		lex []lexical.BookHit
		sem []vectordb.PageHit
	)
	g, gctx := errgroup.WithContext(ctx)
	if v.query.Script != arabic.ScriptLatin {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, lexicalDeadline)
			defer cancel()
			lex = s.deps.Lexical.SearchBooks(lctx, v.query, p.RefinePerQuery, nil)
			return nil
		})
	}
	if v.vec != nil {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, semanticDeadline)
			defer cancel()
			hits, err := s.deps.Vector.SearchPages(vctx, model, v.vec, p.RefinePerQuery,
				arabic.SimilarityThreshold(s.options().RefineSimilarity, v.query.Normalized), nil)
			if err != nil {
				if errors.Is(err, vectordb.ErrCollectionNotFound) {
					return err
				}
				st.branchError("semantic_books", err)
				return nil
			}
			sem = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fusion.Merge(fusion.ModeHybrid, pagesToRanked(sem), bookHitsToRanked(lex),
		rankedScores, mergeBookPayload, p.RefinePerQuery), nil
}

func (s *Service) refineAyahs(ctx context.Context, v variant, p Params, model embeddings.Model, st *stats) ([]fusion.AyahRankedResult, error) {
	var (
		lex []lexical.AyahHit
		sem []vectordb.AyahHit
	)
	g, gctx := errgroup.WithContext(ctx)
	if v.query.Script != arabic.ScriptLatin {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, lexicalDeadline)
			defer cancel()
			lex = s.deps.Lexical.SearchAyahs(lctx, v.query, p.RefinePerQuery)
			return nil
		})
	}
	if v.vec != nil {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, semanticDeadline)
			defer cancel()
			hits, err := s.deps.Vector.SearchAyahs(vctx, model, v.vec, p.RefinePerQuery,
				arabic.SimilarityThreshold(s.options().RefineSimilarity, v.query.Normalized))
			if err != nil {
				if errors.Is(err, vectordb.ErrCollectionNotFound) {
					return err
				}
				st.branchError("semantic_ayahs", err)
				return nil
			}
			sem = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fusion.Merge(fusion.ModeHybrid, semAyahsToRanked(sem), lexAyahsToRanked(lex),
		ayahScores, mergeAyahPayload, p.RefinePerQuery), nil
}

func (s *Service) refineHadiths(ctx context.Context, v variant, p Params, model embeddings.Model, st *stats) ([]fusion.HadithRankedResult, error) {
	var (
		lex []lexical.HadithHit
		sem []vectordb.HadithHit
	)
	g, gctx := errgroup.WithContext(ctx)
	if v.query.Script != arabic.ScriptLatin {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, lexicalDeadline)
			defer cancel()
			lex = s.deps.Lexical.SearchHadiths(lctx, v.query, p.RefinePerQuery)
			return nil
		})
	}
	if v.vec != nil {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, semanticDeadline)
			defer cancel()
			hits, err := s.deps.Vector.SearchHadiths(vctx, model, v.vec, p.RefinePerQuery,
				arabic.SimilarityThreshold(s.options().RefineSimilarity, v.query.Normalized))
			if err != nil {
				if errors.Is(err, vectordb.ErrCollectionNotFound) {
					return err
				}
				st.branchError("semantic_hadiths", err)
				return nil
			}
			sem = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fusion.Merge(fusion.ModeHybrid, semHadithsToRanked(sem), lexHadithsToRanked(lex),
		hadithScores, mergeHadithPayload, p.RefinePerQuery), nil
}

// rerankUnified reorders the three deduped lists in one LLM call. A
// skipped, timed-out or unparseable rerank keeps the weighted-dedupe
// order.
func (s *Service) rerankUnified(ctx context.Context, p Params, books *[]fusion.RankedResult, ayahs *[]fusion.AyahRankedResult, hadiths *[]fusion.HadithRankedResult, st *stats) {
	if s.deps.Reranker == nil {
		return
	}
	in := rerank.UnifiedInput{
		Books:       bookTexts(*books),
		Ayahs:       ayahTexts(*ayahs),
		Hadiths:     hadithTexts(*hadiths),
		BookLimit:   p.Limit,
		AyahLimit:   p.AyahLimit,
		HadithLimit: p.HadithLimit,
	}
	var (
		order    *rerank.UnifiedOrder
		timedOut bool
	)
	st.time("rerank", func() { order, timedOut = s.deps.Reranker.RerankUnified(ctx, p.Query, in) })
	if timedOut {
		st.markRerankTimeout()
	}
	if order == nil {
		return
	}
	*books = applyOrder(*books, order.Books, p.Limit, rankedScores)
	*ayahs = applyOrder(*ayahs, order.Ayahs, p.AyahLimit, ayahScores)
	*hadiths = applyOrder(*hadiths, order.Hadiths, p.HadithLimit, hadithScores)
}

// applyOrder rebuilds a list in the reranked order with the synthetic
// scores, then appends the items the model left unranked in their prior
// order, scores continuing monotonically downward.
func applyOrder[T fusion.Keyed](items []T, ranked []rerank.RankedIndex, limit int, scores func(*T) *fusion.Scores) []T {
	if len(ranked) == 0 {
		return head(items, limit)
	}
	out := make([]T, 0, len(items))
	seen := make(map[int]bool, len(ranked))
	low := 1.0
	for _, ri := range ranked {
		if ri.Index < 0 || ri.Index >= len(items) || seen[ri.Index] {
			continue
		}
		seen[ri.Index] = true
		item := items[ri.Index]
		scores(&item).FusedScore = ri.Score
		if ri.Score < low {
			low = ri.Score
		}
		out = append(out, item)
	}
	for i := 0; i < len(items); i++ {
		if seen[i] {
			continue
		}
		low -= 0.01
		item := items[i]
		scores(&item).FusedScore = low
		out = append(out, item)
	}
	return head(out, limit)
}
