package search

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maktabah/bahith/internal/arabic"
	"github.com/maktabah/bahith/internal/embeddings"
	"github.com/maktabah/bahith/internal/fusion"
	"github.com/maktabah/bahith/internal/graphctx"
	"github.com/maktabah/bahith/internal/lexical"
	"github.com/maktabah/bahith/internal/rerank"
	"github.com/maktabah/bahith/internal/vectordb"
)

// branches collects the raw per-engine hit lists of the standard
// fan-out. Each field is written by exactly one goroutine; reads happen
// after the group settles.
type branches struct {
	lexBooks   []lexical.BookHit
	lexAyahs   []lexical.AyahHit
	lexHadiths []lexical.HadithHit

	semPages   []vectordb.PageHit
	semAyahs   []vectordb.AyahHit
	semHadiths []vectordb.HadithHit

	authors  []AuthorResult
	graph    *graphctx.Context
	eligible map[int64]struct{}
}

func (s *Service) standard(ctx context.Context, q arabic.Query, p Params, st *stats) (*pipelineOut, error) {
	mode := fusion.Mode(p.Mode)
	skipLexical := q.Script == arabic.ScriptLatin || mode == fusion.ModeSemantic
	skipSemantic := mode == fusion.ModeKeyword || arabic.SkipSemantic(q)
	st.skipLexical = skipLexical
	st.skipSemantic = skipSemantic

	// A book-scope filter restricts the search to that book's pages and
	// disables the Quran and hadith domains.
	includeBooks := p.includeBooks()
	includeQuran := p.includeQuran() && p.BookID == 0
	includeHadith := p.includeHadith() && p.BookID == 0

	threshold := arabic.SimilarityThreshold(p.Similarity, q.Normalized)
	st.threshold = threshold

	var scope []int64
	if p.BookID != 0 {
		scope = []int64{p.BookID}
	}

	br := &branches{}
	g, gctx := errgroup.WithContext(ctx)

	if !skipLexical && includeBooks {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, lexicalDeadline)
			defer cancel()
			st.time("lexical_books", func() {
				br.lexBooks = s.deps.Lexical.SearchBooks(lctx, q, p.Limit, scope)
			})
			if br.lexBooks == nil {
				st.branchError("lexical_books", errEngineUnavailable)
			}
			return nil
		})
	}
	if !skipLexical && includeQuran {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, lexicalDeadline)
			defer cancel()
			st.time("lexical_ayahs", func() {
				br.lexAyahs = s.deps.Lexical.SearchAyahs(lctx, q, p.AyahLimit)
			})
			if br.lexAyahs == nil {
				st.branchError("lexical_ayahs", errEngineUnavailable)
			}
			return nil
		})
	}
	if !skipLexical && includeHadith {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, lexicalDeadline)
			defer cancel()
			st.time("lexical_hadiths", func() {
				br.lexHadiths = s.deps.Lexical.SearchHadiths(lctx, q, p.HadithLimit)
			})
			if br.lexHadiths == nil {
				st.branchError("lexical_hadiths", errEngineUnavailable)
			}
			return nil
		})
	}

	if !skipSemantic && (includeBooks || includeQuran || includeHadith) {
		g.Go(func() error {
			return s.semanticFanout(gctx, q, p, threshold, scope, includeBooks, includeQuran, includeHadith, br, st)
		})
	}

	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, authorDeadline)
		defer cancel()
		st.time("authors", func() { br.authors = s.lookupAuthors(actx, q, st) })
		return nil
	})

	if s.deps.Graph != nil {
		g.Go(func() error {
			st.time("graph", func() { br.graph = s.deps.Graph.Resolve(gctx, p.Query) })
			return nil
		})
	}

	if s.deps.Books != nil && includeBooks && p.BookID == 0 {
		g.Go(func() error {
			st.time("indexed_set", func() { br.eligible = s.deps.Books.Current(gctx) })
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if br.eligible != nil {
		br.lexBooks = filterBookHits(br.lexBooks, br.eligible)
		br.semPages = filterPageHits(br.semPages, br.eligible)
	}

	out := &pipelineOut{
		books: fusion.Merge(mode, pagesToRanked(br.semPages), bookHitsToRanked(br.lexBooks),
			rankedScores, mergeBookPayload, p.Limit),
		ayahs: fusion.Merge(mode, semAyahsToRanked(br.semAyahs), lexAyahsToRanked(br.lexAyahs),
			ayahScores, mergeAyahPayload, p.AyahLimit),
		hadiths: fusion.Merge(mode, semHadithsToRanked(br.semHadiths), lexHadithsToRanked(br.lexHadiths),
			hadithScores, mergeHadithPayload, p.HadithLimit),
		authors: br.authors,
		graph:   br.graph,
	}

	s.rerankBooks(ctx, p, out, st)
	return out, nil
}

// semanticFanout embeds the query once and searches the three vector
// collections with the shared vector. Only a missing collection aborts
// the request; any other failure empties its branch.
func (s *Service) semanticFanout(ctx context.Context, q arabic.Query, p Params, threshold float64, scope []int64, books, quran, hadith bool, br *branches, st *stats) error {
	var (
		vec []float32
		err error
	)
	st.time("embedding", func() { vec, err = s.deps.Embedder.Embed(ctx, q.Normalized, p.EmbeddingModel) })
	if err != nil {
		st.branchError("embedding", err)
		s.log.Warn("query embedding failed, semantic branch skipped", zap.Error(err))
		return nil
	}
	model, err := embeddings.ParseModel(p.EmbeddingModel)
	if err != nil {
		return nil
	}

	sg, sctx := errgroup.WithContext(ctx)
	if books {
		sg.Go(func() error {
			vctx, cancel := context.WithTimeout(sctx, semanticDeadline)
			defer cancel()
			var serr error
			st.time("semantic_books", func() {
				br.semPages, serr = s.deps.Vector.SearchPages(vctx, model, vec, p.Limit, threshold, scope)
			})
			return s.semanticBranchErr("semantic_books", serr, st)
		})
	}
	if quran {
		sg.Go(func() error {
			vctx, cancel := context.WithTimeout(sctx, semanticDeadline)
			defer cancel()
			var serr error
			st.time("semantic_ayahs", func() {
				br.semAyahs, serr = s.deps.Vector.SearchAyahs(vctx, model, vec, p.AyahLimit, threshold)
			})
			return s.semanticBranchErr("semantic_ayahs", serr, st)
		})
	}
	if hadith {
		sg.Go(func() error {
			vctx, cancel := context.WithTimeout(sctx, semanticDeadline)
			defer cancel()
			var serr error
			st.time("semantic_hadiths", func() {
				br.semHadiths, serr = s.deps.Vector.SearchHadiths(vctx, model, vec, p.HadithLimit, threshold)
			})
			return s.semanticBranchErr("semantic_hadiths", serr, st)
		})
	}
	return sg.Wait()
}

// semanticBranchErr promotes a missing collection to the caller and
// swallows everything else.
func (s *Service) semanticBranchErr(branch string, err error, st *stats) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, vectordb.ErrCollectionNotFound) {
		return err
	}
	st.branchError(branch, err)
	s.log.Warn("semantic search failed, branch empty",
		zap.String("branch", branch), zap.Error(err))
	return nil
}

// rerankBooks reorders the fused book list with the selected LLM tier.
// The reranked order is authoritative; per-item scores are kept for
// display.
func (s *Service) rerankBooks(ctx context.Context, p Params, out *pipelineOut, st *stats) {
	if rerank.Choice(p.Reranker) == rerank.ChoiceNone || s.deps.Reranker == nil || len(out.books) < 2 {
		return
	}
	texts := make([]string, len(out.books))
	for i, r := range out.books {
		texts[i] = r.Snippet
	}
	var (
		idx      []int
		timedOut bool
	)
	st.time("rerank", func() {
		idx, timedOut = s.deps.Reranker.Rerank(ctx, p.Query, texts, len(texts), rerank.Choice(p.Reranker))
	})
	if timedOut {
		st.markRerankTimeout()
	}
	if len(idx) == 0 {
		return
	}
	reordered := make([]fusion.RankedResult, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(out.books) {
			reordered = append(reordered, out.books[i])
		}
	}
	out.books = reordered
}
