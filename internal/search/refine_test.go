package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktabah/bahith/internal/expansion"
	"github.com/maktabah/bahith/internal/lexical"
	"github.com/maktabah/bahith/internal/rerank"
	"github.com/maktabah/bahith/internal/vectordb"
)

func TestRefinePipeline(t *testing.T) {
	exp := &fakeExpander{exps: []expansion.Expansion{
		{Text: "شروط الصيام", Weight: 0.9, Reason: "paraphrase"},
		{Text: "فقه الصوم", Weight: 0.7, Reason: "synonym"},
		{Text: "مسائل الصيام", Weight: 0.5, Reason: "related"},
	}}
	lex := &fakeLexical{
		books:   []lexical.BookHit{{BookID: 7, PageNumber: 1, Snippet: "نص الصيام", Score: 8}},
		ayahs:   []lexical.AyahHit{{Surah: 2, Ayah: 183, Text: "كتب عليكم الصيام", Score: 5}},
		hadiths: []lexical.HadithHit{{CollectionSlug: "bukhari", HadithNumber: 1903, BookID: 5001, Text: "نص الحديث", Score: 4}},
	}
	vec := &fakeVector{
		pages:   []vectordb.PageHit{{BookID: 7, PageNumber: 1, Text: "نص الصيام الدلالي", Score: 0.9}},
		ayahs:   []vectordb.AyahHit{{Surah: 2, Ayah: 183, Text: "كتب عليكم الصيام", Score: 0.8}},
		hadiths: []vectordb.HadithHit{{CollectionSlug: "bukhari", HadithNumber: 1903, BookID: 5001, Text: "نص الحديث", Score: 0.7}},
	}
	emb := &fakeEmbedder{vec: []float32{0.4, 0.6}}
	rr := &fakeReranker{order: &rerank.UnifiedOrder{
		Books:   []rerank.RankedIndex{{Index: 0, Score: 0.99}},
		Ayahs:   []rerank.RankedIndex{{Index: 0, Score: 0.98}},
		Hadiths: []rerank.RankedIndex{{Index: 0, Score: 0.97}},
	}}
	sink := &fakeSink{}
	svc := newTestService(Deps{
		Lexical: lex, Vector: vec, Embedder: emb,
		Expander: exp, Reranker: rr, Events: sink,
	})

	resp, err := svc.Search(context.Background(), Params{Query: "أحكام الصيام", Refine: true})
	require.NoError(t, err)

	assert.True(t, resp.Refined)
	require.Len(t, resp.ExpandedQueries, 3)
	assert.InDelta(t, 0.9, resp.ExpandedQueries[0].Weight, 1e-9)

	// One batched embedding call covers all four variants.
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, 1, emb.batchCalls)
	assert.Equal(t, 0, emb.embedCalls)
	assert.Equal(t, []string{"احكام الصيام", "شروط الصيام", "فقه الصوم", "مسائل الصيام"}, emb.lastTexts)

	// Four variants fan out to every domain on both engines.
	assert.Equal(t, 4, lex.bookCalls)
	assert.Equal(t, 4, lex.ayahCalls)
	assert.Equal(t, 4, lex.hadithCalls)
	assert.Equal(t, 4, vec.pageCalls)
	assert.Equal(t, 4, vec.ayahCalls)
	assert.Equal(t, 4, vec.hadithCalls)

	// The unified rerank assigns its synthetic scores.
	assert.Equal(t, 1, rr.unifiedCalls)
	assert.Equal(t, 20, rr.lastInput.BookLimit)
	require.Len(t, resp.Results, 1)
	assert.InDelta(t, 0.99, resp.Results[0].FusedScore, 1e-9)
	require.Len(t, resp.Ayahs, 1)
	assert.InDelta(t, 0.98, resp.Ayahs[0].Score, 1e-9)
	require.Len(t, resp.Hadiths, 1)
	assert.InDelta(t, 0.97, resp.Hadiths[0].Score, 1e-9)

	require.Len(t, sink.events, 1)
	assert.True(t, sink.events[0].Refined)
}

func TestRefineKeepsDedupeOrderOnRerankTimeout(t *testing.T) {
	exp := &fakeExpander{exps: []expansion.Expansion{
		{Text: "فقه الصوم", Weight: 0.5, Reason: "synonym"},
	}}
	lex := &fakeLexical{
		books: []lexical.BookHit{
			{BookID: 1, PageNumber: 1, Snippet: "الأول", Score: 9},
			{BookID: 2, PageNumber: 1, Snippet: "الثاني", Score: 8},
		},
	}
	rr := &fakeReranker{unifiedTimedOut: true}
	svc := newTestService(Deps{Lexical: lex, Expander: exp, Reranker: rr})

	resp, err := svc.Search(context.Background(), Params{Query: "أحكام الصيام", Refine: true})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(1), resp.Results[0].BookID)
	assert.Equal(t, int64(2), resp.Results[1].BookID)
	// Both variants found both pages: weighted RRF 1.5/61 and 1.5/62.
	assert.InDelta(t, 1.5/61.0, resp.Results[0].FusedScore, 1e-9)
	assert.InDelta(t, 1.5/62.0, resp.Results[1].FusedScore, 1e-9)
	require.NotNil(t, resp.DebugStats)
	assert.True(t, resp.DebugStats.RerankTimedOut)
}

func TestRefineAppendsUnrankedAfterRanked(t *testing.T) {
	lex := &fakeLexical{
		books: []lexical.BookHit{
			{BookID: 1, PageNumber: 1, Snippet: "الأول", Score: 9},
			{BookID: 2, PageNumber: 1, Snippet: "الثاني", Score: 8},
			{BookID: 3, PageNumber: 1, Snippet: "الثالث", Score: 7},
		},
	}
	rr := &fakeReranker{order: &rerank.UnifiedOrder{
		Books: []rerank.RankedIndex{{Index: 2, Score: 0.99}},
	}}
	svc := newTestService(Deps{Lexical: lex, Reranker: rr})

	resp, err := svc.Search(context.Background(), Params{Query: "أحكام الصيام", Refine: true})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, int64(3), resp.Results[0].BookID)
	assert.Equal(t, int64(1), resp.Results[1].BookID)
	assert.Equal(t, int64(2), resp.Results[2].BookID)
	assert.InDelta(t, 0.99, resp.Results[0].FusedScore, 1e-9)
	assert.InDelta(t, 0.98, resp.Results[1].FusedScore, 1e-9)
	assert.InDelta(t, 0.97, resp.Results[2].FusedScore, 1e-9)
}

func TestRefineBatchEmbeddingFailureStaysLexical(t *testing.T) {
	lex := &fakeLexical{
		books: []lexical.BookHit{{BookID: 7, PageNumber: 1, Snippet: "نص", Score: 8}},
	}
	vec := &fakeVector{}
	emb := &fakeEmbedder{err: errors.New("backend down")}
	svc := newTestService(Deps{Lexical: lex, Vector: vec, Embedder: emb})

	resp, err := svc.Search(context.Background(), Params{Query: "أحكام الصيام", Refine: true})
	require.NoError(t, err)

	assert.Equal(t, 0, vec.pageCalls)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Refined)
	require.NotNil(t, resp.DebugStats)
	assert.Contains(t, resp.DebugStats.BranchErrors, "embedding")
}

func TestRefineWithoutExpanderRunsOriginalOnly(t *testing.T) {
	lex := &fakeLexical{
		books: []lexical.BookHit{{BookID: 7, PageNumber: 1, Snippet: "نص", Score: 8}},
	}
	svc := newTestService(Deps{Lexical: lex})

	resp, err := svc.Search(context.Background(), Params{Query: "أحكام الصيام", Refine: true})
	require.NoError(t, err)

	assert.True(t, resp.Refined)
	assert.Empty(t, resp.ExpandedQueries)
	assert.Equal(t, 1, lex.bookCalls)
}

func TestRefineUsesLowerSimilarityCutoff(t *testing.T) {
	vec := &fakeVector{
		pages: []vectordb.PageHit{{BookID: 7, PageNumber: 1, Text: "نص", Score: 0.6}},
	}
	svc := newTestService(Deps{Vector: vec})

	// Long queries fall through the lookup table to the refine base.
	_, err := svc.Search(context.Background(), Params{Query: "أحكام الصيام في شهر رمضان", Refine: true})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, vec.lastThreshold, 1e-9)
}

func TestRefineMissingCollectionAborts(t *testing.T) {
	vec := &fakeVector{pagesErr: vectordb.ErrCollectionNotFound}
	svc := newTestService(Deps{Vector: vec})

	_, err := svc.Search(context.Background(), Params{Query: "أحكام الصيام", Refine: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)
}
