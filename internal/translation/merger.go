// Package translation joins stored translations onto ranked results
// after fusion. Joins are best-effort: a failed or missing translation
// leaves the result untouched and is only logged.
package translation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maktabah/bahith/internal/coalescer"
	"github.com/maktabah/bahith/internal/db"
	"github.com/maktabah/bahith/internal/fusion"
	"github.com/maktabah/bahith/internal/htmltext"
	ometrics "github.com/maktabah/bahith/internal/metrics"
)

// pageFetchParallelism bounds concurrent per-page translation fetches
// within one request.
const pageFetchParallelism = 8

// Store is the repository surface the merger reads from.
type Store interface {
	AyahTranslations(ctx context.Context, refs []db.AyahRef, edition string) (map[db.AyahRef]string, error)
	HadithTranslations(ctx context.Context, refs []db.HadithRef, language string) (map[db.HadithRef]string, error)
	PageTranslationFor(ctx context.Context, bookID int64, page int, language string) (*db.PageTranslation, error)
	PageHTML(ctx context.Context, bookID int64, page int) (string, error)
}

// pageData is one coalesced page-translation build: the stored
// per-paragraph translations plus the paragraphs extracted from the
// page HTML for snippet matching.
type pageData struct {
	translations []db.ParagraphTranslation
	paragraphs   []htmltext.Paragraph
}

// Merger joins translations for all three domains. Page builds are
// coalesced process-wide so concurrent requests for the same page and
// language share one repository round trip.
type Merger struct {
	store    Store
	inflight *coalescer.Group[*pageData]
	log      *zap.Logger
}

func NewMerger(store Store, logger *zap.Logger) *Merger {
	return &Merger{
		store:    store,
		inflight: coalescer.New[*pageData](),
		log:      logger,
	}
}

// MergeAyahs fills Translation on each ayah result from one batched
// lookup. An empty edition skips the join.
func (m *Merger) MergeAyahs(ctx context.Context, results []fusion.AyahRankedResult, edition string) {
	if edition == "" || len(results) == 0 {
		return
	}
	refs := make([]db.AyahRef, 0, len(results))
	for _, r := range results {
		refs = append(refs, db.AyahRef{Surah: r.Surah, Ayah: r.Ayah})
	}
	got, err := m.store.AyahTranslations(ctx, refs, edition)
	if err != nil {
		ometrics.TranslationMerges.WithLabelValues("ayah", "error").Inc()
		m.log.Warn("ayah translation join failed", zap.String("edition", edition), zap.Error(err))
		return
	}
	for i := range results {
		if t, ok := got[db.AyahRef{Surah: results[i].Surah, Ayah: results[i].Ayah}]; ok {
			results[i].Translation = t
		}
	}
	ometrics.TranslationMerges.WithLabelValues("ayah", "ok").Inc()
}

// MergeHadiths fills Translation on each hadith result from one batched
// lookup. An empty language skips the join.
func (m *Merger) MergeHadiths(ctx context.Context, results []fusion.HadithRankedResult, language string) {
	if language == "" || len(results) == 0 {
		return
	}
	refs := make([]db.HadithRef, 0, len(results))
	for _, r := range results {
		refs = append(refs, db.HadithRef{BookID: r.BookID, HadithNumber: r.HadithNumber})
	}
	got, err := m.store.HadithTranslations(ctx, refs, language)
	if err != nil {
		ometrics.TranslationMerges.WithLabelValues("hadith", "error").Inc()
		m.log.Warn("hadith translation join failed", zap.String("language", language), zap.Error(err))
		return
	}
	for i := range results {
		ref := db.HadithRef{BookID: results[i].BookID, HadithNumber: results[i].HadithNumber}
		if t, ok := got[ref]; ok {
			results[i].Translation = t
		}
	}
	ometrics.TranslationMerges.WithLabelValues("hadith", "ok").Inc()
}

// MergePages fills Translation on book-page results. Each page needs
// its own fetch; the stored translation is per paragraph, so the ranked
// snippet is matched against the page's extracted paragraphs to pick
// the right record. An empty language skips the join.
func (m *Merger) MergePages(ctx context.Context, results []fusion.RankedResult, language string) {
	if language == "" || len(results) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageFetchParallelism)
	for i := range results {
		g.Go(func() error {
			m.mergePage(gctx, &results[i], language)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Merger) mergePage(ctx context.Context, r *fusion.RankedResult, language string) {
	docID := fmt.Sprintf("%d:%d", r.BookID, r.PageNumber)
	data, err := m.inflight.Do(ctx, coalescer.Key(docID, language), func() (*pageData, error) {
		return m.fetchPage(ctx, r.BookID, r.PageNumber, language)
	})
	if err != nil {
		ometrics.TranslationMerges.WithLabelValues("page", "error").Inc()
		m.log.Warn("page translation fetch failed",
			zap.Int64("book_id", r.BookID), zap.Int("page", r.PageNumber), zap.Error(err))
		return
	}
	if data == nil || len(data.translations) == 0 {
		ometrics.TranslationMerges.WithLabelValues("page", "missing").Inc()
		return
	}

	idx := htmltext.Nearest(data.paragraphs, r.Snippet)
	if idx < 0 {
		ometrics.TranslationMerges.WithLabelValues("page", "no_match").Inc()
		return
	}
	for _, pt := range data.translations {
		if pt.Index == idx {
			r.Translation = pt.Translation
			ometrics.TranslationMerges.WithLabelValues("page", "ok").Inc()
			return
		}
	}
	ometrics.TranslationMerges.WithLabelValues("page", "no_match").Inc()
}

func (m *Merger) fetchPage(ctx context.Context, bookID int64, page int, language string) (*pageData, error) {
	stored, err := m.store.PageTranslationFor(ctx, bookID, page, language)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	html, err := m.store.PageHTML(ctx, bookID, page)
	if err != nil {
		return nil, err
	}
	return &pageData{
		translations: stored.Paragraphs,
		paragraphs:   htmltext.Paragraphs(html),
	}, nil
}
