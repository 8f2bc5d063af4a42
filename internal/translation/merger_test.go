package translation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/db"
	"github.com/maktabah/bahith/internal/fusion"
)

type fakeStore struct {
	mu         sync.Mutex
	ayahCalls  int
	ayahRefs   []db.AyahRef
	ayahs      map[db.AyahRef]string
	ayahErr    error
	hadiths    map[db.HadithRef]string
	hadithErr  error
	pages      map[string]*db.PageTranslation
	pageHTML   map[string]string
	pageCalls  int
	pageErr    error
	htmlByPage func(bookID int64, page int) string
}

func key(bookID int64, page int) string {
	return fmt.Sprintf("%d:%d", bookID, page)
}

func (f *fakeStore) AyahTranslations(_ context.Context, refs []db.AyahRef, _ string) (map[db.AyahRef]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ayahCalls++
	f.ayahRefs = refs
	return f.ayahs, f.ayahErr
}

func (f *fakeStore) HadithTranslations(_ context.Context, _ []db.HadithRef, _ string) (map[db.HadithRef]string, error) {
	return f.hadiths, f.hadithErr
}

func (f *fakeStore) PageTranslationFor(_ context.Context, bookID int64, page int, _ string) (*db.PageTranslation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	return f.pages[key(bookID, page)], nil
}

func (f *fakeStore) PageHTML(_ context.Context, bookID int64, page int) (string, error) {
	if f.htmlByPage != nil {
		return f.htmlByPage(bookID, page), nil
	}
	return f.pageHTML[key(bookID, page)], nil
}

func TestMergeAyahsBatchesOneCall(t *testing.T) {
	store := &fakeStore{ayahs: map[db.AyahRef]string{
		{Surah: 1, Ayah: 1}: "In the name of Allah...",
	}}
	m := NewMerger(store, zap.NewNop())

	results := []fusion.AyahRankedResult{
		{Surah: 1, Ayah: 1},
		{Surah: 2, Ayah: 255},
	}
	m.MergeAyahs(context.Background(), results, "saheeh-international")

	assert.Equal(t, 1, store.ayahCalls, "one batched call for all refs")
	assert.Len(t, store.ayahRefs, 2)
	assert.Equal(t, "In the name of Allah...", results[0].Translation)
	assert.Empty(t, results[1].Translation, "missing translation is simply absent")
}

func TestMergeAyahsEmptyEditionSkips(t *testing.T) {
	store := &fakeStore{}
	m := NewMerger(store, zap.NewNop())
	m.MergeAyahs(context.Background(), []fusion.AyahRankedResult{{Surah: 1, Ayah: 1}}, "")
	assert.Zero(t, store.ayahCalls)
}

func TestMergeAyahsFailureKeepsResults(t *testing.T) {
	store := &fakeStore{ayahErr: errors.New("db down")}
	m := NewMerger(store, zap.NewNop())
	results := []fusion.AyahRankedResult{{Surah: 1, Ayah: 1, Text: "text"}}
	m.MergeAyahs(context.Background(), results, "en")
	assert.Equal(t, "text", results[0].Text, "failure never removes the result")
	assert.Empty(t, results[0].Translation)
}

func TestMergeHadiths(t *testing.T) {
	store := &fakeStore{hadiths: map[db.HadithRef]string{
		{BookID: 1681, HadithNumber: 1}: "Actions are but by intentions.",
	}}
	m := NewMerger(store, zap.NewNop())
	results := []fusion.HadithRankedResult{
		{CollectionSlug: "bukhari", HadithNumber: 1, BookID: 1681},
	}
	m.MergeHadiths(context.Background(), results, "en")
	assert.Equal(t, "Actions are but by intentions.", results[0].Translation)
}

func TestMergePagesMatchesParagraphByIndex(t *testing.T) {
	pk := key(5, 42)
	store := &fakeStore{
		pages: map[string]*db.PageTranslation{pk: {
			BookID: 5, PageNumber: 42, Language: "en",
			Paragraphs: []db.ParagraphTranslation{
				{Index: 0, Translation: "First paragraph."},
				{Index: 1, Translation: "Second paragraph."},
			},
		}},
		pageHTML: map[string]string{
			pk: "<p>باب الوضوء وفضله</p><p>حدثنا آدم عن شعبة في الصلاة</p>",
		},
	}
	m := NewMerger(store, zap.NewNop())

	results := []fusion.RankedResult{
		{BookID: 5, PageNumber: 42, Snippet: "حدثنا آدم عن شعبة في الصلاة"},
	}
	m.MergePages(context.Background(), results, "en")
	assert.Equal(t, "Second paragraph.", results[0].Translation)
}

func TestMergePagesMissingTranslationAbsent(t *testing.T) {
	store := &fakeStore{pages: map[string]*db.PageTranslation{}}
	m := NewMerger(store, zap.NewNop())
	results := []fusion.RankedResult{{BookID: 9, PageNumber: 1, Snippet: "نص"}}
	m.MergePages(context.Background(), results, "en")
	assert.Empty(t, results[0].Translation)
}

func TestMergePagesFailureKeepsResult(t *testing.T) {
	store := &fakeStore{pageErr: errors.New("db down")}
	m := NewMerger(store, zap.NewNop())
	results := []fusion.RankedResult{{BookID: 9, PageNumber: 1, Snippet: "نص", Highlighted: "h"}}
	m.MergePages(context.Background(), results, "en")
	assert.Equal(t, "h", results[0].Highlighted)
	assert.Empty(t, results[0].Translation)
}

func TestMergePagesCoalescesSamePage(t *testing.T) {
	pk := key(5, 42)
	store := &fakeStore{
		pages: map[string]*db.PageTranslation{pk: {
			BookID: 5, PageNumber: 42, Language: "en",
			Paragraphs: []db.ParagraphTranslation{{Index: 0, Translation: "Only."}},
		}},
		pageHTML: map[string]string{pk: "<p>السلام عليكم ورحمة الله</p>"},
	}
	m := NewMerger(store, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := []fusion.RankedResult{{BookID: 5, PageNumber: 42, Snippet: "السلام عليكم ورحمة الله"}}
			m.MergePages(context.Background(), results, "en")
			assert.Equal(t, "Only.", results[0].Translation)
		}()
	}
	wg.Wait()
	// Overlapping builds may each fetch once, but every goroutine that
	// joined an in-flight build saved a round trip.
	assert.LessOrEqual(t, store.pageCalls, 8)
	assert.GreaterOrEqual(t, store.pageCalls, 1)
}
