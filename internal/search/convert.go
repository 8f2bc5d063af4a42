package search

import (
	"github.com/maktabah/bahith/internal/db"
	"github.com/maktabah/bahith/internal/expansion"
	"github.com/maktabah/bahith/internal/fusion"
	"github.com/maktabah/bahith/internal/lexical"
	"github.com/maktabah/bahith/internal/vectordb"
)

func rankedScores(r *fusion.RankedResult) *fusion.Scores       { return &r.Scores }
func ayahScores(r *fusion.AyahRankedResult) *fusion.Scores     { return &r.Scores }
func hadithScores(r *fusion.HadithRankedResult) *fusion.Scores { return &r.Scores }

func pagesToRanked(hits []vectordb.PageHit) []fusion.RankedResult {
	out := make([]fusion.RankedResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.RankedResult{
			Scores:     fusion.Scores{SemanticScore: h.Score},
			BookID:     h.BookID,
			PageNumber: h.PageNumber,
			Snippet:    h.Text,
		})
	}
	return out
}

func bookHitsToRanked(hits []lexical.BookHit) []fusion.RankedResult {
	out := make([]fusion.RankedResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.RankedResult{
			Scores:      fusion.Scores{BM25Raw: h.Score},
			BookID:      h.BookID,
			PageNumber:  h.PageNumber,
			Snippet:     h.Snippet,
			Highlighted: h.Highlighted,
		})
	}
	return out
}

// mergeBookPayload combines the payload of a page both engines found:
// the semantic chunk usually carries more context, the lexical hit the
// highlight.
func mergeBookPayload(sem, kw fusion.RankedResult) fusion.RankedResult {
	out := sem
	out.Snippet = fusion.BestSnippet(sem.Snippet, kw.Snippet)
	if out.Highlighted == "" {
		out.Highlighted = kw.Highlighted
	}
	return out
}

func semAyahsToRanked(hits []vectordb.AyahHit) []fusion.AyahRankedResult {
	out := make([]fusion.AyahRankedResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.AyahRankedResult{
			Scores:  fusion.Scores{SemanticScore: h.Score},
			Surah:   h.Surah,
			Ayah:    h.Ayah,
			AyahEnd: h.AyahEnd,
			Text:    h.Text,
		})
	}
	return out
}

func lexAyahsToRanked(hits []lexical.AyahHit) []fusion.AyahRankedResult {
	out := make([]fusion.AyahRankedResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.AyahRankedResult{
			Scores:  fusion.Scores{BM25Raw: h.Score},
			Surah:   h.Surah,
			Ayah:    h.Ayah,
			AyahEnd: h.AyahEnd,
			Text:    h.Text,
		})
	}
	return out
}

func mergeAyahPayload(sem, kw fusion.AyahRankedResult) fusion.AyahRankedResult {
	out := sem
	if out.Text == "" {
		out.Text = kw.Text
	}
	if out.AyahEnd == 0 {
		out.AyahEnd = kw.AyahEnd
	}
	return out
}

func semHadithsToRanked(hits []vectordb.HadithHit) []fusion.HadithRankedResult {
	out := make([]fusion.HadithRankedResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.HadithRankedResult{
			Scores:         fusion.Scores{SemanticScore: h.Score},
			CollectionSlug: h.CollectionSlug,
			HadithNumber:   h.HadithNumber,
			BookID:         h.BookID,
			Text:           h.Text,
			Chapter:        h.Chapter,
		})
	}
	return out
}

func lexHadithsToRanked(hits []lexical.HadithHit) []fusion.HadithRankedResult {
	out := make([]fusion.HadithRankedResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.HadithRankedResult{
			Scores:         fusion.Scores{BM25Raw: h.Score},
			CollectionSlug: h.CollectionSlug,
			HadithNumber:   h.HadithNumber,
			BookID:         h.BookID,
			Text:           h.Text,
			Chapter:        h.Chapter,
		})
	}
	return out
}

func mergeHadithPayload(sem, kw fusion.HadithRankedResult) fusion.HadithRankedResult {
	out := sem
	if out.Text == "" {
		out.Text = kw.Text
	}
	if out.Chapter == "" {
		out.Chapter = kw.Chapter
	}
	if out.BookID == 0 {
		out.BookID = kw.BookID
	}
	return out
}

func filterBookHits(hits []lexical.BookHit, eligible map[int64]struct{}) []lexical.BookHit {
	out := make([]lexical.BookHit, 0, len(hits))
	for _, h := range hits {
		if _, ok := eligible[h.BookID]; ok {
			out = append(out, h)
		}
	}
	return out
}

func filterPageHits(hits []vectordb.PageHit, eligible map[int64]struct{}) []vectordb.PageHit {
	out := make([]vectordb.PageHit, 0, len(hits))
	for _, h := range hits {
		if _, ok := eligible[h.BookID]; ok {
			out = append(out, h)
		}
	}
	return out
}

func filterRanked(items []fusion.RankedResult, eligible map[int64]struct{}) []fusion.RankedResult {
	out := make([]fusion.RankedResult, 0, len(items))
	for _, r := range items {
		if _, ok := eligible[r.BookID]; ok {
			out = append(out, r)
		}
	}
	return out
}

func head[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func bookTexts(in []fusion.RankedResult) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = r.Snippet
	}
	return out
}

func ayahTexts(in []fusion.AyahRankedResult) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = r.Text
	}
	return out
}

func hadithTexts(in []fusion.HadithRankedResult) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = r.Text
	}
	return out
}

func bookResults(in []fusion.RankedResult) []BookResult {
	out := make([]BookResult, 0, len(in))
	for _, r := range in {
		br := BookResult{
			BookID:             r.BookID,
			PageNumber:         r.PageNumber,
			TextSnippet:        r.Snippet,
			HighlightedSnippet: r.Highlighted,
			FusedScore:         r.FusedScore,
			MatchType:          string(r.MatchType),
			ContentTranslation: r.Translation,
		}
		// Engine scores are surfaced only when that engine found the item.
		if r.SemanticRank > 0 {
			v := r.SemanticScore
			br.SemanticScore = &v
		}
		if r.KeywordRank > 0 {
			v := r.KeywordScore
			br.KeywordScore = &v
		}
		out = append(out, br)
	}
	return out
}

func ayahResults(in []fusion.AyahRankedResult) []AyahResult {
	out := make([]AyahResult, 0, len(in))
	for _, r := range in {
		out = append(out, AyahResult{
			SurahNumber: r.Surah,
			AyahNumber:  r.Ayah,
			AyahEnd:     r.AyahEnd,
			Text:        r.Text,
			Translation: r.Translation,
			Score:       r.FusedScore,
		})
	}
	return out
}

func hadithResults(in []fusion.HadithRankedResult) []HadithResult {
	out := make([]HadithResult, 0, len(in))
	for _, r := range in {
		out = append(out, HadithResult{
			CollectionSlug: r.CollectionSlug,
			HadithNumber:   r.HadithNumber,
			BookID:         r.BookID,
			Text:           r.Text,
			Chapter:        r.Chapter,
			Translation:    r.Translation,
			Score:          r.FusedScore,
		})
	}
	return out
}

func authorsFromHits(hits []lexical.AuthorHit) []AuthorResult {
	out := make([]AuthorResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, AuthorResult{
			AuthorID:   h.AuthorID,
			NameArabic: h.NameArabic,
			NameLatin:  h.NameLatin,
			Score:      h.Score,
		})
	}
	return out
}

func authorsFromRows(rows []db.Author) []AuthorResult {
	out := make([]AuthorResult, 0, len(rows))
	for _, a := range rows {
		out = append(out, AuthorResult{
			AuthorID:   a.ID,
			NameArabic: a.NameArabic,
			NameLatin:  a.NameLatin,
		})
	}
	return out
}

func expandedQueries(in []expansion.Expansion) []ExpandedQuery {
	out := make([]ExpandedQuery, 0, len(in))
	for _, e := range in {
		out = append(out, ExpandedQuery{Text: e.Text, Weight: e.Weight, Reason: e.Reason})
	}
	return out
}
