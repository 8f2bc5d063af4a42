// Package fusion merges the lexical and semantic result lists into one
// ranking. The pipeline is pure: inputs are never mutated, outputs are
// new values.
package fusion

import "fmt"

// MatchType records which engines found a result.
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchBoth     MatchType = "both"
)

// Mode selects the merge rule.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// Scores carries the fusion fields shared by every ranked domain type.
// Rank fields are 1-based; zero means that engine did not find the item.
type Scores struct {
	SemanticScore float64
	BM25Raw       float64
	KeywordScore  float64
	SemanticRank  int
	KeywordRank   int
	FusedScore    float64
	RRFScore      float64
	MatchType     MatchType
}

// RankedResult is one book-page result.
type RankedResult struct {
	Scores
	BookID      int64
	PageNumber  int
	Snippet     string
	Highlighted string
	Translation string
}

func (r RankedResult) Key() string {
	return fmt.Sprintf("%d:%d", r.BookID, r.PageNumber)
}

// AyahRankedResult is one Quran verse result.
type AyahRankedResult struct {
	Scores
	Surah       int
	Ayah        int
	AyahEnd     int
	Text        string
	Translation string
}

func (r AyahRankedResult) Key() string {
	return fmt.Sprintf("%d:%d", r.Surah, r.Ayah)
}

// HadithRankedResult is one hadith result.
type HadithRankedResult struct {
	Scores
	CollectionSlug string
	HadithNumber   int64
	BookID         int64
	Text           string
	Chapter        string
	Translation    string
}

func (r HadithRankedResult) Key() string {
	return fmt.Sprintf("%s:%d", r.CollectionSlug, r.HadithNumber)
}
