package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/maktabah/bahith/internal/embeddings"
	"github.com/maktabah/bahith/internal/fusion"
	"github.com/maktabah/bahith/internal/rerank"
)

const (
	maxQueryRunes = 500

	defaultAyahLimit   = 10
	defaultHadithLimit = 10

	minRefinePerQuery = 30
	maxRefinePerQuery = 60
)

// ValidationError marks request errors the HTTP layer maps to 400.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// Params is the decoded search request. Zero values mean "use the
// configured default"; normalize fills them in and clamps the rest.
type Params struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`

	IncludeBooks  *bool `json:"includeBooks,omitempty"`
	IncludeQuran  *bool `json:"includeQuran,omitempty"`
	IncludeHadith *bool `json:"includeHadith,omitempty"`

	Limit       int `json:"limit,omitempty"`
	AyahLimit   int `json:"ayahLimit,omitempty"`
	HadithLimit int `json:"hadithLimit,omitempty"`

	// BookID restricts book results to a single book and disables the
	// Quran and hadith domains.
	BookID int64 `json:"bookId,omitempty"`

	Similarity float64 `json:"similarity,omitempty"`
	Reranker   string  `json:"reranker,omitempty"`

	Refine         bool `json:"refine,omitempty"`
	RefinePerQuery int  `json:"refinePerQuery,omitempty"`

	AyahTranslation   string `json:"ayahTranslation,omitempty"`
	HadithTranslation string `json:"hadithTranslation,omitempty"`
	PageTranslation   string `json:"pageTranslation,omitempty"`

	EmbeddingModel string `json:"embeddingModel,omitempty"`
}

func (p *Params) includeBooks() bool  { return p.IncludeBooks == nil || *p.IncludeBooks }
func (p *Params) includeQuran() bool  { return p.IncludeQuran == nil || *p.IncludeQuran }
func (p *Params) includeHadith() bool { return p.IncludeHadith == nil || *p.IncludeHadith }

// normalize validates the request and fills defaults from opts. It is
// idempotent; the HTTP layer calls it to surface 400s before the
// pipeline runs.
func (p *Params) normalize(opts *Options) error {
	p.Query = strings.TrimSpace(p.Query)
	if p.Query == "" {
		return invalid("query", "must not be empty")
	}
	if utf8.RuneCountInString(p.Query) > maxQueryRunes {
		return invalid("query", fmt.Sprintf("longer than %d characters", maxQueryRunes))
	}

	switch fusion.Mode(p.Mode) {
	case "":
		p.Mode = string(fusion.ModeHybrid)
	case fusion.ModeHybrid, fusion.ModeSemantic, fusion.ModeKeyword:
	default:
		return invalid("mode", "must be hybrid, semantic or keyword")
	}

	p.Limit = clampLimit(p.Limit, opts.DefaultLimit, opts.MaxLimit)
	p.AyahLimit = clampLimit(p.AyahLimit, defaultAyahLimit, opts.MaxLimit)
	p.HadithLimit = clampLimit(p.HadithLimit, defaultHadithLimit, opts.MaxLimit)

	if p.BookID < 0 {
		return invalid("bookId", "must be positive")
	}

	if p.Similarity < 0 || p.Similarity > 1 {
		return invalid("similarity", "must be between 0 and 1")
	}
	if p.Similarity == 0 {
		p.Similarity = opts.BaseSimilarity
	}

	switch rerank.Choice(p.Reranker) {
	case "":
		p.Reranker = string(rerank.ChoiceNone)
	case rerank.ChoiceNone, rerank.ChoiceSmall, rerank.ChoiceLarge, rerank.ChoiceFast:
	default:
		return invalid("reranker", "must be none, small, large or fast")
	}

	// Refinement only applies to an unscoped hybrid search.
	if p.Refine && (fusion.Mode(p.Mode) != fusion.ModeHybrid || p.BookID != 0) {
		p.Refine = false
	}
	if p.RefinePerQuery == 0 {
		p.RefinePerQuery = opts.RefinePerQuery
	}
	if p.RefinePerQuery < minRefinePerQuery {
		p.RefinePerQuery = minRefinePerQuery
	}
	if p.RefinePerQuery > maxRefinePerQuery {
		p.RefinePerQuery = maxRefinePerQuery
	}

	if p.EmbeddingModel == "" {
		p.EmbeddingModel = opts.DefaultEmbeddingModel
	}
	if _, err := embeddings.ParseModel(p.EmbeddingModel); err != nil {
		return invalid("embeddingModel", err.Error())
	}
	return nil
}

func clampLimit(v, def, max int) int {
	if v == 0 {
		v = def
	}
	if v < 1 {
		v = 1
	}
	if v > max {
		v = max
	}
	return v
}
