// Package lexical is a minimal Elasticsearch HTTP adapter for the
// BM25 side of the pipeline. Domain methods return a nil slice when the
// backend is unreachable and an empty non-nil slice when the query
// matched nothing; callers treat nil as "engine unavailable" and fall
// back, never as an error that aborts the request.
package lexical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/arabic"
	"github.com/maktabah/bahith/internal/circuitbreaker"
	ometrics "github.com/maktabah/bahith/internal/metrics"
	"github.com/maktabah/bahith/internal/tracing"
)

// Config names the endpoint and the per-domain indexes.
type Config struct {
	URL     string
	Timeout time.Duration

	BooksIndex   string
	AyahsIndex   string
	HadithsIndex string
	AuthorsIndex string
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:9200"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.BooksIndex == "" {
		c.BooksIndex = "book_pages"
	}
	if c.AyahsIndex == "" {
		c.AyahsIndex = "quran_ayahs"
	}
	if c.HadithsIndex == "" {
		c.HadithsIndex = "hadiths"
	}
	if c.AuthorsIndex == "" {
		c.AuthorsIndex = "authors"
	}
}

// Client is a minimal Elasticsearch HTTP client.
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:   cfg,
		base:  strings.TrimRight(cfg.URL, "/"),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "elasticsearch", "lexical", logger),
		log:   logger,
	}
}

// BookHit is one page-level BM25 match.
type BookHit struct {
	BookID      int64
	PageNumber  int
	Snippet     string
	Highlighted string
	Score       float64
}

// AyahHit is one Quran verse match.
type AyahHit struct {
	Surah   int
	Ayah    int
	AyahEnd int
	Text    string
	Score   float64
}

// HadithHit is one hadith match.
type HadithHit struct {
	CollectionSlug string
	HadithNumber   int64
	BookID         int64
	Text           string
	Chapter        string
	Score          float64
}

// AuthorHit is one author-catalog match.
type AuthorHit struct {
	AuthorID   int64
	NameArabic string
	NameLatin  string
	Score      float64
}

type esHit struct {
	Score     float64             `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// SearchBooks runs the page-level book query. A nil bookIDs filter means
// unscoped; an empty-after-trim query returns an empty result.
func (c *Client) SearchBooks(ctx context.Context, q arabic.Query, limit int, bookIDs []int64) []BookHit {
	if q.Normalized == "" {
		return []BookHit{}
	}
	body := map[string]interface{}{
		"size":  limit,
		"query": bookQuery(q, bookIDs),
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"text_content": map[string]interface{}{
					"fragment_size":       200,
					"number_of_fragments": 1,
				},
			},
		},
	}
	resp, err := c.search(ctx, c.cfg.BooksIndex, "books", body)
	if err != nil {
		return nil
	}
	hits := make([]BookHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var src struct {
			BookID      int64  `json:"book_id"`
			PageNumber  int    `json:"page_number"`
			TextContent string `json:"text_content"`
		}
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		hit := BookHit{
			BookID:     src.BookID,
			PageNumber: src.PageNumber,
			Snippet:    snippet(src.TextContent, 200),
			Score:      h.Score,
		}
		if hl := h.Highlight["text_content"]; len(hl) > 0 {
			hit.Highlighted = hl[0]
		}
		hits = append(hits, hit)
	}
	return hits
}

// SearchAyahs matches Quran verse text.
func (c *Client) SearchAyahs(ctx context.Context, q arabic.Query, limit int) []AyahHit {
	if q.Normalized == "" {
		return []AyahHit{}
	}
	body := map[string]interface{}{
		"size":  limit,
		"query": textQuery(q, "text_arabic"),
	}
	resp, err := c.search(ctx, c.cfg.AyahsIndex, "ayahs", body)
	if err != nil {
		return nil
	}
	hits := make([]AyahHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var src struct {
			SurahNumber int    `json:"surah_number"`
			AyahNumber  int    `json:"ayah_number"`
			AyahEnd     int    `json:"ayah_end"`
			TextArabic  string `json:"text_arabic"`
		}
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		hits = append(hits, AyahHit{
			Surah:   src.SurahNumber,
			Ayah:    src.AyahNumber,
			AyahEnd: src.AyahEnd,
			Text:    src.TextArabic,
			Score:   h.Score,
		})
	}
	return hits
}

// SearchHadiths matches hadith text.
func (c *Client) SearchHadiths(ctx context.Context, q arabic.Query, limit int) []HadithHit {
	if q.Normalized == "" {
		return []HadithHit{}
	}
	body := map[string]interface{}{
		"size":  limit,
		"query": textQuery(q, "text_arabic"),
	}
	resp, err := c.search(ctx, c.cfg.HadithsIndex, "hadiths", body)
	if err != nil {
		return nil
	}
	hits := make([]HadithHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var src struct {
			CollectionSlug string `json:"collection_slug"`
			HadithNumber   int64  `json:"hadith_number"`
			BookID         int64  `json:"book_id"`
			TextArabic     string `json:"text_arabic"`
			Chapter        string `json:"chapter"`
		}
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		hits = append(hits, HadithHit{
			CollectionSlug: src.CollectionSlug,
			HadithNumber:   src.HadithNumber,
			BookID:         src.BookID,
			Text:           src.TextArabic,
			Chapter:        src.Chapter,
			Score:          h.Score,
		})
	}
	return hits
}

// SearchAuthors matches the author catalog.
func (c *Client) SearchAuthors(ctx context.Context, q arabic.Query, limit int) []AuthorHit {
	if q.Normalized == "" {
		return []AuthorHit{}
	}
	body := map[string]interface{}{
		"size":  limit,
		"query": authorQuery(q),
	}
	resp, err := c.search(ctx, c.cfg.AuthorsIndex, "authors", body)
	if err != nil {
		return nil
	}
	hits := make([]AuthorHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var src struct {
			AuthorID   int64  `json:"author_id"`
			NameArabic string `json:"name_arabic"`
			NameLatin  string `json:"name_latin"`
		}
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		hits = append(hits, AuthorHit{
			AuthorID:   src.AuthorID,
			NameArabic: src.NameArabic,
			NameLatin:  src.NameLatin,
			Score:      h.Score,
		})
	}
	return hits
}

// PageCounts aggregates the per-book page count in the books index.
func (c *Client) PageCounts(ctx context.Context) (map[int64]int64, error) {
	body := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"books": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "book_id",
					"size":  20000,
				},
			},
		},
	}
	buf, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/%s/_search", c.base, c.cfg.BooksIndex)

	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elasticsearch status %d", resp.StatusCode)
	}

	var ar struct {
		Aggregations struct {
			Books struct {
				Buckets []struct {
					Key      int64 `json:"key"`
					DocCount int64 `json:"doc_count"`
				} `json:"buckets"`
			} `json:"books"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, err
	}
	counts := make(map[int64]int64, len(ar.Aggregations.Books.Buckets))
	for _, b := range ar.Aggregations.Books.Buckets {
		counts[b.Key] = b.DocCount
	}
	return counts, nil
}

func (c *Client) search(ctx context.Context, index, domain string, body map[string]interface{}) (*esSearchResponse, error) {
	start := time.Now()
	buf, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/%s/_search", c.base, index)

	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		ometrics.RecordEngine("lexical", domain, "unavailable", time.Since(start).Seconds())
		c.log.Warn("lexical engine unavailable", zap.String("domain", domain), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ometrics.RecordEngine("lexical", domain, "unavailable", time.Since(start).Seconds())
		c.log.Warn("lexical engine error status",
			zap.String("domain", domain), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("elasticsearch status %d", resp.StatusCode)
	}

	var sr esSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		ometrics.RecordEngine("lexical", domain, "unavailable", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordEngine("lexical", domain, "ok", time.Since(start).Seconds())
	return &sr, nil
}

func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
