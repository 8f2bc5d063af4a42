// Package vectordb is a minimal Qdrant HTTP client for the semantic
// side of the pipeline. Collection names carry a per-model suffix so
// vectors of different dimensions never mix.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/circuitbreaker"
	"github.com/maktabah/bahith/internal/embeddings"
	ometrics "github.com/maktabah/bahith/internal/metrics"
	"github.com/maktabah/bahith/internal/tracing"
)

// ErrCollectionNotFound is the one vector-store error the orchestrator
// surfaces to callers; everything else degrades to an empty branch.
var ErrCollectionNotFound = errors.New("collection not found")

// Config controls the Qdrant client.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration

	// Collection base names; the model suffix is appended per search.
	Pages  string
	Quran  string
	Hadith string
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6333
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Pages == "" {
		c.Pages = "book_pages"
	}
	if c.Quran == "" {
		c.Quran = "quran_ayahs"
	}
	if c.Hadith == "" {
		c.Hadith = "hadiths"
	}
}

// Client is a minimal Qdrant HTTP client.
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
		base:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectordb", logger),
		log:   logger,
	}
}

// PageHit is one semantic book-page match.
type PageHit struct {
	BookID     int64
	PageNumber int
	Text       string
	Score      float64
}

// AyahHit is one semantic Quran verse match.
type AyahHit struct {
	Surah   int
	Ayah    int
	AyahEnd int
	Text    string
	Score   float64
}

// HadithHit is one semantic hadith match.
type HadithHit struct {
	CollectionSlug string
	HadithNumber   int64
	BookID         int64
	Text           string
	Chapter        string
	Score          float64
}

type qdrantQueryRequest struct {
	Query          []float32              `json:"query"`
	Limit          int                    `json:"limit"`
	ScoreThreshold *float64               `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

type qdrantPoint struct {
	ID      interface{}     `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload"`
}

type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// SearchPages searches the book-page collection for the given model.
// bookIDs, when non-nil, restricts matches to those books.
func (c *Client) SearchPages(ctx context.Context, model embeddings.Model, vec []float32, limit int, threshold float64, bookIDs []int64) ([]PageHit, error) {
	var filter map[string]interface{}
	if len(bookIDs) > 0 {
		filter = map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "book_id", "match": map[string]interface{}{"any": bookIDs}},
			},
		}
	}
	points, err := c.search(ctx, c.collection(c.cfg.Pages, model), vec, limit, threshold, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]PageHit, 0, len(points))
	for _, p := range points {
		var payload struct {
			BookID     int64  `json:"book_id"`
			PageNumber int    `json:"page_number"`
			Text       string `json:"text"`
		}
		if err := json.Unmarshal(p.Payload, &payload); err != nil {
			continue
		}
		hits = append(hits, PageHit{
			BookID:     payload.BookID,
			PageNumber: payload.PageNumber,
			Text:       payload.Text,
			Score:      p.Score,
		})
	}
	return hits, nil
}

// SearchAyahs searches the Quran collection for the given model.
func (c *Client) SearchAyahs(ctx context.Context, model embeddings.Model, vec []float32, limit int, threshold float64) ([]AyahHit, error) {
	points, err := c.search(ctx, c.collection(c.cfg.Quran, model), vec, limit, threshold, nil)
	if err != nil {
		return nil, err
	}
	hits := make([]AyahHit, 0, len(points))
	for _, p := range points {
		var payload struct {
			SurahNumber int    `json:"surah_number"`
			AyahNumber  int    `json:"ayah_number"`
			AyahEnd     int    `json:"ayah_end"`
			Text        string `json:"text"`
		}
		if err := json.Unmarshal(p.Payload, &payload); err != nil {
			continue
		}
		hits = append(hits, AyahHit{
			Surah:   payload.SurahNumber,
			Ayah:    payload.AyahNumber,
			AyahEnd: payload.AyahEnd,
			Text:    payload.Text,
			Score:   p.Score,
		})
	}
	return hits, nil
}

// SearchHadiths searches the hadith collection for the given model.
func (c *Client) SearchHadiths(ctx context.Context, model embeddings.Model, vec []float32, limit int, threshold float64) ([]HadithHit, error) {
	points, err := c.search(ctx, c.collection(c.cfg.Hadith, model), vec, limit, threshold, nil)
	if err != nil {
		return nil, err
	}
	hits := make([]HadithHit, 0, len(points))
	for _, p := range points {
		var payload struct {
			CollectionSlug string `json:"collection_slug"`
			HadithNumber   int64  `json:"hadith_number"`
			BookID         int64  `json:"book_id"`
			Text           string `json:"text"`
			Chapter        string `json:"chapter"`
		}
		if err := json.Unmarshal(p.Payload, &payload); err != nil {
			continue
		}
		hits = append(hits, HadithHit{
			CollectionSlug: payload.CollectionSlug,
			HadithNumber:   payload.HadithNumber,
			BookID:         payload.BookID,
			Text:           payload.Text,
			Chapter:        payload.Chapter,
			Score:          p.Score,
		})
	}
	return hits, nil
}

// CountByBook returns the point count per book in the default page
// collection. The indexed-set refresher calls this in small batches.
func (c *Client) CountByBook(ctx context.Context, model embeddings.Model, bookIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(bookIDs))
	collection := c.collection(c.cfg.Pages, model)
	for _, bookID := range bookIDs {
		n, err := c.count(ctx, collection, bookID)
		if err != nil {
			return nil, err
		}
		counts[bookID] = n
	}
	return counts, nil
}

func (c *Client) collection(base string, model embeddings.Model) string {
	return base + "_" + model.CollectionSuffix()
}

func (c *Client) search(ctx context.Context, collection string, vec []float32, limit int, threshold float64, filter map[string]interface{}) ([]qdrantPoint, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)

	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	var thr *float64
	if threshold > 0 {
		thr = &threshold
	}
	body, _ := json.Marshal(qdrantQueryRequest{
		Query:          vec,
		Limit:          limit,
		ScoreThreshold: thr,
		WithPayload:    true,
		Filter:         filter,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		ometrics.RecordVectorSearch(collection, "not_found", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if resp.StatusCode != http.StatusOK {
		ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("qdrant status %d", resp.StatusCode)
	}

	var qr qdrantQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		ometrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordVectorSearch(collection, "ok", time.Since(start).Seconds())
	return qr.Result.Points, nil
}

func (c *Client) count(ctx context.Context, collection string, bookID int64) (int64, error) {
	url := fmt.Sprintf("%s/collections/%s/points/count", c.base, collection)
	body, _ := json.Marshal(map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "book_id", "match": map[string]interface{}{"value": bookID}},
			},
		},
		"exact": true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("qdrant status %d", resp.StatusCode)
	}

	var cr struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return 0, err
	}
	return cr.Result.Count, nil
}
