package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/search"
	"github.com/maktabah/bahith/internal/ttlcache"
	"github.com/maktabah/bahith/internal/vectordb"
)

type stubSearcher struct {
	resp   *search.Response
	err    error
	params search.Params
}

func (s *stubSearcher) Search(_ context.Context, p search.Params) (*search.Response, error) {
	s.params = p
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func searchMux(s Searcher) *http.ServeMux {
	mux := http.NewServeMux()
	NewSearchHandler(s, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func postSearch(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	stub := &stubSearcher{resp: &search.Response{
		Query:   "أحكام الصيام",
		Mode:    "hybrid",
		Count:   1,
		Results: []search.BookResult{{BookID: 7, PageNumber: 12, FusedScore: 0.9, MatchType: "hybrid"}},
	}}
	rec := postSearch(searchMux(stub), `{"query":"أحكام الصيام","limit":5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "أحكام الصيام", stub.params.Query)
	assert.Equal(t, 5, stub.params.Limit)

	var body search.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, int64(7), body.Results[0].BookID)
}

func TestSearchRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	searchMux(&stubSearcher{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/search", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSearchInvalidJSON(t *testing.T) {
	rec := postSearch(searchMux(&stubSearcher{}), `{"query":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid JSON", body.Error)
}

func TestSearchValidationErrorIs400(t *testing.T) {
	stub := &stubSearcher{err: &search.ValidationError{Field: "mode", Msg: "must be hybrid, semantic or keyword"}}
	rec := postSearch(searchMux(stub), `{"query":"x","mode":"fuzzy"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid request", body.Error)
	assert.Contains(t, body.Message, "mode")
}

func TestSearchMissingCollectionIs503(t *testing.T) {
	stub := &stubSearcher{err: vectordb.ErrCollectionNotFound}
	rec := postSearch(searchMux(stub), `{"query":"الصيام"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Collection not found", body.Message)
}

func TestSearchUnknownErrorIs500(t *testing.T) {
	stub := &stubSearcher{err: errors.New("boom")}
	rec := postSearch(searchMux(stub), `{"query":"الصيام"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Error)
	assert.Empty(t, body.Message)
	assert.NotContains(t, rec.Body.String(), "boom")
}

type stubCache struct {
	stats  ttlcache.Stats
	purged int
}

func (s *stubCache) CacheStats() ttlcache.Stats { return s.stats }
func (s *stubCache) PurgeMemory()               { s.purged++ }

func purgeMux(cache EmbeddingCache, secret string) *http.ServeMux {
	mux := http.NewServeMux()
	NewInternalHandler(cache, secret, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func postPurge(mux *http.ServeMux, bearer string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/cache/purge", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCachePurge(t *testing.T) {
	cache := &stubCache{stats: ttlcache.Stats{Size: 42}}
	rec := postPurge(purgeMux(cache, "s3cret"), "s3cret")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cache.purged)

	var body struct {
		Status string `json:"status"`
		Purged int    `json:"purged"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 42, body.Purged)
}

func TestCachePurgeWrongSecret(t *testing.T) {
	cache := &stubCache{}
	rec := postPurge(purgeMux(cache, "s3cret"), "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, cache.purged)
}

func TestCachePurgeNoSecretConfiguredRefuses(t *testing.T) {
	cache := &stubCache{}
	rec := postPurge(purgeMux(cache, ""), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, cache.purged)
}

func TestCachePurgeRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	purgeMux(&stubCache{}, "s3cret").ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/internal/cache/purge", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
