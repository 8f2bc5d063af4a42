package vectordb

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/embeddings"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return New(Config{Host: host, Port: port}, zap.NewNop())
}

func jinaModel(t *testing.T) embeddings.Model {
	t.Helper()
	m, err := embeddings.ParseModel("jina:jina-embeddings-v3")
	require.NoError(t, err)
	return m
}

func TestSearchPagesHydratesPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":1,"score":0.91,"payload":{"book_id":12,"page_number":7,"text":"نص"}},
			{"id":2,"score":0.74,"payload":{"book_id":12,"page_number":9,"text":"نص آخر"}}
		]},"status":"ok"}`))
	})

	hits, err := c.SearchPages(context.Background(), jinaModel(t), []float32{0.1, 0.2}, 20, 0.4, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(12), hits[0].BookID)
	assert.Equal(t, 7, hits[0].PageNumber)
	assert.Equal(t, 0.91, hits[0].Score)

	assert.Equal(t, "/collections/book_pages_jina-embeddings-v3/points/query", gotPath)
	assert.Equal(t, 0.4, gotBody["score_threshold"])
	assert.Equal(t, float64(20), gotBody["limit"])
	assert.Equal(t, true, gotBody["with_payload"])
}

func TestSearchPagesBookFilter(t *testing.T) {
	var gotBody map[string]interface{}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"result":{"points":[]},"status":"ok"}`))
	})

	_, err := c.SearchPages(context.Background(), jinaModel(t), []float32{0.1}, 10, 0.3, []int64{5, 6})
	require.NoError(t, err)

	filter, ok := gotBody["filter"].(map[string]interface{})
	require.True(t, ok)
	must := filter["must"].([]interface{})
	match := must[0].(map[string]interface{})["match"].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(5), float64(6)}, match["any"])
}

func TestZeroThresholdOmitted(t *testing.T) {
	var gotBody map[string]interface{}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"result":{"points":[]},"status":"ok"}`))
	})

	_, err := c.SearchAyahs(context.Background(), jinaModel(t), []float32{0.1}, 10, 0)
	require.NoError(t, err)
	_, present := gotBody["score_threshold"]
	assert.False(t, present)
}

func TestCollectionNotFoundSentinel(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := c.SearchHadiths(context.Background(), jinaModel(t), []float32{0.1}, 10, 0.3)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestSearchAyahsPayload(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"a","score":0.8,"payload":{"surah_number":2,"ayah_number":255,"ayah_end":255,"text":"آية الكرسي"}}
		]},"status":"ok"}`))
	})
	hits, err := c.SearchAyahs(context.Background(), jinaModel(t), []float32{0.1}, 5, 0.3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Surah)
	assert.Equal(t, 255, hits[0].Ayah)
	assert.Equal(t, "آية الكرسي", hits[0].Text)
}

func TestCountByBook(t *testing.T) {
	counts := map[string]int64{"3": 40, "4": 0}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Filter struct {
				Must []struct {
					Match struct {
						Value int64 `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		n := counts[strconv.FormatInt(body.Filter.Must[0].Match.Value, 10)]
		_, _ = w.Write([]byte(`{"result":{"count":` + strconv.FormatInt(n, 10) + `}}`))
	})

	got, err := c.CountByBook(context.Background(), jinaModel(t), []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{3: 40, 4: 0}, got)
}
