package graphctx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveParsesContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "الصلاة", req["query"])
		_ = json.NewEncoder(w).Encode(Context{
			Entities: map[string][]Entity{
				"concepts": {{Type: "concept", Name: "عبادة", Score: 0.9}},
			},
			AyahBoosts: []AyahBoost{{Surah: 2, Ayah: 43, Boost: 0.05}},
		})
	}))
	defer srv.Close()

	r := New(Config{URL: srv.URL}, zap.NewNop())
	gc := r.Resolve(context.Background(), "الصلاة")
	require.NotNil(t, gc)
	assert.Len(t, gc.Entities["concepts"], 1)
	require.Len(t, gc.AyahBoosts, 1)
	assert.Equal(t, 43, gc.AyahBoosts[0].Ayah)
}

func TestResolveDisabledWithoutURL(t *testing.T) {
	r := New(Config{}, zap.NewNop())
	assert.False(t, r.Enabled())
	assert.Nil(t, r.Resolve(context.Background(), "anything"))
}

func TestResolveErrorIsSilentlyNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(Config{URL: srv.URL}, zap.NewNop())
	assert.Nil(t, r.Resolve(context.Background(), "q"))
}

func TestResolveTimeoutIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(Context{})
	}))
	defer srv.Close()

	r := New(Config{URL: srv.URL, Timeout: 20 * time.Millisecond}, zap.NewNop())
	start := time.Now()
	assert.Nil(t, r.Resolve(context.Background(), "q"))
	assert.Less(t, time.Since(start), 150*time.Millisecond, "resolver must not block past its deadline")
}

func TestResolveEmptyPayloadIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Context{})
	}))
	defer srv.Close()

	r := New(Config{URL: srv.URL}, zap.NewNop())
	assert.Nil(t, r.Resolve(context.Background(), "q"))
}
