package embeddings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/circuitbreaker"
)

type fakeBackend struct {
	calls   int
	batches [][]string
}

func (f *fakeBackend) Embed(_ context.Context, texts []string, model Model) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i)}
	}
	return out, nil
}

func newTestService(t *testing.T, persistent PersistentCache) (*Service, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{}
	svc := NewWithBackends(
		Config{DefaultModel: "jina:jina-embeddings-v3", MaxBatch: 4},
		map[string]Backend{"jina": fb},
		persistent,
		zap.NewNop(),
	)
	return svc, fb
}

func redisTier(t *testing.T) PersistentCache {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return NewRedisCache(circuitbreaker.NewRedisWrapper(cli, zap.NewNop()))
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	svc, fb := newTestService(t, nil)
	texts := []string{"a", "bb", "ccc"}
	vecs, err := svc.EmbedBatch(context.Background(), texts, "")
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])
	assert.Equal(t, 1, fb.calls)
}

func TestMemoryTierAvoidsBackend(t *testing.T) {
	svc, fb := newTestService(t, nil)
	_, err := svc.EmbedBatch(context.Background(), []string{"x", "y"}, "")
	require.NoError(t, err)
	_, err = svc.EmbedBatch(context.Background(), []string{"x", "y"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, fb.calls, "second call must be served from memory")
}

func TestPersistentHitPromotesToMemory(t *testing.T) {
	tier := redisTier(t)
	svc1, fb1 := newTestService(t, tier)
	_, err := svc1.EmbedBatch(context.Background(), []string{"shared"}, "")
	require.NoError(t, err)
	require.Equal(t, 1, fb1.calls)

	// Fresh service, empty memory tier, same persistent tier.
	svc2, fb2 := newTestService(t, tier)
	v1, err := svc2.EmbedBatch(context.Background(), []string{"shared"}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, fb2.calls, "persistent tier must serve the miss")

	// After promotion the next lookup stays in memory even with a
	// broken persistent tier.
	v2, err := svc2.EmbedBatch(context.Background(), []string{"shared"}, "")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 0, fb2.calls)
}

func TestPartialCacheOnlySendsResidue(t *testing.T) {
	svc, fb := newTestService(t, nil)
	_, err := svc.EmbedBatch(context.Background(), []string{"cached"}, "")
	require.NoError(t, err)

	_, err = svc.EmbedBatch(context.Background(), []string{"cached", "fresh1", "fresh2"}, "")
	require.NoError(t, err)
	require.Equal(t, 2, fb.calls)
	assert.Equal(t, []string{"fresh1", "fresh2"}, fb.batches[1])
}

func TestBatchChunking(t *testing.T) {
	svc, fb := newTestService(t, nil)
	texts := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
	_, err := svc.EmbedBatch(context.Background(), texts, "")
	require.NoError(t, err)
	// MaxBatch is 4: expect chunks of 4 and 2.
	require.Equal(t, 2, fb.calls)
	assert.Len(t, fb.batches[0], 4)
	assert.Len(t, fb.batches[1], 2)
}

func TestUnknownModelRejected(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.EmbedBatch(context.Background(), []string{"x"}, "nope:model")
	require.Error(t, err)
}

func TestRedisRoundTrip(t *testing.T) {
	tier := redisTier(t)
	model, err := ParseModel("jina:jina-embeddings-v3")
	require.NoError(t, err)
	key := MakeKey(model, "text")
	tier.SetMany(context.Background(), map[string][]float32{key: {1.5, -2.25, 0}})
	got := tier.GetMany(context.Background(), []string{key, "emb:absent"})
	require.Len(t, got, 1)
	assert.Equal(t, []float32{1.5, -2.25, 0}, got[key])
}

func TestModelKeysAreDistinct(t *testing.T) {
	or, err := ParseModel("openrouter:text-embedding-3-large")
	require.NoError(t, err)
	ji, err := ParseModel("jina:jina-embeddings-v3")
	require.NoError(t, err)
	assert.NotEqual(t, MakeKey(or, "same text"), MakeKey(ji, "same text"))
	assert.Equal(t, 3072, or.Dim)
	assert.Equal(t, 1024, ji.Dim)
}

func TestBackoffScheduleCaps(t *testing.T) {
	// The schedule is min(3000 * 2^n, 60000).
	delays := []int{}
	for attempt := 0; attempt < maxRetryAttempts-1; attempt++ {
		d := backoffBaseMs << attempt
		if d > backoffCapMs {
			d = backoffCapMs
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []int{3000, 6000, 12000, 24000, 48000, 60000, 60000}, delays)
}
