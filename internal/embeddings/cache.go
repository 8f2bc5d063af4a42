package embeddings

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/maktabah/bahith/internal/circuitbreaker"
)

// PersistentCache is the durable second tier behind the in-process one.
// Entries never expire; a stale or missing entry only costs a recompute.
type PersistentCache interface {
	GetMany(ctx context.Context, keys []string) map[string][]float32
	SetMany(ctx context.Context, pairs map[string][]float32)
}

// MakeKey derives the cache key for a (model, text) pair. The model is
// part of the hash so the two backends never share vectors.
func MakeKey(model Model, text string) string {
	h := md5.Sum([]byte(model.Provider + ":" + model.Name + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}

// RedisCache stores vectors as packed little-endian float32 blobs.
type RedisCache struct {
	cli *circuitbreaker.RedisWrapper
}

func NewRedisCache(cli *circuitbreaker.RedisWrapper) *RedisCache {
	return &RedisCache{cli: cli}
}

func (r *RedisCache) GetMany(ctx context.Context, keys []string) map[string][]float32 {
	if len(keys) == 0 {
		return nil
	}
	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil
	}
	out := make(map[string][]float32, len(keys))
	for i, v := range vals {
		if i >= len(keys) || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if vec := decodeVector([]byte(s)); vec != nil {
			out[keys[i]] = vec
		}
	}
	return out
}

func (r *RedisCache) SetMany(ctx context.Context, pairs map[string][]float32) {
	for k, v := range pairs {
		_ = r.cli.Set(ctx, k, encodeVector(v), 0).Err()
	}
}

// Ping verifies connectivity with a short deadline.
func (r *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.cli.Ping(ctx).Err()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
