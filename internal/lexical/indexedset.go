package lexical

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ometrics "github.com/maktabah/bahith/internal/metrics"
)

// vectorCountBatch is how many book IDs go into one vector-store count
// request during a refresh.
const vectorCountBatch = 20

// PageCounter reports per-book page counts in the lexical index.
type PageCounter interface {
	PageCounts(ctx context.Context) (map[int64]int64, error)
}

// VectorCounter reports per-book point counts in the vector store.
type VectorCounter interface {
	CountByBook(ctx context.Context, bookIDs []int64) (map[int64]int64, error)
}

// MetadataCounter reports the authoritative per-book page counts from
// the metadata store.
type MetadataCounter interface {
	PageCountsByBook(ctx context.Context) (map[int64]int64, error)
}

// IndexedSet caches the set of books fully present in both the lexical
// index and the vector store. The set gates semantic filtering; when a
// refresh fails, Current returns nil and callers skip the filter rather
// than hide books.
type IndexedSet struct {
	lex    PageCounter
	vec    VectorCounter
	meta   MetadataCounter
	always []int64
	ttl    time.Duration
	log    *zap.Logger

	mu      sync.Mutex
	set     map[int64]struct{}
	expires time.Time

	now func() time.Time // test hook
}

func NewIndexedSet(lex PageCounter, vec VectorCounter, meta MetadataCounter, always []int64, ttl time.Duration, logger *zap.Logger) *IndexedSet {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &IndexedSet{
		lex:    lex,
		vec:    vec,
		meta:   meta,
		always: always,
		ttl:    ttl,
		log:    logger,
		now:    time.Now,
	}
}

// Current returns the cached set, refreshing it when stale. A nil
// return means "do not filter"; a failed refresh is not cached, so the
// next caller retries.
func (s *IndexedSet) Current(ctx context.Context) map[int64]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set != nil && s.now().Before(s.expires) {
		return s.set
	}
	set, err := s.refresh(ctx)
	if err != nil {
		ometrics.IndexedSetRefreshes.WithLabelValues("error").Inc()
		s.log.Warn("indexed book set refresh failed", zap.Error(err))
		return nil
	}
	ometrics.IndexedSetRefreshes.WithLabelValues("ok").Inc()
	s.set = set
	s.expires = s.now().Add(s.ttl)
	return set
}

func (s *IndexedSet) refresh(ctx context.Context) (map[int64]struct{}, error) {
	metaCounts, err := s.meta.PageCountsByBook(ctx)
	if err != nil {
		return nil, err
	}
	lexCounts, err := s.lex.PageCounts(ctx)
	if err != nil {
		return nil, err
	}

	// Books whose lexical page count has caught up with the metadata
	// store are candidates for the vector check.
	candidates := make([]int64, 0, len(metaCounts))
	for bookID, want := range metaCounts {
		if lexCounts[bookID] >= want {
			candidates = append(candidates, bookID)
		}
	}

	vecCounts := make(map[int64]int64, len(candidates))
	var vmu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(candidates); start += vectorCountBatch {
		end := start + vectorCountBatch
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		g.Go(func() error {
			counts, err := s.vec.CountByBook(gctx, batch)
			if err != nil {
				return err
			}
			vmu.Lock()
			for k, v := range counts {
				vecCounts[k] = v
			}
			vmu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := make(map[int64]struct{}, len(candidates)+len(s.always))
	for _, bookID := range candidates {
		if vecCounts[bookID] >= metaCounts[bookID] {
			set[bookID] = struct{}{}
		}
	}
	// Hadith source books are searchable regardless of index state.
	for _, bookID := range s.always {
		set[bookID] = struct{}{}
	}
	return set, nil
}
