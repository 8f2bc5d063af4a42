// Package coalescer deduplicates concurrent builds of the same expensive
// value (translations keyed by document and language): while one build is
// in flight every other caller joins it instead of starting its own.
package coalescer

import (
	"context"
	"sync"
)

// Key builds the canonical "documentID:language" key.
func Key(documentID, language string) string {
	return documentID + ":" + language
}

// inflight is one pending build; done closes exactly once when it
// settles.
type inflight[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Group coalesces concurrent builds per key. The zero value is not
// usable; use New.
type Group[V any] struct {
	mu sync.Mutex
	m  map[string]*inflight[V]
}

func New[V any]() *Group[V] {
	return &Group[V]{m: make(map[string]*inflight[V])}
}

// Do returns the result of fn for key, sharing one execution among all
// concurrent callers. The entry removes itself when the build settles,
// but only if it is still the stored entry: a caller that replaced it
// (e.g. after a forced refresh) must not lose its own build.
func (g *Group[V]) Do(ctx context.Context, key string, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if in, ok := g.m[key]; ok {
		g.mu.Unlock()
		return g.wait(ctx, in)
	}
	in := &inflight[V]{done: make(chan struct{})}
	g.m[key] = in
	g.mu.Unlock()

	in.val, in.err = fn()
	close(in.done)

	g.mu.Lock()
	if g.m[key] == in {
		delete(g.m, key)
	}
	g.mu.Unlock()

	return in.val, in.err
}

// Pending reports whether a build for key is currently in flight.
func (g *Group[V]) Pending(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

// Forget drops the in-flight entry for key, so the next Do starts a
// fresh build. Callers already joined to the old build still get its
// result.
func (g *Group[V]) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

func (g *Group[V]) wait(ctx context.Context, in *inflight[V]) (V, error) {
	select {
	case <-in.done:
		return in.val, in.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
