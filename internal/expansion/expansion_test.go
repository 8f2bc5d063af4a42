package expansion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLLM struct {
	reply string
	err   error
	block bool
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, model, prompt string) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func TestExpandParsesAndCaches(t *testing.T) {
	f := &fakeLLM{reply: `[
		{"text":"فقه الصيام","weight":0.9,"reason":"juristic term"},
		{"text":"شروط الصوم","weight":0.7,"reason":"related"}
	]`}
	e := New(f, "m", zap.NewNop())

	got := e.Expand(context.Background(), "أحكام الصيام")
	require.Len(t, got, 2)
	assert.Equal(t, "فقه الصيام", got[0].Text)
	assert.Equal(t, 0.9, got[0].Weight)

	// Second call served from cache.
	again := e.Expand(context.Background(), "أحكام الصيام")
	assert.Equal(t, got, again)
	assert.Equal(t, 1, f.calls)
}

func TestExpandClampsWeightsAndCapsCount(t *testing.T) {
	f := &fakeLLM{reply: `[
		{"text":"a","weight":0.05},
		{"text":"b","weight":2.5},
		{"text":"c","weight":0.5},
		{"text":"d","weight":0.5},
		{"text":"e","weight":0.5}
	]`}
	e := New(f, "m", zap.NewNop())

	got := e.Expand(context.Background(), "q")
	require.Len(t, got, 4, "at most four expansions")
	assert.Equal(t, 0.3, got[0].Weight)
	assert.Equal(t, 1.0, got[1].Weight)
}

func TestExpandFailureReturnsNothingAndRetries(t *testing.T) {
	f := &fakeLLM{err: errors.New("llm down")}
	e := New(f, "m", zap.NewNop())

	assert.Empty(t, e.Expand(context.Background(), "q"))

	// Failures are not cached; recovery is picked up immediately.
	f.err = nil
	f.reply = `[{"text":"x","weight":0.5}]`
	got := e.Expand(context.Background(), "q")
	require.Len(t, got, 1)
	assert.Equal(t, 2, f.calls)
}

func TestExpandUnparseableReply(t *testing.T) {
	f := &fakeLLM{reply: "I could not think of any reformulations."}
	e := New(f, "m", zap.NewNop())
	assert.Empty(t, e.Expand(context.Background(), "q"))
}

func TestExpandFencedReplyWithProse(t *testing.T) {
	f := &fakeLLM{reply: "Here you go:\n```json\n[{\"text\":\"x\",\"weight\":0.6,\"reason\":\"r\"}]\n```"}
	e := New(f, "m", zap.NewNop())
	got := e.Expand(context.Background(), "q")
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Text)
}

func TestExpandSkipsEmptyTexts(t *testing.T) {
	f := &fakeLLM{reply: `[{"text":"  ","weight":0.5},{"text":"ok","weight":0.5}]`}
	e := New(f, "m", zap.NewNop())
	got := e.Expand(context.Background(), "q")
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Text)
}

func TestExpandTimeout(t *testing.T) {
	f := &fakeLLM{block: true}
	e := New(f, "m", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Empty(t, e.Expand(ctx, "q"))
}
