package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", testConfig(), zap.NewNop())
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func() error { return boom })
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New("test", testConfig(), zap.NewNop())
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func() error { return boom })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b := New("test", testConfig(), zap.NewNop())
	boom := errors.New("boom")
	_ = b.Execute(context.Background(), func() error { return boom })
	_ = b.Execute(context.Background(), func() error { return boom })
	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	_ = b.Execute(context.Background(), func() error { return boom })
	_ = b.Execute(context.Background(), func() error { return boom })
	assert.Equal(t, StateClosed, b.State())
}
