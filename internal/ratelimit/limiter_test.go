package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/sentra/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLimiter(t *testing.T, clk clock.Clock, store CounterStore) *Limiter {
	t.Helper()
	return New(Params{
		Store: store,
		Log:   zaptest.NewLogger(t),
		Clock: clk,
	})
}

func TestCheckMinuteWindowExhaustion(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 30, 12, 0, time.UTC))
	limiter := newTestLimiter(t, clk, NewMemoryStore(clk))

	key := Key{Type: KeyUser, Identifier: "42"}
	cfg := QuotaConfig{PerMinute: 60, PerHour: 10000, PerDay: 100000}
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		result, err := limiter.Check(ctx, key, cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed, "request %d should be allowed", i+1)
		limiter.Record(ctx, key, "/v1/prompts", OutcomeSuccess)
	}

	result, err := limiter.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, LimitPerMinute, result.LimitType)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 31, 0, 0, time.UTC), result.ResetAt)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Positive(t, result.RetryAfter)
}

func TestCheckAllowedAgainAfterWindowRolls(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 30, 55, 0, time.UTC))
	limiter := newTestLimiter(t, clk, NewMemoryStore(clk))

	key := Key{Type: KeyCredential, Identifier: "cred-1"}
	cfg := QuotaConfig{PerMinute: 2}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, key, cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed)
		limiter.Record(ctx, key, "/v1/prompts", OutcomeSuccess)
	}

	result, err := limiter.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	clk.Advance(10 * time.Second) // crosses the minute boundary

	result, err = limiter.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckHourWindowDeniesBeforeDay(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clk, NewMemoryStore(clk))

	key := Key{Type: KeyIP, Identifier: "203.0.113.9"}
	cfg := QuotaConfig{PerMinute: 100, PerHour: 3, PerDay: 3}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, key, cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed)
		limiter.Record(ctx, key, "/v1/prompts", OutcomeSuccess)
	}

	// Hour is evaluated before day, so it names the failing window.
	result, err := limiter.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, LimitPerHour, result.LimitType)
	assert.Equal(t, time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC), result.ResetAt)
}

func TestCheckRemainingIsMostConservativeBound(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clk, NewMemoryStore(clk))

	key := Key{Type: KeyUser, Identifier: "7"}
	cfg := QuotaConfig{PerMinute: 60, PerHour: 5, PerDay: 1000}
	ctx := context.Background()

	result, err := limiter.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(4), result.Remaining) // hour window is the tightest
}

func TestCheckExposesAllThreeResets(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 30, 12, 0, time.UTC))
	limiter := newTestLimiter(t, clk, NewMemoryStore(clk))

	result, err := limiter.Check(context.Background(), Key{Type: KeyUser, Identifier: "1"}, QuotaConfig{PerMinute: 10})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 31, 0, 0, time.UTC), result.WindowResets.Minute)
	assert.Equal(t, time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC), result.WindowResets.Hour)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), result.WindowResets.Day)
}

func TestBurstCeiling(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clk, NewMemoryStore(clk))

	key := Key{Type: KeyUser, Identifier: "9"}
	cfg := QuotaConfig{PerMinute: 600, Burst: 3}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, key, cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed, "burst slot %d", i+1)
	}

	result, err := limiter.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, LimitBurst, result.LimitType)
	assert.Positive(t, result.RetryAfter)
}

type failingStore struct{}

func (failingStore) Counts(context.Context, []string) ([]int64, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Increment(context.Context, []CounterEntry) error {
	return errors.New("connection refused")
}

func (failingStore) TakeToken(context.Context, string, float64, int) (bool, error) {
	return false, errors.New("connection refused")
}

func TestCheckFailsOpenWhenStoreUnreachable(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clk, failingStore{})

	result, err := limiter.Check(context.Background(), Key{Type: KeyUser, Identifier: "1"}, QuotaConfig{PerMinute: 1})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.True(t, result.FailedOpen)
	assert.NotEmpty(t, result.Warnings)
}

func TestCheckRejectsEmptyKey(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	limiter := newTestLimiter(t, clk, NewMemoryStore(clk))

	_, err := limiter.Check(context.Background(), Key{Type: KeyUser}, QuotaConfig{PerMinute: 1})
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestRecordCountsFailuresToo(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC))
	store := NewMemoryStore(clk)
	limiter := newTestLimiter(t, clk, store)

	key := Key{Type: KeyUser, Identifier: "2"}
	cfg := QuotaConfig{PerMinute: 2}
	ctx := context.Background()

	limiter.Record(ctx, key, "/v1/prompts", OutcomeFailure)
	limiter.Record(ctx, key, "/v1/prompts", OutcomeBlocked)

	result, err := limiter.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "failed attempts still consume quota")
}
