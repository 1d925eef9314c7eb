package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/sentra/internal/clock"
	obsmetrics "github.com/smallbiznis/sentra/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store   CounterStore
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Limiter evaluates quotas over calendar windows. Check is read-only so a
// denied request never consumes quota from the fixed windows; Record accounts
// every attempted request, including business-logic failures.
type Limiter struct {
	store   CounterStore
	log     *zap.Logger
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func New(p Params) *Limiter {
	return &Limiter{
		store:   p.Store,
		log:     p.Log.Named("ratelimit"),
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Check evaluates the minute, hour and day windows in order, then the burst
// ceiling. The first window whose post-increment count would exceed its limit
// denies the request. On counter-store failure the limiter fails open.
func (l *Limiter) Check(ctx context.Context, key Key, cfg QuotaConfig) (Result, error) {
	if strings.TrimSpace(key.Identifier) == "" {
		return Result{}, ErrEmptyKey
	}

	now := l.clock.Now()
	windows := windowsAt(now, cfg)
	resets := WindowResets{
		Minute: windows[0].end(),
		Hour:   windows[1].end(),
		Day:    windows[2].end(),
	}

	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = counterKey(key, w)
	}

	counts, err := l.store.Counts(ctx, keys)
	if err != nil {
		l.log.Warn("counter store unreachable, failing open",
			zap.String("key_type", string(key.Type)),
			zap.Error(err),
		)
		return Result{
			Allowed:      true,
			WindowResets: resets,
			ResetAt:      resets.Minute,
			Remaining:    -1,
			FailedOpen:   true,
			Warnings:     []string{"rate limit not enforced: counter store unreachable"},
		}, nil
	}

	remaining := int64(-1)
	for i, w := range windows {
		if w.limit <= 0 {
			continue
		}
		if counts[i]+1 > w.limit {
			l.recordDenied(key, w.limitType)
			return Result{
				Allowed:      false,
				LimitType:    w.limitType,
				Remaining:    0,
				ResetAt:      w.end(),
				WindowResets: resets,
				RetryAfter:   w.end().Sub(now),
			}, nil
		}
		left := w.limit - counts[i] - 1
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}

	result := Result{
		Allowed:      true,
		Remaining:    remaining,
		ResetAt:      resets.Minute,
		WindowResets: resets,
	}

	if cfg.Burst > 0 {
		rate := burstRefillRate(cfg)
		allowed, err := l.store.TakeToken(ctx, bucketKey(key), rate, cfg.Burst)
		if err != nil {
			l.log.Warn("burst bucket unreachable, failing open",
				zap.String("key_type", string(key.Type)),
				zap.Error(err),
			)
			result.FailedOpen = true
			result.Warnings = append(result.Warnings, "burst ceiling not enforced: counter store unreachable")
		} else if !allowed {
			l.recordDenied(key, LimitBurst)
			retry := time.Duration(float64(time.Second) / rate)
			return Result{
				Allowed:      false,
				LimitType:    LimitBurst,
				Remaining:    0,
				ResetAt:      now.Add(retry),
				WindowResets: resets,
				RetryAfter:   retry,
			}, nil
		}
	}

	if l.metrics != nil {
		l.metrics.RecordRateLimitAllowed(string(key.Type))
	}
	return result, nil
}

// Record increments all three window counters unconditionally so quota
// reflects attempted load. Store failures are logged, never surfaced: the
// request already completed and accounting is best-effort by then.
func (l *Limiter) Record(ctx context.Context, key Key, endpoint string, outcome Outcome) {
	if strings.TrimSpace(key.Identifier) == "" {
		return
	}

	now := l.clock.Now()
	windows := windowsAt(now, QuotaConfig{})
	entries := make([]CounterEntry, len(windows))
	for i, w := range windows {
		// A minute of grace keeps boundary reads from racing expiry.
		entries[i] = CounterEntry{Key: counterKey(key, w), ExpireAt: w.end().Add(time.Minute)}
	}

	if err := l.store.Increment(ctx, entries); err != nil {
		l.log.Warn("failed to record rate limit usage",
			zap.String("key_type", string(key.Type)),
			zap.String("endpoint", endpoint),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}

func (l *Limiter) recordDenied(key Key, limitType LimitType) {
	if l.metrics != nil {
		l.metrics.RecordRateLimitDenied(string(key.Type), string(limitType))
	}
}

// burstRefillRate refills the burst bucket at the per-minute pace so sustained
// traffic converges on the minute quota while short spikes stay bounded.
func burstRefillRate(cfg QuotaConfig) float64 {
	if cfg.PerMinute > 0 {
		return float64(cfg.PerMinute) / 60.0
	}
	return float64(cfg.Burst)
}

func counterKey(key Key, w window) string {
	return fmt.Sprintf("rl:%s:%s:%s:%d", key.Type, key.Identifier, w.limitType, w.start.Unix())
}

func bucketKey(key Key) string {
	return fmt.Sprintf("rl:%s:%s:burst", key.Type, key.Identifier)
}
