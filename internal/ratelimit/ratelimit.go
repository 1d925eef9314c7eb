// Package ratelimit enforces per-key request quotas over calendar-aligned
// minute, hour and day windows plus a burst ceiling. Window counters live in
// an external counter store; the limiter fails open when that store is
// unreachable since it is not the sole access-control gate.
package ratelimit

import (
	"errors"
	"time"
)

// KeyType identifies which caller identity a quota bucket is keyed on.
type KeyType string

const (
	KeyUser       KeyType = "user"
	KeyIP         KeyType = "ip"
	KeyCredential KeyType = "credential"
	KeyOrg        KeyType = "org"
)

// Key identifies a quota bucket.
type Key struct {
	Type       KeyType
	Identifier string
}

// QuotaConfig carries the per-window limits. A zero limit disables that window.
type QuotaConfig struct {
	PerMinute int64
	PerHour   int64
	PerDay    int64
	Burst     int
}

// LimitType names the window that caused a denial.
type LimitType string

const (
	LimitPerMinute LimitType = "per_minute"
	LimitPerHour   LimitType = "per_hour"
	LimitPerDay    LimitType = "per_day"
	LimitBurst     LimitType = "burst"
)

// WindowResets exposes the end of each window independently, since the
// windows reset at different times and a single collapsed value is ambiguous.
type WindowResets struct {
	Minute time.Time `json:"minute"`
	Hour   time.Time `json:"hour"`
	Day    time.Time `json:"day"`
}

// Result is the outcome of a quota check.
type Result struct {
	Allowed   bool
	LimitType LimitType
	// Remaining is the most conservative bound: the minimum remaining slots
	// across all enabled windows after this request is accounted for.
	Remaining int64
	// ResetAt is the end of the failing window on denial, or the nearest
	// window boundary when allowed.
	ResetAt      time.Time
	WindowResets WindowResets
	RetryAfter   time.Duration
	// FailedOpen is set when the counter store was unreachable and the
	// request was allowed without quota enforcement.
	FailedOpen bool
	Warnings   []string
}

// Outcome classifies a completed request for quota accounting.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBlocked Outcome = "blocked"
)

var (
	ErrEmptyKey     = errors.New("rate limit key is empty")
	ErrStoreGone    = errors.New("counter store unreachable")
	ErrInvalidQuota = errors.New("invalid quota config")
)

type window struct {
	limitType LimitType
	limit     int64
	start     time.Time
	duration  time.Duration
}

func (w window) end() time.Time {
	return w.start.Add(w.duration)
}

// windowsAt builds the three calendar-aligned windows for the given instant.
func windowsAt(now time.Time, cfg QuotaConfig) []window {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return []window{
		{limitType: LimitPerMinute, limit: cfg.PerMinute, start: now.Truncate(time.Minute), duration: time.Minute},
		{limitType: LimitPerHour, limit: cfg.PerHour, start: now.Truncate(time.Hour), duration: time.Hour},
		{limitType: LimitPerDay, limit: cfg.PerDay, start: day, duration: 24 * time.Hour},
	}
}
