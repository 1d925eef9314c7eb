package orchestrator

import (
	"context"
	"strconv"
	"time"

	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/smallbiznis/sentra/internal/clock"
	"github.com/smallbiznis/sentra/internal/config"
	credentialdomain "github.com/smallbiznis/sentra/internal/credential/domain"
	"github.com/smallbiznis/sentra/internal/inputguard"
	"github.com/smallbiznis/sentra/internal/isolation"
	obsmetrics "github.com/smallbiznis/sentra/internal/observability/metrics"
	"github.com/smallbiznis/sentra/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Trust scoring. Every evaluation starts at a full score; weak signals
// subtract from it and a score of zero denies even when no single stage did.
const (
	fullTrustScore         = 100
	penaltyUnauthenticated = 40
	penaltyWarning         = 20

	// A graded injection confidence above this is treated the same as a
	// hard block from the sanitizer.
	injectionThreshold = 0.5

	// Remaining quota at or below this adds a near-limit warning.
	nearLimitRemaining = 5
)

// Request is the envelope one evaluation runs against. The upstream HTTP
// layer has already deserialized it; nothing here is wire format.
type Request struct {
	// Secret is the raw credential presented by the caller, empty when the
	// request is unauthenticated.
	Secret string
	// Actor is the pre-resolved identity for callers authenticated upstream
	// of this layer. Ignored when Secret resolves to a credential.
	Actor *isolation.Actor
	// Payload is the free-text body to screen, empty when there is none.
	Payload string
	// ResourceType and Operation name the target of the downstream
	// operation. They are required: nothing maps to the empty values, so
	// leaving them out is a deny, not a bypass.
	ResourceType isolation.ResourceType
	Operation    isolation.Operation
	// Owner carries the ownership columns of the target resource, nil for
	// creations.
	Owner     *isolation.OwnerFields
	Endpoint  string
	IPAddress string
	UserAgent string
}

// Decision is the aggregated verdict. It is produced fresh per request and
// never cached.
type Decision struct {
	Allowed          bool                         `json:"allowed"`
	Reason           string                       `json:"reason,omitempty"`
	TrustScore       int                          `json:"trust_score"`
	Warnings         []string                     `json:"warnings,omitempty"`
	SanitizedPayload string                       `json:"sanitized_payload,omitempty"`
	RetryAfter       time.Duration                `json:"retry_after,omitempty"`
	Credential       *credentialdomain.Credential `json:"-"`

	// RateLimitKey is the identity the quota check ran against, kept so
	// RecordOutcome can charge the same bucket after the request completes.
	RateLimitKey ratelimit.Key `json:"-"`
	Endpoint     string        `json:"-"`
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Credential credentialdomain.Service
	Guard      *inputguard.Guard
	Limiter    *ratelimit.Limiter
	Enforcer   *isolation.Enforcer
	Audit      auditdomain.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Orchestrator sequences the security components for one inbound operation.
// Stages run in a fixed order and each may short-circuit to a deny; every
// evaluation emits exactly one audit event either way.
type Orchestrator struct {
	log        *zap.Logger
	clock      clock.Clock
	cfg        config.Config
	credential credentialdomain.Service
	guard      *inputguard.Guard
	limiter    *ratelimit.Limiter
	enforcer   *isolation.Enforcer
	audit      auditdomain.Service
	metrics    *obsmetrics.Metrics
}

func New(p Params) *Orchestrator {
	return &Orchestrator{
		log:        p.Log.Named("orchestrator"),
		clock:      p.Clock,
		cfg:        p.Config,
		credential: p.Credential,
		guard:      p.Guard,
		limiter:    p.Limiter,
		enforcer:   p.Enforcer,
		audit:      p.Audit,
		metrics:    p.Metrics,
	}
}

var Module = fx.Module("orchestrator",
	fx.Provide(New),
)

type evaluation struct {
	req      Request
	started  time.Time
	score    int
	warnings []string
	actor    isolation.Actor
	decision Decision
}

// Evaluate runs credential validation, payload screening, quota and tenant
// isolation in order and aggregates their verdicts into one decision.
func (o *Orchestrator) Evaluate(ctx context.Context, req Request) Decision {
	ev := &evaluation{
		req:     req,
		started: o.clock.Now(),
		score:   fullTrustScore,
	}
	ev.decision.Endpoint = req.Endpoint

	o.resolveCredential(ctx, ev)
	if ev.decision.Reason != "" {
		return o.finish(ctx, ev)
	}

	o.screenPayload(ev)
	if ev.decision.Reason != "" {
		return o.finish(ctx, ev)
	}

	o.checkQuota(ctx, ev)
	if ev.decision.Reason != "" {
		return o.finish(ctx, ev)
	}

	// Isolation always runs: an empty or unmapped resource type has no
	// policy and the enforcer denies it, never skips it.
	verdict := o.enforcer.Authorize(ctx, ev.actor, req.ResourceType, req.Operation, req.Owner)
	if !verdict.Allowed {
		ev.deny(verdict.Reason)
		return o.finish(ctx, ev)
	}

	if ev.score <= 0 {
		ev.deny("trust_score_exhausted")
		return o.finish(ctx, ev)
	}

	ev.decision.Allowed = true
	ev.decision.TrustScore = ev.score
	return o.finish(ctx, ev)
}

// RecordOutcome charges the quota bucket the evaluation resolved and logs the
// downstream result. It is called after the business operation completes, so
// quota reflects attempted load including business-logic failures.
func (o *Orchestrator) RecordOutcome(ctx context.Context, decision Decision, httpStatus int, latency time.Duration) {
	outcome := ratelimit.OutcomeSuccess
	switch {
	case httpStatus == 0 || httpStatus >= 500:
		outcome = ratelimit.OutcomeFailure
	case httpStatus >= 400:
		outcome = ratelimit.OutcomeBlocked
	}

	o.limiter.Record(ctx, decision.RateLimitKey, decision.Endpoint, outcome)

	o.log.Info("request completed",
		zap.String("endpoint", decision.Endpoint),
		zap.Int("http_status", httpStatus),
		zap.Duration("latency", latency),
		zap.Bool("allowed", decision.Allowed),
		zap.Int("trust_score", decision.TrustScore),
	)
}

func (o *Orchestrator) resolveCredential(ctx context.Context, ev *evaluation) {
	if ev.req.Secret == "" {
		ev.warn("unauthenticated", penaltyUnauthenticated)
		if ev.req.Actor != nil {
			ev.actor = *ev.req.Actor
		}
		return
	}

	result := o.credential.Validate(ctx, ev.req.Secret, ev.req.Endpoint, credentialdomain.CallerMeta{
		Endpoint:  ev.req.Endpoint,
		IPAddress: ev.req.IPAddress,
		UserAgent: ev.req.UserAgent,
	})
	if !result.Valid {
		ev.deny(result.Reason)
		if result.RateLimit != nil {
			ev.decision.RetryAfter = result.RateLimit.RetryAfter
		}
		return
	}

	cred := result.Credential
	ev.decision.Credential = cred
	ev.decision.RateLimitKey = ratelimit.Key{Type: ratelimit.KeyCredential, Identifier: cred.ID.String()}
	ev.actor = isolation.Actor{
		UserID: cred.OwnerUserID,
		OrgID:  cred.OwnerOrgID,
		Scopes: cred.Scopes,
	}
	o.noteQuota(ev, result.RateLimit)
}

func (o *Orchestrator) screenPayload(ev *evaluation) {
	if ev.req.Payload == "" {
		return
	}

	result := o.guard.Sanitize(ev.req.Payload, inputguard.Options{})
	if result.Blocked {
		ev.deny(result.Reason)
		return
	}

	report := o.guard.DetectInjection(ev.req.Payload)
	if report.Detected && report.Confidence > injectionThreshold {
		ev.deny("injection_detected")
		return
	}

	ev.decision.SanitizedPayload = result.Sanitized
	for _, w := range result.Warnings {
		ev.warn(w, penaltyWarning)
	}
}

// checkQuota runs against the best available identity: credential, then
// user, then client IP. The credential path was already checked during
// validation, so its result is reused rather than charged twice.
func (o *Orchestrator) checkQuota(ctx context.Context, ev *evaluation) {
	if ev.decision.RateLimitKey.Type == ratelimit.KeyCredential {
		return
	}

	var key ratelimit.Key
	switch {
	case ev.actor.UserID != 0:
		key = ratelimit.Key{Type: ratelimit.KeyUser, Identifier: ev.actor.UserID.String()}
	case ev.req.IPAddress != "":
		key = ratelimit.Key{Type: ratelimit.KeyIP, Identifier: ev.req.IPAddress}
	default:
		return
	}
	ev.decision.RateLimitKey = key

	quota := ratelimit.QuotaConfig{
		PerMinute: o.cfg.DefaultPerMinute,
		PerHour:   o.cfg.DefaultPerHour,
		PerDay:    o.cfg.DefaultPerDay,
		Burst:     o.cfg.DefaultBurst,
	}
	result, err := o.limiter.Check(ctx, key, quota)
	if err != nil {
		ev.deny("rate_limit_check_failed")
		return
	}
	if !result.Allowed {
		ev.deny("rate_limited:" + string(result.LimitType))
		ev.decision.RetryAfter = result.RetryAfter
		return
	}
	o.noteQuota(ev, &result)
}

func (o *Orchestrator) noteQuota(ev *evaluation, result *ratelimit.Result) {
	if result == nil {
		return
	}
	if result.FailedOpen {
		ev.warn("rate_limit_not_enforced", penaltyWarning)
	}
	if result.Remaining >= 0 && result.Remaining <= nearLimitRemaining {
		ev.warn("quota_near_limit", penaltyWarning)
	}
}

func (o *Orchestrator) finish(ctx context.Context, ev *evaluation) Decision {
	ev.decision.Warnings = ev.warnings

	elapsed := o.clock.Now().Sub(ev.started)
	if o.metrics != nil {
		outcome := "denied"
		if ev.decision.Allowed {
			outcome = "allowed"
		}
		o.metrics.RecordDecision(outcome, ev.decision.Reason)
		o.metrics.ObserveEvaluateLatency(elapsed.Seconds())
	}

	severity := auditdomain.SeverityLow
	outcome := auditdomain.OutcomeSuccess
	if !ev.decision.Allowed {
		severity = auditdomain.SeverityMedium
		outcome = auditdomain.OutcomeBlocked
	}

	details := map[string]any{
		"endpoint":    ev.req.Endpoint,
		"trust_score": strconv.Itoa(ev.decision.TrustScore),
	}
	if ev.decision.Reason != "" {
		details["reason"] = ev.decision.Reason
	}
	if len(ev.warnings) > 0 {
		details["warnings"] = ev.warnings
	}

	event := auditdomain.Event{
		EventType:    "security.evaluate",
		Severity:     severity,
		ResourceType: string(ev.req.ResourceType),
		Operation:    string(ev.req.Operation),
		Outcome:      outcome,
		Details:      details,
	}
	if ev.actor.UserID != 0 {
		userID := ev.actor.UserID
		event.ActorUserID = &userID
	}
	if ev.actor.OrgID != 0 {
		orgID := ev.actor.OrgID
		event.ActorOrgID = &orgID
	}
	o.audit.Record(ctx, event)

	return ev.decision
}

func (ev *evaluation) warn(warning string, penalty int) {
	ev.warnings = append(ev.warnings, warning)
	ev.score -= penalty
	if ev.score < 0 {
		ev.score = 0
	}
}

func (ev *evaluation) deny(reason string) {
	ev.decision.Allowed = false
	ev.decision.Reason = reason
	ev.decision.TrustScore = 0
	ev.score = 0
}
