package isolation

import (
	"context"
	"fmt"

	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
	obsmetrics "github.com/smallbiznis/sentra/internal/observability/metrics"
	"github.com/smallbiznis/sentra/internal/scope"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Audit   auditdomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Enforcer validates ownership predicates against a fixed policy table.
// It fails closed on every lookup miss: unknown resource types, unknown
// operations and actors without an organization are all denials.
type Enforcer struct {
	log      *zap.Logger
	audit    auditdomain.Service
	metrics  *obsmetrics.Metrics
	policies map[ResourceType]Policy
}

func New(p Params) *Enforcer {
	return &Enforcer{
		log:      p.Log.Named("isolation"),
		audit:    p.Audit,
		metrics:  p.Metrics,
		policies: defaultPolicies(),
	}
}

var Module = fx.Module("isolation",
	fx.Provide(New),
)

// Authorize checks the actor against the policy for the resource type. A nil
// owner means a creation check, where only the scope requirement applies.
func (e *Enforcer) Authorize(ctx context.Context, actor Actor, resourceType ResourceType, operation Operation, owner *OwnerFields) Decision {
	if actor.OrgID == 0 {
		return e.deny(ctx, actor, resourceType, operation, ReasonMissingActorOrg, auditdomain.SeverityMedium)
	}

	policy, ok := e.policies[resourceType]
	if !ok {
		return e.deny(ctx, actor, resourceType, operation, ReasonNoPolicy, auditdomain.SeverityMedium)
	}

	required, ok := policy.RequiredScopes[operation]
	if !ok {
		return e.deny(ctx, actor, resourceType, operation, ReasonUnknownOperation, auditdomain.SeverityMedium)
	}
	for _, s := range required {
		if !scope.Has(actor.Scopes, scope.Scope(s)) {
			reason := fmt.Sprintf("%s:%s", ReasonMissingScope, s)
			return e.deny(ctx, actor, resourceType, operation, reason, auditdomain.SeverityMedium)
		}
	}

	if owner != nil {
		if !policy.AllowCrossOrg && owner.OrgID != actor.OrgID {
			return e.deny(ctx, actor, resourceType, operation, ReasonCrossOrgDenied, auditdomain.SeverityHigh)
		}
		if policy.OwnerUserColumn != "" && !policy.AllowCrossUser && owner.UserID != actor.UserID {
			return e.deny(ctx, actor, resourceType, operation, ReasonCrossUserDenied, auditdomain.SeverityHigh)
		}
	}

	return Decision{Allowed: true}
}

// ScopeQuery returns a gorm scope that pins a list or search query to the
// actor's own rows, so bulk reads are isolated by construction. The returned
// error is a denial, not a transport failure.
func (e *Enforcer) ScopeQuery(actor Actor, resourceType ResourceType) (func(*gorm.DB) *gorm.DB, error) {
	if actor.OrgID == 0 {
		return nil, fmt.Errorf("%s", ReasonMissingActorOrg)
	}

	policy, ok := e.policies[resourceType]
	if !ok {
		return nil, fmt.Errorf("%s", ReasonNoPolicy)
	}

	return func(db *gorm.DB) *gorm.DB {
		scoped := db
		if !policy.AllowCrossOrg {
			scoped = scoped.Where(policy.OwnerOrgColumn+" = ?", actor.OrgID)
		}
		if policy.OwnerUserColumn != "" && !policy.AllowCrossUser {
			scoped = scoped.Where(policy.OwnerUserColumn+" = ?", actor.UserID)
		}
		return scoped
	}, nil
}

func (e *Enforcer) deny(ctx context.Context, actor Actor, resourceType ResourceType, operation Operation, reason string, severity auditdomain.Severity) Decision {
	if e.metrics != nil {
		e.metrics.RecordIsolationDenied(string(resourceType), reason)
	}

	event := auditdomain.Event{
		EventType:    "isolation.denied",
		Severity:     severity,
		ResourceType: string(resourceType),
		Operation:    string(operation),
		Outcome:      auditdomain.OutcomeBlocked,
		Details:      map[string]any{"reason": reason},
	}
	if actor.UserID != 0 {
		userID := actor.UserID
		event.ActorUserID = &userID
	}
	if actor.OrgID != 0 {
		orgID := actor.OrgID
		event.ActorOrgID = &orgID
	}
	e.audit.Record(ctx, event)

	e.log.Warn("access denied",
		zap.String("resource_type", string(resourceType)),
		zap.String("operation", string(operation)),
		zap.String("reason", reason),
	)

	return Decision{Allowed: false, Reason: reason}
}
