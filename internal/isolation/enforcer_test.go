package isolation

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []auditdomain.Event
}

func (r *recordedEvents) Record(ctx context.Context, event auditdomain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordedEvents) Query(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	return auditdomain.ListResponse{}, nil
}

func (r *recordedEvents) Stats(ctx context.Context, req auditdomain.ListRequest) (auditdomain.Stats, error) {
	return auditdomain.Stats{}, nil
}

func (r *recordedEvents) ExportReport(ctx context.Context, req auditdomain.ListRequest, format auditdomain.ExportFormat) ([]byte, error) {
	return nil, nil
}

func (r *recordedEvents) Purge(ctx context.Context) (int64, error) { return 0, nil }

func (r *recordedEvents) Flush(ctx context.Context) error { return nil }

func (r *recordedEvents) last(t *testing.T) auditdomain.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

func newEnforcer(t *testing.T) (*Enforcer, *recordedEvents) {
	t.Helper()
	audit := &recordedEvents{}
	return New(Params{Log: zaptest.NewLogger(t), Audit: audit}), audit
}

func TestAuthorizeAllowsOwnerWithScope(t *testing.T) {
	e, _ := newEnforcer(t)
	actor := Actor{UserID: 1, OrgID: 10, Scopes: []string{"prompt:view"}}

	decision := e.Authorize(context.Background(), actor, ResourcePrompt, OpView, &OwnerFields{OrgID: 10, UserID: 1})
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)
}

func TestAuthorizeDeniesWithoutPolicy(t *testing.T) {
	e, audit := newEnforcer(t)
	actor := Actor{UserID: 1, OrgID: 10, Scopes: []string{"*"}}

	decision := e.Authorize(context.Background(), actor, ResourceType("invoice"), OpView, nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonNoPolicy, decision.Reason)
	assert.Equal(t, auditdomain.OutcomeBlocked, audit.last(t).Outcome)
}

func TestAuthorizeDeniesUnknownOperation(t *testing.T) {
	e, _ := newEnforcer(t)
	actor := Actor{UserID: 1, OrgID: 10, Scopes: []string{"*"}}

	decision := e.Authorize(context.Background(), actor, ResourceAuditLog, OpDelete, nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonUnknownOperation, decision.Reason)
}

func TestAuthorizeDeniesMissingScope(t *testing.T) {
	e, audit := newEnforcer(t)
	actor := Actor{UserID: 1, OrgID: 10, Scopes: []string{"prompt:view"}}

	decision := e.Authorize(context.Background(), actor, ResourcePrompt, OpDelete, nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "missing_scope:prompt:delete", decision.Reason)
	assert.Equal(t, auditdomain.SeverityMedium, audit.last(t).Severity)
}

func TestAuthorizeDeniesCrossOrgForEveryOperation(t *testing.T) {
	e, audit := newEnforcer(t)
	actor := Actor{UserID: 1, OrgID: 10, Scopes: []string{"*"}}

	for resourceType, policy := range e.policies {
		for operation := range policy.RequiredScopes {
			decision := e.Authorize(context.Background(), actor, resourceType, operation, &OwnerFields{OrgID: 99, UserID: 1})
			assert.False(t, decision.Allowed, "%s %s", resourceType, operation)
			assert.Equal(t, ReasonCrossOrgDenied, decision.Reason, "%s %s", resourceType, operation)
			assert.Equal(t, auditdomain.SeverityHigh, audit.last(t).Severity, "%s %s", resourceType, operation)
		}
	}
}

func TestAuthorizeDeniesCrossUserWhenPolicyForbids(t *testing.T) {
	e, _ := newEnforcer(t)
	actor := Actor{UserID: 1, OrgID: 10, Scopes: []string{"*"}}

	decision := e.Authorize(context.Background(), actor, ResourcePrompt, OpUpdate, &OwnerFields{OrgID: 10, UserID: 2})
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonCrossUserDenied, decision.Reason)

	// Exports are shared across the organization.
	decision = e.Authorize(context.Background(), actor, ResourceExport, OpView, &OwnerFields{OrgID: 10, UserID: 2})
	assert.True(t, decision.Allowed)
}

func TestAuthorizeCreationChecksScopesOnly(t *testing.T) {
	e, _ := newEnforcer(t)
	actor := Actor{UserID: 1, OrgID: 10, Scopes: []string{"credential:create"}}

	decision := e.Authorize(context.Background(), actor, ResourceCredential, OpCreate, nil)
	assert.True(t, decision.Allowed)
}

func TestAuthorizeDeniesActorWithoutOrg(t *testing.T) {
	e, _ := newEnforcer(t)

	decision := e.Authorize(context.Background(), Actor{UserID: 1, Scopes: []string{"*"}}, ResourcePrompt, OpView, nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonMissingActorOrg, decision.Reason)
}

func TestScopeQueryFiltersByOwner(t *testing.T) {
	e, _ := newEnforcer(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE prompts (id integer primary key, owner_org_id integer, owner_user_id integer, body text)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO prompts VALUES (1, 10, 1, 'mine'), (2, 10, 2, 'teammate'), (3, 99, 1, 'other org')`).Error)

	scoped, err := e.ScopeQuery(Actor{UserID: 1, OrgID: 10}, ResourcePrompt)
	require.NoError(t, err)

	var bodies []string
	require.NoError(t, scoped(db.Table("prompts")).Order("id").Pluck("body", &bodies).Error)
	assert.Equal(t, []string{"mine"}, bodies, "cross-org and cross-user rows are filtered out")
}

func TestScopeQueryDeniesUnknownResource(t *testing.T) {
	e, _ := newEnforcer(t)

	_, err := e.ScopeQuery(Actor{UserID: 1, OrgID: 10}, ResourceType("invoice"))
	assert.Error(t, err)
}
