package isolation

import (
	"github.com/bwmarrin/snowflake"
)

// ResourceType is the closed set of resource kinds the enforcer knows about.
// Anything outside this set has no policy and is denied by default.
type ResourceType string

const (
	ResourcePrompt     ResourceType = "prompt"
	ResourceExport     ResourceType = "export"
	ResourceCredential ResourceType = "credential"
	ResourceAuditLog   ResourceType = "audit_log"
	ResourceOrg        ResourceType = "org"
	ResourceMember     ResourceType = "member"
)

// Operation is the closed set of actions a policy can map to required scopes.
type Operation string

const (
	OpView   Operation = "view"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpRotate Operation = "rotate"
	OpRevoke Operation = "revoke"
	OpExport Operation = "export"
	OpInvite Operation = "invite"
	OpRemove Operation = "remove"
)

// Actor is the resolved caller identity an authorization check runs against.
type Actor struct {
	UserID snowflake.ID
	OrgID  snowflake.ID
	Scopes []string
}

// OwnerFields carries the ownership columns of an existing resource. A nil
// OwnerFields means the check is for a creation, where there is no existing
// row to compare against.
type OwnerFields struct {
	OrgID  snowflake.ID
	UserID snowflake.ID
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Stable reason strings surfaced on denial.
const (
	ReasonNoPolicy          = "no_policy"
	ReasonUnknownOperation  = "unknown_operation"
	ReasonMissingScope      = "missing_scope"
	ReasonCrossOrgDenied    = "cross_org_denied"
	ReasonCrossUserDenied   = "cross_user_denied"
	ReasonMissingActorOrg   = "missing_actor_org"
)
