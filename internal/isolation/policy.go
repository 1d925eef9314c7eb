package isolation

import "github.com/smallbiznis/sentra/internal/scope"

// Policy binds a resource type to its ownership columns and the scopes each
// operation requires. Operations absent from RequiredScopes are denied, the
// same as resource types absent from the table.
type Policy struct {
	OwnerOrgColumn  string
	OwnerUserColumn string
	RequiredScopes  map[Operation][]string
	AllowCrossOrg   bool
	AllowCrossUser  bool
}

// defaultPolicies is the fixed policy table, built once at init. Resources
// shared across an organization allow cross-user access but never cross-org;
// nothing in the table allows cross-org access.
func defaultPolicies() map[ResourceType]Policy {
	return map[ResourceType]Policy{
		ResourcePrompt: {
			OwnerOrgColumn:  "owner_org_id",
			OwnerUserColumn: "owner_user_id",
			RequiredScopes: map[Operation][]string{
				OpView:   {string(scope.ScopePromptView)},
				OpCreate: {string(scope.ScopePromptCreate)},
				OpUpdate: {string(scope.ScopePromptUpdate)},
				OpDelete: {string(scope.ScopePromptDelete)},
			},
		},
		ResourceExport: {
			OwnerOrgColumn:  "owner_org_id",
			OwnerUserColumn: "owner_user_id",
			RequiredScopes: map[Operation][]string{
				OpView:   {string(scope.ScopeExportView)},
				OpCreate: {string(scope.ScopeExportCreate)},
			},
			AllowCrossUser: true,
		},
		ResourceCredential: {
			OwnerOrgColumn: "owner_org_id",
			RequiredScopes: map[Operation][]string{
				OpView:   {string(scope.ScopeCredentialView)},
				OpCreate: {string(scope.ScopeCredentialCreate)},
				OpRotate: {string(scope.ScopeCredentialRotate)},
				OpRevoke: {string(scope.ScopeCredentialRevoke)},
			},
			AllowCrossUser: true,
		},
		ResourceAuditLog: {
			OwnerOrgColumn: "actor_org_id",
			RequiredScopes: map[Operation][]string{
				OpView:   {string(scope.ScopeAuditLogView)},
				OpExport: {string(scope.ScopeAuditLogView), string(scope.ScopeAuditLogExport)},
			},
			AllowCrossUser: true,
		},
		ResourceOrg: {
			OwnerOrgColumn: "id",
			RequiredScopes: map[Operation][]string{
				OpView:   {string(scope.ScopeOrgView)},
				OpUpdate: {string(scope.ScopeOrgUpdate)},
			},
			AllowCrossUser: true,
		},
		ResourceMember: {
			OwnerOrgColumn: "org_id",
			RequiredScopes: map[Operation][]string{
				OpView:   {string(scope.ScopeMemberView)},
				OpInvite: {string(scope.ScopeMemberInvite)},
				OpRemove: {string(scope.ScopeMemberRemove)},
			},
			AllowCrossUser: true,
		},
	}
}
