package scope

import (
	"errors"
	"strings"
)

type Scope string

var ErrInvalidScope = errors.New("invalid_scope")

const (
	ScopePromptView   Scope = "prompt:view"
	ScopePromptCreate Scope = "prompt:create"
	ScopePromptUpdate Scope = "prompt:update"
	ScopePromptDelete Scope = "prompt:delete"

	ScopeExportView   Scope = "export:view"
	ScopeExportCreate Scope = "export:create"

	ScopeCredentialView   Scope = "credential:view"
	ScopeCredentialCreate Scope = "credential:create"
	ScopeCredentialRotate Scope = "credential:rotate"
	ScopeCredentialRevoke Scope = "credential:revoke"

	ScopeAuditLogView   Scope = "audit_log:view"
	ScopeAuditLogExport Scope = "audit_log:export"

	ScopeOrgView   Scope = "org:view"
	ScopeOrgUpdate Scope = "org:update"

	ScopeMemberView   Scope = "member:view"
	ScopeMemberInvite Scope = "member:invite"
	ScopeMemberRemove Scope = "member:remove"
)

var allScopes = []Scope{
	ScopePromptView,
	ScopePromptCreate,
	ScopePromptUpdate,
	ScopePromptDelete,
	ScopeExportView,
	ScopeExportCreate,
	ScopeCredentialView,
	ScopeCredentialCreate,
	ScopeCredentialRotate,
	ScopeCredentialRevoke,
	ScopeAuditLogView,
	ScopeAuditLogExport,
	ScopeOrgView,
	ScopeOrgUpdate,
	ScopeMemberView,
	ScopeMemberInvite,
	ScopeMemberRemove,
}

var validScopes = func() map[string]struct{} {
	lookup := make(map[string]struct{}, len(allScopes))
	for _, scope := range allScopes {
		lookup[normalize(string(scope))] = struct{}{}
	}
	return lookup
}()

func All() []string {
	values := make([]string, len(allScopes))
	for i, scope := range allScopes {
		values[i] = string(scope)
	}
	return values
}

// Has reports whether the granted scopes satisfy the required scope,
// honoring the global wildcard and object-level wildcards.
func Has(scopes []string, required Scope) bool {
	requiredScope := normalize(string(required))
	if requiredScope == "" {
		return false
	}

	requiredObject := strings.SplitN(requiredScope, ":", 2)[0]

	for _, scope := range scopes {
		normalized := normalize(scope)
		if normalized == "" {
			continue
		}
		if normalized == "*" {
			return true
		}
		if normalized == requiredScope {
			return true
		}
		if requiredObject != "" && normalized == requiredObject+":*" {
			return true
		}
	}
	return false
}

// HasAll reports whether every required scope is satisfied.
func HasAll(scopes []string, required []Scope) bool {
	for _, r := range required {
		if !Has(scopes, r) {
			return false
		}
	}
	return true
}

func Validate(scopes []string) error {
	for _, scope := range Normalize(scopes) {
		if IsValid(scope) {
			continue
		}
		if scope == "*" || strings.HasSuffix(scope, ":*") {
			continue
		}
		return ErrInvalidScope
	}
	return nil
}

func Normalize(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(scopes))
	normalized := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		value := normalize(scope)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		normalized = append(normalized, value)
	}
	return normalized
}

func IsValid(scope string) bool {
	_, ok := validScopes[normalize(scope)]
	return ok
}

func normalize(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(normalized, ".", ":")
}
