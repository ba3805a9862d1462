package domain

import "strings"

// ScopeGlobal is the shared partition readable by every organization.
const ScopeGlobal = "GLOBAL"

// NormalizeScope trims the scope and maps the empty string to GLOBAL.
func NormalizeScope(scope string) string {
	trimmed := strings.TrimSpace(scope)
	if trimmed == "" {
		return ScopeGlobal
	}
	if strings.EqualFold(trimmed, ScopeGlobal) {
		return ScopeGlobal
	}
	return trimmed
}

// IsGlobalScope reports whether the scope is the shared GLOBAL partition.
func IsGlobalScope(scope string) bool {
	return NormalizeScope(scope) == ScopeGlobal
}
