package model

import (
	"slices"
	"strings"
)

// CapabilitySet holds the capabilities granted to a session. Keys are
// "resource:action" strings; a key ending in ":*" grants everything below
// that prefix and "*" grants everything.
type CapabilitySet map[string]bool

// Has reports whether c is granted, directly or through a wildcard.
func (cs CapabilitySet) Has(c string) bool {
	if cs[c] {
		return true
	}
	for pattern, granted := range cs {
		if granted && matchWildcard(pattern, c) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of caps is granted. No caps is true.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	return !slices.ContainsFunc(caps, func(c string) bool { return !cs.Has(c) })
}

// HasAny reports whether at least one of caps is granted.
func (cs CapabilitySet) HasAny(caps ...string) bool {
	return slices.ContainsFunc(caps, cs.Has)
}

// Can reports whether action on resource is granted:
// Can("escolas", "create") checks "escolas:create".
func (cs CapabilitySet) Can(resource, action string) bool {
	return cs.Has(resource + ":" + action)
}

// matchWildcard matches c against a "*" or "prefix:*" pattern. Patterns
// without a wildcard never match here.
func matchWildcard(pattern, c string) bool {
	if pattern == "*" {
		return true
	}
	prefix, ok := strings.CutSuffix(pattern, "*")
	return ok && strings.HasSuffix(prefix, ":") && strings.HasPrefix(c, prefix)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	// Resolve returns all capabilities for the session's perfil.
	Resolve(rctx *RequestContext) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given session.
	Invalidate(sessionID string)
}

// PolicyEvaluator resolves capabilities from roles.
type PolicyEvaluator interface {
	// ResolveCapabilities returns the full capability set for the given context.
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Evaluate checks a single capability.
	Evaluate(rctx *RequestContext, capability string) (bool, error)

	// Sync refreshes policy data from its source.
	Sync() error
}
