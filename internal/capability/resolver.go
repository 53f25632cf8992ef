// Package capability resolves what a session may do from its perfil, using a
// static YAML policy and a per-session cache.
package capability

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/model"
)

// Resolver implements model.CapabilityResolver with a bounded, expiring
// cache keyed by session.
type Resolver struct {
	evaluator model.PolicyEvaluator
	cache     *expirable.LRU[string, model.CapabilitySet]
	metrics   *observability.Metrics
}

// NewResolver creates a Resolver. maxEntries below 1 means 1.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration, maxEntries int, metrics *observability.Metrics) *Resolver {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Resolver{
		evaluator: evaluator,
		cache:     expirable.NewLRU[string, model.CapabilitySet](maxEntries, nil, ttl),
		metrics:   metrics,
	}
}

func cacheKey(rctx *model.RequestContext) string {
	return rctx.SessionID + ":" + rctx.Perfil
}

// Resolve returns the capability set for the session in rctx.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	key := cacheKey(rctx)
	if caps, ok := r.cache.Get(key); ok {
		r.metrics.RecordCapabilityCacheHit()
		return caps, nil
	}
	r.metrics.RecordCapabilityCacheMiss()

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, caps)
	return caps, nil
}

// Invalidate drops every cached set of a session.
func (r *Resolver) Invalidate(sessionID string) {
	prefix := sessionID + ":"
	for _, key := range r.cache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			r.cache.Remove(key)
		}
	}
}

// Len returns the number of cached sets.
func (r *Resolver) Len() int { return r.cache.Len() }
