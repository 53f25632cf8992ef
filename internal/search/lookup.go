// Package search resolves lookup option lists and runs the global search
// across the resources a session may list.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/internal/table"
	"github.com/pitabwire/maximiza/model"
)

// Lookup cache scopes.
const (
	ScopeGlobal  = "global"
	ScopeSession = "session"
)

// LookupProvider resolves LookupDefinitions to option lists. Static lookups
// are served from the definition; resource lookups are built from the
// session's collection and cached.
type LookupProvider struct {
	registry   *definition.Registry
	store      *store.Store
	metrics    *observability.Metrics
	defaultTTL time.Duration

	cache       *expirable.LRU[string, cacheEntry]
	unsubscribe func()
}

type cacheEntry struct {
	options   []model.OptionDescriptor
	expiresAt time.Time
}

// NewLookupProvider creates a LookupProvider. Lookups backed by a resource
// are invalidated whenever that resource is mutated.
func NewLookupProvider(
	registry *definition.Registry,
	st *store.Store,
	cfg config.CacheConfig,
	metrics *observability.Metrics,
) *LookupProvider {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	size := cfg.MaxEntries
	if size <= 0 {
		size = 1000
	}
	lp := &LookupProvider{
		registry:   registry,
		store:      st,
		metrics:    metrics,
		defaultTTL: ttl,
		cache:      expirable.NewLRU[string, cacheEntry](size, nil, ttl),
	}
	lp.unsubscribe = st.Subscribe(lp.onChange)
	return lp
}

// Close detaches the provider from the store.
func (lp *LookupProvider) Close() {
	if lp.unsubscribe != nil {
		lp.unsubscribe()
	}
}

// GetLookup resolves a lookup definition to an option list, keeping the
// options whose label contains query (case and accent insensitive).
func (lp *LookupProvider) GetLookup(
	ctx context.Context,
	rctx *model.RequestContext,
	lookupID string,
	query string,
) (model.LookupResponse, error) {
	def, ok := lp.registry.GetLookup(lookupID)
	if !ok {
		return model.LookupResponse{}, model.NewNotFoundError(
			fmt.Sprintf("lookup %q not found", lookupID),
		)
	}

	if len(def.Static) > 0 {
		options := make([]model.OptionDescriptor, 0, len(def.Static))
		for _, o := range def.Static {
			options = append(options, model.OptionDescriptor{Label: o.Label, Value: o.Value})
		}
		return model.LookupResponse{
			Data: model.LookupPayload{Options: filterOptions(options, query)},
			Meta: map[string]any{"static": true},
		}, nil
	}

	key := buildCacheKey(def, rctx)
	if entry, hit := lp.cache.Get(key); hit && time.Now().Before(entry.expiresAt) {
		lp.metrics.RecordLookupCacheHit(def.ID)
		return model.LookupResponse{
			Data: model.LookupPayload{Options: filterOptions(entry.options, query)},
			Meta: map[string]any{"cached": true},
		}, nil
	}
	lp.metrics.RecordLookupCacheMiss(def.ID)

	rows, err := lp.store.Collection(ctx, rctx, def.Resource, "")
	if err != nil {
		return model.LookupResponse{}, err
	}
	options := mapLookupRows(rows, def)

	ttl := lp.defaultTTL
	if def.Cache != nil && def.Cache.TTL != "" {
		if parsed, parseErr := time.ParseDuration(def.Cache.TTL); parseErr == nil && parsed < ttl {
			ttl = parsed
		}
	}
	lp.cache.Add(key, cacheEntry{options: options, expiresAt: time.Now().Add(ttl)})

	return model.LookupResponse{
		Data: model.LookupPayload{Options: filterOptions(options, query)},
		Meta: map[string]any{"cached": false},
	}, nil
}

// buildCacheKey scopes a resource lookup to the caller's municipio, and to
// the session when the definition asks for it.
func buildCacheKey(def model.LookupDefinition, rctx *model.RequestContext) string {
	key := fmt.Sprintf("lookup:%s:%s", def.ID, store.Scope(rctx, ""))
	if def.Cache != nil && def.Cache.Scope == ScopeSession {
		key += ":" + rctx.SessionID
	}
	return key
}

// Invalidate removes every cached entry of a lookup.
func (lp *LookupProvider) Invalidate(lookupID string) {
	prefix := "lookup:" + lookupID + ":"
	for _, k := range lp.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			lp.cache.Remove(k)
		}
	}
}

// CacheLen returns the number of cached entries.
func (lp *LookupProvider) CacheLen() int {
	return lp.cache.Len()
}

func (lp *LookupProvider) onChange(ch store.Change) {
	for _, d := range lp.registry.AllDomains() {
		for _, l := range d.Lookups {
			if l.Resource == ch.Resource {
				lp.Invalidate(l.ID)
			}
		}
	}
}

// mapLookupRows turns records into options ordered by label.
func mapLookupRows(rows []model.Row, def model.LookupDefinition) []model.OptionDescriptor {
	valueField := def.ValueField
	if valueField == "" {
		valueField = "id"
	}
	sorted := table.Sort(rows, def.LabelField, table.Ascending)

	options := make([]model.OptionDescriptor, 0, len(sorted))
	for _, r := range sorted {
		label := r.String(def.LabelField)
		value := r.String(valueField)
		if label == "" && value == "" {
			continue
		}
		options = append(options, model.OptionDescriptor{Label: label, Value: value})
	}
	return options
}

// filterOptions keeps options whose label contains query.
func filterOptions(options []model.OptionDescriptor, query string) []model.OptionDescriptor {
	if strings.TrimSpace(query) == "" {
		return options
	}
	q := table.Normalize(strings.TrimSpace(query))
	filtered := []model.OptionDescriptor{}
	for _, opt := range options {
		if strings.Contains(table.Normalize(opt.Label), q) {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}
