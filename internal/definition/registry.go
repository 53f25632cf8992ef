package definition

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/maximiza/model"
)

// catalog is one immutable generation of loaded definitions.
type catalog struct {
	domains  map[string]model.DomainDefinition
	pages    map[string]model.PageDefinition
	searches map[string]model.SearchDefinition
	lookups  map[string]model.LookupDefinition
	checksum string
}

func buildCatalog(defs []model.DomainDefinition) *catalog {
	c := &catalog{
		domains:  make(map[string]model.DomainDefinition, len(defs)),
		pages:    map[string]model.PageDefinition{},
		searches: map[string]model.SearchDefinition{},
		lookups:  map[string]model.LookupDefinition{},
	}
	sums := make([]string, 0, len(defs))
	for _, def := range defs {
		c.domains[def.Domain] = def
		sums = append(sums, def.Checksum)
		index(c.pages, def.Pages, func(p model.PageDefinition) string { return p.ID })
		index(c.searches, def.Searches, func(s model.SearchDefinition) string { return s.ID })
		index(c.lookups, def.Lookups, func(l model.LookupDefinition) string { return l.ID })
	}
	slices.Sort(sums)
	sum := sha256.Sum256([]byte(strings.Join(sums, ":")))
	c.checksum = hex.EncodeToString(sum[:])
	return c
}

func index[T any](dst map[string]T, items []T, id func(T) string) {
	for _, it := range items {
		dst[id(it)] = it
	}
}

func sortedByID[T any](m map[string]T) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

// Registry holds the loaded definitions. Readers never block; Replace
// publishes a whole new catalog at once.
type Registry struct {
	cur atomic.Pointer[catalog]
}

// NewRegistry creates a Registry holding defs.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace swaps in defs as the current catalog.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	r.cur.Store(buildCatalog(defs))
}

func (r *Registry) GetDomain(domainID string) (model.DomainDefinition, bool) {
	d, ok := r.cur.Load().domains[domainID]
	return d, ok
}

func (r *Registry) GetPage(pageID string) (model.PageDefinition, bool) {
	p, ok := r.cur.Load().pages[pageID]
	return p, ok
}

func (r *Registry) GetSearch(searchID string) (model.SearchDefinition, bool) {
	s, ok := r.cur.Load().searches[searchID]
	return s, ok
}

func (r *Registry) GetLookup(lookupID string) (model.LookupDefinition, bool) {
	l, ok := r.cur.Load().lookups[lookupID]
	return l, ok
}

// AllDomains returns the domains in navigation order, ties broken by name.
func (r *Registry) AllDomains() []model.DomainDefinition {
	defs := slices.Collect(maps.Values(r.cur.Load().domains))
	slices.SortFunc(defs, func(a, b model.DomainDefinition) int {
		return cmp.Or(
			cmp.Compare(a.Navigation.Order, b.Navigation.Order),
			strings.Compare(a.Domain, b.Domain),
		)
	})
	return defs
}

// AllPages returns every page ordered by ID.
func (r *Registry) AllPages() []model.PageDefinition {
	return sortedByID(r.cur.Load().pages)
}

// AllSearches returns every search ordered by ID.
func (r *Registry) AllSearches() []model.SearchDefinition {
	return sortedByID(r.cur.Load().searches)
}

// Len returns the number of loaded domains.
func (r *Registry) Len() int { return len(r.cur.Load().domains) }

// Loaded reports whether any domain is loaded.
func (r *Registry) Loaded() bool { return r.Len() > 0 }

// Checksum identifies the loaded definition set independently of load order.
func (r *Registry) Checksum() string { return r.cur.Load().checksum }
