package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/internal/metadata"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/internal/table"
	"github.com/pitabwire/maximiza/model"
)

// Search pagination bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// SearchProvider runs the global search across every resource the session
// may list.
type SearchProvider struct {
	registry           *definition.Registry
	store              *store.Store
	metrics            *observability.Metrics
	timeoutPerProvider time.Duration
	maxResultsDefault  int
	minQueryLength     int
}

// NewSearchProvider creates a new SearchProvider.
func NewSearchProvider(
	registry *definition.Registry,
	st *store.Store,
	cfg config.SearchConfig,
	metrics *observability.Metrics,
) *SearchProvider {
	sp := &SearchProvider{
		registry:           registry,
		store:              st,
		metrics:            metrics,
		timeoutPerProvider: cfg.TimeoutPerProvider,
		maxResultsDefault:  cfg.MaxResultsPerProvider,
		minQueryLength:     cfg.MinQueryLength,
	}
	if sp.timeoutPerProvider <= 0 {
		sp.timeoutPerProvider = 3 * time.Second
	}
	if sp.maxResultsDefault <= 0 {
		sp.maxResultsDefault = 20
	}
	if sp.minQueryLength <= 0 {
		sp.minQueryLength = 2
	}
	return sp
}

// providerResult collects the outcome of a single provider.
type providerResult struct {
	ProviderID string
	Results    []model.SearchResult
	Status     string // "ok", "timeout", "error"
}

// Search matches query against the search keys of every eligible definition,
// scoped to municipioID the way the session's lists are.
func (sp *SearchProvider) Search(
	ctx context.Context,
	rctx *model.RequestContext,
	caps model.CapabilitySet,
	query string,
	municipioID string,
	page, pageSize int,
) (model.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < sp.minQueryLength {
		return model.SearchResponse{}, model.NewBadRequestError(
			fmt.Sprintf("Search query must be at least %d characters", sp.minQueryLength),
		)
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	var eligible []model.SearchDefinition
	for _, def := range sp.registry.AllSearches() {
		if len(def.Capabilities) > 0 && !caps.HasAll(def.Capabilities...) {
			continue
		}
		eligible = append(eligible, def)
	}

	start := time.Now()
	results := sp.executeProviders(ctx, rctx, eligible, query, municipioID)

	var merged []model.SearchResult
	providers := make(map[string]string, len(results))
	responded := 0
	for _, r := range results {
		providers[r.ProviderID] = r.Status
		if r.Status == "ok" {
			responded++
		}
		merged = append(merged, r.Results...)
	}

	merged = deduplicate(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	total := len(merged)

	offset := (page - 1) * pageSize
	if offset >= len(merged) {
		merged = []model.SearchResult{}
	} else {
		merged = merged[offset:min(offset+pageSize, len(merged))]
	}

	elapsed := time.Since(start)
	sp.metrics.RecordSearch(elapsed, responded)

	return model.SearchResponse{
		Data: model.SearchPayload{
			Results:    merged,
			TotalCount: total,
			Query:      query,
		},
		Meta: map[string]any{
			"providers":     providers,
			"query_time_ms": elapsed.Milliseconds(),
			"page":          page,
			"page_size":     pageSize,
		},
	}, nil
}

func (sp *SearchProvider) executeProviders(
	ctx context.Context,
	rctx *model.RequestContext,
	defs []model.SearchDefinition,
	query, municipioID string,
) []providerResult {
	results := make([]providerResult, len(defs))
	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = sp.executeOne(ctx, rctx, def, query, municipioID)
		}()
	}
	wg.Wait()
	return results
}

func (sp *SearchProvider) executeOne(
	ctx context.Context,
	rctx *model.RequestContext,
	def model.SearchDefinition,
	query, municipioID string,
) providerResult {
	ctx, cancel := context.WithTimeout(ctx, sp.timeoutPerProvider)
	defer cancel()

	type fetched struct {
		rows []model.Row
		err  error
	}
	done := make(chan fetched, 1)
	go func() {
		rows, err := sp.store.Collection(ctx, rctx, def.Resource, municipioID)
		done <- fetched{rows: rows, err: err}
	}()

	select {
	case <-ctx.Done():
		return providerResult{ProviderID: def.ID, Status: "timeout"}
	case f := <-done:
		if f.err != nil {
			return providerResult{ProviderID: def.ID, Status: "error"}
		}
		maxResults := def.MaxResults
		if maxResults <= 0 || maxResults > sp.maxResultsDefault {
			maxResults = sp.maxResultsDefault
		}
		matches := table.Filter(f.rows, query, def.SearchKeys)
		if len(matches) > maxResults {
			matches = matches[:maxResults]
		}
		return providerResult{
			ProviderID: def.ID,
			Results:    mapResults(matches, def, store.Scope(rctx, municipioID)),
			Status:     "ok",
		}
	}
}

// mapResults turns matched records into scored results. The score is the
// definition weight scaled by the match position: 1.0 at the top, 0.5 at
// the bottom.
func mapResults(rows []model.Row, def model.SearchDefinition, scope string) []model.SearchResult {
	weight := def.Weight
	if weight <= 0 {
		weight = 1
	}
	total := len(rows)
	results := make([]model.SearchResult, 0, total)
	for i, row := range rows {
		id := table.Cell(row.Field("id"))
		positionScore := 1.0
		if total > 1 {
			positionScore = 1.0 - (float64(i) / float64(total) * 0.5)
		}

		municipioID := scope
		if municipioID == "" {
			municipioID = table.Cell(row.Field("municipioId"))
		}
		results = append(results, model.SearchResult{
			ID:       id,
			Title:    table.Cell(row.Field(def.TitleField)),
			Subtitle: table.Cell(row.Field(def.SubtitleField)),
			Category: def.Category,
			Icon:     def.Icon,
			Route: metadata.ExpandRoute(def.Route, map[string]string{
				"id":          id,
				"municipioId": municipioID,
			}),
			Score: float64(weight) * positionScore,
		})
	}
	return results
}

// deduplicate removes results with the same route and id, keeping the one
// with the highest score.
func deduplicate(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]int, len(results))
	output := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		key := r.Route + "|" + r.ID
		if idx, exists := seen[key]; exists {
			if r.Score > output[idx].Score {
				output[idx] = r
			}
			continue
		}
		seen[key] = len(output)
		output = append(output, r)
	}
	return output
}
