package metadata

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/internal/table"
	"github.com/pitabwire/maximiza/model"
)

// Endpoints advertised in table descriptors.
const (
	pageDataEndpoint = "/ui/pages/%s/data"
	viewsEndpoint    = "/ui/views"
)

// PageProvider resolves PageDefinitions into PageDescriptors and derives
// stateless page data from the session's collections.
type PageProvider struct {
	registry *definition.Registry
	store    *store.Store
	actions  *ActionProvider
	logger   *zap.Logger
}

// NewPageProvider creates a PageProvider.
func NewPageProvider(registry *definition.Registry, st *store.Store, actions *ActionProvider, logger *zap.Logger) *PageProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageProvider{
		registry: registry,
		store:    st,
		actions:  actions,
		logger:   logger.Named("metadata"),
	}
}

// page returns the definition of pageID if the caller may open it.
func (p *PageProvider) page(rctx *model.RequestContext, caps model.CapabilitySet, pageID string) (model.PageDefinition, error) {
	pageDef, ok := p.registry.GetPage(pageID)
	if !ok {
		return model.PageDefinition{}, model.NewNotFoundError(
			fmt.Sprintf("page %q not found", pageID),
		)
	}
	if pageDef.AdminOnly && !rctx.IsAdmin() {
		return model.PageDefinition{}, model.NewForbiddenError(
			fmt.Sprintf("page %q requires an administrator", pageID),
		)
	}
	if len(pageDef.Capabilities) > 0 && !caps.HasAll(pageDef.Capabilities...) {
		return model.PageDefinition{}, model.NewForbiddenError(
			fmt.Sprintf("insufficient capabilities for page %q", pageID),
		)
	}
	return pageDef, nil
}

// GetPage resolves a PageDescriptor for the caller. Returns an error with
// code NOT_FOUND or FORBIDDEN.
func (p *PageProvider) GetPage(
	ctx context.Context,
	rctx *model.RequestContext,
	caps model.CapabilitySet,
	pageID string,
	municipioID string,
) (model.PageDescriptor, error) {
	pageDef, err := p.page(rctx, caps, pageID)
	if err != nil {
		return model.PageDescriptor{}, err
	}
	params := map[string]string{"municipioId": rctx.ScopeMunicipio(municipioID)}

	desc := model.PageDescriptor{
		ID:       pageDef.ID,
		Title:    pageDef.Title,
		Route:    ExpandRoute(pageDef.Route, params),
		Resource: pageDef.Resource,
	}
	for _, b := range pageDef.Breadcrumb {
		desc.Breadcrumb = append(desc.Breadcrumb, model.BreadcrumbDescriptor{
			Label: b.Label,
			Route: ExpandRoute(b.Route, params),
		})
	}
	if pageDef.Table != nil {
		desc.Table = p.resolveTable(ctx, rctx, caps, pageDef, municipioID, params)
	}
	desc.Actions = p.actions.ResolveActions(caps, pageDef.Actions, params)

	return desc, nil
}

// GetPageData derives one table state from request parameters (q, sort, dir,
// page and facet fields) over the cached collection. Stats are computed over
// the whole collection. Unsortable sort keys and pages outside
// 1..TotalPages are rejected with BAD_REQUEST.
func (p *PageProvider) GetPageData(
	ctx context.Context,
	rctx *model.RequestContext,
	caps model.CapabilitySet,
	pageID string,
	municipioID string,
	query func(string) string,
) (model.DataResponse, error) {
	pageDef, err := p.page(rctx, caps, pageID)
	if err != nil {
		return model.DataResponse{}, err
	}
	if pageDef.Table == nil {
		return model.DataResponse{}, model.NewBadRequestError(
			fmt.Sprintf("page %q has no table", pageID),
		)
	}

	rows, err := p.store.Collection(ctx, rctx, pageDef.Resource, municipioID)
	if err != nil {
		return model.DataResponse{}, err
	}

	cfg := table.FromDefinition(pageDef.Table)
	st := table.StateFromQuery(query, cfg)
	if st.Sort == nil {
		st.Sort = table.DefaultSort(pageDef.Table)
	} else if !table.Sortable(cfg, st.Sort.Key) {
		return model.DataResponse{}, model.NewBadRequestError(
			fmt.Sprintf("column %q is not sortable", st.Sort.Key),
		)
	}
	if st.Page < 1 {
		return model.DataResponse{}, model.NewBadRequestError(fmt.Sprintf("page %d out of range", st.Page))
	}
	view := table.Derive(rows, cfg, st)
	if view.CurrentPage > view.TotalPages {
		return model.DataResponse{}, model.NewBadRequestError(
			fmt.Sprintf("page %d out of range 1..%d", view.CurrentPage, view.TotalPages),
		)
	}

	return model.DataResponse{
		Data: table.Describe(pageDef.ID, view, cfg.Columns, table.Summarize(rows, pageDef.Table.Stats)),
		Meta: map[string]any{
			"resource": pageDef.Resource,
			"scope":    store.Scope(rctx, municipioID),
			"total":    len(rows),
		},
	}, nil
}

// resolveTable builds a TableDescriptor from the page's table definition.
func (p *PageProvider) resolveTable(
	ctx context.Context,
	rctx *model.RequestContext,
	caps model.CapabilitySet,
	pageDef model.PageDefinition,
	municipioID string,
	params map[string]string,
) *model.TableDescriptor {
	t := pageDef.Table
	cfg := table.FromDefinition(t)
	desc := &model.TableDescriptor{
		SearchKeys:        cfg.Search.SearchKeys,
		Searchable:        len(cfg.Search.SearchKeys) > 0,
		SearchPlaceholder: cfg.Search.Placeholder,
		DataEndpoint:      fmt.Sprintf(pageDataEndpoint, pageDef.ID),
		ViewsEndpoint:     viewsEndpoint,
		DefaultSort:       t.DefaultSort,
		SortDir:           t.SortDir,
		PageSize:          cfg.PageSize,
		EmptyMessage:      cfg.EmptyMessage,
	}

	for _, col := range t.Columns {
		desc.Columns = append(desc.Columns, model.ColumnDescriptor{
			Field:     col.Field,
			Label:     col.Label,
			Type:      col.Type,
			Sortable:  col.Sortable,
			ClassName: col.ClassName,
			Format:    col.Format,
			StatusMap: col.StatusMap,
		})
	}

	for _, f := range t.Filters {
		desc.Filters = append(desc.Filters, model.FilterDescriptor{
			Field:    f.Field,
			Label:    f.Label,
			AllValue: f.AllValue,
			Options:  p.filterOptions(ctx, rctx, pageDef.Resource, municipioID, f),
		})
	}

	desc.RowActions = p.actions.ResolveActions(caps, t.RowActions, params)
	return desc
}

// filterOptions resolves the options of a facet: inline static options, a
// static lookup, or the distinct values of a field in the collection.
// Resource-backed lookups are left to the lookup endpoint.
func (p *PageProvider) filterOptions(
	ctx context.Context,
	rctx *model.RequestContext,
	resource, municipioID string,
	f model.FilterDefinition,
) []model.OptionDescriptor {
	if f.Options == nil {
		return nil
	}
	var out []model.OptionDescriptor
	switch {
	case len(f.Options.Static) > 0:
		out = staticOptions(f.Options.Static)
	case f.Options.LookupID != "":
		if l, ok := p.registry.GetLookup(f.Options.LookupID); ok {
			out = staticOptions(l.Static)
		}
	case f.Options.OptionsFrom != "":
		rows, err := p.store.Collection(ctx, rctx, resource, municipioID)
		if err != nil {
			p.logger.Debug("filter options unavailable",
				zap.String("resource", resource),
				zap.String("field", f.Field),
				zap.Error(err),
			)
			return nil
		}
		for _, v := range table.Distinct(rows, f.Options.OptionsFrom) {
			out = append(out, model.OptionDescriptor{Label: v, Value: v})
		}
	}
	return out
}

func staticOptions(opts []model.StaticOption) []model.OptionDescriptor {
	if len(opts) == 0 {
		return nil
	}
	out := make([]model.OptionDescriptor, 0, len(opts))
	for _, o := range opts {
		out = append(out, model.OptionDescriptor{Label: o.Label, Value: o.Value})
	}
	return out
}
