package metadata

import (
	"sort"

	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/model"
)

// MenuProvider builds the sidebar of a workspace from definitions filtered
// by capabilities.
type MenuProvider struct {
	registry *definition.Registry
}

// NewMenuProvider creates a MenuProvider backed by the given registry.
func NewMenuProvider(registry *definition.Registry) *MenuProvider {
	return &MenuProvider{registry: registry}
}

// Workspace returns the workspace a caller lands in when it asks for
// requested. Only administrators may use the admin workspace; an empty
// request picks the caller's default.
func Workspace(rctx *model.RequestContext, requested string) string {
	if !rctx.IsAdmin() {
		return model.WorkspaceMunicipio
	}
	if requested == model.WorkspaceMunicipio {
		return requested
	}
	return model.WorkspaceAdmin
}

// GetMenu builds the navigation tree of a workspace. Routes carrying
// {municipioId} are resolved to the caller's municipio scope; an
// administrator browsing the municipio workspace must name one.
func (p *MenuProvider) GetMenu(rctx *model.RequestContext, caps model.CapabilitySet, workspace, municipioID string) (model.NavigationTree, error) {
	ws := Workspace(rctx, workspace)
	scope := rctx.ScopeMunicipio(municipioID)
	if ws == model.WorkspaceMunicipio && scope == "" {
		return model.NavigationTree{}, model.NewBadRequestError("municipioId is required for the municipio workspace")
	}
	params := map[string]string{"municipioId": scope}

	nodes := []model.NavigationNode{}
	for _, domain := range p.registry.AllDomains() {
		if domain.Workspace != ws {
			continue
		}
		nav := domain.Navigation
		if len(nav.Capabilities) > 0 && !caps.HasAll(nav.Capabilities...) {
			continue
		}

		children := make([]model.NavigationChildDefinition, 0, len(nav.Children))
		for _, child := range nav.Children {
			if len(child.Capabilities) > 0 && !caps.HasAll(child.Capabilities...) {
				continue
			}
			children = append(children, child)
		}
		sort.SliceStable(children, func(i, j int) bool {
			return children[i].Order < children[j].Order
		})

		node := model.NavigationNode{
			ID:       domain.Domain,
			Label:    nav.Label,
			Icon:     nav.Icon,
			Children: make([]model.NavigationNode, 0, len(children)),
		}
		for _, c := range children {
			id := c.ID
			if id == "" {
				id = c.PageID
			}
			node.Children = append(node.Children, model.NavigationNode{
				ID:       id,
				Label:    c.Label,
				Icon:     c.Icon,
				Route:    ExpandRoute(c.Route, params),
				Children: []model.NavigationNode{},
			})
		}
		nodes = append(nodes, node)
	}

	return model.NavigationTree{Workspace: ws, Items: nodes}, nil
}
