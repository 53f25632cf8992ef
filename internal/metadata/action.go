package metadata

import (
	"strings"

	"github.com/pitabwire/maximiza/model"
)

// ActionProvider resolves ActionDefinition lists into ActionDescriptor lists,
// filtering by capabilities and filling route parameters.
type ActionProvider struct{}

// NewActionProvider creates a new ActionProvider.
func NewActionProvider() *ActionProvider {
	return &ActionProvider{}
}

// ResolveActions resolves a list of action definitions into descriptors,
// omitting those the capability set does not allow. Placeholders in
// navigate_to are replaced from params; {id} is left for the client to fill
// per row.
func (p *ActionProvider) ResolveActions(
	caps model.CapabilitySet,
	actions []model.ActionDefinition,
	params map[string]string,
) []model.ActionDescriptor {
	result := []model.ActionDescriptor{}
	for _, action := range actions {
		if len(action.Capabilities) > 0 && !caps.HasAll(action.Capabilities...) {
			continue
		}

		desc := model.ActionDescriptor{
			ID:         action.ID,
			Label:      action.Label,
			Icon:       action.Icon,
			Style:      action.Style,
			Type:       action.Type,
			Enabled:    true,
			Visible:    true,
			NavigateTo: ExpandRoute(action.NavigateTo, params),
			Params:     action.Params,
		}
		if action.Confirmation != nil {
			desc.Confirmation = &model.ConfirmationDescriptor{
				Title:   action.Confirmation.Title,
				Message: action.Confirmation.Message,
				Confirm: action.Confirmation.Confirm,
				Cancel:  action.Confirmation.Cancel,
				Style:   action.Confirmation.Style,
			}
		}
		result = append(result, desc)
	}
	return result
}

// ExpandRoute replaces every {name} in route that params has a non-empty
// value for.
func ExpandRoute(route string, params map[string]string) string {
	if route == "" || len(params) == 0 {
		return route
	}
	pairs := make([]string, 0, 2*len(params))
	for k, v := range params {
		if v != "" {
			pairs = append(pairs, "{"+k+"}", v)
		}
	}
	return strings.NewReplacer(pairs...).Replace(route)
}
