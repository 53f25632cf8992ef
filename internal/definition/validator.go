package definition

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pitabwire/maximiza/internal/openapi"
	"github.com/pitabwire/maximiza/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally, referentially, and against
// the backend contract.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions. index may be nil or empty to skip
// contract checks.
func (v *Validator) Validate(defs []model.DomainDefinition, index *openapi.Index) []VError {
	var errs []VError

	pageIDs := make(map[string]string)
	lookupIDs := make(map[string]bool)
	for i, def := range defs {
		for j, p := range def.Pages {
			if prev, dup := pageIDs[p.ID]; dup && p.ID != "" {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("definitions[%d].pages[%d].id", i, j),
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("page %q already defined in domain %q", p.ID, prev),
				})
			}
			pageIDs[p.ID] = def.Domain
		}
		for _, l := range def.Lookups {
			lookupIDs[l.ID] = true
		}
	}

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateDomain(prefix, def, pageIDs, lookupIDs, index)...)
	}
	return errs
}

var validWorkspaces = map[string]bool{
	model.WorkspaceAdmin: true, model.WorkspaceMunicipio: true,
}

func (v *Validator) validateDomain(prefix string, def model.DomainDefinition, pageIDs map[string]string, lookupIDs map[string]bool, index *openapi.Index) []VError {
	var errs []VError

	if def.Domain == "" {
		errs = append(errs, VError{Path: prefix + ".domain", Code: "REQUIRED", Message: "domain is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	if !validWorkspaces[def.Workspace] {
		errs = append(errs, VError{Path: prefix + ".workspace", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid workspace %q", def.Workspace)})
	}
	if def.Navigation.Label == "" {
		errs = append(errs, VError{Path: prefix + ".navigation.label", Code: "REQUIRED", Message: "navigation.label is required"})
	}
	if len(def.Navigation.Children) == 0 {
		errs = append(errs, VError{Path: prefix + ".navigation.children", Code: "REQUIRED", Message: "at least one navigation child is required"})
	}

	for i, c := range def.Navigation.Children {
		cp := fmt.Sprintf("%s.navigation.children[%d]", prefix, i)
		if c.Route == "" {
			errs = append(errs, VError{Path: cp + ".route", Code: "REQUIRED", Message: "route is required"})
		} else if !strings.HasPrefix(c.Route, "/") {
			errs = append(errs, VError{Path: cp + ".route", Code: "INVALID_ROUTE", Message: fmt.Sprintf("route %q must start with /", c.Route)})
		}
		if c.PageID != "" {
			if _, ok := pageIDs[c.PageID]; !ok {
				errs = append(errs, VError{Path: cp + ".page_id", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("page %q not found", c.PageID)})
			}
		}
	}

	for i, p := range def.Pages {
		pp := fmt.Sprintf("%s.pages[%d]", prefix, i)
		errs = append(errs, v.validatePage(pp, p, def.Workspace, lookupIDs, index)...)
	}
	for i, s := range def.Searches {
		sp := fmt.Sprintf("%s.searches[%d]", prefix, i)
		errs = append(errs, v.validateSearch(sp, s, index)...)
	}
	for i, l := range def.Lookups {
		lp := fmt.Sprintf("%s.lookups[%d]", prefix, i)
		errs = append(errs, v.validateLookup(lp, l, index)...)
	}

	return errs
}

func (v *Validator) validatePage(prefix string, p model.PageDefinition, workspace string, lookupIDs map[string]bool, index *openapi.Index) []VError {
	var errs []VError

	if p.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if p.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}
	if p.Route == "" || !strings.HasPrefix(p.Route, "/") {
		errs = append(errs, VError{Path: prefix + ".route", Code: "INVALID_ROUTE", Message: fmt.Sprintf("route %q must start with /", p.Route)})
	}
	if workspace == model.WorkspaceMunicipio && !strings.Contains(p.Route, "{municipioId}") {
		errs = append(errs, VError{Path: prefix + ".route", Code: "INVALID_ROUTE", Message: "municipio pages must be scoped by {municipioId}"})
	}
	if !model.IsResource(p.Resource) {
		errs = append(errs, VError{Path: prefix + ".resource", Code: "INVALID_ENUM", Message: fmt.Sprintf("unknown resource %q", p.Resource)})
	} else {
		errs = append(errs, checkOperation(prefix+".resource", index, http.MethodGet, openapi.CollectionPath(p.Resource))...)
	}

	if p.Table == nil {
		errs = append(errs, VError{Path: prefix + ".table", Code: "REQUIRED", Message: "table is required"})
	} else {
		errs = append(errs, v.validateTable(prefix+".table", *p.Table, lookupIDs)...)
	}

	for _, cap := range p.Capabilities {
		if cap != "*" && !strings.HasPrefix(cap, p.Resource+":") {
			errs = append(errs, VError{
				Path:    prefix + ".capabilities",
				Code:    "NAMESPACE_MISMATCH",
				Message: fmt.Sprintf("capability %q does not match resource %q", cap, p.Resource),
			})
		}
	}
	for i, a := range append(p.Actions, tableRowActions(p.Table)...) {
		errs = append(errs, v.validateAction(fmt.Sprintf("%s.actions[%d]", prefix, i), a)...)
	}

	return errs
}

func tableRowActions(t *model.TableDefinition) []model.ActionDefinition {
	if t == nil {
		return nil
	}
	return t.RowActions
}

var validStatKinds = map[string]bool{
	model.StatCount: true, model.StatDistinct: true,
}

func (v *Validator) validateTable(prefix string, t model.TableDefinition, lookupIDs map[string]bool) []VError {
	var errs []VError

	if len(t.Columns) == 0 {
		errs = append(errs, VError{Path: prefix + ".columns", Code: "REQUIRED", Message: "at least one column is required"})
	}
	for i, c := range t.Columns {
		if c.Field == "" {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.columns[%d].field", prefix, i), Code: "REQUIRED", Message: "field is required"})
		}
	}
	if t.PageSize < 0 || t.PageSize > 200 {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "RANGE", Message: "page_size must be 0-200"})
	}
	if t.SortDir != "" && t.SortDir != "asc" && t.SortDir != "desc" {
		errs = append(errs, VError{Path: prefix + ".sort_dir", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid sort_dir %q", t.SortDir)})
	}

	for i, f := range t.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if f.Field == "" {
			errs = append(errs, VError{Path: fp + ".field", Code: "REQUIRED", Message: "field is required"})
		}
		if f.Options != nil && f.Options.LookupID != "" && !lookupIDs[f.Options.LookupID] {
			errs = append(errs, VError{Path: fp + ".options.lookup_id", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("lookup %q not found", f.Options.LookupID)})
		}
	}

	for i, s := range t.Stats {
		sp := fmt.Sprintf("%s.stats[%d]", prefix, i)
		if s.ID == "" {
			errs = append(errs, VError{Path: sp + ".id", Code: "REQUIRED", Message: "id is required"})
		}
		if !validStatKinds[s.Kind] {
			errs = append(errs, VError{Path: sp + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid stat kind %q", s.Kind)})
		}
		if s.Kind == model.StatDistinct && s.Field == "" {
			errs = append(errs, VError{Path: sp + ".field", Code: "REQUIRED", Message: "field is required for distinct"})
		}
	}

	return errs
}

var validActionTypes = map[string]bool{
	model.ActionNavigate: true, model.ActionDelete: true,
}

func (v *Validator) validateAction(prefix string, a model.ActionDefinition) []VError {
	var errs []VError
	if a.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if !validActionTypes[a.Type] {
		errs = append(errs, VError{Path: prefix + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid action type %q", a.Type)})
	}
	if a.Type == model.ActionNavigate && a.NavigateTo == "" {
		errs = append(errs, VError{Path: prefix + ".navigate_to", Code: "REQUIRED", Message: "navigate_to is required for navigate actions"})
	}
	return errs
}

func (v *Validator) validateSearch(prefix string, s model.SearchDefinition, index *openapi.Index) []VError {
	var errs []VError
	if s.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if !model.IsResource(s.Resource) {
		errs = append(errs, VError{Path: prefix + ".resource", Code: "INVALID_ENUM", Message: fmt.Sprintf("unknown resource %q", s.Resource)})
	} else {
		errs = append(errs, checkOperation(prefix+".resource", index, http.MethodGet, openapi.CollectionPath(s.Resource))...)
	}
	if len(s.SearchKeys) == 0 {
		errs = append(errs, VError{Path: prefix + ".search_keys", Code: "REQUIRED", Message: "at least one search key is required"})
	}
	if s.TitleField == "" {
		errs = append(errs, VError{Path: prefix + ".title_field", Code: "REQUIRED", Message: "title_field is required"})
	}
	if s.Route == "" {
		errs = append(errs, VError{Path: prefix + ".route", Code: "REQUIRED", Message: "route is required"})
	}
	return errs
}

func (v *Validator) validateLookup(prefix string, l model.LookupDefinition, index *openapi.Index) []VError {
	var errs []VError
	if l.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	switch {
	case len(l.Static) > 0 && l.Resource != "":
		errs = append(errs, VError{Path: prefix, Code: "AMBIGUOUS", Message: "lookup must be either static or resource-backed"})
	case len(l.Static) == 0 && l.Resource == "":
		errs = append(errs, VError{Path: prefix, Code: "REQUIRED", Message: "lookup needs static options or a resource"})
	case l.Resource != "":
		if !model.IsResource(l.Resource) {
			errs = append(errs, VError{Path: prefix + ".resource", Code: "INVALID_ENUM", Message: fmt.Sprintf("unknown resource %q", l.Resource)})
		} else {
			errs = append(errs, checkOperation(prefix+".resource", index, http.MethodGet, openapi.CollectionPath(l.Resource))...)
		}
		if l.LabelField == "" {
			errs = append(errs, VError{Path: prefix + ".label_field", Code: "REQUIRED", Message: "label_field is required for resource lookups"})
		}
	}
	return errs
}

// checkOperation reports a missing backend operation when a contract is
// loaded.
func checkOperation(path string, index *openapi.Index, method, opPath string) []VError {
	if !index.Loaded() || index.HasOperation(method, opPath) {
		return nil
	}
	return []VError{{
		Path:    path,
		Code:    "OPERATION_NOT_FOUND",
		Message: fmt.Sprintf("operation %s %s not found in backend contract", method, opPath),
	}}
}
