package model

// DomainDefinition is the root structure of a definition file. Each file
// declares one workspace area: its navigation entries, list pages, searches,
// and lookups.
type DomainDefinition struct {
	Domain     string               `yaml:"domain"     json:"domain"`
	Version    string               `yaml:"version"    json:"version"`
	Workspace  string               `yaml:"workspace"  json:"workspace"`
	Navigation NavigationDefinition `yaml:"navigation" json:"navigation"`
	Pages      []PageDefinition     `yaml:"pages"      json:"pages,omitempty"`
	Searches   []SearchDefinition   `yaml:"searches"   json:"searches,omitempty"`
	Lookups    []LookupDefinition   `yaml:"lookups"    json:"lookups,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// Workspaces a definition can belong to.
const (
	WorkspaceAdmin     = "admin"
	WorkspaceMunicipio = "municipio"
)

// NavigationDefinition describes a domain's sidebar entries.
type NavigationDefinition struct {
	Label        string                      `yaml:"label"        json:"label"`
	Icon         string                      `yaml:"icon"         json:"icon"`
	Order        int                         `yaml:"order"        json:"order"`
	Capabilities []string                    `yaml:"capabilities" json:"capabilities"`
	Children     []NavigationChildDefinition `yaml:"children"     json:"children"`
}

// NavigationChildDefinition describes a sidebar link. Route may contain the
// {municipioId} placeholder.
type NavigationChildDefinition struct {
	ID           string   `yaml:"id"           json:"id"`
	Label        string   `yaml:"label"        json:"label"`
	Icon         string   `yaml:"icon"         json:"icon,omitempty"`
	Route        string   `yaml:"route"        json:"route"`
	PageID       string   `yaml:"page_id"      json:"page_id,omitempty"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
	Order        int      `yaml:"order"        json:"order"`
}

// PageDefinition describes a list screen bound to one resource.
type PageDefinition struct {
	ID           string             `yaml:"id"           json:"id"`
	Title        string             `yaml:"title"        json:"title"`
	Route        string             `yaml:"route"        json:"route"`
	Resource     string             `yaml:"resource"     json:"resource"`
	AdminOnly    bool               `yaml:"admin_only"   json:"admin_only,omitempty"`
	Capabilities []string           `yaml:"capabilities" json:"capabilities"`
	Breadcrumb   []BreadcrumbItem   `yaml:"breadcrumb"   json:"breadcrumb,omitempty"`
	Table        *TableDefinition   `yaml:"table"        json:"table,omitempty"`
	Actions      []ActionDefinition `yaml:"actions"      json:"actions,omitempty"`
}

// BreadcrumbItem is a single entry in a breadcrumb trail.
type BreadcrumbItem struct {
	Label string `yaml:"label" json:"label"`
	Route string `yaml:"route" json:"route,omitempty"`
}

// TableDefinition configures the tabular engine for a page.
type TableDefinition struct {
	Columns           []ColumnDefinition `yaml:"columns"            json:"columns"`
	SearchKeys        []string           `yaml:"search_keys"        json:"search_keys,omitempty"`
	Searchable        *bool              `yaml:"searchable"         json:"searchable,omitempty"`
	SearchPlaceholder string             `yaml:"search_placeholder" json:"search_placeholder,omitempty"`
	PageSize          int                `yaml:"page_size"          json:"page_size,omitempty"`
	EmptyMessage      string             `yaml:"empty_message"      json:"empty_message,omitempty"`
	DefaultSort       string             `yaml:"default_sort"       json:"default_sort,omitempty"`
	SortDir           string             `yaml:"sort_dir"           json:"sort_dir,omitempty"`
	Filters           []FilterDefinition `yaml:"filters"            json:"filters,omitempty"`
	Stats             []StatDefinition   `yaml:"stats"              json:"stats,omitempty"`
	RowActions        []ActionDefinition `yaml:"row_actions"        json:"row_actions,omitempty"`
}

// IsSearchable reports whether the search box is shown. Defaults to true.
func (t *TableDefinition) IsSearchable() bool {
	return t.Searchable == nil || *t.Searchable
}

// ColumnDefinition describes a table column.
type ColumnDefinition struct {
	Field     string            `yaml:"field"      json:"field"`
	Label     string            `yaml:"label"      json:"label"`
	Type      string            `yaml:"type"       json:"type"`
	Sortable  bool              `yaml:"sortable"   json:"sortable,omitempty"`
	ClassName string            `yaml:"class_name" json:"class_name,omitempty"`
	Format    string            `yaml:"format"     json:"format,omitempty"`
	StatusMap map[string]string `yaml:"status_map" json:"status_map,omitempty"`
}

// FilterDefinition describes an exact-match facet above a table. A filter
// whose value is empty or equal to AllValue is inactive.
type FilterDefinition struct {
	Field    string                   `yaml:"field"     json:"field"`
	Label    string                   `yaml:"label"     json:"label"`
	AllValue string                   `yaml:"all_value" json:"all_value,omitempty"`
	Options  *FilterOptionsDefinition `yaml:"options"   json:"options,omitempty"`
}

// FilterOptionsDefinition describes where a facet takes its options from.
// OptionsFrom derives them from the distinct values of a field of the
// loaded collection.
type FilterOptionsDefinition struct {
	LookupID    string         `yaml:"lookup_id"    json:"lookup_id,omitempty"`
	Static      []StaticOption `yaml:"static"       json:"static,omitempty"`
	OptionsFrom string         `yaml:"options_from" json:"options_from,omitempty"`
}

// StaticOption is a label/value pair for dropdowns and filters.
type StaticOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// Stat kinds.
const (
	StatCount    = "count"
	StatDistinct = "distinct"
)

// StatDefinition describes a summary card computed over a collection.
// "count" counts records (optionally where Field equals Value); "distinct"
// counts distinct non-empty values of Field.
type StatDefinition struct {
	ID    string `yaml:"id"    json:"id"`
	Label string `yaml:"label" json:"label"`
	Kind  string `yaml:"kind"  json:"kind"`
	Field string `yaml:"field" json:"field,omitempty"`
	Value string `yaml:"value" json:"value,omitempty"`
}

// Action types.
const (
	ActionNavigate = "navigate"
	ActionDelete   = "delete"
)

// ActionDefinition describes a UI action (button, row menu item).
type ActionDefinition struct {
	ID           string                  `yaml:"id"           json:"id"`
	Label        string                  `yaml:"label"        json:"label"`
	Icon         string                  `yaml:"icon"         json:"icon,omitempty"`
	Style        string                  `yaml:"style"        json:"style,omitempty"`
	Capabilities []string                `yaml:"capabilities" json:"capabilities"`
	Type         string                  `yaml:"type"         json:"type"`
	NavigateTo   string                  `yaml:"navigate_to"  json:"navigate_to,omitempty"`
	Confirmation *ConfirmationDefinition `yaml:"confirmation" json:"confirmation,omitempty"`
	Params       map[string]string       `yaml:"params"       json:"params,omitempty"`
}

// ConfirmationDefinition describes a confirmation dialog.
type ConfirmationDefinition struct {
	Title   string `yaml:"title"   json:"title"`
	Message string `yaml:"message" json:"message"`
	Confirm string `yaml:"confirm" json:"confirm"`
	Cancel  string `yaml:"cancel"  json:"cancel,omitempty"`
	Style   string `yaml:"style"   json:"style,omitempty"`
}

// SearchDefinition describes one resource participating in global search.
type SearchDefinition struct {
	ID            string   `yaml:"id"             json:"id"`
	Resource      string   `yaml:"resource"       json:"resource"`
	Category      string   `yaml:"category"       json:"category"`
	Icon          string   `yaml:"icon"           json:"icon,omitempty"`
	Capabilities  []string `yaml:"capabilities"   json:"capabilities"`
	SearchKeys    []string `yaml:"search_keys"    json:"search_keys"`
	TitleField    string   `yaml:"title_field"    json:"title_field"`
	SubtitleField string   `yaml:"subtitle_field" json:"subtitle_field,omitempty"`
	Route         string   `yaml:"route"          json:"route"`
	Weight        int      `yaml:"weight"         json:"weight,omitempty"`
	MaxResults    int      `yaml:"max_results"    json:"max_results,omitempty"`
}

// LookupDefinition describes a list of options for dropdowns. Either Static
// is set or Resource names the collection the options are read from.
type LookupDefinition struct {
	ID         string         `yaml:"id"          json:"id"`
	Static     []StaticOption `yaml:"static"      json:"static,omitempty"`
	Resource   string         `yaml:"resource"    json:"resource,omitempty"`
	LabelField string         `yaml:"label_field" json:"label_field,omitempty"`
	ValueField string         `yaml:"value_field" json:"value_field,omitempty"`
	Cache      *CacheConfig   `yaml:"cache"       json:"cache,omitempty"`
}

// CacheConfig describes caching settings for a lookup.
type CacheConfig struct {
	TTL   string `yaml:"ttl"   json:"ttl"`
	Scope string `yaml:"scope" json:"scope"`
}
