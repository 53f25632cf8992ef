package model

// NavigationTree is the sidebar structure returned to the frontend.
type NavigationTree struct {
	Workspace string           `json:"workspace"`
	Items     []NavigationNode `json:"items"`
}

// NavigationNode is a single node in the navigation tree.
type NavigationNode struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Icon     string           `json:"icon"`
	Route    string           `json:"route,omitempty"`
	Children []NavigationNode `json:"children"`
}

// PageDescriptor is the resolved list page sent to the frontend.
type PageDescriptor struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Route      string                 `json:"route"`
	Resource   string                 `json:"resource"`
	Breadcrumb []BreadcrumbDescriptor `json:"breadcrumb,omitempty"`
	Table      *TableDescriptor       `json:"table,omitempty"`
	Actions    []ActionDescriptor     `json:"actions,omitempty"`
}

// BreadcrumbDescriptor is a single breadcrumb entry.
type BreadcrumbDescriptor struct {
	Label string `json:"label"`
	Route string `json:"route,omitempty"`
}

// TableDescriptor is the resolved table metadata sent to the frontend.
type TableDescriptor struct {
	Columns           []ColumnDescriptor `json:"columns"`
	SearchKeys        []string           `json:"search_keys"`
	Searchable        bool               `json:"searchable"`
	SearchPlaceholder string             `json:"search_placeholder"`
	Filters           []FilterDescriptor `json:"filters,omitempty"`
	RowActions        []ActionDescriptor `json:"row_actions,omitempty"`
	DataEndpoint      string             `json:"data_endpoint"`
	ViewsEndpoint     string             `json:"views_endpoint"`
	DefaultSort       string             `json:"default_sort,omitempty"`
	SortDir           string             `json:"sort_dir,omitempty"`
	PageSize          int                `json:"page_size"`
	EmptyMessage      string             `json:"empty_message"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Field     string            `json:"field"`
	Label     string            `json:"label"`
	Type      string            `json:"type"`
	Sortable  bool              `json:"sortable"`
	ClassName string            `json:"class_name,omitempty"`
	Format    string            `json:"format,omitempty"`
	StatusMap map[string]string `json:"status_map,omitempty"`
}

// FilterDescriptor describes a resolved facet control.
type FilterDescriptor struct {
	Field    string             `json:"field"`
	Label    string             `json:"label"`
	AllValue string             `json:"all_value,omitempty"`
	Options  []OptionDescriptor `json:"options,omitempty"`
}

// OptionDescriptor is a resolved option for dropdowns and filters.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ActionDescriptor is a resolved action sent to the frontend.
type ActionDescriptor struct {
	ID           string                  `json:"id"`
	Label        string                  `json:"label"`
	Icon         string                  `json:"icon,omitempty"`
	Style        string                  `json:"style,omitempty"`
	Type         string                  `json:"type"`
	Enabled      bool                    `json:"enabled"`
	Visible      bool                    `json:"visible"`
	NavigateTo   string                  `json:"navigate_to,omitempty"`
	Confirmation *ConfirmationDescriptor `json:"confirmation,omitempty"`
	Params       map[string]string       `json:"params,omitempty"`
}

// ConfirmationDescriptor describes a confirmation dialog.
type ConfirmationDescriptor struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Confirm string `json:"confirm"`
	Cancel  string `json:"cancel,omitempty"`
	Style   string `json:"style,omitempty"`
}

// SortView is the active sort of a table view. Direction is "asc" or "desc".
type SortView struct {
	Key       string `json:"key"`
	Direction string `json:"direction"`
	Indicator string `json:"indicator"`
}

// RowView is one rendered table row: the raw record plus the display text of
// each column.
type RowView struct {
	ID     string            `json:"id"`
	Values Row               `json:"values"`
	Cells  map[string]string `json:"cells"`
}

// StatValue is a computed summary card.
type StatValue struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

// TableView is one derived state of a list screen.
type TableView struct {
	ViewID        string            `json:"view_id,omitempty"`
	PageID        string            `json:"page_id"`
	Rows          []RowView         `json:"rows"`
	TotalFiltered int               `json:"total_filtered"`
	CurrentPage   int               `json:"current_page"`
	TotalPages    int               `json:"total_pages"`
	PageSize      int               `json:"page_size"`
	Sort          *SortView         `json:"sort,omitempty"`
	SearchText    string            `json:"search_text"`
	Filters       map[string]string `json:"filters,omitempty"`
	Empty         bool              `json:"empty"`
	EmptyMessage  string            `json:"empty_message"`
	From          int               `json:"from"`
	To            int               `json:"to"`
	Stats         []StatValue       `json:"stats,omitempty"`
}

// DataResponse is the standardized data response for list pages.
type DataResponse struct {
	Data TableView      `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// RecordResponse wraps a single record.
type RecordResponse struct {
	Data Row `json:"data"`
}

// MutationResponse is the outcome of a create, update, or delete.
type MutationResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Record  Row          `json:"record,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Dashboard is the resolved dashboard for a workspace.
type Dashboard struct {
	MunicipioID string          `json:"municipio_id,omitempty"`
	Stats       DashboardStats  `json:"stats"`
	Charts      DashboardCharts `json:"charts"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	User      Usuario `json:"user"`
	Redirect  string  `json:"redirect"`
}

// SessionInfo describes the caller of /ui/auth/me.
type SessionInfo struct {
	User        Usuario `json:"user"`
	Role        Role    `json:"role"`
	MunicipioID string  `json:"municipio_id,omitempty"`
	Workspace   string  `json:"workspace"`
}

// SearchResponse is the response from a global search query.
type SearchResponse struct {
	Data SearchPayload  `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// SearchPayload contains the search results.
type SearchPayload struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
	Query      string         `json:"query"`
}

// SearchResult is a single search result item.
type SearchResult struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle,omitempty"`
	Category string  `json:"category"`
	Icon     string  `json:"icon,omitempty"`
	Route    string  `json:"route"`
	Score    float64 `json:"score"`
}

// LookupResponse is the response from a lookup endpoint.
type LookupResponse struct {
	Data LookupPayload  `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// LookupPayload contains the lookup options.
type LookupPayload struct {
	Options []OptionDescriptor `json:"options"`
}
