// Package table is the tabular data engine behind every list screen. It
// filters, sorts, and paginates a slice of records without mutating it.
package table

import (
	"slices"
	"strconv"

	"github.com/pitabwire/maximiza/model"
)

// Defaults carried by every table unless configured otherwise.
const (
	DefaultPageSize          = 10
	DefaultSearchPlaceholder = "Buscar..."
	DefaultEmptyMessage      = "Nenhum registro encontrado"
)

// Sort indicators rendered next to the active column header.
const (
	IndicatorAsc  = "↑"
	IndicatorDesc = "↓"
)

// Direction is the direction of an active sort.
type Direction int

const (
	Ascending Direction = iota + 1
	Descending
)

// String returns "asc" or "desc".
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection parses "asc" or "desc". Anything else is ascending.
func ParseDirection(s string) Direction {
	if s == "desc" {
		return Descending
	}
	return Ascending
}

// SortState is the single active sort of a table.
type SortState struct {
	Key       string
	Direction Direction
}

// Column describes one rendered column. Render overrides the default cell
// text.
type Column struct {
	Key       string
	Header    string
	Sortable  bool
	ClassName string
	Render    func(v any) string
}

// SearchConfig lists the fields the search box matches against.
type SearchConfig struct {
	SearchKeys  []string
	Placeholder string
}

// Facet is an exact-match filter. A value equal to AllValue clears it.
type Facet struct {
	Key      string
	AllValue string
}

// Config configures an engine.
type Config struct {
	Columns      []Column
	Search       SearchConfig
	Facets       []Facet
	PageSize     int
	EmptyMessage string
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.EmptyMessage == "" {
		c.EmptyMessage = DefaultEmptyMessage
	}
	if c.Search.Placeholder == "" {
		c.Search.Placeholder = DefaultSearchPlaceholder
	}
	return c
}

// State is the user-driven part of a table: search text, sort, page, and
// active facets.
type State struct {
	SearchText string
	Sort       *SortState
	Page       int
	Filters    map[string]string
}

// View is one derived, render-ready state of a table.
type View[T model.Record] struct {
	Rows          []T
	TotalFiltered int
	CurrentPage   int
	TotalPages    int
	PageSize      int
	Sort          *SortState
	SearchText    string
	Filters       map[string]string
	Empty         bool
	EmptyMessage  string
	// From and To are the 1-based positions of the first and last visible
	// row within the filtered set, or 0 when no row is visible.
	From int
	To   int
}

// Sortable reports whether key names a sortable column of cfg.
func Sortable(cfg Config, key string) bool {
	for _, c := range cfg.Columns {
		if c.Key == key {
			return c.Sortable
		}
	}
	return false
}

// Derive computes the view of records under cfg and st. It is a pure
// function of its inputs.
func Derive[T model.Record](records []T, cfg Config, st State) View[T] {
	cfg = cfg.withDefaults()
	page := st.Page
	if page == 0 {
		page = 1
	}

	filtered := Filter(records, st.SearchText, cfg.Search.SearchKeys)
	filtered = FilterFacets(filtered, st.Filters)
	if st.Sort != nil {
		filtered = Sort(filtered, st.Sort.Key, st.Sort.Direction)
	}
	rows := Paginate(filtered, page, cfg.PageSize)

	v := View[T]{
		Rows:          rows,
		TotalFiltered: len(filtered),
		CurrentPage:   page,
		TotalPages:    TotalPages(len(filtered), cfg.PageSize),
		PageSize:      cfg.PageSize,
		SearchText:    st.SearchText,
		Filters:       copyFilters(st.Filters),
		Empty:         len(rows) == 0,
		EmptyMessage:  cfg.EmptyMessage,
	}
	if st.Sort != nil {
		s := *st.Sort
		v.Sort = &s
	}
	if len(rows) > 0 {
		v.From = (page-1)*cfg.PageSize + 1
		v.To = v.From + len(rows) - 1
	}
	return v
}

// Filter returns the records whose field, for at least one of keys,
// contains text. Matching ignores case and accents. Empty text or empty
// keys return records unchanged. Text made only of combining marks
// matches nothing.
func Filter[T model.Record](records []T, text string, keys []string) []T {
	if text == "" || len(keys) == 0 {
		return records
	}
	needle := Normalize(text)
	if needle == "" {
		return []T{}
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		for _, k := range keys {
			if containsNormalized(Cell(rec.Field(k)), needle) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// FilterFacets keeps the records whose field equals the value of every
// active facet.
func FilterFacets[T model.Record](records []T, facets map[string]string) []T {
	if len(facets) == 0 {
		return records
	}
	out := make([]T, 0, len(records))
next:
	for _, rec := range records {
		for k, want := range facets {
			if Cell(rec.Field(k)) != want {
				continue next
			}
		}
		out = append(out, rec)
	}
	return out
}

// Sort returns a sorted copy of records ordered by the field key. Records
// with a nil value go last in both directions. Ties keep their input order.
func Sort[T model.Record](records []T, key string, dir Direction) []T {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b T) int {
		av, bv := a.Field(key), b.Field(key)
		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}
		c := Compare(av, bv)
		if dir == Descending {
			return -c
		}
		return c
	})
	return out
}

// Paginate returns the 1-based page of records. Out-of-range pages are empty.
func Paginate[T model.Record](records []T, page, size int) []T {
	if size <= 0 {
		size = DefaultPageSize
	}
	start := (page - 1) * size
	if page < 1 || start >= len(records) {
		return []T{}
	}
	end := min(start+size, len(records))
	return slices.Clone(records[start:end])
}

// TotalPages returns ceil(n/size), and never less than 1.
func TotalPages(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return max(1, (n+size-1)/size)
}

// Cell renders a field value as display text. nil renders as "".
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case interface{ String() string }:
		return x.String()
	default:
		return fmtAny(x)
	}
}

func copyFilters(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
