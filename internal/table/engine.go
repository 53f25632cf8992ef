package table

import "github.com/pitabwire/maximiza/model"

// Engine holds the user-driven state of one table over a record set and
// derives its view on demand. An Engine is not safe for concurrent use;
// callers serialize events.
type Engine[T model.Record] struct {
	records []T
	cfg     Config
	st      State
}

// New returns an engine over records, unsorted, unfiltered, on page 1.
// records is never modified.
func New[T model.Record](records []T, cfg Config) *Engine[T] {
	return &Engine[T]{
		records: records,
		cfg:     cfg.withDefaults(),
		st:      State{Page: 1},
	}
}

// Config returns the engine configuration with defaults applied.
func (e *Engine[T]) Config() Config { return e.cfg }

// SetSearchText replaces the search text and returns to page 1.
func (e *Engine[T]) SetSearchText(text string) {
	e.st.SearchText = text
	e.st.Page = 1
}

// ToggleSort advances the sort of key through none, ascending, descending,
// and back to none. A key other than the active one starts at ascending.
func (e *Engine[T]) ToggleSort(key string) {
	switch {
	case e.st.Sort == nil || e.st.Sort.Key != key:
		e.st.Sort = &SortState{Key: key, Direction: Ascending}
	case e.st.Sort.Direction == Ascending:
		e.st.Sort = &SortState{Key: key, Direction: Descending}
	default:
		e.st.Sort = nil
	}
}

// SetSort forces a sort state; nil clears it.
func (e *Engine[T]) SetSort(s *SortState) {
	if s == nil {
		e.st.Sort = nil
		return
	}
	c := *s
	e.st.Sort = &c
}

// SetPage moves to page n. The value is not clamped.
func (e *Engine[T]) SetPage(n int) {
	e.st.Page = n
}

// SetFilter sets the exact-match facet key to value and returns to page 1.
// An empty value, or the facet's configured all-value, clears the facet.
func (e *Engine[T]) SetFilter(key, value string) {
	if value == "" || value == e.allValue(key) {
		delete(e.st.Filters, key)
	} else {
		if e.st.Filters == nil {
			e.st.Filters = make(map[string]string)
		}
		e.st.Filters[key] = value
	}
	e.st.Page = 1
}

// SetRecords swaps the record set after a re-fetch. Search, sort, and
// facets are kept; the page is pulled back into range.
func (e *Engine[T]) SetRecords(records []T) {
	e.records = records
	if e.st.Page < 1 {
		e.st.Page = 1
	}
	if last := e.View().TotalPages; e.st.Page > last {
		e.st.Page = last
	}
}

// Records returns the unfiltered record set.
func (e *Engine[T]) Records() []T { return e.records }

// State returns a copy of the current user-driven state.
func (e *Engine[T]) State() State {
	st := e.st
	st.Filters = copyFilters(e.st.Filters)
	if e.st.Sort != nil {
		s := *e.st.Sort
		st.Sort = &s
	}
	return st
}

// View derives the current view.
func (e *Engine[T]) View() View[T] {
	return Derive(e.records, e.cfg, e.st)
}

// SortIndicator returns the header arrow for key: "↑" ascending, "↓"
// descending, "" when key is not the active sort.
func (e *Engine[T]) SortIndicator(key string) string {
	return Indicator(e.st.Sort, key)
}

// Indicator returns the header arrow for key under sort.
func Indicator(sort *SortState, key string) string {
	if sort == nil || sort.Key != key {
		return ""
	}
	if sort.Direction == Descending {
		return IndicatorDesc
	}
	return IndicatorAsc
}

// Render returns the display text of every column for rec.
func (e *Engine[T]) Render(rec T) map[string]string {
	return RenderRow(e.cfg.Columns, rec)
}

// RenderRow returns the display text of every column for rec.
func RenderRow[T model.Record](cols []Column, rec T) map[string]string {
	out := make(map[string]string, len(cols))
	for _, c := range cols {
		v := rec.Field(c.Key)
		if c.Render != nil {
			out[c.Key] = c.Render(v)
			continue
		}
		out[c.Key] = Cell(v)
	}
	return out
}

func (e *Engine[T]) allValue(key string) string {
	for _, f := range e.cfg.Facets {
		if f.Key == key {
			return f.AllValue
		}
	}
	return ""
}
