package table

import (
	"strconv"
	"strings"

	"github.com/pitabwire/maximiza/model"
)

// Column formats understood by FromDefinition.
const (
	FormatDate = "date"
)

// FromDefinition builds an engine configuration from a page's table
// definition. Columns with a status map or a known format get a renderer.
func FromDefinition(def *model.TableDefinition) Config {
	if def == nil {
		return Config{}.withDefaults()
	}
	cfg := Config{
		PageSize:     def.PageSize,
		EmptyMessage: def.EmptyMessage,
		Search:       SearchConfig{Placeholder: def.SearchPlaceholder},
	}
	if def.IsSearchable() {
		cfg.Search.SearchKeys = def.SearchKeys
	}
	for _, c := range def.Columns {
		cfg.Columns = append(cfg.Columns, Column{
			Key:       c.Field,
			Header:    c.Label,
			Sortable:  c.Sortable,
			ClassName: c.ClassName,
			Render:    renderer(c),
		})
	}
	for _, f := range def.Filters {
		cfg.Facets = append(cfg.Facets, Facet{Key: f.Field, AllValue: f.AllValue})
	}
	return cfg.withDefaults()
}

// DefaultSort returns the initial sort a definition asks for, or nil.
func DefaultSort(def *model.TableDefinition) *SortState {
	if def == nil || def.DefaultSort == "" {
		return nil
	}
	return &SortState{Key: def.DefaultSort, Direction: ParseDirection(def.SortDir)}
}

func renderer(c model.ColumnDefinition) func(any) string {
	switch {
	case len(c.StatusMap) > 0:
		labels := c.StatusMap
		return func(v any) string {
			s := Cell(v)
			if label, ok := labels[s]; ok {
				return label
			}
			return s
		}
	case c.Format == FormatDate:
		return func(v any) string { return formatDate(Cell(v)) }
	}
	return nil
}

// formatDate renders an ISO date or timestamp as dd/mm/yyyy. Anything else
// is returned unchanged.
func formatDate(s string) string {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return s
	}
	return s[8:10] + "/" + s[5:7] + "/" + s[0:4]
}

// Describe converts a derived view of rows into its wire form.
func Describe(pageID string, v View[model.Row], cols []Column, stats []model.StatValue) model.TableView {
	out := model.TableView{
		PageID:        pageID,
		Rows:          make([]model.RowView, 0, len(v.Rows)),
		TotalFiltered: v.TotalFiltered,
		CurrentPage:   v.CurrentPage,
		TotalPages:    v.TotalPages,
		PageSize:      v.PageSize,
		SearchText:    v.SearchText,
		Filters:       v.Filters,
		Empty:         v.Empty,
		EmptyMessage:  v.EmptyMessage,
		From:          v.From,
		To:            v.To,
		Stats:         stats,
	}
	for _, r := range v.Rows {
		out.Rows = append(out.Rows, model.RowView{
			ID:     r.RecordID(),
			Values: r,
			Cells:  RenderRow(cols, r),
		})
	}
	if v.Sort != nil {
		out.Sort = &model.SortView{
			Key:       v.Sort.Key,
			Direction: v.Sort.Direction.String(),
			Indicator: Indicator(v.Sort, v.Sort.Key),
		}
	}
	return out
}

// StateFromQuery reads a stateless table state from request parameters:
// q, sort, dir, page and any facet key of cfg. A non-numeric page reads as
// 1; numeric pages are returned as given for the caller to range-check.
func StateFromQuery(get func(string) string, cfg Config) State {
	st := State{SearchText: get("q"), Page: 1}
	if key := strings.TrimSpace(get("sort")); key != "" {
		st.Sort = &SortState{Key: key, Direction: ParseDirection(get("dir"))}
	}
	if raw := get("page"); raw != "" {
		st.Page = atoiOr(raw, 1)
	}
	for _, f := range cfg.Facets {
		if v := get(f.Key); v != "" && v != f.AllValue {
			if st.Filters == nil {
				st.Filters = make(map[string]string)
			}
			st.Filters[f.Key] = v
		}
	}
	return st
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
