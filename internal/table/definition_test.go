package table

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/maximiza/model"
)

func alunosTable() *model.TableDefinition {
	return &model.TableDefinition{
		Columns: []model.ColumnDefinition{
			{Field: "nome", Label: "Nome", Sortable: true},
			{Field: "dataNascimento", Label: "Nascimento", Format: FormatDate},
			{Field: "status", Label: "Status", StatusMap: map[string]string{"ativo": "Ativo", "inativo": "Inativo"}},
		},
		SearchKeys:  []string{"nome", "matricula"},
		PageSize:    5,
		DefaultSort: "nome",
		SortDir:     "desc",
		Filters:     []model.FilterDefinition{{Field: "escola", Label: "Escola", AllValue: "todas"}},
	}
}

func TestFromDefinition(t *testing.T) {
	cfg := FromDefinition(alunosTable())

	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, DefaultEmptyMessage, cfg.EmptyMessage)
	assert.Equal(t, DefaultSearchPlaceholder, cfg.Search.Placeholder)
	assert.Equal(t, []string{"nome", "matricula"}, cfg.Search.SearchKeys)
	require.Len(t, cfg.Columns, 3)
	assert.True(t, cfg.Columns[0].Sortable)
	assert.Equal(t, []Facet{{Key: "escola", AllValue: "todas"}}, cfg.Facets)

	cells := RenderRow(cfg.Columns, model.Row{"nome": "Pedro", "dataNascimento": "2015-03-09", "status": "inativo"})
	assert.Equal(t, "09/03/2015", cells["dataNascimento"])
	assert.Equal(t, "Inativo", cells["status"])
}

func TestFromDefinition_notSearchable(t *testing.T) {
	def := alunosTable()
	off := false
	def.Searchable = &off

	assert.Empty(t, FromDefinition(def).Search.SearchKeys)
	assert.Equal(t, DefaultPageSize, FromDefinition(nil).PageSize)
}

func TestDefaultSort(t *testing.T) {
	s := DefaultSort(alunosTable())
	require.NotNil(t, s)
	assert.Equal(t, SortState{Key: "nome", Direction: Descending}, *s)
	assert.Nil(t, DefaultSort(&model.TableDefinition{}))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "01/12/2024", formatDate("2024-12-01T10:00:00Z"))
	assert.Equal(t, "ontem", formatDate("ontem"))
	assert.Equal(t, "", formatDate(""))
}

func TestDescribe(t *testing.T) {
	cfg := FromDefinition(alunosTable())
	rows := []model.Row{{"id": "a1", "nome": "Ana"}, {"id": "a2", "nome": "Bia"}}
	e := New(rows, cfg)
	e.ToggleSort("nome")
	e.ToggleSort("nome")

	tv := Describe("alunos", e.View(), cfg.Columns, nil)
	assert.Equal(t, "alunos", tv.PageID)
	require.Len(t, tv.Rows, 2)
	assert.Equal(t, "a2", tv.Rows[0].ID)
	assert.Equal(t, "Bia", tv.Rows[0].Cells["nome"])
	require.NotNil(t, tv.Sort)
	assert.Equal(t, "desc", tv.Sort.Direction)
	assert.Equal(t, IndicatorDesc, tv.Sort.Indicator)
	assert.Equal(t, 1, tv.From)
	assert.Equal(t, 2, tv.To)
}

func TestStateFromQuery(t *testing.T) {
	cfg := FromDefinition(alunosTable())
	q := url.Values{"q": {"ana"}, "sort": {"nome"}, "dir": {"desc"}, "page": {"2"}, "escola": {"EM Centro"}}

	st := StateFromQuery(q.Get, cfg)
	assert.Equal(t, "ana", st.SearchText)
	assert.Equal(t, 2, st.Page)
	require.NotNil(t, st.Sort)
	assert.Equal(t, Descending, st.Sort.Direction)
	assert.Equal(t, map[string]string{"escola": "EM Centro"}, st.Filters)

	st = StateFromQuery(url.Values{"page": {"x"}, "escola": {"todas"}}.Get, cfg)
	assert.Equal(t, 1, st.Page)
	assert.Nil(t, st.Sort)
	assert.Empty(t, st.Filters)

	st = StateFromQuery(url.Values{"page": {"-2"}}.Get, cfg)
	assert.Equal(t, -2, st.Page, "numeric pages are left for the caller to range-check")
}

func TestSortable(t *testing.T) {
	cfg := FromDefinition(alunosTable())
	assert.True(t, Sortable(cfg, "nome"))
	assert.False(t, Sortable(cfg, "status"))
	assert.False(t, Sortable(cfg, "senha"))
}
