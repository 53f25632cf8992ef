package metadata

import (
	"testing"

	"github.com/pitabwire/maximiza/internal/backend/backendtest"
	"github.com/pitabwire/maximiza/model"
)

func newPageProvider(f fixture) *PageProvider {
	return NewPageProvider(f.registry, f.store, NewActionProvider(), nil)
}

func TestGetPage_descriptor(t *testing.T) {
	f := newFixture(t)
	rctx := gestorCtx()

	desc, err := newPageProvider(f).GetPage(background, rctx, capsFor(t, rctx), "municipio-escolas", "")
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if desc.Route != "/municipio/m-1/escolas" {
		t.Errorf("Route = %q", desc.Route)
	}
	tbl := desc.Table
	if tbl == nil {
		t.Fatal("Table is nil")
	}
	if tbl.DataEndpoint != "/ui/pages/municipio-escolas/data" || tbl.ViewsEndpoint != "/ui/views" {
		t.Errorf("endpoints = %q, %q", tbl.DataEndpoint, tbl.ViewsEndpoint)
	}
	if !tbl.Searchable || tbl.SearchPlaceholder != "Buscar por nome ou código..." {
		t.Errorf("search = %v, %q", tbl.Searchable, tbl.SearchPlaceholder)
	}
	if tbl.PageSize != 10 || tbl.EmptyMessage != "Nenhuma escola encontrada" {
		t.Errorf("page size = %d, empty = %q", tbl.PageSize, tbl.EmptyMessage)
	}
	if len(tbl.Filters) != 1 || len(tbl.Filters[0].Options) != 4 {
		t.Fatalf("filters = %+v, want tipoEnsino with 4 lookup options", tbl.Filters)
	}
	if len(tbl.RowActions) != 2 || tbl.RowActions[0].NavigateTo != "/municipio/m-1/escolas?editar={id}" {
		t.Errorf("row actions = %+v", tbl.RowActions)
	}
}

func TestGetPage_readOnlyUserHasNoRowActions(t *testing.T) {
	f := newFixture(t)
	rctx := usuarioCtx()

	desc, err := newPageProvider(f).GetPage(background, rctx, capsFor(t, rctx), "municipio-escolas", "")
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if len(desc.Table.RowActions) != 0 {
		t.Errorf("row actions = %+v, want none", desc.Table.RowActions)
	}
}

func TestGetPage_optionsFromCollection(t *testing.T) {
	f := newFixture(t)
	rctx := gestorCtx()

	desc, err := newPageProvider(f).GetPage(background, rctx, capsFor(t, rctx), "municipio-alunos", "")
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	opts := desc.Table.Filters[0].Options
	if len(opts) != 2 || opts[0].Value != "EM Centro" || opts[1].Value != "EM Norte" {
		t.Errorf("escola options = %+v", opts)
	}
	if desc.Table.Filters[0].AllValue != "todas" {
		t.Errorf("AllValue = %q", desc.Table.Filters[0].AllValue)
	}
}

func TestGetPage_errors(t *testing.T) {
	f := newFixture(t)
	p := newPageProvider(f)

	rctx := gestorCtx()
	if _, err := p.GetPage(background, rctx, capsFor(t, rctx), "nope", ""); model.AsEnvelope(err).Code != model.ErrNotFound {
		t.Errorf("unknown page error = %v", err)
	}
	if _, err := p.GetPage(background, rctx, capsFor(t, rctx), "admin-municipios", ""); model.AsEnvelope(err).Code != model.ErrForbidden {
		t.Errorf("admin page error = %v", err)
	}

	rctx = usuarioCtx()
	if _, err := p.GetPage(background, rctx, capsFor(t, rctx), "municipio-usuarios", ""); model.AsEnvelope(err).Code != model.ErrForbidden {
		t.Errorf("usuarios page for usuario error = %v", err)
	}
}

func TestGetPageData_searchSortPage(t *testing.T) {
	f := newFixture(t)
	rctx := adminCtx()
	p := newPageProvider(f)

	resp, err := p.GetPageData(background, rctx, capsFor(t, rctx), "admin-municipios", "", query(map[string]string{"q": "luis"}))
	if err != nil {
		t.Fatalf("GetPageData() error = %v", err)
	}
	if resp.Data.TotalFiltered != 1 || resp.Data.Rows[0].ID != "m-1" {
		t.Errorf("accent-insensitive search = %+v", resp.Data.Rows)
	}

	resp, err = p.GetPageData(background, rctx, capsFor(t, rctx), "admin-municipios", "", query(nil))
	if err != nil {
		t.Fatalf("GetPageData() error = %v", err)
	}
	if resp.Data.Sort == nil || resp.Data.Sort.Key != "nome" || resp.Data.Sort.Direction != "asc" {
		t.Errorf("default sort = %+v", resp.Data.Sort)
	}
	if resp.Data.Rows[0].Values.String("nome") != "Abaetetuba" {
		t.Errorf("first row = %q", resp.Data.Rows[0].Values.String("nome"))
	}
	if resp.Data.Rows[2].Cells["status"] != "Ativo" {
		t.Errorf("status cell = %q", resp.Data.Rows[2].Cells["status"])
	}

	resp, err = p.GetPageData(background, rctx, capsFor(t, rctx), "admin-municipios", "",
		query(map[string]string{"sort": "nome", "dir": "desc", "estado": "SP"}))
	if err != nil {
		t.Fatalf("GetPageData() error = %v", err)
	}
	if resp.Data.TotalFiltered != 1 || resp.Data.Rows[0].ID != "m-2" {
		t.Errorf("facet filter = %+v", resp.Data.Rows)
	}
	if resp.Meta["total"] != 3 {
		t.Errorf("meta total = %v", resp.Meta["total"])
	}
}

func TestGetPageData_statsCoverWholeCollection(t *testing.T) {
	f := newFixture(t)
	rctx := gestorCtx()

	resp, err := newPageProvider(f).GetPageData(background, rctx, capsFor(t, rctx), "municipio-alunos", "m-2",
		query(map[string]string{"escola": "EM Norte"}))
	if err != nil {
		t.Fatalf("GetPageData() error = %v", err)
	}
	if resp.Data.TotalFiltered != 1 {
		t.Errorf("TotalFiltered = %d, want 1", resp.Data.TotalFiltered)
	}
	want := map[string]int{"total": 3, "ativos": 2, "escolas": 2, "series": 2}
	for _, s := range resp.Data.Stats {
		if s.Value != want[s.ID] {
			t.Errorf("stat %s = %d, want %d", s.ID, s.Value, want[s.ID])
		}
	}
	if resp.Meta["scope"] != "m-1" {
		t.Errorf("scope = %v, want m-1", resp.Meta["scope"])
	}
}

func TestGetPageData_emptyAndBackendError(t *testing.T) {
	f := newFixture(t)
	rctx := gestorCtx()
	p := newPageProvider(f)

	resp, err := p.GetPageData(background, rctx, capsFor(t, rctx), "municipio-solucoes", "", query(nil))
	if err != nil {
		t.Fatalf("GetPageData() error = %v", err)
	}
	if !resp.Data.Empty || resp.Data.EmptyMessage != "Nenhuma solução encontrada" {
		t.Errorf("empty view = %+v", resp.Data)
	}

	f.backend.Fail(backendtest.OpList, model.ResourceEscolas, model.NewBackendError(500, "Erro interno"))
	if _, err := p.GetPageData(background, rctx, capsFor(t, rctx), "municipio-escolas", "", query(nil)); err == nil {
		t.Error("expected backend error")
	}
}

func TestGetPageData_rejectsOutOfRangeStates(t *testing.T) {
	f := newFixture(t)
	rctx := adminCtx()
	p := newPageProvider(f)

	tests := []struct {
		name   string
		params map[string]string
	}{
		{"page past the last", map[string]string{"page": "99"}},
		{"page zero", map[string]string{"page": "0"}},
		{"negative page", map[string]string{"page": "-2"}},
		{"page past the last after search", map[string]string{"q": "campinas", "page": "2"}},
		{"unsortable column", map[string]string{"sort": "status"}},
		{"unknown column", map[string]string{"sort": "senha"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.GetPageData(background, rctx, capsFor(t, rctx), "admin-municipios", "", query(tt.params))
			env := model.AsEnvelope(err)
			if env == nil || env.Code != model.ErrBadRequest {
				t.Fatalf("GetPageData(%v) error = %v, want BAD_REQUEST", tt.params, err)
			}
		})
	}
}

func TestGetPageData_lastPageIsServed(t *testing.T) {
	f := newFixture(t)
	rctx := adminCtx()

	resp, err := newPageProvider(f).GetPageData(background, rctx, capsFor(t, rctx), "admin-municipios", "",
		query(map[string]string{"page": "1", "sort": "estado"}))
	if err != nil {
		t.Fatalf("GetPageData() error = %v", err)
	}
	if resp.Data.CurrentPage != 1 || resp.Data.TotalPages != 1 || len(resp.Data.Rows) != 3 {
		t.Errorf("view = page %d of %d, %d rows", resp.Data.CurrentPage, resp.Data.TotalPages, len(resp.Data.Rows))
	}
	if resp.Data.Rows[0].Values.String("estado") != "MA" {
		t.Errorf("first estado = %q, want MA", resp.Data.Rows[0].Values.String("estado"))
	}
}
