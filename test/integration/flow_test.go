package integration

import (
	"net/http"
	"testing"

	"github.com/pitabwire/maximiza/model"
)

func TestGestorFlow_pageDataMountAndCreate(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.On("GET /escolas").
		RespondWith(http.StatusOK, []any{EscolaFixture("e-1", "EM Centro", "m-1")}).
		RespondWith(http.StatusOK, []any{
			EscolaFixture("e-1", "EM Centro", "m-1"),
			EscolaFixture("e-9", "EM Leste", "m-1"),
		})
	h.Backend.On("POST /escolas").RespondWith(http.StatusCreated, EscolaFixture("e-9", "EM Leste", "m-1"))

	token := h.Login(GestorUser(), "backend-token-gestor")

	var nav model.NavigationTree
	h.AssertJSON(t, h.GET("/ui/navigation", token), http.StatusOK, &nav)
	if nav.Workspace != model.WorkspaceMunicipio {
		t.Errorf("workspace = %q, want %q", nav.Workspace, model.WorkspaceMunicipio)
	}

	var tv model.TableView
	h.AssertJSON(t, h.POST("/ui/views", map[string]string{"page_id": "municipio-escolas"}, token), http.StatusCreated, &tv)
	if tv.TotalFiltered != 1 {
		t.Fatalf("mounted rows = %d, want 1", tv.TotalFiltered)
	}

	list := h.Backend.LastRequest("GET /escolas")
	if list == nil {
		t.Fatal("backend list was not called")
	}
	if got := list.Headers.Get("Authorization"); got != "Bearer backend-token-gestor" {
		t.Errorf("Authorization = %q, want the backend token", got)
	}
	if list.Headers.Get("X-Correlation-Id") == "" {
		t.Error("X-Correlation-Id should be forwarded")
	}
	if got := list.QueryParams["municipioId"]; got != "m-1" {
		t.Errorf("municipioId query = %q, want m-1", got)
	}

	var out model.MutationResponse
	h.AssertJSON(t, h.POST("/ui/resources/escolas", map[string]any{
		"nome": "EM Leste", "codigo": "E-9", "endereco": "Rua das Flores, 100",
		"tipoEnsino": "fundamental", "turno": "matutino", "status": "ativo",
		"municipioId": "m-2",
	}, token), http.StatusCreated, &out)
	if !out.Success {
		t.Errorf("mutation = %+v", out)
	}

	created := h.Backend.LastRequest("POST /escolas")
	if created == nil {
		t.Fatal("backend create was not called")
	}
	if created.Body["municipioId"] != "m-1" {
		t.Errorf("created municipioId = %v, want the gestor's own", created.Body["municipioId"])
	}
	h.Backend.AssertCalled(t, "GET /escolas", 2)

	viewID := tv.ViewID
	tv = model.TableView{}
	h.AssertJSON(t, h.GET("/ui/views/"+viewID, token), http.StatusOK, &tv)
	if tv.TotalFiltered != 2 {
		t.Errorf("view after create = %d rows, want 2", tv.TotalFiltered)
	}
}

func TestAdminFlow_dashboardAndPageData(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.On("GET /dashboard/stats").RespondWith(http.StatusOK, map[string]any{
		"totalMunicipios": 2, "totalEscolas": 3, "totalAlunos": 40, "totalUsuarios": 5,
	})
	h.Backend.On("GET /dashboard/charts").RespondWith(http.StatusOK, map[string]any{})
	h.Backend.On("GET /municipios").RespondWith(http.StatusOK, []any{
		map[string]any{"id": "m-1", "nome": "São Luís", "estado": "MA", "status": "ativo"},
		map[string]any{"id": "m-2", "nome": "Campinas", "estado": "SP", "status": "ativo"},
	})

	token := h.Login(AdminUser(), "backend-token-admin")

	var dash model.Dashboard
	h.AssertJSON(t, h.GET("/ui/dashboard", token), http.StatusOK, &dash)
	if dash.Stats.TotalMunicipios == nil || *dash.Stats.TotalMunicipios != 2 {
		t.Errorf("total municipios = %v, want 2", dash.Stats.TotalMunicipios)
	}
	if q := h.Backend.LastRequest("GET /dashboard/stats").QueryParams["municipioId"]; q != "" {
		t.Errorf("admin dashboard scoped to %q, want unscoped", q)
	}

	var data model.DataResponse
	h.AssertJSON(t, h.GET("/ui/pages/admin-municipios/data?q=campinas", token), http.StatusOK, &data)
	if data.Data.TotalFiltered != 1 || data.Data.Rows[0].ID != "m-2" {
		t.Errorf("filtered rows = %+v", data.Data.Rows)
	}
}

func TestLogout_invalidatesToken(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Login(AdminUser(), "backend-token-admin")

	h.AssertStatus(t, h.POST("/ui/auth/logout", nil, token), http.StatusNoContent)

	env := h.ErrorOf(h.GET("/ui/navigation", token))
	if env.Code != model.ErrUnauthorized {
		t.Errorf("code = %q, want %q", env.Code, model.ErrUnauthorized)
	}
}
