package metadata

import (
	"testing"

	"github.com/pitabwire/maximiza/internal/backend/backendtest"
	"github.com/pitabwire/maximiza/model"
)

func TestGetDashboard_admin(t *testing.T) {
	f := newFixture(t)
	rctx := adminCtx()

	d, err := NewDashboardProvider(f.backend).GetDashboard(background, rctx, capsFor(t, rctx), "")
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if d.Stats.TotalMunicipios == nil || *d.Stats.TotalMunicipios != 3 {
		t.Errorf("TotalMunicipios = %v, want 3", d.Stats.TotalMunicipios)
	}
	if d.Stats.TotalAlunos != 3 {
		t.Errorf("TotalAlunos = %d, want 3", d.Stats.TotalAlunos)
	}
	if len(d.Charts.TipoEnsino) != 3 {
		t.Errorf("TipoEnsino = %+v", d.Charts.TipoEnsino)
	}
}

func TestGetDashboard_municipioScoped(t *testing.T) {
	f := newFixture(t)
	rctx := gestorCtx()

	d, err := NewDashboardProvider(f.backend).GetDashboard(background, rctx, capsFor(t, rctx), "m-2")
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if d.MunicipioID != "m-1" {
		t.Errorf("MunicipioID = %q, want m-1", d.MunicipioID)
	}
	if d.Stats.TotalMunicipios != nil {
		t.Error("municipal dashboards carry no municipio total")
	}
	calls := f.backend.Calls(backendtest.OpStats)
	if len(calls) != 1 || calls[0].MunicipioID != "m-1" {
		t.Errorf("stats calls = %+v", calls)
	}
}

func TestGetDashboard_errors(t *testing.T) {
	f := newFixture(t)
	p := NewDashboardProvider(f.backend)

	if _, err := p.GetDashboard(background, gestorCtx(), model.CapabilitySet{}, ""); model.AsEnvelope(err).Code != model.ErrForbidden {
		t.Errorf("error = %v, want FORBIDDEN", err)
	}

	rctx := gestorCtx()
	f.backend.FailNext(backendtest.OpCharts, "", model.NewBackendUnavailableError())
	if _, err := p.GetDashboard(background, rctx, capsFor(t, rctx), ""); model.AsEnvelope(err).Code != model.ErrBackendUnavailable {
		t.Errorf("error = %v, want BACKEND_UNAVAILABLE", err)
	}
}
