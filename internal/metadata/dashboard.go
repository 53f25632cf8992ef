package metadata

import (
	"context"
	"sync"

	"github.com/pitabwire/maximiza/model"
)

// DashboardProvider assembles the dashboard of a workspace from the backend
// counters and chart series.
type DashboardProvider struct {
	backend model.Backend
}

// NewDashboardProvider creates a DashboardProvider.
func NewDashboardProvider(backend model.Backend) *DashboardProvider {
	return &DashboardProvider{backend: backend}
}

// GetDashboard fetches stats and charts concurrently. Municipal callers are
// pinned to their own municipio; an administrator without municipioID gets
// the platform totals.
func (p *DashboardProvider) GetDashboard(
	ctx context.Context,
	rctx *model.RequestContext,
	caps model.CapabilitySet,
	municipioID string,
) (model.Dashboard, error) {
	if !caps.Can("dashboard", "view") {
		return model.Dashboard{}, model.NewForbiddenError("insufficient capabilities for the dashboard")
	}
	scope := rctx.ScopeMunicipio(municipioID)

	var (
		wg              sync.WaitGroup
		stats           model.DashboardStats
		charts          model.DashboardCharts
		statsErr, chErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, statsErr = p.backend.DashboardStats(ctx, rctx, scope)
	}()
	go func() {
		defer wg.Done()
		charts, chErr = p.backend.DashboardCharts(ctx, rctx, scope)
	}()
	wg.Wait()

	if statsErr != nil {
		return model.Dashboard{}, statsErr
	}
	if chErr != nil {
		return model.Dashboard{}, chErr
	}
	if scope != "" {
		stats.TotalMunicipios = nil
	}
	return model.Dashboard{MunicipioID: scope, Stats: stats, Charts: charts}, nil
}
