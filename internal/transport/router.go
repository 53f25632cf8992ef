package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/guard"
	"github.com/pitabwire/maximiza/internal/metadata"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/search"
	"github.com/pitabwire/maximiza/internal/session"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/internal/views"
	"github.com/pitabwire/maximiza/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Metrics            *observability.Metrics
	Readiness          observability.ReadinessChecks
	Backend            model.Backend
	Sessions           *session.Manager
	CapabilityResolver model.CapabilityResolver
	Guard              *guard.Guard
	Store              *store.Store
	Views              *views.Manager
	Menu               *metadata.MenuProvider
	Pages              *metadata.PageProvider
	Forms              *metadata.FormProvider
	Dashboard          *metadata.DashboardProvider
	Search             *search.SearchProvider
	Lookups            *search.LookupProvider
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics, login and route
// authorization bypass session authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.logger()
	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(RequestLogging(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Post("/ui/auth/login", handleLogin(deps))
		r.Get("/ui/routes/authorize", handleAuthorizeRoute(deps))
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(deps.Sessions, deps.Config.Session.CookieName))
		r.Use(ResolveCapabilities(deps.CapabilityResolver))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

		r.Post("/ui/auth/logout", handleLogout(deps))
		r.Get("/ui/auth/me", handleMe(deps))

		r.Get("/ui/navigation", handleNavigation(deps.Menu))
		r.Get("/ui/dashboard", handleDashboard(deps.Dashboard))
		r.Get("/ui/pages/{pageId}", handleGetPage(deps.Pages))
		r.Get("/ui/pages/{pageId}/data", handleGetPageData(deps.Pages))

		r.Post("/ui/views", handleMountView(deps.Views))
		r.Get("/ui/views/{viewId}", handleGetView(deps.Views))
		r.Post("/ui/views/{viewId}/search", handleSearchView(deps.Views))
		r.Post("/ui/views/{viewId}/sort", handleSortView(deps.Views))
		r.Post("/ui/views/{viewId}/page", handlePageView(deps.Views))
		r.Post("/ui/views/{viewId}/filter", handleFilterView(deps.Views))
		r.Post("/ui/views/{viewId}/refresh", handleRefreshView(deps.Views))
		r.Delete("/ui/views/{viewId}", handleUnmountView(deps.Views))

		r.Get("/ui/resources/{resource}/{id}", handleGetRecord(deps.Forms))
		r.Post("/ui/resources/{resource}", handleCreateRecord(deps.Store))
		r.Put("/ui/resources/{resource}/{id}", handleUpdateRecord(deps.Store))
		r.Delete("/ui/resources/{resource}/{id}", handleDeleteRecord(deps.Store))

		r.Get("/ui/lookups/{lookupId}", handleLookup(deps.Lookups))
		r.Get("/ui/search", handleSearch(deps.Search))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeRequestError(w, r, model.NewNotFoundError("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: &model.ErrorEnvelope{
			Code:    model.ErrBadRequest,
			Message: "method not allowed",
			TraceID: CorrelationIDFrom(r.Context()),
		}})
	})

	return r
}
