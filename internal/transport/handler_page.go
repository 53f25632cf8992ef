package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/maximiza/internal/metadata"
	"github.com/pitabwire/maximiza/model"
)

// MunicipioQueryParam selects the municipio an administrator browses.
const MunicipioQueryParam = "municipioId"

func handleNavigation(menu *metadata.MenuProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		tree, err := menu.GetMenu(rctx, caps,
			r.URL.Query().Get("workspace"),
			r.URL.Query().Get(MunicipioQueryParam),
		)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, tree)
	}
}

func handleDashboard(dashboard *metadata.DashboardProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		d, err := dashboard.GetDashboard(r.Context(), rctx, caps, r.URL.Query().Get(MunicipioQueryParam))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, d)
	}
}

func handleGetPage(pages *metadata.PageProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		pageID := chi.URLParam(r, "pageId")

		desc, err := pages.GetPage(r.Context(), rctx, caps, pageID, r.URL.Query().Get(MunicipioQueryParam))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

// handleGetPageData answers one stateless table state. Query parameters:
// q, sort, dir, page, municipioId and one per facet field.
func handleGetPageData(pages *metadata.PageProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		pageID := chi.URLParam(r, "pageId")
		q := r.URL.Query()

		data, err := pages.GetPageData(r.Context(), rctx, caps, pageID, q.Get(MunicipioQueryParam), q.Get)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, data)
	}
}

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
