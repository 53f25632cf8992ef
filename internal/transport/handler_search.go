package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/maximiza/internal/search"
	"github.com/pitabwire/maximiza/model"
)

func handleSearch(provider *search.SearchProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		resp, err := provider.Search(r.Context(), rctx, caps,
			r.URL.Query().Get("q"),
			r.URL.Query().Get(MunicipioQueryParam),
			queryInt(r, "page", 1),
			queryInt(r, "page_size", search.DefaultPageSize),
		)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func handleLookup(provider *search.LookupProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		lookupID := chi.URLParam(r, "lookupId")

		resp, err := provider.GetLookup(r.Context(), rctx, lookupID, r.URL.Query().Get("q"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
