package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/maximiza/internal/views"
	"github.com/pitabwire/maximiza/model"
)

type mountRequest struct {
	PageID      string `json:"page_id"`
	MunicipioID string `json:"municipio_id"`
}

type searchRequest struct {
	Text string `json:"text"`
}

type sortRequest struct {
	Key string `json:"key"`
}

type pageRequest struct {
	Page int `json:"page"`
}

type filterRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// viewHandler adapts a view event to an HTTP handler. An optional JSON body
// is decoded into T and apply runs the event against the view in the path.
func viewHandler[T any](apply func(r *http.Request, rctx *model.RequestContext, viewID string, req T) (model.TableView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		var req T
		raw, err := readBody(r)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &req); err != nil {
				writeRequestError(w, r, model.NewBadRequestError("Invalid request body"))
				return
			}
		}
		tv, err := apply(r, rctx, chi.URLParam(r, "viewId"), req)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, tv)
	}
}

func handleMountView(m *views.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		var req mountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeRequestError(w, r, err)
			return
		}
		if req.PageID == "" {
			writeRequestError(w, r, model.NewBadRequestError("page_id is required"))
			return
		}
		tv, err := m.Mount(r.Context(), rctx, req.PageID, req.MunicipioID)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, tv)
	}
}

func handleGetView(m *views.Manager) http.HandlerFunc {
	return viewHandler(func(_ *http.Request, rctx *model.RequestContext, id string, _ struct{}) (model.TableView, error) {
		return m.Get(rctx, id)
	})
}

func handleSearchView(m *views.Manager) http.HandlerFunc {
	return viewHandler(func(_ *http.Request, rctx *model.RequestContext, id string, req searchRequest) (model.TableView, error) {
		return m.Search(rctx, id, req.Text)
	})
}

func handleSortView(m *views.Manager) http.HandlerFunc {
	return viewHandler(func(_ *http.Request, rctx *model.RequestContext, id string, req sortRequest) (model.TableView, error) {
		if req.Key == "" {
			return model.TableView{}, model.NewBadRequestError("key is required")
		}
		return m.Sort(rctx, id, req.Key)
	})
}

func handlePageView(m *views.Manager) http.HandlerFunc {
	return viewHandler(func(_ *http.Request, rctx *model.RequestContext, id string, req pageRequest) (model.TableView, error) {
		return m.Page(rctx, id, req.Page)
	})
}

func handleFilterView(m *views.Manager) http.HandlerFunc {
	return viewHandler(func(_ *http.Request, rctx *model.RequestContext, id string, req filterRequest) (model.TableView, error) {
		if req.Field == "" {
			return model.TableView{}, model.NewBadRequestError("field is required")
		}
		return m.Filter(rctx, id, req.Field, req.Value)
	})
}

func handleRefreshView(m *views.Manager) http.HandlerFunc {
	return viewHandler(func(r *http.Request, rctx *model.RequestContext, id string, _ struct{}) (model.TableView, error) {
		return m.Refresh(r.Context(), rctx, id)
	})
}

func handleUnmountView(m *views.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		if err := m.Unmount(rctx, chi.URLParam(r, "viewId")); err != nil {
			writeRequestError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
