package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/maximiza/internal/metadata"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/model"
)

// Messages shown after a successful mutation.
const (
	MsgCreated = "Registro criado com sucesso"
	MsgUpdated = "Registro atualizado com sucesso"
	MsgDeleted = "Registro excluído com sucesso"
)

// handleGetRecord returns the edit-form data of one record.
func handleGetRecord(forms *metadata.FormProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		row, err := forms.GetFormData(r.Context(), rctx, chi.URLParam(r, "resource"), chi.URLParam(r, "id"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, model.RecordResponse{Data: row})
	}
}

func handleCreateRecord(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		raw, err := readBody(r)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		out := st.RequestCreate(r.Context(), rctx, chi.URLParam(r, "resource"), raw)
		writeOutcome(w, r, out, http.StatusCreated, MsgCreated)
	}
}

func handleUpdateRecord(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		raw, err := readBody(r)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		out := st.RequestUpdate(r.Context(), rctx, chi.URLParam(r, "resource"), chi.URLParam(r, "id"), raw)
		writeOutcome(w, r, out, http.StatusOK, MsgUpdated)
	}
}

func handleDeleteRecord(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		out := st.RequestDelete(r.Context(), rctx, chi.URLParam(r, "resource"), chi.URLParam(r, "id"))
		writeOutcome(w, r, out, http.StatusOK, MsgDeleted)
	}
}

// writeOutcome answers a mutation. Failures keep the error envelope so the
// form can show the message inline next to its fields.
func writeOutcome(w http.ResponseWriter, r *http.Request, out store.Outcome, status int, msg string) {
	if !out.OK {
		writeRequestError(w, r, out.Err)
		return
	}
	WriteJSON(w, status, model.MutationResponse{
		Success: true,
		Message: msg,
		Record:  out.Record,
	})
}
