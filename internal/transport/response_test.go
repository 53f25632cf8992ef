package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pitabwire/maximiza/model"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		ee   *model.ErrorEnvelope
		want int
	}{
		{"bad request", model.NewBadRequestError("x"), http.StatusBadRequest},
		{"validation", model.NewValidationError([]model.FieldError{{Field: "nome"}}), http.StatusUnprocessableEntity},
		{"backend 401 passes through", model.NewBackendError(http.StatusUnauthorized, "Credenciais inválidas"), http.StatusUnauthorized},
		{"backend 409 passes through", model.NewBackendError(http.StatusConflict, "E-mail já cadastrado"), http.StatusConflict},
		{"backend 500 is bad gateway", model.NewBackendError(http.StatusInternalServerError, "boom"), http.StatusBadGateway},
		{"backend unavailable", model.NewBackendUnavailableError(), http.StatusBadGateway},
		{"backend timeout", &model.ErrorEnvelope{Code: model.ErrBackendTimeout}, http.StatusGatewayTimeout},
		{"unknown code", &model.ErrorEnvelope{Code: "WHATEVER"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.ee); got != tt.want {
				t.Errorf("StatusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteError_plainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("database exploded"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != model.ErrInternalError {
		t.Errorf("code = %q", body.Error.Code)
	}
	if strings.Contains(body.Error.Message, "database") {
		t.Errorf("internal detail leaked: %q", body.Error.Message)
	}
}

func TestWriteError_wrappedEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.Join(errors.New("context"), model.NewForbiddenError("no")))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestWriteRequestError_attachesCorrelationID(t *testing.T) {
	shared := model.NewNotFoundError("missing")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), correlationIDKey{}, "corr-1"))

	w := httptest.NewRecorder()
	writeRequestError(w, r, shared)

	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.TraceID != "corr-1" {
		t.Errorf("trace_id = %q, want corr-1", body.Error.TraceID)
	}
	if shared.TraceID != "" {
		t.Error("the original envelope must not be modified")
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Nome string `json:"nome"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nome":"Ana"}`))
	if err := decodeJSON(r, &v); err != nil || v.Nome != "Ana" {
		t.Fatalf("decodeJSON() = %v, %+v", err, v)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nome":`))
	if err := decodeJSON(r, &v); model.AsEnvelope(err).Code != model.ErrBadRequest {
		t.Errorf("malformed body error = %v", err)
	}
}

func TestReadBody_tooLarge(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", maxBodyBytes+1)))
	_, err := readBody(r)
	if err == nil || model.AsEnvelope(err).Message != "Request body too large" {
		t.Errorf("readBody() error = %v", err)
	}
}
