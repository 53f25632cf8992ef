// Package transport contains the HTTP router, middleware chain, and all
// request handlers of the console API.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pitabwire/maximiza/model"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrForbidden:          http.StatusForbidden,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendError:       http.StatusBadGateway,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
}

// StatusFor returns the HTTP status of an envelope. Backend errors keep the
// backend's 4xx status; anything else the backend answered is a bad gateway.
func StatusFor(ee *model.ErrorEnvelope) int {
	if ee.Code == model.ErrBackendError && ee.Status >= 400 && ee.Status < 500 {
		return ee.Status
	}
	if status := statusForCode[ee.Code]; status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteError writes err as an error envelope with the matching HTTP status.
// Errors that are not envelopes become INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}
	WriteJSON(w, StatusFor(ee), errorResponse{Error: ee})
}

// writeRequestError writes err with the trace id of the request attached.
func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	ee := *model.AsEnvelope(err)
	if ee.TraceID == "" {
		ee.TraceID = CorrelationIDFrom(r.Context())
	}
	WriteError(w, &ee)
}

// readBody returns the raw request body, bounded to maxBodyBytes.
func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, model.NewBadRequestError("Invalid request body")
	}
	if len(raw) > maxBodyBytes {
		return nil, model.NewBadRequestError("Request body too large")
	}
	return raw, nil
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	raw, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return model.NewBadRequestError("Invalid request body")
	}
	return nil
}
