package model

import (
	"context"
	"errors"
	"fmt"
)

// RequestContext carries identity, municipality scope, and tracing
// information for the lifetime of an authenticated request. It is immutable
// after construction and safe for concurrent reads.
type RequestContext struct {
	SubjectID     string
	Email         string
	Name          string
	Perfil        string
	Role          Role
	MunicipioID   string
	Roles         []string
	Claims        map[string]any
	SessionID     string
	BackendToken  string
	CorrelationID string
	TraceID       string
	SpanID        string
	Locale        string
}

// Validate checks that all mandatory fields are present.
// SubjectID and SessionID must be non-empty; municipal managers must carry
// a municipality.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.SubjectID == "" {
		errs = append(errs, fmt.Errorf("SubjectID is required"))
	}
	if rc.SessionID == "" {
		errs = append(errs, fmt.Errorf("SessionID is required"))
	}
	if !rc.Role.IsAdmin() && rc.MunicipioID == "" {
		errs = append(errs, fmt.Errorf("MunicipioID is required for municipal managers"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsAdmin reports whether the request was made by an administrator.
func (rc *RequestContext) IsAdmin() bool {
	return rc != nil && rc.Role.IsAdmin()
}

// Principal returns the guard view of the request identity.
func (rc *RequestContext) Principal() Principal {
	if rc == nil {
		return Principal{}
	}
	return Principal{
		Authenticated: true,
		Role:          rc.Role,
		MunicipioID:   rc.MunicipioID,
	}
}

// ScopeMunicipio returns the municipality a data request must be restricted
// to. Administrators may pick any municipality (or none); everybody else is
// pinned to their own.
func (rc *RequestContext) ScopeMunicipio(requested string) string {
	if rc.IsAdmin() {
		return requested
	}
	return rc.MunicipioID
}

// HasRole returns true if the RequestContext contains the given role.
func (rc *RequestContext) HasRole(role string) bool {
	for _, r := range rc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Claim returns the value of the given claim key, or nil if not present.
func (rc *RequestContext) Claim(key string) any {
	if rc.Claims == nil {
		return nil
	}
	return rc.Claims[key]
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context, panicking if
// it is not present. Only call it behind the session middleware.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}
