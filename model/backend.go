package model

import "context"

// Backend is the REST API the console is a front for. Every call except
// Login and Health is authenticated with the session's backend token taken
// from the RequestContext.
type Backend interface {
	// Login exchanges credentials for a backend token and the user record.
	Login(ctx context.Context, email, senha string) (LoginResult, error)

	// Me returns the user that owns the token.
	Me(ctx context.Context, rctx *RequestContext) (Usuario, error)

	// List returns a resource collection, optionally restricted to one
	// municipality.
	List(ctx context.Context, rctx *RequestContext, resource, municipioID string) ([]Row, error)

	// Get returns one record.
	Get(ctx context.Context, rctx *RequestContext, resource, id string) (Row, error)

	// Create posts a new record and returns what the backend stored.
	Create(ctx context.Context, rctx *RequestContext, resource string, body any) (Row, error)

	// Update replaces a record and returns what the backend stored.
	Update(ctx context.Context, rctx *RequestContext, resource, id string, body any) (Row, error)

	// Delete removes a record.
	Delete(ctx context.Context, rctx *RequestContext, resource, id string) error

	// DashboardStats returns aggregate counters, optionally per municipality.
	DashboardStats(ctx context.Context, rctx *RequestContext, municipioID string) (DashboardStats, error)

	// DashboardCharts returns chart series, optionally per municipality.
	DashboardCharts(ctx context.Context, rctx *RequestContext, municipioID string) (DashboardCharts, error)
}

// LoginResult is the backend answer to a successful login.
type LoginResult struct {
	Token string  `json:"token"`
	User  Usuario `json:"user"`
}

// BackendHealth is the body of the backend /health endpoint.
type BackendHealth struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}
