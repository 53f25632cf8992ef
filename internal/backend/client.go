// Package backend talks to the REST API behind the console: one collection
// per entity, bearer-token auth and a {error|message} body on failures.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/model"
)

// maxErrorBody bounds how much of a failed response is kept in logs.
const maxErrorBody = 512

// Client implements model.Backend over HTTP. Calls are never retried.
type Client struct {
	http    *resty.Client
	breaker *Breaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ model.Backend = (*Client)(nil)

// NewClient builds a client for cfg.BaseURL. metrics may be nil.
func NewClient(cfg config.BackendConfig, logger *zap.Logger, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    hc,
		breaker: NewBreaker(cfg.CircuitBreaker),
		metrics: metrics,
		logger:  logger.Named("backend"),
	}
}

// Breaker exposes the client's circuit breaker for diagnostics.
func (c *Client) Breaker() *Breaker { return c.breaker }

// call describes one backend request.
type call struct {
	op       string
	resource string
	method   string
	path     string
	query    map[string]string
	body     any
	out      any
}

// Login implements model.Backend.
func (c *Client) Login(ctx context.Context, email, senha string) (model.LoginResult, error) {
	var res model.LoginResult
	err := c.do(ctx, nil, call{
		op: "login", resource: "auth", method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"email": email, "senha": senha}, out: &res,
	})
	return res, err
}

// Me implements model.Backend.
func (c *Client) Me(ctx context.Context, rctx *model.RequestContext) (model.Usuario, error) {
	var u model.Usuario
	err := c.do(ctx, rctx, call{op: "me", resource: "auth", method: http.MethodGet, path: "/auth/me", out: &u})
	return u, err
}

// List implements model.Backend.
func (c *Client) List(ctx context.Context, rctx *model.RequestContext, resource, municipioID string) ([]model.Row, error) {
	var rows []model.Row
	err := c.do(ctx, rctx, call{
		op: "list", resource: resource, method: http.MethodGet, path: "/" + resource,
		query: scopeQuery(municipioID), out: &rows,
	})
	if rows == nil && err == nil {
		rows = []model.Row{}
	}
	return rows, err
}

// Get implements model.Backend.
func (c *Client) Get(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.Row, error) {
	var row model.Row
	err := c.do(ctx, rctx, call{op: "get", resource: resource, method: http.MethodGet, path: itemPath(resource, id), out: &row})
	return row, err
}

// Create implements model.Backend.
func (c *Client) Create(ctx context.Context, rctx *model.RequestContext, resource string, body any) (model.Row, error) {
	var row model.Row
	err := c.do(ctx, rctx, call{op: "create", resource: resource, method: http.MethodPost, path: "/" + resource, body: body, out: &row})
	return row, err
}

// Update implements model.Backend.
func (c *Client) Update(ctx context.Context, rctx *model.RequestContext, resource, id string, body any) (model.Row, error) {
	var row model.Row
	err := c.do(ctx, rctx, call{op: "update", resource: resource, method: http.MethodPut, path: itemPath(resource, id), body: body, out: &row})
	return row, err
}

// Delete implements model.Backend.
func (c *Client) Delete(ctx context.Context, rctx *model.RequestContext, resource, id string) error {
	return c.do(ctx, rctx, call{op: "delete", resource: resource, method: http.MethodDelete, path: itemPath(resource, id)})
}

// DashboardStats implements model.Backend.
func (c *Client) DashboardStats(ctx context.Context, rctx *model.RequestContext, municipioID string) (model.DashboardStats, error) {
	var s model.DashboardStats
	err := c.do(ctx, rctx, call{
		op: "stats", resource: "dashboard", method: http.MethodGet, path: "/dashboard/stats",
		query: scopeQuery(municipioID), out: &s,
	})
	return s, err
}

// DashboardCharts implements model.Backend.
func (c *Client) DashboardCharts(ctx context.Context, rctx *model.RequestContext, municipioID string) (model.DashboardCharts, error) {
	var ch model.DashboardCharts
	err := c.do(ctx, rctx, call{
		op: "charts", resource: "dashboard", method: http.MethodGet, path: "/dashboard/charts",
		query: scopeQuery(municipioID), out: &ch,
	})
	return ch, err
}

// Health fetches the backend /health document.
func (c *Client) Health(ctx context.Context) (model.BackendHealth, error) {
	var h model.BackendHealth
	err := c.do(ctx, nil, call{op: "health", resource: "health", method: http.MethodGet, path: "/health", out: &h})
	return h, err
}

// HealthCheck implements observability.HealthChecker.
func (c *Client) HealthCheck(ctx context.Context) error {
	h, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if h.Status != "" && h.Status != "ok" {
		return fmt.Errorf("backend: status %q, database %q", h.Status, h.Database)
	}
	return nil
}

func (c *Client) do(ctx context.Context, rctx *model.RequestContext, cl call) (err error) {
	ctx, span := observability.StartSpan(ctx, "backend."+cl.op,
		attribute.String("backend.resource", cl.resource),
		attribute.String("http.request.method", cl.method),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	var resp *resty.Response
	start := time.Now()
	err = c.breaker.Do(ctx, func(ctx context.Context) (bool, error) {
		req := c.http.R().SetContext(ctx)
		if rctx != nil {
			if rctx.BackendToken != "" {
				req.SetAuthToken(sanitizeHeader(rctx.BackendToken))
			}
			if rctx.CorrelationID != "" {
				req.SetHeader("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
			}
		}
		observability.InjectTraceHeaders(ctx, req.Header)
		if len(cl.query) > 0 {
			req.SetQueryParams(cl.query)
		}
		if cl.body != nil {
			req.SetBody(cl.body)
		}

		var reqErr error
		resp, reqErr = req.Execute(cl.method, cl.path)
		if reqErr != nil {
			return true, reqErr
		}
		// Only server errors count against the backend; 4xx answers are
		// deliberate.
		return resp.StatusCode() >= 500, nil
	})
	c.reportBreaker()
	switch {
	case errors.Is(err, ErrBreakerOpen):
		return model.NewBackendUnavailableError()
	case err != nil:
		c.record(cl, 0, time.Since(start))
		c.logger.Warn("request failed",
			zap.String("operation", cl.op),
			zap.String("resource", cl.resource),
			zap.Error(err),
		)
		return classifyTransportError(ctx, err)
	}

	status := resp.StatusCode()
	c.record(cl, status, time.Since(start))

	if resp.IsError() {
		env := DecodeError(status, resp.Body())
		c.logger.Debug("backend error",
			zap.String("operation", cl.op),
			zap.String("resource", cl.resource),
			zap.Int("status", status),
			zap.String("message", env.Message),
			zap.ByteString("body", truncate(resp.Body(), maxErrorBody)),
		)
		return env
	}

	if cl.out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), cl.out); err != nil {
			return fmt.Errorf("backend: decode %s %s: %w", cl.op, cl.resource, err)
		}
	}
	return nil
}

func (c *Client) record(cl call, status int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordBackendRequest(cl.resource, cl.op, status, d)
	}
}

func (c *Client) reportBreaker() {
	if c.metrics != nil {
		c.metrics.SetBackendCircuitBreakerState(float64(c.breaker.State()))
	}
}

// errorBody is the backend failure contract.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DecodeError turns a non-2xx response into an envelope whose message is
// the body's error, else its message, else a generic request failure. A
// body that is not JSON yields the unknown-error message.
func DecodeError(status int, body []byte) *model.ErrorEnvelope {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return model.NewBackendError(status, model.MsgUnknownError)
	}
	msg := eb.Error
	if msg == "" {
		msg = eb.Message
	}
	return model.NewBackendError(status, msg)
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return model.NewBackendTimeoutError()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewBackendTimeoutError()
	}
	// Refused, reset or dropped connections never produced a response.
	return model.NewBackendUnavailableError()
}

func scopeQuery(municipioID string) map[string]string {
	if municipioID == "" {
		return nil
	}
	return map[string]string{"municipioId": municipioID}
}

func itemPath(resource, id string) string {
	return "/" + resource + "/" + url.PathEscape(id)
}

// sanitizeHeader strips CR and LF to prevent header injection.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
