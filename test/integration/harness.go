// Package integration provides a reusable test harness for end-to-end
// testing of the console server. It starts the full HTTP stack against a
// mock REST backend, with in-memory sessions and the shipped definitions.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pitabwire/maximiza/internal/backend"
	"github.com/pitabwire/maximiza/internal/capability"
	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/internal/guard"
	"github.com/pitabwire/maximiza/internal/metadata"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/openapi"
	"github.com/pitabwire/maximiza/internal/search"
	"github.com/pitabwire/maximiza/internal/session"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/internal/transport"
	"github.com/pitabwire/maximiza/internal/views"
	"github.com/pitabwire/maximiza/model"
)

// TestHarness is a fully wired console server backed by a MockBackend.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	Backend  *MockBackend
	Client   *backend.Client
	Registry *definition.Registry
	Contract *openapi.Index
	Sessions *session.Manager
	Config   *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*config.Config)

// WithContract loads the shipped backend OpenAPI contract.
func WithContract() HarnessOption {
	return func(c *config.Config) {
		c.Backend.SpecFile = filepath.Join(repoRoot(), "specs", "backend.yaml")
	}
}

// WithBackendTimeout sets the backend client timeout.
func WithBackendTimeout(d time.Duration) HarnessOption {
	return func(c *config.Config) { c.Backend.Timeout = d }
}

// WithBreaker sets the backend circuit breaker.
func WithBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(c *config.Config) { c.Backend.CircuitBreaker = cb }
}

// NewTestHarness starts a console server. It is closed when the test ends.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()
	root := repoRoot()

	h := &TestHarness{t: t, Backend: newMockBackend(t)}

	// Step 1: configuration pointing at the mock backend.
	cfg := config.Defaults()
	cfg.Session.SigningKey = "integration-signing-key-0123456789abcdef"
	cfg.Backend.BaseURL = h.Backend.URL()
	cfg.Backend.Timeout = 5 * time.Second
	cfg.Definitions.Directories = []string{filepath.Join(root, "definitions")}
	cfg.Capability.StaticPolicyFile = filepath.Join(root, "policy.yaml")
	cfg.Server.HandlerTimeout = 10 * time.Second
	for _, opt := range opts {
		opt(cfg)
	}
	h.Config = cfg

	// Step 2: contract and definitions.
	h.Contract = openapi.NewIndex()
	if err := h.Contract.Load(cfg.Backend.SpecFile); err != nil {
		t.Fatalf("load contract: %v", err)
	}
	defs, err := definition.NewLoader(false).LoadAll(cfg.Definitions.Directories)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := definition.NewValidator().Validate(defs, h.Contract); len(verrs) > 0 {
		t.Fatalf("definitions: %v", verrs)
	}
	h.Registry = definition.NewRegistry(defs)

	// Step 3: sessions, backend client, capabilities and guard.
	h.Sessions, err = session.NewManagerFromConfig(cfg.Session)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	h.Client = backend.NewClient(cfg.Backend, nil, nil)
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	resolver := capability.NewResolver(evaluator, time.Minute, 100, nil)
	g, err := guard.New(append(guard.DefaultRules(), guard.RulesFromPages(h.Registry.AllPages())...))
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	// Step 4: state and providers.
	st := store.New(h.Client, resolver, h.Contract, cfg.Collections.Cache, nil, nil)
	vm := views.NewManager(h.Registry, st, cfg.Views, nil, nil)
	lookups := search.NewLookupProvider(h.Registry, st, cfg.Lookup.Cache, nil)

	router := transport.NewRouter(transport.Dependencies{
		Config: cfg,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: h.Registry.Loaded,
			Backend:           h.Client,
			SessionStore:      h.Sessions.Store(),
		},
		Backend:            h.Client,
		Sessions:           h.Sessions,
		CapabilityResolver: resolver,
		Guard:              g,
		Store:              st,
		Views:              vm,
		Menu:               metadata.NewMenuProvider(h.Registry),
		Pages:              metadata.NewPageProvider(h.Registry, st, metadata.NewActionProvider(), nil),
		Forms:              metadata.NewFormProvider(st),
		Dashboard:          metadata.NewDashboardProvider(h.Client),
		Search:             search.NewSearchProvider(h.Registry, st, cfg.Search, nil),
		Lookups:            lookups,
	})

	// Step 5: start the server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
		vm.Close()
		lookups.Close()
	})
	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string { return h.server.URL }

// --- Sign-in helpers ---

// Login queues a successful backend login for user and signs in through
// the console, returning the console session token.
func (h *TestHarness) Login(user model.Usuario, backendToken string) string {
	h.t.Helper()
	h.Backend.Reset("POST /auth/login")
	h.Backend.On("POST /auth/login").RespondWith(http.StatusOK, model.LoginResult{Token: backendToken, User: user})

	var resp model.LoginResponse
	h.AssertJSON(h.t, h.POST("/ui/auth/login", map[string]string{"email": user.Email, "senha": "segredo1"}, ""), http.StatusOK, &resp)
	return resp.Token
}

// AdminUser is the platform administrator.
func AdminUser() model.Usuario {
	return model.Usuario{ID: "u-1", Nome: "Administrador", Email: "admin@maximiza.com.br", Perfil: model.PerfilAdmin, Status: model.StatusAtivo}
}

// GestorUser manages municipio m-1.
func GestorUser() model.Usuario {
	m := "m-1"
	return model.Usuario{ID: "u-2", Nome: "Gestora São Luís", Email: "gestor@saoluis.ma.gov.br", Perfil: model.PerfilGestor, MunicipioID: &m, Status: model.StatusAtivo}
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodGet, path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPost, path, body, token)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPut, path, body, token)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodDelete, path, nil, token)
}

func (h *TestHarness) do(method, path string, body any, token string) *http.Response {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks the response status and closes the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks the response status and parses the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// ErrorOf parses an error envelope response.
func (h *TestHarness) ErrorOf(resp *http.Response) *model.ErrorEnvelope {
	h.t.Helper()
	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &body)
	if body.Error == nil {
		h.t.Fatal("response has no error envelope")
	}
	return body.Error
}

// repoRoot returns the module root.
func repoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// EscolaFixture returns a school as the backend serves it.
func EscolaFixture(id, nome, municipioID string) map[string]any {
	return map[string]any{
		"id":          id,
		"nome":        nome,
		"codigo":      strings.ToUpper(id),
		"endereco":    "Rua das Flores, 100",
		"tipoEnsino":  "fundamental",
		"turno":       "matutino",
		"totalAlunos": float64(120),
		"municipioId": municipioID,
		"status":      "ativo",
	}
}
