package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockBackend is an HTTP test server standing in for the console's REST
// API. Responses are configured per route pattern ("GET /escolas") and every
// request is recorded for later assertion.
type MockBackend struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.RWMutex
	routes     map[string]*routeConfig
	receivedBy map[string][]*RecordedRequest
}

// RecordedRequest captures a request received by the mock backend.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	ReceivedAt  time.Time
}

type routeConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// RouteMock configures the responses of one route.
type RouteMock struct {
	backend *MockBackend
	pattern string
}

// backendRoutes are the patterns the console calls.
var backendRoutes = []string{
	"GET /health",
	"POST /auth/login",
	"GET /auth/me",
	"GET /dashboard/stats",
	"GET /dashboard/charts",
	"GET /municipios", "POST /municipios", "GET /municipios/{id}", "PUT /municipios/{id}", "DELETE /municipios/{id}",
	"GET /usuarios", "POST /usuarios", "GET /usuarios/{id}", "PUT /usuarios/{id}", "DELETE /usuarios/{id}",
	"GET /solucoes", "POST /solucoes", "GET /solucoes/{id}", "PUT /solucoes/{id}", "DELETE /solucoes/{id}",
	"GET /escolas", "POST /escolas", "GET /escolas/{id}", "PUT /escolas/{id}", "DELETE /escolas/{id}",
	"GET /alunos", "POST /alunos", "GET /alunos/{id}", "PUT /alunos/{id}", "DELETE /alunos/{id}",
}

func newMockBackend(t *testing.T) *MockBackend {
	t.Helper()
	mb := &MockBackend{
		t:          t,
		routes:     make(map[string]*routeConfig),
		receivedBy: make(map[string][]*RecordedRequest),
	}
	mux := http.NewServeMux()
	for _, pattern := range backendRoutes {
		mux.HandleFunc(pattern, mb.handle(pattern))
	}
	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)
	return mb
}

// URL returns the base URL of the mock backend.
func (mb *MockBackend) URL() string { return mb.server.URL }

// On returns a builder for the responses of pattern.
func (mb *MockBackend) On(pattern string) *RouteMock {
	return &RouteMock{backend: mb, pattern: pattern}
}

// RespondWith queues a JSON response. The last queued response repeats.
func (rm *RouteMock) RespondWith(status int, body any) *RouteMock {
	rm.backend.addResponse(rm.pattern, &mockResponse{status: status, body: body})
	return rm
}

// RespondWithError queues a failure carrying the backend error contract.
func (rm *RouteMock) RespondWithError(status int, message string) *RouteMock {
	return rm.RespondWith(status, map[string]string{"error": message})
}

// RespondWithDelay queues a slow response.
func (rm *RouteMock) RespondWithDelay(delay time.Duration, status int, body any) *RouteMock {
	rm.backend.addResponse(rm.pattern, &mockResponse{status: status, body: body, delay: delay})
	return rm
}

// RespondWithConnectionError closes the connection without answering.
func (rm *RouteMock) RespondWithConnectionError() *RouteMock {
	rm.backend.addResponse(rm.pattern, &mockResponse{connError: true})
	return rm
}

func (mb *MockBackend) addResponse(pattern string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.routes[pattern]
	if !ok {
		cfg = &routeConfig{}
		mb.routes[pattern] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handle(pattern string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			ReceivedAt:  time.Now(),
		}
		for key, values := range r.URL.Query() {
			rec.QueryParams[key] = values[0]
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		mb.mu.Lock()
		mb.receivedBy[pattern] = append(mb.receivedBy[pattern], rec)
		mb.mu.Unlock()

		resp := mb.next(pattern)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "mock: no response for " + pattern})
			return
		}
		if resp.connError {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, _ := hj.Hijack(); conn != nil {
					conn.Close()
				}
			}
			return
		}
		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

func (mb *MockBackend) next(pattern string) *mockResponse {
	mb.mu.RLock()
	cfg := mb.routes[pattern]
	mb.mu.RUnlock()
	if cfg == nil {
		return nil
	}
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if len(cfg.responses) == 0 {
		return nil
	}
	idx := cfg.current
	if idx >= len(cfg.responses) {
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// Calls returns the requests received on pattern.
func (mb *MockBackend) Calls(pattern string) []*RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	out := make([]*RecordedRequest, len(mb.receivedBy[pattern]))
	copy(out, mb.receivedBy[pattern])
	return out
}

// LastRequest returns the last request received on pattern, or nil.
func (mb *MockBackend) LastRequest(pattern string) *RecordedRequest {
	calls := mb.Calls(pattern)
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

// AssertCalled verifies the number of requests received on pattern.
func (mb *MockBackend) AssertCalled(t *testing.T, pattern string, want int) {
	t.Helper()
	if got := len(mb.Calls(pattern)); got != want {
		t.Errorf("mock backend: %s called %d times, want %d", pattern, got, want)
	}
}

// Reset clears recorded requests and queued responses of pattern.
func (mb *MockBackend) Reset(pattern string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.routes, pattern)
	delete(mb.receivedBy, pattern)
}
