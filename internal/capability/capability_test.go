package capability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/model"
)

const testPolicy = `roles:
  admin:
    - "*"
  gestor:
    - "escolas:*"
    - "alunos:list"
  usuario:
    - "alunos:list"
`

func writePolicy(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(testPolicy), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testRctx(perfil string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID:   "u-1",
		SessionID:   "s-1",
		Perfil:      perfil,
		Role:        model.RoleFromPerfil(perfil),
		MunicipioID: "m-1",
		Roles:       []string{perfil},
	}
}

// --- StaticPolicyEvaluator tests ---

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	e, err := NewStaticPolicyEvaluator(writePolicy(t))
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}

	caps, err := e.ResolveCapabilities(testRctx(model.PerfilGestor))
	if err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}
	if !caps.Can("escolas", "create") {
		t.Error("gestor should have escolas:create via escolas:*")
	}
	if !caps.Can("alunos", "list") {
		t.Error("gestor should have alunos:list")
	}
	if caps.Can("alunos", "delete") {
		t.Error("gestor should not have alunos:delete")
	}
	if caps.Can("municipios", "create") {
		t.Error("gestor should not have municipios:create")
	}
}

func TestStaticPolicyEvaluator_adminHasEverything(t *testing.T) {
	e := NewStaticPolicy(map[string][]string{})
	caps, _ := e.ResolveCapabilities(testRctx(model.PerfilAdmin))

	if !caps.Can("municipios", "delete") {
		t.Error("admin should match any capability")
	}
}

func TestStaticPolicyEvaluator_perfilFallback(t *testing.T) {
	e := NewStaticPolicy(DefaultRoles())
	rctx := testRctx(model.PerfilUsuario)
	rctx.Roles = nil

	ok, err := e.Evaluate(rctx, "alunos:list")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("perfil should be used when Roles is empty")
	}
}

func TestStaticPolicyEvaluator_Evaluate(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator(writePolicy(t))

	ok, _ := e.Evaluate(testRctx(model.PerfilUsuario), "alunos:list")
	if !ok {
		t.Error("usuario should have alunos:list")
	}
	ok, _ = e.Evaluate(testRctx(model.PerfilUsuario), "escolas:create")
	if ok {
		t.Error("usuario should not have escolas:create")
	}
}

func TestStaticPolicyEvaluator_defaultRoles(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatal(err)
	}
	caps, _ := e.ResolveCapabilities(testRctx(model.PerfilGestor))
	if !caps.Can("alunos", "create") || caps.Can("municipios", "create") {
		t.Errorf("default gestor caps = %v", caps)
	}
}

func TestStaticPolicyEvaluator_Sync(t *testing.T) {
	path := writePolicy(t)
	e, _ := NewStaticPolicyEvaluator(path)

	if err := os.WriteFile(path, []byte("roles:\n  usuario:\n    - \"escolas:create\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := e.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	ok, _ := e.Evaluate(testRctx(model.PerfilUsuario), "escolas:create")
	if !ok {
		t.Error("Sync should pick up the new policy")
	}
}

func TestStaticPolicyEvaluator_errors(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("roles: [unterminated"), 0o600)
	if _, err := NewStaticPolicyEvaluator(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

// --- Resolver tests ---

type countingEvaluator struct {
	*StaticPolicyEvaluator
	calls int
}

func (c *countingEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	c.calls++
	return c.StaticPolicyEvaluator.ResolveCapabilities(rctx)
}

func TestResolver_caches(t *testing.T) {
	eval := &countingEvaluator{StaticPolicyEvaluator: NewStaticPolicy(DefaultRoles())}
	m := observability.InitMetrics(prometheus.NewRegistry())
	r := NewResolver(eval, time.Minute, 100, m)

	rctx := testRctx(model.PerfilGestor)
	for range 3 {
		if _, err := r.Resolve(rctx); err != nil {
			t.Fatal(err)
		}
	}
	if eval.calls != 1 {
		t.Errorf("evaluator calls = %d, want 1", eval.calls)
	}
	if v := testutil.ToFloat64(m.CapabilityCacheHitsTotal); v != 2 {
		t.Errorf("cache hits = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.CapabilityCacheMissesTotal); v != 1 {
		t.Errorf("cache misses = %v, want 1", v)
	}
}

func TestResolver_Invalidate(t *testing.T) {
	eval := &countingEvaluator{StaticPolicyEvaluator: NewStaticPolicy(DefaultRoles())}
	r := NewResolver(eval, time.Minute, 100, nil)

	_, _ = r.Resolve(testRctx(model.PerfilGestor))
	other := testRctx(model.PerfilGestor)
	other.SessionID = "s-2"
	_, _ = r.Resolve(other)

	r.Invalidate("s-1")
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after invalidating s-1", r.Len())
	}
	_, _ = r.Resolve(testRctx(model.PerfilGestor))
	if eval.calls != 3 {
		t.Errorf("evaluator calls = %d, want 3", eval.calls)
	}
}

func TestResolver_boundedSize(t *testing.T) {
	r := NewResolver(NewStaticPolicy(DefaultRoles()), time.Minute, 2, nil)
	for _, sid := range []string{"a", "b", "c"} {
		rctx := testRctx(model.PerfilGestor)
		rctx.SessionID = sid
		_, _ = r.Resolve(rctx)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}
