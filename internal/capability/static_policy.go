package capability

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/maximiza/model"
)

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// DefaultRoles is the policy used when no policy file is configured.
// Administrators manage everything; municipal perfis manage their
// municipality's data and may only read municipios.
func DefaultRoles() map[string][]string {
	municipal := []string{
		"dashboard:view",
		"municipios:list", "municipios:view",
		"solucoes:*",
		"usuarios:*",
		"escolas:*",
		"alunos:*",
		"search:global",
	}
	return map[string][]string{
		model.PerfilAdmin:   {"*"},
		model.PerfilGestor:  municipal,
		model.PerfilUsuario: {"dashboard:view", "solucoes:list", "solucoes:view", "escolas:list", "escolas:view", "alunos:list", "alunos:view", "search:global"},
	}
}

// StaticPolicyEvaluator resolves capabilities from a YAML file mapping
// backend perfis to capability strings.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator loads the policy at path. An empty path uses
// DefaultRoles.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewStaticPolicy creates an evaluator over an in-memory role table.
func NewStaticPolicy(roles map[string][]string) *StaticPolicyEvaluator {
	return &StaticPolicyEvaluator{policy: policyFile{Roles: roles}}
}

// ResolveCapabilities returns the union of capabilities of every role of
// rctx. An admin role always gets "*".
func (e *StaticPolicyEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	roles := rctx.Roles
	if len(roles) == 0 && rctx.Perfil != "" {
		roles = []string{rctx.Perfil}
	}
	for _, role := range roles {
		for _, cap := range e.policy.Roles[role] {
			caps[cap] = true
		}
	}
	if rctx.IsAdmin() {
		caps["*"] = true
	}
	return caps, nil
}

// Evaluate checks a single capability against the resolved set.
func (e *StaticPolicyEvaluator) Evaluate(rctx *model.RequestContext, capability string) (bool, error) {
	caps, err := e.ResolveCapabilities(rctx)
	if err != nil {
		return false, err
	}
	return caps.Has(capability), nil
}

// Sync reloads the policy file from disk.
func (e *StaticPolicyEvaluator) Sync() error {
	if e.path == "" {
		e.mu.Lock()
		if e.policy.Roles == nil {
			e.policy = policyFile{Roles: DefaultRoles()}
		}
		e.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing policy file %s: %w", e.path, err)
	}

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	return nil
}
