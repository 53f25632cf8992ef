// Package guard decides, for a principal and a requested console route,
// whether the route renders or where the visitor is redirected instead.
package guard

import (
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/maximiza/model"
)

// Access is the protection level of a route.
type Access int

const (
	// Public routes render for everyone.
	Public Access = iota
	// Authenticated routes render for any signed-in principal.
	Authenticated
	// AdminOnly routes render for administrators only.
	AdminOnly
	// MunicipioScoped routes carry a {municipioId} segment; non-admins may
	// only open their own municipality.
	MunicipioScoped
)

// String returns the access name.
func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case AdminOnly:
		return "admin_only"
	case MunicipioScoped:
		return "municipio_scoped"
	}
	return "unknown"
}

// Outcome is the result of evaluating a navigation.
type Outcome string

const (
	Render            Outcome = "render"
	RedirectLogin     Outcome = "redirect_login"
	RedirectWorkspace Outcome = "redirect_workspace"
	RedirectHome      Outcome = "redirect_home"
)

// Well-known locations.
const (
	HomePath  = "/"
	LoginPath = "/login"
)

// MunicipioParam is the route placeholder carrying a municipality id.
const MunicipioParam = "municipioId"

// Rule binds a route pattern to an access level. Patterns use chi syntax,
// e.g. "/admin/municipios/{id}/editar".
type Rule struct {
	Pattern string
	Access  Access
}

// Decision is the guard's answer for one navigation.
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Location string  `json:"location"`
	Pattern  string  `json:"pattern,omitempty"`
	Access   string  `json:"access,omitempty"`
}

// Allowed reports whether the requested route renders.
func (d Decision) Allowed() bool { return d.Outcome == Render }

// Guard evaluates navigations against a fixed route table. It is safe for
// concurrent use once built.
type Guard struct {
	mux   *chi.Mux
	rules map[string]Rule
}

// DefaultRules is the console route table.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/", Access: Public},
		{Pattern: "/login", Access: Public},

		{Pattern: "/admin/dashboard", Access: AdminOnly},
		{Pattern: "/admin/municipios", Access: AdminOnly},
		{Pattern: "/admin/municipios/novo", Access: AdminOnly},
		{Pattern: "/admin/municipios/{id}/editar", Access: AdminOnly},
		{Pattern: "/admin/solucoes", Access: AdminOnly},
		{Pattern: "/admin/solucoes/nova", Access: AdminOnly},
		{Pattern: "/admin/solucoes/{id}/editar", Access: AdminOnly},
		{Pattern: "/admin/usuarios", Access: AdminOnly},

		{Pattern: "/admin/perfil", Access: Authenticated},
		{Pattern: "/admin/configuracoes", Access: Authenticated},

		{Pattern: "/municipio/{municipioId}/dashboard", Access: MunicipioScoped},
		{Pattern: "/municipio/{municipioId}/solucoes", Access: MunicipioScoped},
		{Pattern: "/municipio/{municipioId}/usuarios", Access: MunicipioScoped},
		{Pattern: "/municipio/{municipioId}/alunos", Access: MunicipioScoped},
		{Pattern: "/municipio/{municipioId}/escolas", Access: MunicipioScoped},
	}
}

// RulesFromPages derives rules from page definitions: admin_only pages are
// AdminOnly, routes with {municipioId} are MunicipioScoped, anything else is
// Authenticated.
func RulesFromPages(pages []model.PageDefinition) []Rule {
	out := make([]Rule, 0, len(pages))
	for _, p := range pages {
		if p.Route == "" {
			continue
		}
		r := Rule{Pattern: p.Route, Access: Authenticated}
		switch {
		case p.AdminOnly:
			r.Access = AdminOnly
		case strings.Contains(p.Route, "{"+MunicipioParam+"}"):
			r.Access = MunicipioScoped
		}
		out = append(out, r)
	}
	return out
}

// New builds a guard. The first rule registered for a pattern wins.
func New(rules []Rule) (g *Guard, err error) {
	g = &Guard{
		mux:   chi.NewRouter(),
		rules: make(map[string]Rule, len(rules)),
	}
	defer func() {
		// chi panics on malformed patterns.
		if r := recover(); r != nil {
			g, err = nil, fmt.Errorf("guard: invalid route table: %v", r)
		}
	}()
	for _, r := range rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("guard: pattern %q must start with /", r.Pattern)
		}
		if r.Access == MunicipioScoped && !strings.Contains(r.Pattern, "{"+MunicipioParam+"}") {
			return nil, fmt.Errorf("guard: municipio-scoped pattern %q lacks {%s}", r.Pattern, MunicipioParam)
		}
		if _, dup := g.rules[r.Pattern]; dup {
			continue
		}
		g.rules[r.Pattern] = r
		g.mux.Get(r.Pattern, noop)
	}
	return g, nil
}

func noop(http.ResponseWriter, *http.Request) {}

// Rules returns the route table sorted by pattern.
func (g *Guard) Rules() []Rule {
	out := make([]Rule, 0, len(g.rules))
	for _, r := range g.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// Authorize evaluates a navigation of p to target. Query strings and
// trailing slashes are ignored. Unknown routes redirect home.
func (g *Guard) Authorize(p model.Principal, target string) Decision {
	rctx := chi.NewRouteContext()
	if !g.mux.Match(rctx, http.MethodGet, cleanPath(target)) {
		return Decision{Outcome: RedirectHome, Location: HomePath}
	}
	pattern := rctx.RoutePattern()
	rule, ok := g.rules[pattern]
	if !ok {
		return Decision{Outcome: RedirectHome, Location: HomePath}
	}

	d := decide(p, rule, rctx.URLParam(MunicipioParam))
	d.Pattern = pattern
	d.Access = rule.Access.String()
	if d.Outcome == Render {
		d.Location = cleanPath(target)
	}
	return d
}

func decide(p model.Principal, rule Rule, municipioID string) Decision {
	if rule.Access == Public {
		return Decision{Outcome: Render}
	}
	if !p.Authenticated {
		return Decision{Outcome: RedirectLogin, Location: LoginPath}
	}
	if p.Role.IsAdmin() {
		return Decision{Outcome: Render}
	}

	switch rule.Access {
	case AdminOnly:
		return toOwnWorkspace(p)
	case MunicipioScoped:
		if municipioID != "" && municipioID == p.MunicipioID {
			return Decision{Outcome: Render}
		}
		return toOwnWorkspace(p)
	}
	return Decision{Outcome: Render}
}

// toOwnWorkspace sends a non-admin to their municipality. Without one there
// is no workspace to land in, so the visitor signs in again.
func toOwnWorkspace(p model.Principal) Decision {
	if p.MunicipioID == "" {
		return Decision{Outcome: RedirectLogin, Location: LoginPath}
	}
	return Decision{Outcome: RedirectWorkspace, Location: p.WorkspacePath()}
}

// LandingPath is where p goes after signing in.
func LandingPath(p model.Principal) string {
	if !p.Role.IsAdmin() && p.MunicipioID == "" {
		return LoginPath
	}
	return p.WorkspacePath()
}

func cleanPath(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return HomePath
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return path.Clean(target)
}
