package model

import "strings"

// Role is the closed set of console roles. Every backend perfil other than
// "admin" is a municipal manager scoped to one municipality.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleMunicipalManager Role = "municipal_manager"
)

// Backend perfil values.
const (
	PerfilAdmin   = "admin"
	PerfilGestor  = "gestor"
	PerfilUsuario = "usuario"
)

// RoleFromPerfil maps a backend perfil onto the closed role set.
func RoleFromPerfil(perfil string) Role {
	if strings.EqualFold(strings.TrimSpace(perfil), PerfilAdmin) {
		return RoleAdmin
	}
	return RoleMunicipalManager
}

// IsAdmin reports whether r is the administrator role.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Principal is the identity the route guard evaluates. The zero value is an
// unauthenticated visitor.
type Principal struct {
	Authenticated bool   `json:"authenticated"`
	Role          Role   `json:"role,omitempty"`
	MunicipioID   string `json:"municipio_id,omitempty"`
}

// WorkspacePath returns the landing route of the principal's own workspace.
func (p Principal) WorkspacePath() string {
	if p.Role.IsAdmin() {
		return "/admin/municipios"
	}
	return "/municipio/" + p.MunicipioID + "/solucoes"
}
