package model

// Resource collection names exposed by the REST backend.
const (
	ResourceMunicipios = "municipios"
	ResourceUsuarios   = "usuarios"
	ResourceSolucoes   = "solucoes"
	ResourceEscolas    = "escolas"
	ResourceAlunos     = "alunos"
)

// Resources lists every resource collection in navigation order.
var Resources = []string{
	ResourceMunicipios,
	ResourceUsuarios,
	ResourceSolucoes,
	ResourceEscolas,
	ResourceAlunos,
}

// IsResource reports whether name is a known resource collection.
func IsResource(name string) bool {
	for _, r := range Resources {
		if r == name {
			return true
		}
	}
	return false
}

// Status values shared by every entity.
const (
	StatusAtivo   = "ativo"
	StatusInativo = "inativo"
)

// Usuario is a console user.
type Usuario struct {
	ID          string  `json:"id"`
	Nome        string  `json:"nome"`
	Email       string  `json:"email"`
	CPF         string  `json:"cpf"`
	Telefone    *string `json:"telefone,omitempty"`
	Perfil      string  `json:"perfil"`
	MunicipioID *string `json:"municipioId"`
	Status      string  `json:"status"`
	Avatar      *string `json:"avatar,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// RecordID implements Record.
func (u Usuario) RecordID() string { return u.ID }

// Field implements Record.
func (u Usuario) Field(key string) any {
	switch key {
	case "id":
		return u.ID
	case "nome":
		return u.Nome
	case "email":
		return u.Email
	case "cpf":
		return u.CPF
	case "telefone":
		return deref(u.Telefone)
	case "perfil":
		return u.Perfil
	case "municipioId":
		return deref(u.MunicipioID)
	case "status":
		return u.Status
	case "avatar":
		return deref(u.Avatar)
	case "createdAt":
		return u.CreatedAt
	case "updatedAt":
		return u.UpdatedAt
	}
	return nil
}

// Role maps the user's perfil onto the console role set.
func (u Usuario) Role() Role { return RoleFromPerfil(u.Perfil) }

// Municipio returns the user's municipality id, or "".
func (u Usuario) Municipio() string {
	if u.MunicipioID == nil {
		return ""
	}
	return *u.MunicipioID
}

// Municipio is a municipality, the top-level tenant.
type Municipio struct {
	ID            string  `json:"id"`
	Nome          string  `json:"nome"`
	Estado        string  `json:"estado"`
	CodigoIBGE    *string `json:"codigoIBGE,omitempty"`
	Logo          *string `json:"logo,omitempty"`
	Status        string  `json:"status"`
	TotalUsuarios int     `json:"totalUsuarios"`
	TotalAlunos   int     `json:"totalAlunos"`
	TotalSolucoes int     `json:"totalSolucoes"`
	CreatedAt     string  `json:"createdAt,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

// RecordID implements Record.
func (m Municipio) RecordID() string { return m.ID }

// Field implements Record.
func (m Municipio) Field(key string) any {
	switch key {
	case "id":
		return m.ID
	case "nome":
		return m.Nome
	case "estado":
		return m.Estado
	case "codigoIBGE":
		return deref(m.CodigoIBGE)
	case "logo":
		return deref(m.Logo)
	case "status":
		return m.Status
	case "totalUsuarios":
		return m.TotalUsuarios
	case "totalAlunos":
		return m.TotalAlunos
	case "totalSolucoes":
		return m.TotalSolucoes
	case "createdAt":
		return m.CreatedAt
	case "updatedAt":
		return m.UpdatedAt
	}
	return nil
}

// Solucao is a software product offered to municipalities.
type Solucao struct {
	ID          string  `json:"id"`
	Nome        string  `json:"nome"`
	Descricao   string  `json:"descricao"`
	Categoria   string  `json:"categoria"`
	URL         *string `json:"url,omitempty"`
	Icone       *string `json:"icone,omitempty"`
	MunicipioID *string `json:"municipioId"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt,omitempty"`
	UpdatedAt   string  `json:"updatedAt,omitempty"`
}

// RecordID implements Record.
func (s Solucao) RecordID() string { return s.ID }

// Field implements Record.
func (s Solucao) Field(key string) any {
	switch key {
	case "id":
		return s.ID
	case "nome":
		return s.Nome
	case "descricao":
		return s.Descricao
	case "categoria":
		return s.Categoria
	case "url":
		return deref(s.URL)
	case "icone":
		return deref(s.Icone)
	case "municipioId":
		return deref(s.MunicipioID)
	case "status":
		return s.Status
	case "createdAt":
		return s.CreatedAt
	case "updatedAt":
		return s.UpdatedAt
	}
	return nil
}

// Escola is a school within a municipality.
type Escola struct {
	ID          string  `json:"id"`
	Nome        string  `json:"nome"`
	Codigo      string  `json:"codigo"`
	Endereco    string  `json:"endereco"`
	Telefone    *string `json:"telefone,omitempty"`
	Email       *string `json:"email,omitempty"`
	Diretor     *string `json:"diretor,omitempty"`
	TipoEnsino  string  `json:"tipoEnsino"`
	Turno       string  `json:"turno"`
	TotalAlunos int     `json:"totalAlunos"`
	MunicipioID string  `json:"municipioId"`
	Status      string  `json:"status"`
}

// RecordID implements Record.
func (e Escola) RecordID() string { return e.ID }

// Field implements Record.
func (e Escola) Field(key string) any {
	switch key {
	case "id":
		return e.ID
	case "nome":
		return e.Nome
	case "codigo":
		return e.Codigo
	case "endereco":
		return e.Endereco
	case "telefone":
		return deref(e.Telefone)
	case "email":
		return deref(e.Email)
	case "diretor":
		return deref(e.Diretor)
	case "tipoEnsino":
		return e.TipoEnsino
	case "turno":
		return e.Turno
	case "totalAlunos":
		return e.TotalAlunos
	case "municipioId":
		return e.MunicipioID
	case "status":
		return e.Status
	}
	return nil
}

// Aluno is a student enrolled in a school of a municipality.
type Aluno struct {
	ID                 string  `json:"id"`
	Nome               string  `json:"nome"`
	DataNascimento     string  `json:"dataNascimento"`
	CPF                *string `json:"cpf,omitempty"`
	Matricula          string  `json:"matricula"`
	Escola             string  `json:"escola"`
	Serie              string  `json:"serie"`
	Turma              string  `json:"turma"`
	ResponsavelNome    string  `json:"responsavelNome"`
	ResponsavelContato string  `json:"responsavelContato"`
	MunicipioID        string  `json:"municipioId"`
	Status             string  `json:"status"`
}

// RecordID implements Record.
func (a Aluno) RecordID() string { return a.ID }

// Field implements Record.
func (a Aluno) Field(key string) any {
	switch key {
	case "id":
		return a.ID
	case "nome":
		return a.Nome
	case "dataNascimento":
		return a.DataNascimento
	case "cpf":
		return deref(a.CPF)
	case "matricula":
		return a.Matricula
	case "escola":
		return a.Escola
	case "serie":
		return a.Serie
	case "turma":
		return a.Turma
	case "responsavelNome":
		return a.ResponsavelNome
	case "responsavelContato":
		return a.ResponsavelContato
	case "municipioId":
		return a.MunicipioID
	case "status":
		return a.Status
	}
	return nil
}

// DashboardStats is the aggregate summary returned by /dashboard/stats.
type DashboardStats struct {
	TotalUsuarios       int  `json:"totalUsuarios"`
	TotalAlunos         int  `json:"totalAlunos"`
	TotalSolucoes       int  `json:"totalSolucoes"`
	TotalMunicipios     *int `json:"totalMunicipios,omitempty"`
	CrescimentoUsuarios int  `json:"crescimentoUsuarios"`
	CrescimentoAlunos   int  `json:"crescimentoAlunos"`
}

// ChartPoint is one labelled value in a dashboard chart.
type ChartPoint struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DashboardCharts is the chart data returned by /dashboard/charts.
type DashboardCharts struct {
	TipoEnsino   []ChartPoint `json:"tipoEnsino"`
	StatusAlunos []ChartPoint `json:"statusAlunos"`
}

// deref returns the pointed-to string, or nil for a nil pointer so that
// absent optional fields behave as missing values.
func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
