package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pitabwire/maximiza/model"
)

// Form is a typed, editable entity payload.
type Form interface {
	// Resource is the backend collection the form writes to.
	Resource() string
	// Validate returns every field error. It does not modify the form.
	Validate() []model.FieldError
}

// Scoped is a form that belongs to one municipality.
type Scoped interface {
	Form
	ScopeTo(municipioID string)
}

// Shared messages.
const (
	msgNome      = "Nome deve ter no mínimo 3 caracteres"
	msgEmail     = "Email inválido"
	msgSenha     = "Senha deve ter no mínimo 6 caracteres"
	msgStatus    = "Selecione o status"
	msgURL       = "URL inválida"
	msgCPF       = "CPF deve ter 11 dígitos"
	msgDescricao = "Descrição deve ter no mínimo 10 caracteres"
)

// LoginForm holds sign-in credentials.
type LoginForm struct {
	Email string `json:"email" validate:"required,email"`
	Senha string `json:"senha" validate:"required,min=6"`
}

var loginMessages = map[string]string{
	"email": "E-mail inválido",
	"senha": msgSenha,
}

// Resource implements Form.
func (LoginForm) Resource() string { return "auth" }

// Validate implements Form.
func (f LoginForm) Validate() []model.FieldError { return check(f, loginMessages) }

// MunicipioForm creates or edits a municipality.
type MunicipioForm struct {
	Nome       string `json:"nome"                 validate:"required,notblank,min=3"`
	Estado     string `json:"estado"               validate:"required,uf"`
	CodigoIBGE string `json:"codigoIBGE,omitempty" validate:"omitempty,numeric,len=7"`
	Logo       string `json:"logo,omitempty"       validate:"omitempty,url"`
	Status     string `json:"status"               validate:"required,oneof=ativo inativo"`
}

var municipioMessages = map[string]string{
	"nome":       msgNome,
	"estado":     "Selecione o estado",
	"codigoIBGE": "Código IBGE deve ter 7 dígitos",
	"logo":       msgURL,
	"status":     msgStatus,
}

// Resource implements Form.
func (MunicipioForm) Resource() string { return model.ResourceMunicipios }

// Validate implements Form.
func (f MunicipioForm) Validate() []model.FieldError { return check(f, municipioMessages) }

func (f *MunicipioForm) normalize() {
	f.Nome = strings.TrimSpace(f.Nome)
	f.Estado = strings.ToUpper(strings.TrimSpace(f.Estado))
	f.CodigoIBGE = digits(f.CodigoIBGE)
	if f.Status == "" {
		f.Status = model.StatusAtivo
	}
}

// SolucaoForm creates or edits a solution.
type SolucaoForm struct {
	Nome        string `json:"nome"                  validate:"required,notblank,min=3"`
	Descricao   string `json:"descricao"             validate:"required,min=10"`
	Categoria   string `json:"categoria"             validate:"required,oneof=educacao saude financeiro administrativo social outros"`
	URL         string `json:"url,omitempty"         validate:"omitempty,url"`
	Icone       string `json:"icone,omitempty"`
	MunicipioID string `json:"municipioId,omitempty"`
	Status      string `json:"status"                validate:"required,oneof=ativo inativo"`
}

var solucaoMessages = map[string]string{
	"nome":      msgNome,
	"descricao": msgDescricao,
	"categoria": "Selecione a categoria",
	"url":       msgURL,
	"status":    msgStatus,
}

// Resource implements Form.
func (SolucaoForm) Resource() string { return model.ResourceSolucoes }

// Validate implements Form.
func (f SolucaoForm) Validate() []model.FieldError { return check(f, solucaoMessages) }

// ScopeTo implements Scoped.
func (f *SolucaoForm) ScopeTo(municipioID string) { f.MunicipioID = municipioID }

func (f *SolucaoForm) normalize() {
	f.Nome = strings.TrimSpace(f.Nome)
	f.URL = strings.TrimSpace(f.URL)
	if f.Status == "" {
		f.Status = model.StatusAtivo
	}
}

// UsuarioForm creates or edits a user. Senha is required when creating and
// checked only when provided on update.
type UsuarioForm struct {
	Nome        string `json:"nome"                  validate:"required,notblank,min=3"`
	Email       string `json:"email"                 validate:"required,email"`
	Senha       string `json:"senha,omitempty"`
	CPF         string `json:"cpf,omitempty"         validate:"omitempty,min=11"`
	Telefone    string `json:"telefone,omitempty"    validate:"omitempty,min=10,max=11"`
	Perfil      string `json:"perfil"                validate:"required,oneof=admin gestor usuario"`
	MunicipioID string `json:"municipioId,omitempty"`
	Status      string `json:"status"                validate:"required,oneof=ativo inativo"`

	// Creating selects the create rules.
	Creating bool `json:"-"`
}

var usuarioMessages = map[string]string{
	"nome":     msgNome,
	"email":    msgEmail,
	"senha":    msgSenha,
	"cpf":      msgCPF,
	"telefone": "Telefone inválido",
	"perfil":   "Selecione o perfil",
	"status":   msgStatus,
}

// Resource implements Form.
func (UsuarioForm) Resource() string { return model.ResourceUsuarios }

// Validate implements Form.
func (f UsuarioForm) Validate() []model.FieldError { return check(f, usuarioMessages) }

// ScopeTo implements Scoped. Only administrators may be unscoped.
func (f *UsuarioForm) ScopeTo(municipioID string) {
	f.MunicipioID = municipioID
	if f.Perfil == model.PerfilAdmin {
		f.Perfil = model.PerfilUsuario
	}
}

func (f *UsuarioForm) normalize() {
	f.Nome = strings.TrimSpace(f.Nome)
	f.Email = strings.TrimSpace(f.Email)
	f.CPF = digits(f.CPF)
	f.Telefone = digits(f.Telefone)
	if f.Perfil == "" {
		f.Perfil = model.PerfilUsuario
	}
	if f.Status == "" {
		f.Status = model.StatusAtivo
	}
}

func usuarioStructValidation(sl validator.StructLevel) {
	f, ok := sl.Current().Interface().(UsuarioForm)
	if !ok {
		return
	}
	if (f.Creating || f.Senha != "") && len(f.Senha) < 6 {
		sl.ReportError(f.Senha, "senha", "Senha", senhaTag, "")
	}
}

// EscolaForm creates or edits a school.
type EscolaForm struct {
	Nome        string `json:"nome"               validate:"required,notblank,min=3"`
	Codigo      string `json:"codigo"             validate:"required,min=2"`
	Endereco    string `json:"endereco"           validate:"required,min=5"`
	Telefone    string `json:"telefone,omitempty"`
	Email       string `json:"email,omitempty"    validate:"omitempty,email"`
	Diretor     string `json:"diretor,omitempty"`
	TipoEnsino  string `json:"tipoEnsino"         validate:"required,oneof=infantil fundamental medio integral"`
	Turno       string `json:"turno"              validate:"required,oneof=matutino vespertino noturno integral"`
	TotalAlunos int    `json:"totalAlunos"        validate:"gte=0"`
	MunicipioID string `json:"municipioId"`
	Status      string `json:"status"             validate:"required,oneof=ativo inativo"`
}

var escolaMessages = map[string]string{
	"nome":        msgNome,
	"codigo":      "Código é obrigatório",
	"endereco":    "Endereço é obrigatório",
	"email":       msgEmail,
	"tipoEnsino":  "Selecione o tipo de ensino",
	"turno":       "Selecione o turno",
	"totalAlunos": "Total de alunos não pode ser negativo",
	"status":      msgStatus,
}

// Resource implements Form.
func (EscolaForm) Resource() string { return model.ResourceEscolas }

// Validate implements Form.
func (f EscolaForm) Validate() []model.FieldError { return check(f, escolaMessages) }

// ScopeTo implements Scoped.
func (f *EscolaForm) ScopeTo(municipioID string) { f.MunicipioID = municipioID }

func (f *EscolaForm) normalize() {
	f.Nome = strings.TrimSpace(f.Nome)
	f.Codigo = strings.TrimSpace(f.Codigo)
	f.Telefone = digits(f.Telefone)
	if f.Turno == "" {
		f.Turno = "matutino"
	}
	if f.TipoEnsino == "" {
		f.TipoEnsino = "fundamental"
	}
	if f.Status == "" {
		f.Status = model.StatusAtivo
	}
}

// AlunoForm creates or edits a student.
type AlunoForm struct {
	Nome               string `json:"nome"               validate:"required,notblank,min=3"`
	DataNascimento     string `json:"dataNascimento"     validate:"required,date_ymd"`
	CPF                string `json:"cpf,omitempty"      validate:"omitempty,min=11"`
	Matricula          string `json:"matricula"          validate:"required,notblank"`
	Escola             string `json:"escola"             validate:"required,notblank"`
	Serie              string `json:"serie"              validate:"required,notblank"`
	Turma              string `json:"turma"              validate:"required,notblank"`
	ResponsavelNome    string `json:"responsavelNome"    validate:"required,min=3"`
	ResponsavelContato string `json:"responsavelContato" validate:"required,notblank"`
	MunicipioID        string `json:"municipioId"`
	Status             string `json:"status"             validate:"required,oneof=ativo inativo"`
}

var alunoMessages = map[string]string{
	"nome":               msgNome,
	"dataNascimento":     "Data de nascimento inválida",
	"cpf":                msgCPF,
	"matricula":          "Matrícula é obrigatória",
	"escola":             "Escola é obrigatória",
	"serie":              "Série é obrigatória",
	"turma":              "Turma é obrigatória",
	"responsavelNome":    "Nome do responsável deve ter no mínimo 3 caracteres",
	"responsavelContato": "Contato do responsável é obrigatório",
	"status":             msgStatus,
}

// Resource implements Form.
func (AlunoForm) Resource() string { return model.ResourceAlunos }

// Validate implements Form.
func (f AlunoForm) Validate() []model.FieldError { return check(f, alunoMessages) }

// ScopeTo implements Scoped.
func (f *AlunoForm) ScopeTo(municipioID string) { f.MunicipioID = municipioID }

func (f *AlunoForm) normalize() {
	f.Nome = strings.TrimSpace(f.Nome)
	f.CPF = digits(f.CPF)
	if f.Status == "" {
		f.Status = model.StatusAtivo
	}
}

// Decode reads a JSON payload into the form for resource, trims and
// defaults its fields, and returns it unvalidated. creating selects the
// create rules where they differ from update.
func Decode(resource string, raw []byte, creating bool) (Form, error) {
	var (
		f    Form
		norm func()
	)
	switch resource {
	case model.ResourceMunicipios:
		m := &MunicipioForm{}
		f, norm = m, m.normalize
	case model.ResourceSolucoes:
		s := &SolucaoForm{}
		f, norm = s, s.normalize
	case model.ResourceUsuarios:
		u := &UsuarioForm{Creating: creating}
		f, norm = u, u.normalize
	case model.ResourceEscolas:
		e := &EscolaForm{}
		f, norm = e, e.normalize
	case model.ResourceAlunos:
		a := &AlunoForm{}
		f, norm = a, a.normalize
	default:
		return nil, fmt.Errorf("forms: unknown resource %q", resource)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("forms: decode %s: %w", resource, err)
	}
	norm()
	return f, nil
}

// Payload renders a form as the JSON object sent to the backend.
func Payload(f Form) (map[string]any, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("forms: encode %s: %w", f.Resource(), err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("forms: encode %s: %w", f.Resource(), err)
	}
	return out, nil
}
