package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/maximiza/model"
)

func messages(errs []model.FieldError) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Message
	}
	return out
}

func TestLoginForm(t *testing.T) {
	assert.Empty(t, LoginForm{Email: "admin@maximiza.com.br", Senha: "123456"}.Validate())

	got := messages(LoginForm{Email: "nope", Senha: "123"}.Validate())
	assert.Equal(t, map[string]string{
		"email": "E-mail inválido",
		"senha": "Senha deve ter no mínimo 6 caracteres",
	}, got)
}

func TestMunicipioForm(t *testing.T) {
	ok := MunicipioForm{Nome: "São Luís", Estado: "MA", Status: "ativo"}
	assert.Empty(t, ok.Validate())

	got := messages(MunicipioForm{Nome: "SL", Estado: "XX", Status: "talvez", CodigoIBGE: "12"}.Validate())
	assert.Equal(t, "Nome deve ter no mínimo 3 caracteres", got["nome"])
	assert.Equal(t, "Selecione o estado", got["estado"])
	assert.Equal(t, "Selecione o status", got["status"])
	assert.Equal(t, "Código IBGE deve ter 7 dígitos", got["codigoIBGE"])
}

func TestSolucaoForm(t *testing.T) {
	ok := SolucaoForm{Nome: "Gestão Escolar", Descricao: "Sistema de gestão", Categoria: "educacao", Status: "ativo"}
	assert.Empty(t, ok.Validate())

	ok.URL = "https://exemplo.gov.br"
	assert.Empty(t, ok.Validate())

	bad := SolucaoForm{Nome: "Ge", Descricao: "curta", Categoria: "jogos", URL: "não é url", Status: "ativo"}
	got := messages(bad.Validate())
	assert.Equal(t, "Nome deve ter no mínimo 3 caracteres", got["nome"])
	assert.Equal(t, "Descrição deve ter no mínimo 10 caracteres", got["descricao"])
	assert.Equal(t, "Selecione a categoria", got["categoria"])
	assert.Equal(t, "URL inválida", got["url"])
}

func TestUsuarioForm_senhaRules(t *testing.T) {
	base := UsuarioForm{Nome: "Maria Silva", Email: "maria@x.com", Perfil: "gestor", Status: "ativo"}

	creating := base
	creating.Creating = true
	got := messages(creating.Validate())
	assert.Equal(t, "Senha deve ter no mínimo 6 caracteres", got["senha"])

	creating.Senha = "segredo"
	assert.Empty(t, creating.Validate())

	updating := base
	assert.Empty(t, updating.Validate(), "senha is optional on update")

	updating.Senha = "123"
	got = messages(updating.Validate())
	assert.Equal(t, "Senha deve ter no mínimo 6 caracteres", got["senha"])
}

func TestUsuarioForm_cpfAndEmail(t *testing.T) {
	f := UsuarioForm{Nome: "Maria", Email: "maria", CPF: "123", Perfil: "usuario", Status: "ativo"}
	got := messages(f.Validate())
	assert.Equal(t, "Email inválido", got["email"])
	assert.Equal(t, "CPF deve ter 11 dígitos", got["cpf"])
}

func TestEscolaForm(t *testing.T) {
	ok := EscolaForm{Nome: "EM Centro", Codigo: "E1", Endereco: "Rua A, 10", TipoEnsino: "fundamental", Turno: "matutino", Status: "ativo"}
	assert.Empty(t, ok.Validate())

	got := messages(EscolaForm{Nome: "EM Centro", Codigo: "E", Endereco: "Rua", TipoEnsino: "fundamental", Turno: "matutino", Status: "ativo", Email: "x"}.Validate())
	assert.Equal(t, "Código é obrigatório", got["codigo"])
	assert.Equal(t, "Endereço é obrigatório", got["endereco"])
	assert.Equal(t, "Email inválido", got["email"])
}

func TestAlunoForm(t *testing.T) {
	ok := AlunoForm{
		Nome: "Pedro Souza", DataNascimento: "2015-03-09", Matricula: "2024001",
		Escola: "EM Centro", Serie: "3º ano", Turma: "A",
		ResponsavelNome: "Ana Souza", ResponsavelContato: "98999990000", Status: "ativo",
	}
	assert.Empty(t, ok.Validate())

	bad := ok
	bad.DataNascimento = "09/03/2015"
	bad.Matricula = "  "
	got := messages(bad.Validate())
	assert.Equal(t, "Data de nascimento inválida", got["dataNascimento"])
	assert.Equal(t, "Matrícula é obrigatória", got["matricula"])
}

func TestDecode_normalizesAndDefaults(t *testing.T) {
	f, err := Decode(model.ResourceUsuarios, []byte(`{"nome":" Maria ","email":"maria@x.com","cpf":"123.456.789-01","telefone":"(98) 99999-0000"}`), true)
	require.NoError(t, err)
	u, ok := f.(*UsuarioForm)
	require.True(t, ok)
	assert.Equal(t, "Maria", u.Nome)
	assert.Equal(t, "12345678901", u.CPF)
	assert.Equal(t, "98999990000", u.Telefone)
	assert.Equal(t, "usuario", u.Perfil)
	assert.Equal(t, "ativo", u.Status)
	assert.True(t, u.Creating)

	got := messages(f.Validate())
	assert.Contains(t, got, "senha")
}

func TestDecode_unknownResource(t *testing.T) {
	_, err := Decode("turmas", []byte(`{}`), true)
	assert.Error(t, err)

	_, err = Decode(model.ResourceEscolas, []byte(`{`), true)
	assert.Error(t, err)
}

func TestScopeTo_demotesAdminPerfil(t *testing.T) {
	f, err := Decode(model.ResourceUsuarios, []byte(`{"nome":"Maria","email":"m@x.com","perfil":"admin","municipioId":"outro"}`), false)
	require.NoError(t, err)
	s, ok := f.(Scoped)
	require.True(t, ok)
	s.ScopeTo("m1")
	u := f.(*UsuarioForm)
	assert.Equal(t, "m1", u.MunicipioID)
	assert.Equal(t, "usuario", u.Perfil)
}

func TestPayload_omitsEmptyOptionals(t *testing.T) {
	f, err := Decode(model.ResourceUsuarios, []byte(`{"nome":"Maria","email":"m@x.com"}`), false)
	require.NoError(t, err)
	body, err := Payload(f)
	require.NoError(t, err)
	assert.NotContains(t, body, "senha")
	assert.NotContains(t, body, "cpf")
	assert.NotContains(t, body, "Creating")
	assert.Equal(t, "Maria", body["nome"])
}
