package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/maximiza/internal/backend/backendtest"
	"github.com/pitabwire/maximiza/internal/capability"
	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/openapi"
	"github.com/pitabwire/maximiza/model"
)

func adminCtx() *model.RequestContext {
	return &model.RequestContext{SubjectID: "u-admin", SessionID: "s-admin", Perfil: "admin", Role: model.RoleAdmin, Roles: []string{"admin"}}
}

func gestorCtx() *model.RequestContext {
	return &model.RequestContext{SubjectID: "u-g", SessionID: "s-g", Perfil: "gestor", Role: model.RoleMunicipalManager, MunicipioID: "m-1", Roles: []string{"gestor"}}
}

func usuarioCtx() *model.RequestContext {
	return &model.RequestContext{SubjectID: "u-u", SessionID: "s-u", Perfil: "usuario", Role: model.RoleMunicipalManager, MunicipioID: "m-1", Roles: []string{"usuario"}}
}

type fixture struct {
	store   *Store
	backend *backendtest.Fake
	metrics *observability.Metrics
}

func newFixture(t *testing.T, contract *openapi.Index) fixture {
	t.Helper()
	fake := backendtest.NewFake()
	fake.Seed(model.ResourceEscolas,
		model.Row{"id": "e-1", "nome": "EM Centro", "municipioId": "m-1", "tipoEnsino": "fundamental"},
		model.Row{"id": "e-2", "nome": "EM Norte", "municipioId": "m-2", "tipoEnsino": "infantil"},
	)
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	caps := capability.NewResolver(capability.NewStaticPolicy(capability.DefaultRoles()), time.Minute, 100, metrics)
	s := New(fake, caps, contract, config.CacheConfig{TTL: time.Minute, MaxEntries: 100}, metrics, nil)
	return fixture{store: s, backend: fake, metrics: metrics}
}

const escolaBody = `{"nome":"EM Sul","codigo":"ES01","endereco":"Rua das Flores, 10","tipoEnsino":"medio","turno":"noturno","municipioId":"m-2"}`

func TestCollection_cachesPerScope(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rows, err := f.store.Collection(ctx, adminCtx(), model.ResourceEscolas, "")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = f.store.Collection(ctx, adminCtx(), model.ResourceEscolas, "")
	require.NoError(t, err)
	assert.Len(t, f.backend.Calls(backendtest.OpList), 1, "second read should hit the cache")

	rows, err = f.store.Collection(ctx, adminCtx(), model.ResourceEscolas, "m-2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "e-2", rows[0].RecordID())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CollectionCacheHitsTotal.WithLabelValues("escolas")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CollectionCacheMissesTotal.WithLabelValues("escolas")))
}

func TestCollection_municipalSessionIsPinned(t *testing.T) {
	f := newFixture(t, nil)

	rows, err := f.store.Collection(context.Background(), gestorCtx(), model.ResourceEscolas, "m-2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "e-1", rows[0].RecordID())
	assert.Equal(t, "m-1", f.backend.Calls(backendtest.OpList)[0].MunicipioID)
}

func TestCollection_unknownResource(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.store.Collection(context.Background(), adminCtx(), "turmas", "")
	env := model.AsEnvelope(err)
	require.NotNil(t, env)
	assert.Equal(t, model.ErrNotFound, env.Code)
}

func TestRefresh_keepsLastGoodCollection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.store.Collection(ctx, adminCtx(), model.ResourceEscolas, "")
	require.NoError(t, err)

	f.backend.FailNext(backendtest.OpList, model.ResourceEscolas, model.NewBackendUnavailableError())
	rows, err := f.store.Refresh(ctx, adminCtx(), model.ResourceEscolas, "")
	require.Error(t, err)
	assert.Len(t, rows, 2, "last good collection is returned with the error")

	cached, ok := f.store.Cached("s-admin", model.ResourceEscolas, "")
	require.True(t, ok)
	assert.Len(t, cached, 2)
}

func TestRequestCreate_refetchesAndNotifies(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.store.Collection(ctx, adminCtx(), model.ResourceEscolas, "")
	require.NoError(t, err)

	var changes []Change
	unsubscribe := f.store.Subscribe(func(ch Change) { changes = append(changes, ch) })
	defer unsubscribe()

	out := f.store.RequestCreate(ctx, adminCtx(), model.ResourceEscolas, []byte(escolaBody))
	require.True(t, out.OK, "outcome error: %v", out.Err)
	assert.Equal(t, "EM Sul", out.Record.String("nome"))

	require.Len(t, changes, 1)
	ch := changes[0]
	assert.Equal(t, "s-admin", ch.SessionID)
	assert.Equal(t, ActionCreate, ch.Action)
	assert.Equal(t, out.Record.RecordID(), ch.RecordID)
	assert.Len(t, ch.Collections[""], 3)

	cached, _ := f.store.Cached("s-admin", model.ResourceEscolas, "")
	assert.Len(t, cached, 3, "cache holds the re-fetched collection")
	assert.Len(t, f.backend.Calls(backendtest.OpList), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MutationsTotal.WithLabelValues("escolas", "create", "success")))
}

func TestRequestCreate_validationFailure(t *testing.T) {
	f := newFixture(t, nil)

	out := f.store.RequestCreate(context.Background(), adminCtx(), model.ResourceEscolas, []byte(`{"nome":"EM"}`))
	require.False(t, out.OK)
	env := model.AsEnvelope(out.Err)
	require.NotNil(t, env)
	assert.Equal(t, model.ErrValidationError, env.Code)

	fields := map[string]string{}
	for _, d := range env.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Nome deve ter no mínimo 3 caracteres", fields["nome"])
	assert.Equal(t, "Código é obrigatório", fields["codigo"])
	assert.Empty(t, f.backend.Calls(backendtest.OpCreate), "invalid forms never reach the backend")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ValidationFailuresTotal.WithLabelValues("escolas")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MutationsTotal.WithLabelValues("escolas", "create", "failure")))
}

func TestRequestCreate_badJSON(t *testing.T) {
	f := newFixture(t, nil)

	out := f.store.RequestCreate(context.Background(), adminCtx(), model.ResourceEscolas, []byte(`{`))
	assert.Equal(t, model.ErrBadRequest, model.AsEnvelope(out.Err).Code)
}

func TestRequestCreate_municipalSessionIsScoped(t *testing.T) {
	f := newFixture(t, nil)

	out := f.store.RequestCreate(context.Background(), gestorCtx(), model.ResourceEscolas, []byte(escolaBody))
	require.True(t, out.OK, "outcome error: %v", out.Err)

	body, ok := f.backend.Calls(backendtest.OpCreate)[0].Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m-1", body["municipioId"], "payload municipio is forced to the session's")
}

func TestRequestCreate_forbidden(t *testing.T) {
	f := newFixture(t, nil)

	out := f.store.RequestCreate(context.Background(), usuarioCtx(), model.ResourceEscolas, []byte(escolaBody))
	assert.Equal(t, model.ErrForbidden, model.AsEnvelope(out.Err).Code)

	out = f.store.RequestCreate(context.Background(), gestorCtx(), model.ResourceMunicipios, []byte(`{"nome":"Caxias","estado":"MA"}`))
	assert.Equal(t, model.ErrForbidden, model.AsEnvelope(out.Err).Code)
}

func TestRequestCreate_backendErrorKeepsCollection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.store.Collection(ctx, adminCtx(), model.ResourceEscolas, "")

	f.backend.FailNext(backendtest.OpCreate, model.ResourceEscolas, model.NewBackendError(409, "Código já cadastrado"))
	notified := false
	f.store.Subscribe(func(Change) { notified = true })

	out := f.store.RequestCreate(ctx, adminCtx(), model.ResourceEscolas, []byte(escolaBody))
	require.False(t, out.OK)
	assert.Equal(t, "Código já cadastrado", out.Message())
	assert.False(t, notified)

	cached, _ := f.store.Cached("s-admin", model.ResourceEscolas, "")
	assert.Len(t, cached, 2)
}

func TestRequestUpdate(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"nome":"EM Centro Novo","codigo":"EC01","endereco":"Praça Central, 1","tipoEnsino":"fundamental","turno":"matutino"}`
	out := f.store.RequestUpdate(context.Background(), gestorCtx(), model.ResourceEscolas, "e-1", []byte(body))
	require.True(t, out.OK, "outcome error: %v", out.Err)
	assert.Equal(t, "EM Centro Novo", out.Record.String("nome"))
	assert.Equal(t, "m-1", out.Record.String("municipioId"))
}

func TestRequestUpdate_otherMunicipioIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"nome":"EM Norte","codigo":"EN01","endereco":"Rua Norte, 5"}`
	out := f.store.RequestUpdate(context.Background(), gestorCtx(), model.ResourceEscolas, "e-2", []byte(body))
	assert.Equal(t, model.ErrNotFound, model.AsEnvelope(out.Err).Code)
	assert.Empty(t, f.backend.Calls(backendtest.OpUpdate))
}

func TestMutations_municipalSessionOutsideItsMunicipio(t *testing.T) {
	seed := func(f fixture) {
		f.backend.Seed(model.ResourceUsuarios,
			model.Row{"id": "u-admin", "nome": "Administração", "email": "admin@maximiza.com.br", "perfil": "admin", "municipioId": nil, "status": "ativo"},
			model.Row{"id": "u-outro", "nome": "Gestor Norte", "email": "norte@m2.gov.br", "perfil": "gestor", "municipioId": "m-2", "status": "ativo"},
			model.Row{"id": "u-orfao", "nome": "Sem Município", "email": "orfao@maximiza.com.br", "perfil": "usuario", "status": "ativo"},
		)
		f.backend.Seed(model.ResourceSolucoes,
			model.Row{"id": "s-global", "nome": "Plataforma Leitura", "descricao": "Solução oferecida a todos", "categoria": "educacao", "municipioId": nil, "status": "ativo"},
		)
	}
	usuarioBody := `{"nome":"Alterado","email":"alterado@m1.gov.br","perfil":"usuario","status":"ativo"}`
	solucaoBody := `{"nome":"Hijacked","descricao":"Descrição alterada pelo gestor","categoria":"educacao","status":"ativo"}`
	escolaUpdate := `{"nome":"EM Norte","codigo":"EN01","endereco":"Rua Norte, 5","tipoEnsino":"infantil","turno":"matutino"}`

	tests := []struct {
		name     string
		resource string
		id       string
		body     string
		code     string
	}{
		{"other municipio escola", model.ResourceEscolas, "e-2", escolaUpdate, model.ErrNotFound},
		{"other municipio usuario", model.ResourceUsuarios, "u-outro", usuarioBody, model.ErrNotFound},
		{"null municipio solucao", model.ResourceSolucoes, "s-global", solucaoBody, model.ErrForbidden},
		{"missing municipio usuario", model.ResourceUsuarios, "u-orfao", usuarioBody, model.ErrForbidden},
		{"admin usuario", model.ResourceUsuarios, "u-admin", usuarioBody, model.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/update", func(t *testing.T) {
			f := newFixture(t, nil)
			seed(f)
			before := f.backend.Rows(tt.resource)

			out := f.store.RequestUpdate(context.Background(), gestorCtx(), tt.resource, tt.id, []byte(tt.body))
			require.False(t, out.OK)
			assert.Equal(t, tt.code, model.AsEnvelope(out.Err).Code)
			assert.Empty(t, f.backend.Calls(backendtest.OpUpdate))
			assert.Equal(t, before, f.backend.Rows(tt.resource))
		})
		t.Run(tt.name+"/delete", func(t *testing.T) {
			f := newFixture(t, nil)
			seed(f)
			before := len(f.backend.Rows(tt.resource))

			out := f.store.RequestDelete(context.Background(), gestorCtx(), tt.resource, tt.id)
			require.False(t, out.OK)
			assert.Equal(t, tt.code, model.AsEnvelope(out.Err).Code)
			assert.Empty(t, f.backend.Calls(backendtest.OpDelete))
			assert.Len(t, f.backend.Rows(tt.resource), before)
		})
	}
}

func TestMutations_adminMayChangeUnscopedRows(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.Seed(model.ResourceSolucoes,
		model.Row{"id": "s-global", "nome": "Plataforma Leitura", "descricao": "Solução oferecida a todos", "categoria": "educacao", "status": "ativo"},
	)

	out := f.store.RequestDelete(context.Background(), adminCtx(), model.ResourceSolucoes, "s-global")
	require.True(t, out.OK, "outcome error: %v", out.Err)
	assert.Empty(t, f.backend.Rows(model.ResourceSolucoes))
}

func TestGet_unscopedRowIsReadable(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.Seed(model.ResourceSolucoes,
		model.Row{"id": "s-global", "nome": "Plataforma Leitura", "municipioId": nil},
	)

	row, err := f.store.Get(context.Background(), gestorCtx(), model.ResourceSolucoes, "s-global")
	require.NoError(t, err)
	assert.Equal(t, "Plataforma Leitura", row.String("nome"))
}

func TestRequestDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var got Change
	f.store.Subscribe(func(ch Change) { got = ch })

	out := f.store.RequestDelete(ctx, adminCtx(), model.ResourceEscolas, "e-2")
	require.True(t, out.OK, "outcome error: %v", out.Err)
	assert.Equal(t, "e-2", got.RecordID)
	assert.Len(t, got.Collections[""], 1)

	out = f.store.RequestDelete(ctx, adminCtx(), model.ResourceEscolas, "")
	assert.Equal(t, model.ErrBadRequest, model.AsEnvelope(out.Err).Code)
}

func TestGet_ownership(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	row, err := f.store.Get(ctx, gestorCtx(), model.ResourceEscolas, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "EM Centro", row.String("nome"))

	_, err = f.store.Get(ctx, gestorCtx(), model.ResourceEscolas, "e-2")
	assert.Equal(t, model.ErrNotFound, model.AsEnvelope(err).Code)
}

func TestForget(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.store.Collection(ctx, adminCtx(), model.ResourceEscolas, "")

	f.store.Forget("s-admin")
	_, ok := f.store.Cached("s-admin", model.ResourceEscolas, "")
	assert.False(t, ok)
}

func TestSubscribe_unsubscribe(t *testing.T) {
	f := newFixture(t, nil)
	calls := 0
	unsubscribe := f.store.Subscribe(func(Change) { calls++ })
	unsubscribe()

	out := f.store.RequestDelete(context.Background(), adminCtx(), model.ResourceEscolas, "e-1")
	require.True(t, out.OK)
	assert.Zero(t, calls)
}

const contractSpec = `openapi: "3.0.3"
info: {title: backend, version: "1"}
paths:
  /escolas:
    post:
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [nome, municipioId]
      responses:
        "201": {description: created}
`

func TestRequestCreate_contractRequiredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contractSpec), 0o600))
	idx := openapi.NewIndex()
	require.NoError(t, idx.Load(path))
	f := newFixture(t, idx)

	body := `{"nome":"EM Sul","codigo":"ES01","endereco":"Rua das Flores, 10"}`
	out := f.store.RequestCreate(context.Background(), adminCtx(), model.ResourceEscolas, []byte(body))
	require.False(t, out.OK)
	env := model.AsEnvelope(out.Err)
	require.Equal(t, model.ErrValidationError, env.Code)
	require.Len(t, env.Details, 1)
	assert.Equal(t, "municipioId", env.Details[0].Field)
}

func TestOutcome_Message(t *testing.T) {
	assert.Empty(t, Outcome{OK: true}.Message())
	assert.Equal(t, model.MsgRequestFailed, Outcome{Err: errors.New("boom")}.Message())
}
