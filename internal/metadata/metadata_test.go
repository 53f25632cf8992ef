package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/pitabwire/maximiza/internal/backend/backendtest"
	"github.com/pitabwire/maximiza/internal/capability"
	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/internal/store"
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

var policy = capability.NewStaticPolicy(capability.DefaultRoles())

func capsFor(t *testing.T, rctx *model.RequestContext) model.CapabilitySet {
	t.Helper()
	caps, err := policy.ResolveCapabilities(rctx)
	if err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}
	return caps
}

type fixture struct {
	registry *definition.Registry
	store    *store.Store
	backend  *backendtest.Fake
}

// newFixture loads the shipped definitions over a seeded fake backend.
func newFixture(t *testing.T) fixture {
	t.Helper()
	defs, err := definition.NewLoader(false).LoadAll([]string{"../../definitions"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	fake := backendtest.NewFake()
	fake.Seed(model.ResourceMunicipios,
		model.Row{"id": "m-1", "nome": "São Luís", "estado": "MA", "status": "ativo"},
		model.Row{"id": "m-2", "nome": "Campinas", "estado": "SP", "status": "ativo"},
		model.Row{"id": "m-3", "nome": "Abaetetuba", "estado": "PA", "status": "inativo"},
	)
	fake.Seed(model.ResourceEscolas,
		model.Row{"id": "e-1", "nome": "EM Centro", "codigo": "C01", "endereco": "Rua A, 1", "tipoEnsino": "fundamental", "turno": "matutino", "municipioId": "m-1", "status": "ativo"},
		model.Row{"id": "e-2", "nome": "EM Norte", "codigo": "N01", "endereco": "Rua B, 2", "tipoEnsino": "infantil", "turno": "vespertino", "municipioId": "m-1", "status": "inativo"},
		model.Row{"id": "e-3", "nome": "EM Sul", "codigo": "S01", "endereco": "Rua C, 3", "tipoEnsino": "medio", "turno": "noturno", "municipioId": "m-2", "status": "ativo"},
	)
	fake.Seed(model.ResourceAlunos,
		model.Row{"id": "a-1", "nome": "Ana", "matricula": "001", "escola": "EM Centro", "serie": "1º ano", "municipioId": "m-1", "status": "ativo"},
		model.Row{"id": "a-2", "nome": "Bia", "matricula": "002", "escola": "EM Norte", "serie": "2º ano", "municipioId": "m-1", "status": "ativo"},
		model.Row{"id": "a-3", "nome": "Caio", "matricula": "003", "escola": "EM Centro", "serie": "1º ano", "municipioId": "m-1", "status": "inativo"},
	)
	caps := capability.NewResolver(policy, time.Minute, 100, nil)
	st := store.New(fake, caps, nil, config.CacheConfig{TTL: time.Minute, MaxEntries: 100}, nil, nil)
	return fixture{registry: definition.NewRegistry(defs), store: st, backend: fake}
}

func query(params map[string]string) func(string) string {
	return func(k string) string { return params[k] }
}

var background = context.Background()
