package metadata

import (
	"testing"

	"github.com/pitabwire/maximiza/model"
)

func TestGetFormData(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed(model.ResourceUsuarios, model.Row{
		"id": "u-9", "nome": "Rita", "email": "rita@exemplo.com", "senha": "segredo",
		"cpf": "123.456.789-01", "perfil": "gestor", "municipioId": "m-1", "status": "ativo",
		"createdAt": "2024-01-01T00:00:00Z",
	})
	p := NewFormProvider(f.store)

	data, err := p.GetFormData(background, gestorCtx(), model.ResourceUsuarios, "u-9")
	if err != nil {
		t.Fatalf("GetFormData() error = %v", err)
	}
	if data["id"] != "u-9" || data["nome"] != "Rita" {
		t.Errorf("data = %v", data)
	}
	if _, ok := data["senha"]; ok {
		t.Error("senha must not be returned")
	}
	if _, ok := data["createdAt"]; ok {
		t.Error("fields outside the form must not be returned")
	}
	if data["cpf"] != "12345678901" {
		t.Errorf("cpf = %v, want digits only", data["cpf"])
	}
}

func TestGetFormData_otherMunicipio(t *testing.T) {
	f := newFixture(t)
	p := NewFormProvider(f.store)

	if _, err := p.GetFormData(background, gestorCtx(), model.ResourceEscolas, "e-3"); model.AsEnvelope(err).Code != model.ErrNotFound {
		t.Errorf("GetFormData() error = %v, want NOT_FOUND", err)
	}
	data, err := p.GetFormData(background, adminCtx(), model.ResourceEscolas, "e-3")
	if err != nil {
		t.Fatalf("GetFormData() as admin error = %v", err)
	}
	if data["codigo"] != "S01" {
		t.Errorf("codigo = %v", data["codigo"])
	}
}
