package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pitabwire/maximiza/internal/forms"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/model"
)

// FormProvider loads records into the shape of their edit forms.
type FormProvider struct {
	store *store.Store
}

// NewFormProvider creates a FormProvider.
func NewFormProvider(st *store.Store) *FormProvider {
	return &FormProvider{store: st}
}

// GetFormData reads record id of resource and returns only the fields its
// edit form carries, plus the id. Secrets never leave the backend record.
func (p *FormProvider) GetFormData(
	ctx context.Context,
	rctx *model.RequestContext,
	resource string,
	id string,
) (model.Row, error) {
	row, err := p.store.Get(ctx, rctx, resource, id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("metadata: encode %s %s: %w", resource, id, err)
	}
	form, err := forms.Decode(resource, raw, false)
	if err != nil {
		return nil, fmt.Errorf("metadata: load form %s %s: %w", resource, id, err)
	}
	data, err := forms.Payload(form)
	if err != nil {
		return nil, err
	}

	delete(data, "senha")
	data["id"] = row.RecordID()
	return model.Row(data), nil
}
