// Package openapi indexes the backend's OpenAPI contract by method and path
// so definitions and mutations can be checked against it.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/maximiza/model"
)

// MsgRequired is reported for a body field the contract requires.
const MsgRequired = "Campo obrigatório"

// Operation is one indexed backend operation.
type Operation struct {
	OperationID  string
	Method       string
	PathTemplate string
	Parameters   []*openapi3.Parameter
	RequestBody  *openapi3.RequestBody
}

// Index is an in-memory, read-only index of backend operations keyed by
// "METHOD /path". An empty Index knows no operations and validates nothing.
type Index struct {
	operations map[string]Operation
	source     string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{operations: make(map[string]Operation)}
}

func key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Load parses and validates the OpenAPI document at specPath and indexes every
// operation. An empty specPath leaves the index empty.
func (idx *Index) Load(specPath string) error {
	if specPath == "" {
		return nil
	}
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return fmt.Errorf("openapi: loading %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("openapi: validating %s: %w", specPath, err)
	}

	ops := make(map[string]Operation)
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			params := make([]*openapi3.Parameter, 0, len(item.Parameters)+len(op.Parameters))
			for _, ref := range append(item.Parameters, op.Parameters...) {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			var body *openapi3.RequestBody
			if op.RequestBody != nil {
				body = op.RequestBody.Value
			}
			ops[key(method, path)] = Operation{
				OperationID:  op.OperationID,
				Method:       strings.ToUpper(method),
				PathTemplate: path,
				Parameters:   params,
				RequestBody:  body,
			}
		}
	}

	idx.operations = ops
	idx.source = specPath
	return nil
}

// Loaded reports whether a contract was loaded.
func (idx *Index) Loaded() bool { return idx != nil && idx.source != "" }

// Count returns the number of indexed operations.
func (idx *Index) Count() int {
	if idx == nil {
		return 0
	}
	return len(idx.operations)
}

// Operation returns the operation at method and path template.
func (idx *Index) Operation(method, path string) (Operation, bool) {
	if idx == nil {
		return Operation{}, false
	}
	op, ok := idx.operations[key(method, path)]
	return op, ok
}

// HasOperation reports whether method and path template are in the contract.
func (idx *Index) HasOperation(method, path string) bool {
	_, ok := idx.Operation(method, path)
	return ok
}

// Keys returns every "METHOD /path" key, sorted.
func (idx *Index) Keys() []string {
	if idx == nil {
		return nil
	}
	keys := make([]string, 0, len(idx.operations))
	for k := range idx.operations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CollectionPath and ItemPath are the path templates used for a resource.
func CollectionPath(resource string) string { return "/" + resource }

// ItemPath is the single-record path template for resource.
func ItemPath(resource string) string { return "/" + resource + "/{id}" }

// MutationOperation maps a mutation action onto its method and path template.
func MutationOperation(resource, action string) (method, path string) {
	switch action {
	case "create":
		return http.MethodPost, CollectionPath(resource)
	case "update":
		return http.MethodPut, ItemPath(resource)
	case "delete":
		return http.MethodDelete, ItemPath(resource)
	}
	return http.MethodGet, CollectionPath(resource)
}

// ValidateRequest checks body against the JSON request schema of the
// operation: required properties must be present and non-empty, and present
// properties must match their schema. Unknown operations and operations
// without a JSON body pass.
func (idx *Index) ValidateRequest(method, path string, body map[string]any) []model.FieldError {
	op, ok := idx.Operation(method, path)
	if !ok || op.RequestBody == nil {
		return nil
	}
	mt := op.RequestBody.Content.Get("application/json")
	if mt == nil || mt.Schema == nil || mt.Schema.Value == nil {
		return nil
	}
	schema := mt.Schema.Value

	var errs []model.FieldError
	for _, name := range schema.Required {
		v, exists := body[name]
		if !exists || v == nil || v == "" {
			errs = append(errs, model.FieldError{Field: name, Code: "REQUIRED", Message: MsgRequired})
		}
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop := schema.Properties[name]
		v, exists := body[name]
		if !exists || v == nil || prop == nil || prop.Value == nil {
			continue
		}
		if err := prop.Value.VisitJSON(v); err != nil {
			errs = append(errs, model.FieldError{Field: name, Code: "SCHEMA", Message: schemaMessage(err)})
		}
	}
	return errs
}

func schemaMessage(err error) string {
	var se *openapi3.SchemaError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	return err.Error()
}
