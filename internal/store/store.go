// Package store is the console's application state: the last successful
// collection of every resource a session has looked at, and the mutations
// that change them. Every mutation is followed by a re-fetch of the
// authoritative collection; nothing is patched locally.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/forms"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/openapi"
	"github.com/pitabwire/maximiza/model"
)

// Mutation actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Outcome is the result of a requested mutation. Err is a
// *model.ErrorEnvelope whose message is what the user should see.
type Outcome struct {
	OK     bool
	Record model.Row
	Err    error
}

// Change is published after a successful mutation and its re-fetch.
// Collections holds the re-fetched collection of every cached scope of the
// resource, keyed by municipio scope ("" for unscoped).
type Change struct {
	SessionID   string
	Resource    string
	Action      string
	RecordID    string
	Collections map[string][]model.Row
}

// Listener receives change notifications. It runs synchronously on the
// mutating goroutine and must not call back into mutations.
type Listener func(Change)

// Store caches collections per (session, resource, municipio scope).
type Store struct {
	backend  model.Backend
	caps     model.CapabilityResolver
	contract *openapi.Index
	cache    *expirable.LRU[string, []model.Row]
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New creates a Store. contract may be nil or empty.
func New(backend model.Backend, caps model.CapabilityResolver, contract *openapi.Index, cfg config.CacheConfig, metrics *observability.Metrics, logger *zap.Logger) *Store {
	size := cfg.MaxEntries
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:   backend,
		caps:      caps,
		contract:  contract,
		cache:     expirable.NewLRU[string, []model.Row](size, nil, cfg.TTL),
		metrics:   metrics,
		logger:    logger.Named("store"),
		listeners: make(map[int]Listener),
	}
}

func cacheKey(sessionID, resource, scope string) string {
	return sessionID + "|" + resource + "|" + scope
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.mu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.RUnlock()
	for _, l := range ls {
		l(ch)
	}
}

func (s *Store) authorize(rctx *model.RequestContext, resource, action string) error {
	if !model.IsResource(resource) {
		return model.NewNotFoundError(fmt.Sprintf("resource %q not found", resource))
	}
	if s.caps == nil {
		return nil
	}
	caps, err := s.caps.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("store: resolve capabilities: %w", err)
	}
	if !caps.Can(resource, action) {
		return model.NewForbiddenError(fmt.Sprintf("not allowed to %s %s", action, resource))
	}
	return nil
}

// Scope returns the municipio scope a session uses for resource when it asks
// for requested.
func Scope(rctx *model.RequestContext, requested string) string {
	return rctx.ScopeMunicipio(requested)
}

// Cached returns the last successful collection without fetching.
func (s *Store) Cached(sessionID, resource, scope string) ([]model.Row, bool) {
	return s.cache.Get(cacheKey(sessionID, resource, scope))
}

// Collection returns the cached collection of resource for the session,
// fetching it on a miss.
func (s *Store) Collection(ctx context.Context, rctx *model.RequestContext, resource, municipioID string) ([]model.Row, error) {
	if err := s.authorize(rctx, resource, "list"); err != nil {
		return nil, err
	}
	scope := Scope(rctx, municipioID)
	if rows, ok := s.cache.Get(cacheKey(rctx.SessionID, resource, scope)); ok {
		s.metrics.RecordCollectionCache(resource, true)
		return rows, nil
	}
	s.metrics.RecordCollectionCache(resource, false)
	return s.fetch(ctx, rctx, resource, scope)
}

// Refresh re-fetches a collection. On failure the last good collection is
// kept and returned together with the error.
func (s *Store) Refresh(ctx context.Context, rctx *model.RequestContext, resource, municipioID string) ([]model.Row, error) {
	if err := s.authorize(rctx, resource, "list"); err != nil {
		return nil, err
	}
	scope := Scope(rctx, municipioID)
	rows, err := s.fetch(ctx, rctx, resource, scope)
	if err != nil {
		last, _ := s.cache.Get(cacheKey(rctx.SessionID, resource, scope))
		return last, err
	}
	return rows, nil
}

func (s *Store) fetch(ctx context.Context, rctx *model.RequestContext, resource, scope string) ([]model.Row, error) {
	rows, err := s.backend.List(ctx, rctx, resource, scope)
	if err != nil {
		s.logger.Warn("collection fetch failed",
			zap.String("resource", resource),
			zap.String("scope", scope),
			zap.Error(err),
		)
		return nil, err
	}
	if rows == nil {
		rows = []model.Row{}
	}
	s.cache.Add(cacheKey(rctx.SessionID, resource, scope), rows)
	return rows, nil
}

// Get reads one record. Municipal sessions cannot read records of another
// municipality.
func (s *Store) Get(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.Row, error) {
	if err := s.authorize(rctx, resource, "view"); err != nil {
		return nil, err
	}
	row, err := s.backend.Get(ctx, rctx, resource, id)
	if err != nil {
		return nil, err
	}
	if !owns(rctx, resource, row) {
		return nil, model.NewNotFoundError(fmt.Sprintf("%s %q not found", resource, id))
	}
	return row, nil
}

// owns reports whether a municipal session may see row.
func owns(rctx *model.RequestContext, resource string, row model.Row) bool {
	if rctx.IsAdmin() {
		return true
	}
	if resource == model.ResourceMunicipios {
		return row.RecordID() == rctx.MunicipioID
	}
	m, ok := row["municipioId"].(string)
	return !ok || m == "" || m == rctx.MunicipioID
}

// mayChange reports whether a municipal session may update or delete row.
// Unscoped rows and administrator accounts are readable but never writable
// outside an administrator session.
func mayChange(rctx *model.RequestContext, resource string, row model.Row) bool {
	if rctx.IsAdmin() {
		return true
	}
	if resource == model.ResourceMunicipios {
		return row.RecordID() == rctx.MunicipioID
	}
	if resource == model.ResourceUsuarios && row.String("perfil") == model.PerfilAdmin {
		return false
	}
	m, _ := row["municipioId"].(string)
	return m != "" && m == rctx.MunicipioID
}

// Forget drops every cached collection of a session.
func (s *Store) Forget(sessionID string) {
	prefix := sessionID + "|"
	for _, key := range s.cache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.cache.Remove(key)
		}
	}
}

// RequestCreate validates raw as a form for resource and creates it.
func (s *Store) RequestCreate(ctx context.Context, rctx *model.RequestContext, resource string, raw []byte) Outcome {
	return s.mutate(ctx, rctx, resource, ActionCreate, "", raw)
}

// RequestUpdate validates raw as a form for resource and replaces record id.
func (s *Store) RequestUpdate(ctx context.Context, rctx *model.RequestContext, resource, id string, raw []byte) Outcome {
	return s.mutate(ctx, rctx, resource, ActionUpdate, id, raw)
}

// RequestDelete removes record id.
func (s *Store) RequestDelete(ctx context.Context, rctx *model.RequestContext, resource, id string) Outcome {
	return s.mutate(ctx, rctx, resource, ActionDelete, id, nil)
}

func (s *Store) mutate(ctx context.Context, rctx *model.RequestContext, resource, action, id string, raw []byte) Outcome {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "store."+action,
		append(observability.ResourceAttrs(resource, action), observability.SessionAttrs(rctx)...)...)

	rec, err := s.apply(ctx, rctx, resource, action, id, raw)
	observability.EndSpanWithError(span, err)

	if err != nil {
		s.metrics.RecordMutation(resource, action, "failure", time.Since(start))
		s.logger.Info("mutation rejected",
			zap.String("resource", resource),
			zap.String("action", action),
			zap.String("session_id", rctx.SessionID),
			zap.Error(err),
		)
		if ce := s.logger.Check(zap.DebugLevel, "rejected payload"); ce != nil && len(raw) > 0 {
			var body map[string]any
			if json.Unmarshal(raw, &body) == nil {
				ce.Write(zap.Any("body", observability.RedactBody(body, nil)))
			}
		}
		return Outcome{Err: err}
	}
	s.metrics.RecordMutation(resource, action, "success", time.Since(start))

	recordID := id
	if rec != nil && rec.RecordID() != "" {
		recordID = rec.RecordID()
	}
	s.notify(Change{
		SessionID:   rctx.SessionID,
		Resource:    resource,
		Action:      action,
		RecordID:    recordID,
		Collections: s.refetchScopes(ctx, rctx, resource),
	})
	return Outcome{OK: true, Record: rec}
}

func (s *Store) apply(ctx context.Context, rctx *model.RequestContext, resource, action, id string, raw []byte) (model.Row, error) {
	if err := s.authorize(rctx, resource, action); err != nil {
		return nil, err
	}
	if action != ActionCreate && id == "" {
		return nil, model.NewBadRequestError("record id is required")
	}
	if action != ActionCreate && !rctx.IsAdmin() {
		current, err := s.Get(ctx, rctx, resource, id)
		if err != nil {
			return nil, err
		}
		if !mayChange(rctx, resource, current) {
			return nil, model.NewForbiddenError(fmt.Sprintf("cannot %s %s %q outside your municipality", action, resource, id))
		}
	}

	if action == ActionDelete {
		if err := s.backend.Delete(ctx, rctx, resource, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	payload, err := s.prepare(rctx, resource, action, raw)
	if err != nil {
		return nil, err
	}
	if action == ActionCreate {
		return s.backend.Create(ctx, rctx, resource, payload)
	}
	return s.backend.Update(ctx, rctx, resource, id, payload)
}

// prepare decodes, scopes and validates a form, and checks the resulting
// payload against the backend contract when one is loaded.
func (s *Store) prepare(rctx *model.RequestContext, resource, action string, raw []byte) (map[string]any, error) {
	form, err := forms.Decode(resource, raw, action == ActionCreate)
	if err != nil {
		return nil, model.NewBadRequestError("Invalid request body")
	}
	if scoped, ok := form.(forms.Scoped); ok && !rctx.IsAdmin() {
		scoped.ScopeTo(rctx.MunicipioID)
	}
	if errs := form.Validate(); len(errs) > 0 {
		s.metrics.RecordValidationFailure(resource)
		return nil, model.NewValidationError(errs)
	}

	payload, err := forms.Payload(form)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if s.contract.Loaded() {
		method, path := openapi.MutationOperation(resource, action)
		if errs := s.contract.ValidateRequest(method, path, payload); len(errs) > 0 {
			s.metrics.RecordValidationFailure(resource)
			return nil, model.NewValidationError(errs)
		}
	}
	return payload, nil
}

// refetchScopes re-fetches every cached scope of resource for the session,
// or its default scope when nothing is cached. Failed fetches keep the
// previous collection.
func (s *Store) refetchScopes(ctx context.Context, rctx *model.RequestContext, resource string) map[string][]model.Row {
	prefix := rctx.SessionID + "|" + resource + "|"
	scopes := make(map[string]bool)
	for _, key := range s.cache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			scopes[key[len(prefix):]] = true
		}
	}
	if len(scopes) == 0 {
		scopes[Scope(rctx, "")] = true
	}

	out := make(map[string][]model.Row, len(scopes))
	for scope := range scopes {
		rows, err := s.fetch(ctx, rctx, resource, scope)
		if err != nil {
			if last, ok := s.cache.Get(cacheKey(rctx.SessionID, resource, scope)); ok {
				out[scope] = last
			}
			continue
		}
		out[scope] = rows
	}
	return out
}

// Message returns the text to show for a failed outcome.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	var env *model.ErrorEnvelope
	if errors.As(o.Err, &env) {
		return env.Message
	}
	return model.MsgRequestFailed
}
