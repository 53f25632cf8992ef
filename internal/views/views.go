// Package views keeps the mounted list views of each session. A view holds
// the search, sort, page and facet state of one list screen on top of the
// session's cached collection and is dropped on unmount or when idle.
package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/internal/table"
	"github.com/pitabwire/maximiza/model"
)

// PageSource resolves page definitions by ID.
type PageSource interface {
	GetPage(pageID string) (model.PageDefinition, bool)
}

// View is one mounted list screen.
type View struct {
	ID        string
	SessionID string
	PageID    string
	Resource  string
	Scope     string

	mu     sync.Mutex
	engine *table.Engine[model.Row]
	stats  []model.StatDefinition
}

// describe must be called with v.mu held.
func (v *View) describe() model.TableView {
	tv := table.Describe(v.PageID, v.engine.View(), v.engine.Config().Columns,
		table.Summarize(v.engine.Records(), v.stats))
	tv.ViewID = v.ID
	return tv
}

// Manager owns the mounted views of every session.
type Manager struct {
	pages   PageSource
	store   *store.Store
	views   *expirable.LRU[string, *View]
	metrics *observability.Metrics
	logger  *zap.Logger

	unsubscribe func()
}

// NewManager creates a Manager and subscribes it to store changes.
func NewManager(pages PageSource, st *store.Store, cfg config.ViewsConfig, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	size := cfg.MaxEntries
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		pages:   pages,
		store:   st,
		views:   expirable.NewLRU[string, *View](size, nil, cfg.TTL),
		metrics: metrics,
		logger:  logger.Named("views"),
	}
	m.unsubscribe = st.Subscribe(m.onChange)
	return m
}

// Close detaches the manager from the store.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Len returns the number of mounted views.
func (m *Manager) Len() int { return m.views.Len() }

// Mount creates a view of pageID over the session's collection of the page's
// resource, scoped to municipioID.
func (m *Manager) Mount(ctx context.Context, rctx *model.RequestContext, pageID, municipioID string) (model.TableView, error) {
	ctx, span := observability.StartSpan(ctx, "views.mount",
		append(observability.SessionAttrs(rctx), observability.PageAttr(pageID))...)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	page, ok := m.pages.GetPage(pageID)
	if !ok || page.Table == nil {
		err = model.NewNotFoundError(fmt.Sprintf("page %q not found", pageID))
		return model.TableView{}, err
	}
	if page.AdminOnly && !rctx.IsAdmin() {
		err = model.NewForbiddenError(fmt.Sprintf("page %q requires an administrator", pageID))
		return model.TableView{}, err
	}

	rows, err := m.store.Collection(ctx, rctx, page.Resource, municipioID)
	if err != nil {
		return model.TableView{}, err
	}

	engine := table.New(rows, table.FromDefinition(page.Table))
	engine.SetSort(table.DefaultSort(page.Table))

	v := &View{
		ID:        uuid.NewString(),
		SessionID: rctx.SessionID,
		PageID:    page.ID,
		Resource:  page.Resource,
		Scope:     store.Scope(rctx, municipioID),
		engine:    engine,
		stats:     page.Table.Stats,
	}
	m.views.Add(v.ID, v)
	m.metrics.SetActiveViews(m.views.Len())
	m.metrics.RecordViewEvent("mount")
	m.logger.Debug("view mounted",
		zap.String("view_id", v.ID),
		zap.String("page_id", v.PageID),
		zap.String("scope", v.Scope),
	)

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.describe(), nil
}

// lookup returns the view if it belongs to the caller's session.
func (m *Manager) lookup(rctx *model.RequestContext, viewID string) (*View, error) {
	v, ok := m.views.Get(viewID)
	if !ok || v.SessionID != rctx.SessionID {
		return nil, model.NewNotFoundError(fmt.Sprintf("view %q not found", viewID))
	}
	return v, nil
}

// apply runs fn on the view under its lock and returns the new state.
func (m *Manager) apply(rctx *model.RequestContext, viewID, event string, fn func(v *View) error) (model.TableView, error) {
	v, err := m.lookup(rctx, viewID)
	if err != nil {
		return model.TableView{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if fn != nil {
		if err := fn(v); err != nil {
			return model.TableView{}, err
		}
	}
	if event != "" {
		m.metrics.RecordViewEvent(event)
	}
	return v.describe(), nil
}

// Get returns the current state of a view.
func (m *Manager) Get(rctx *model.RequestContext, viewID string) (model.TableView, error) {
	return m.apply(rctx, viewID, "", nil)
}

// Search sets the search text and returns to the first page.
func (m *Manager) Search(rctx *model.RequestContext, viewID, text string) (model.TableView, error) {
	return m.apply(rctx, viewID, "search", func(v *View) error {
		v.engine.SetSearchText(text)
		return nil
	})
}

// Sort cycles the sort of key: ascending, descending, none.
func (m *Manager) Sort(rctx *model.RequestContext, viewID, key string) (model.TableView, error) {
	return m.apply(rctx, viewID, "sort", func(v *View) error {
		if !table.Sortable(v.engine.Config(), key) {
			return model.NewBadRequestError(fmt.Sprintf("column %q is not sortable", key))
		}
		v.engine.ToggleSort(key)
		return nil
	})
}

// Page moves to page n, which must be within 1..TotalPages.
func (m *Manager) Page(rctx *model.RequestContext, viewID string, n int) (model.TableView, error) {
	return m.apply(rctx, viewID, "page", func(v *View) error {
		last := max(v.engine.View().TotalPages, 1)
		if n < 1 || n > last {
			return model.NewBadRequestError(fmt.Sprintf("page %d out of range 1..%d", n, last))
		}
		v.engine.SetPage(n)
		return nil
	})
}

// Filter sets a facet filter. An empty value or the facet's all-value
// clears it.
func (m *Manager) Filter(rctx *model.RequestContext, viewID, key, value string) (model.TableView, error) {
	return m.apply(rctx, viewID, "filter", func(v *View) error {
		for _, f := range v.engine.Config().Facets {
			if f.Key == key {
				v.engine.SetFilter(key, value)
				return nil
			}
		}
		return model.NewBadRequestError(fmt.Sprintf("unknown filter %q", key))
	})
}

// Refresh re-fetches the view's collection. When the fetch fails the view
// keeps its records and the error is returned with the unchanged state.
func (m *Manager) Refresh(ctx context.Context, rctx *model.RequestContext, viewID string) (model.TableView, error) {
	v, err := m.lookup(rctx, viewID)
	if err != nil {
		return model.TableView{}, err
	}
	rows, fetchErr := m.store.Refresh(ctx, rctx, v.Resource, v.Scope)

	v.mu.Lock()
	defer v.mu.Unlock()
	m.metrics.RecordViewEvent("refresh")
	if fetchErr != nil {
		return v.describe(), fetchErr
	}
	v.engine.SetRecords(rows)
	return v.describe(), nil
}

// Unmount discards a view.
func (m *Manager) Unmount(rctx *model.RequestContext, viewID string) error {
	if _, err := m.lookup(rctx, viewID); err != nil {
		return err
	}
	m.views.Remove(viewID)
	m.metrics.SetActiveViews(m.views.Len())
	m.metrics.RecordViewEvent("unmount")
	return nil
}

// UnmountSession discards every view of a session.
func (m *Manager) UnmountSession(sessionID string) {
	for _, v := range m.views.Values() {
		if v.SessionID == sessionID {
			m.views.Remove(v.ID)
		}
	}
	m.metrics.SetActiveViews(m.views.Len())
}

// onChange hands re-fetched collections to the session's views of the
// changed resource.
func (m *Manager) onChange(ch store.Change) {
	for _, v := range m.views.Values() {
		if v.SessionID != ch.SessionID || v.Resource != ch.Resource {
			continue
		}
		rows, ok := ch.Collections[v.Scope]
		if !ok {
			continue
		}
		v.mu.Lock()
		v.engine.SetRecords(rows)
		v.mu.Unlock()
	}
}
