// Package backendtest provides an in-memory model.Backend for tests. It
// records every call and can be told to fail specific operations.
package backendtest

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"sync"

	"github.com/pitabwire/maximiza/model"
)

// Operation names used by Fail and Calls.
const (
	OpLogin   = "login"
	OpMe      = "me"
	OpList    = "list"
	OpGet     = "get"
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpStats   = "stats"
	OpCharts  = "charts"
	OpHealth  = "health"
	anyTarget = "*"
)

// Call is one recorded backend call.
type Call struct {
	Op          string
	Resource    string
	ID          string
	MunicipioID string
	Token       string
	Body        any
}

type account struct {
	senha string
	token string
	user  model.Usuario
}

type failure struct {
	err    error
	sticky bool
}

// Fake is an in-memory backend. Collections are keyed by resource. Rows
// handed out are copies.
type Fake struct {
	mu          sync.Mutex
	collections map[string][]model.Row
	accounts    map[string]account
	failures    map[string]failure
	calls       []Call
	nextID      int
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		collections: make(map[string][]model.Row),
		accounts:    make(map[string]account),
		failures:    make(map[string]failure),
	}
}

// Seed appends rows to resource.
func (f *Fake) Seed(resource string, rows ...model.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.collections[resource] = append(f.collections[resource], maps.Clone(r))
	}
}

// AddUser registers credentials that Login accepts. The user is also
// listed under usuarios.
func (f *Fake) AddUser(email, senha, token string, user model.Usuario) {
	f.mu.Lock()
	f.accounts[email] = account{senha: senha, token: token, user: user}
	f.mu.Unlock()
	if row, err := model.RowFrom(user); err == nil {
		f.Seed(model.ResourceUsuarios, row)
	}
}

// Fail makes every op on resource fail with err until cleared with a nil
// err. resource "" matches every resource.
func (f *Fake) Fail(op, resource string, err error) {
	f.setFailure(op, resource, err, true)
}

// FailNext makes the next op on resource fail with err.
func (f *Fake) FailNext(op, resource string, err error) {
	f.setFailure(op, resource, err, false)
}

func (f *Fake) setFailure(op, resource string, err error, sticky bool) {
	if resource == "" {
		resource = anyTarget
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := op + ":" + resource
	if err == nil {
		delete(f.failures, key)
		return
	}
	f.failures[key] = failure{err: err, sticky: sticky}
}

// Calls returns the recorded calls of op, or every call when op is "".
func (f *Fake) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Rows returns a copy of the stored collection of resource.
func (f *Fake) Rows(resource string) []model.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRows(f.collections[resource])
}

// record logs c and returns the injected failure for it, if any. Callers
// hold f.mu.
func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	for _, key := range []string{c.Op + ":" + c.Resource, c.Op + ":" + anyTarget} {
		if fl, ok := f.failures[key]; ok {
			if !fl.sticky {
				delete(f.failures, key)
			}
			return fl.err
		}
	}
	return nil
}

func token(rctx *model.RequestContext) string {
	if rctx == nil {
		return ""
	}
	return rctx.BackendToken
}

// Login implements model.Backend.
func (f *Fake) Login(_ context.Context, email, senha string) (model.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpLogin, Body: email}); err != nil {
		return model.LoginResult{}, err
	}
	acc, ok := f.accounts[email]
	if !ok || acc.senha != senha {
		return model.LoginResult{}, model.NewBackendError(http.StatusUnauthorized, "Credenciais inválidas")
	}
	return model.LoginResult{Token: acc.token, User: acc.user}, nil
}

// Me implements model.Backend.
func (f *Fake) Me(_ context.Context, rctx *model.RequestContext) (model.Usuario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpMe, Token: token(rctx)}); err != nil {
		return model.Usuario{}, err
	}
	for _, acc := range f.accounts {
		if acc.token == token(rctx) {
			return acc.user, nil
		}
	}
	return model.Usuario{}, model.NewBackendError(http.StatusUnauthorized, "Token inválido")
}

// List implements model.Backend. A municipioID keeps rows of that
// municipality; for municipios it keeps the municipality itself.
func (f *Fake) List(_ context.Context, rctx *model.RequestContext, resource, municipioID string) ([]model.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpList, Resource: resource, MunicipioID: municipioID, Token: token(rctx)}); err != nil {
		return nil, err
	}
	out := []model.Row{}
	for _, r := range f.collections[resource] {
		if inScope(resource, r, municipioID) {
			out = append(out, maps.Clone(r))
		}
	}
	return out, nil
}

func inScope(resource string, r model.Row, municipioID string) bool {
	if municipioID == "" {
		return true
	}
	if resource == model.ResourceMunicipios {
		return r.RecordID() == municipioID
	}
	return r.String("municipioId") == municipioID
}

// Get implements model.Backend.
func (f *Fake) Get(_ context.Context, rctx *model.RequestContext, resource, id string) (model.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpGet, Resource: resource, ID: id, Token: token(rctx)}); err != nil {
		return nil, err
	}
	i := f.indexOf(resource, id)
	if i < 0 {
		return nil, notFound(resource)
	}
	return maps.Clone(f.collections[resource][i]), nil
}

// Create implements model.Backend.
func (f *Fake) Create(_ context.Context, rctx *model.RequestContext, resource string, body any) (model.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpCreate, Resource: resource, Token: token(rctx), Body: body}); err != nil {
		return nil, err
	}
	row, err := model.RowFrom(body)
	if err != nil {
		return nil, model.NewBackendError(http.StatusBadRequest, err.Error())
	}
	delete(row, "senha")
	if row.RecordID() == "" {
		f.nextID++
		row["id"] = resource + "-" + strconv.Itoa(f.nextID)
	}
	f.collections[resource] = append(f.collections[resource], row)
	return maps.Clone(row), nil
}

// Update implements model.Backend. Fields of body replace stored fields.
func (f *Fake) Update(_ context.Context, rctx *model.RequestContext, resource, id string, body any) (model.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpUpdate, Resource: resource, ID: id, Token: token(rctx), Body: body}); err != nil {
		return nil, err
	}
	i := f.indexOf(resource, id)
	if i < 0 {
		return nil, notFound(resource)
	}
	patch, err := model.RowFrom(body)
	if err != nil {
		return nil, model.NewBackendError(http.StatusBadRequest, err.Error())
	}
	delete(patch, "senha")
	row := f.collections[resource][i]
	for k, v := range patch {
		row[k] = v
	}
	row["id"] = id
	return maps.Clone(row), nil
}

// Delete implements model.Backend.
func (f *Fake) Delete(_ context.Context, rctx *model.RequestContext, resource, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpDelete, Resource: resource, ID: id, Token: token(rctx)}); err != nil {
		return err
	}
	i := f.indexOf(resource, id)
	if i < 0 {
		return notFound(resource)
	}
	rows := f.collections[resource]
	f.collections[resource] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

// DashboardStats implements model.Backend by counting the stored rows.
func (f *Fake) DashboardStats(_ context.Context, rctx *model.RequestContext, municipioID string) (model.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpStats, MunicipioID: municipioID, Token: token(rctx)}); err != nil {
		return model.DashboardStats{}, err
	}
	count := func(resource string) int {
		n := 0
		for _, r := range f.collections[resource] {
			if inScope(resource, r, municipioID) {
				n++
			}
		}
		return n
	}
	stats := model.DashboardStats{
		TotalUsuarios: count(model.ResourceUsuarios),
		TotalAlunos:   count(model.ResourceAlunos),
		TotalSolucoes: count(model.ResourceSolucoes),
	}
	if municipioID == "" {
		n := count(model.ResourceMunicipios)
		stats.TotalMunicipios = &n
	}
	return stats, nil
}

// DashboardCharts implements model.Backend by grouping the stored rows.
func (f *Fake) DashboardCharts(_ context.Context, rctx *model.RequestContext, municipioID string) (model.DashboardCharts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: OpCharts, MunicipioID: municipioID, Token: token(rctx)}); err != nil {
		return model.DashboardCharts{}, err
	}
	group := func(resource, field string) []model.ChartPoint {
		var points []model.ChartPoint
		idx := map[string]int{}
		for _, r := range f.collections[resource] {
			if !inScope(resource, r, municipioID) {
				continue
			}
			name := r.String(field)
			i, ok := idx[name]
			if !ok {
				i = len(points)
				idx[name] = i
				points = append(points, model.ChartPoint{Name: name})
			}
			points[i].Value++
		}
		return points
	}
	return model.DashboardCharts{
		TipoEnsino:   group(model.ResourceEscolas, "tipoEnsino"),
		StatusAlunos: group(model.ResourceAlunos, "status"),
	}, nil
}

// HealthCheck fails while a health failure is injected.
func (f *Fake) HealthCheck(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Op: OpHealth})
}

func (f *Fake) indexOf(resource, id string) int {
	for i, r := range f.collections[resource] {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}

func notFound(resource string) error {
	return model.NewBackendError(http.StatusNotFound, fmt.Sprintf("%s não encontrado", resource))
}

func cloneRows(rows []model.Row) []model.Row {
	out := make([]model.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, maps.Clone(r))
	}
	return out
}

var _ model.Backend = (*Fake)(nil)
