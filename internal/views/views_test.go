package views

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/maximiza/internal/backend/backendtest"
	"github.com/pitabwire/maximiza/internal/capability"
	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/internal/store"
	"github.com/pitabwire/maximiza/model"
)

func alunosPage() model.PageDefinition {
	return model.PageDefinition{
		ID:       "municipio-alunos",
		Title:    "Alunos",
		Route:    "/municipio/{municipioId}/alunos",
		Resource: model.ResourceAlunos,
		Table: &model.TableDefinition{
			Columns: []model.ColumnDefinition{
				{Field: "nome", Label: "Aluno", Sortable: true},
				{Field: "matricula", Label: "Matrícula", Sortable: true},
				{Field: "escola", Label: "Escola"},
			},
			SearchKeys: []string{"nome", "matricula"},
			PageSize:   2,
			Filters:    []model.FilterDefinition{{Field: "escola", AllValue: "todas"}},
			Stats: []model.StatDefinition{
				{ID: "total", Kind: model.StatCount},
				{ID: "escolas", Kind: model.StatDistinct, Field: "escola"},
			},
		},
	}
}

func municipiosPage() model.PageDefinition {
	return model.PageDefinition{
		ID:        "admin-municipios",
		Route:     "/admin/municipios",
		Resource:  model.ResourceMunicipios,
		AdminOnly: true,
		Table:     &model.TableDefinition{Columns: []model.ColumnDefinition{{Field: "nome"}}},
	}
}

func gestor(session string) *model.RequestContext {
	return &model.RequestContext{SubjectID: "u-" + session, SessionID: session, Perfil: "gestor", Role: model.RoleMunicipalManager, MunicipioID: "m-1", Roles: []string{"gestor"}}
}

type fixture struct {
	views   *Manager
	store   *store.Store
	backend *backendtest.Fake
	metrics *observability.Metrics
}

func newFixture(t *testing.T, maxViews int) fixture {
	t.Helper()
	fake := backendtest.NewFake()
	fake.Seed(model.ResourceAlunos,
		model.Row{"id": "a-1", "nome": "Ana Souza", "matricula": "2024001", "escola": "EM Centro", "municipioId": "m-1"},
		model.Row{"id": "a-2", "nome": "Bruno Lima", "matricula": "2024002", "escola": "EM Norte", "municipioId": "m-1"},
		model.Row{"id": "a-3", "nome": "Carla Dias", "matricula": "2024003", "escola": "EM Centro", "municipioId": "m-1"},
		model.Row{"id": "a-4", "nome": "Davi Reis", "matricula": "2024004", "escola": "EM Sul", "municipioId": "m-2"},
	)
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	caps := capability.NewResolver(capability.NewStaticPolicy(capability.DefaultRoles()), time.Minute, 100, metrics)
	st := store.New(fake, caps, nil, config.CacheConfig{TTL: time.Minute, MaxEntries: 100}, metrics, nil)
	reg := definition.NewRegistry([]model.DomainDefinition{{
		Domain: "municipio",
		Pages:  []model.PageDefinition{alunosPage(), municipiosPage()},
	}})
	m := NewManager(reg, st, config.ViewsConfig{MaxEntries: maxViews, TTL: time.Minute}, metrics, nil)
	t.Cleanup(m.Close)
	return fixture{views: m, store: st, backend: fake, metrics: metrics}
}

func names(tv model.TableView) []string {
	out := make([]string, 0, len(tv.Rows))
	for _, r := range tv.Rows {
		out = append(out, r.Values.String("nome"))
	}
	return out
}

func statValue(tv model.TableView, id string) int {
	for _, s := range tv.Stats {
		if s.ID == id {
			return s.Value
		}
	}
	return -1
}

func TestMount_scopesToOwnMunicipio(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")

	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "m-2")
	require.NoError(t, err)

	assert.NotEmpty(t, tv.ViewID)
	assert.Equal(t, "municipio-alunos", tv.PageID)
	assert.Equal(t, 3, tv.TotalFiltered)
	assert.Equal(t, 2, tv.TotalPages)
	assert.Equal(t, []string{"Ana Souza", "Bruno Lima"}, names(tv))
	assert.Equal(t, 1, tv.From)
	assert.Equal(t, 2, tv.To)
	assert.Equal(t, 3, statValue(tv, "total"))
	assert.Equal(t, 2, statValue(tv, "escolas"))
	assert.Equal(t, 1, f.views.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ActiveViews))
}

func TestMount_unknownAndForbiddenPages(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.views.Mount(context.Background(), gestor("s1"), "nope", "")
	assert.Equal(t, model.ErrNotFound, model.AsEnvelope(err).Code)

	_, err = f.views.Mount(context.Background(), gestor("s1"), "admin-municipios", "")
	assert.Equal(t, model.ErrForbidden, model.AsEnvelope(err).Code)
}

func TestMount_backendFailure(t *testing.T) {
	f := newFixture(t, 10)
	f.backend.Fail(backendtest.OpList, model.ResourceAlunos, model.NewBackendUnavailableError())

	_, err := f.views.Mount(context.Background(), gestor("s1"), "municipio-alunos", "")
	require.Error(t, err)
	assert.Equal(t, 0, f.views.Len())
}

func TestSearch_resetsPageAndKeepsStats(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")
	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)

	tv, err = f.views.Page(rctx, tv.ViewID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, tv.CurrentPage)

	tv, err = f.views.Search(rctx, tv.ViewID, "2024003")
	require.NoError(t, err)
	assert.Equal(t, 1, tv.CurrentPage)
	assert.Equal(t, []string{"Carla Dias"}, names(tv))
	assert.Equal(t, 3, statValue(tv, "total"), "stats cover the whole collection")
}

func TestSort_cycles(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")
	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)

	tv, err = f.views.Sort(rctx, tv.ViewID, "nome")
	require.NoError(t, err)
	require.NotNil(t, tv.Sort)
	assert.Equal(t, "asc", tv.Sort.Direction)
	assert.Equal(t, "↑", tv.Sort.Indicator)

	tv, err = f.views.Sort(rctx, tv.ViewID, "nome")
	require.NoError(t, err)
	assert.Equal(t, "desc", tv.Sort.Direction)
	assert.Equal(t, []string{"Carla Dias", "Bruno Lima"}, names(tv))

	tv, err = f.views.Sort(rctx, tv.ViewID, "nome")
	require.NoError(t, err)
	assert.Nil(t, tv.Sort)

	_, err = f.views.Sort(rctx, tv.ViewID, "escola")
	assert.Equal(t, model.ErrBadRequest, model.AsEnvelope(err).Code)
}

func TestPage_outOfRange(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")
	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)

	for _, n := range []int{0, 3} {
		_, err = f.views.Page(rctx, tv.ViewID, n)
		assert.Equal(t, model.ErrBadRequest, model.AsEnvelope(err).Code, "page %d", n)
	}
}

func TestFilter(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")
	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)

	tv, err = f.views.Filter(rctx, tv.ViewID, "escola", "EM Centro")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana Souza", "Carla Dias"}, names(tv))
	assert.Equal(t, map[string]string{"escola": "EM Centro"}, tv.Filters)

	tv, err = f.views.Filter(rctx, tv.ViewID, "escola", "todas")
	require.NoError(t, err)
	assert.Equal(t, 3, tv.TotalFiltered)

	_, err = f.views.Filter(rctx, tv.ViewID, "serie", "1")
	assert.Equal(t, model.ErrBadRequest, model.AsEnvelope(err).Code)
}

func TestViews_ownedBySession(t *testing.T) {
	f := newFixture(t, 10)
	tv, err := f.views.Mount(context.Background(), gestor("s1"), "municipio-alunos", "")
	require.NoError(t, err)

	other := gestor("s2")
	_, err = f.views.Get(other, tv.ViewID)
	assert.Equal(t, model.ErrNotFound, model.AsEnvelope(err).Code)
	assert.Error(t, f.views.Unmount(other, tv.ViewID))

	_, err = f.views.Get(gestor("s1"), tv.ViewID)
	assert.NoError(t, err)
}

func TestMutation_updatesMountedViews(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")
	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)

	body := `{"nome":"Elisa Prado","matricula":"2024005","dataNascimento":"2015-03-02","escola":"EM Centro","serie":"3º ano","turma":"A","responsavelNome":"Maria Prado","responsavelContato":"(11) 90000-0000","status":"ativo"}`
	out := f.store.RequestCreate(context.Background(), rctx, model.ResourceAlunos, []byte(body))
	require.True(t, out.OK, out.Message())

	tv, err = f.views.Get(rctx, tv.ViewID)
	require.NoError(t, err)
	assert.Equal(t, 4, tv.TotalFiltered)
	assert.Equal(t, 4, statValue(tv, "total"))
}

func TestRefresh_keepsRecordsOnFailure(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")
	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)

	f.backend.Seed(model.ResourceAlunos, model.Row{"id": "a-9", "nome": "Zeca", "municipioId": "m-1"})
	tv, err = f.views.Refresh(context.Background(), rctx, tv.ViewID)
	require.NoError(t, err)
	assert.Equal(t, 4, tv.TotalFiltered)

	f.backend.FailNext(backendtest.OpList, model.ResourceAlunos, errors.New("connection reset"))
	tv, err = f.views.Refresh(context.Background(), rctx, tv.ViewID)
	require.Error(t, err)
	assert.Equal(t, 4, tv.TotalFiltered)
}

func TestUnmount(t *testing.T) {
	f := newFixture(t, 10)
	rctx := gestor("s1")
	tv, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)

	require.NoError(t, f.views.Unmount(rctx, tv.ViewID))
	assert.Equal(t, 0, f.views.Len())
	_, err = f.views.Get(rctx, tv.ViewID)
	assert.Error(t, err)
}

func TestUnmountSession(t *testing.T) {
	f := newFixture(t, 10)
	for i := 0; i < 3; i++ {
		_, err := f.views.Mount(context.Background(), gestor(fmt.Sprintf("s%d", i%2)), "municipio-alunos", "")
		require.NoError(t, err)
	}
	f.views.UnmountSession("s0")
	assert.Equal(t, 1, f.views.Len())
}

func TestViews_bounded(t *testing.T) {
	f := newFixture(t, 2)
	rctx := gestor("s1")
	first, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := f.views.Mount(context.Background(), rctx, "municipio-alunos", "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.views.Len())
	_, err = f.views.Get(rctx, first.ViewID)
	assert.Error(t, err, "the oldest view is evicted")
}
