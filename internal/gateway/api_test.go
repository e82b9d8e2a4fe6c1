package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

const fixture = "../ingest/testdata/org1.yaml"

func newTestGateway(t *testing.T) (*Gateway, http.Handler) {
	t.Helper()
	e, err := store.OpenBadger(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	s := store.New(e, nil)
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{}
	cfg.Display.PageSize = 25
	cfg.Store.FetchTimeout = 5 * time.Second
	cfg.Gateway.IngestDir = t.TempDir()
	gw := New(cfg, s)
	return gw, buildHandler(gw)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func ingestFixture(t *testing.T, h http.Handler) {
	t.Helper()
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)
	rr := do(t, h, http.MethodPost, "/api/ingest?format=yaml", data)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestHealthAndStatus(t *testing.T) {
	_, h := newTestGateway(t)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nope", nil).Code)

	ingestFixture(t, h)
	st := decode[Status](t, do(t, h, http.MethodGet, "/api/status", nil))
	assert.Equal(t, "badger", st.Store)
	assert.Equal(t, 1, st.Organisations)
	require.NotNil(t, st.LastIngest)
	assert.Equal(t, "api", st.LastIngest.Source)
}

func TestIngestAndBrowse(t *testing.T) {
	_, h := newTestGateway(t)
	ingestFixture(t, h)

	orgs := decode[[]models.Organisation](t, do(t, h, http.MethodGet, "/api/orgs", nil))
	require.Len(t, orgs, 1)
	assert.Equal(t, "Contoso", orgs[0].Name)

	eps := decode[[]map[string]any](t, do(t, h, http.MethodGet, "/api/orgs/org1/resources/endpoint?project=proj1", nil))
	assert.Len(t, eps, 2)

	rr := do(t, h, http.MethodGet, "/api/orgs/org1/resources/toaster", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]map[string]any](t, rr))

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/orgs/org1/resources/endpoint/404", nil).Code)

	sum := decode[summaryResponse](t, do(t, h, http.MethodPost, "/api/orgs/org1/resources/endpoint/summary",
		map[string]any{"ids": []string{"5", "404", "5"}}))
	require.Len(t, sum.Resources, 1)
	assert.Equal(t, "prod-arm", sum.Resources[0].Name)
	assert.Equal(t, []models.ID{"404"}, sum.Missing)

	def := decode[models.PipelineDefinition](t, do(t, h, http.MethodGet, "/api/orgs/org1/pipelines/12", nil))
	assert.Len(t, def.Builds.Preview, 2)
	assert.Equal(t, models.IDs("100", "101"), def.Builds.Builds)

	repos := decode[paginationResult[map[string]any]](t, do(t, h, http.MethodGet, "/api/orgs/org1/projects/proj1/repositories?branches=true&page_size=1", nil))
	assert.Equal(t, 1, repos.Total)
	require.Len(t, repos.Items, 1)
	assert.Len(t, repos.Items[0]["branches"], 2)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/orgs/org1/commits", nil).Code)
	commits := decode[paginationResult[models.Commit]](t, do(t, h, http.MethodGet, "/api/orgs/org1/commits?email=alice@contoso.com&mismatched=true", nil))
	assert.Equal(t, 1, commits.Total)
	assert.Equal(t, "def", commits.Items[0].CommitID)

	del := do(t, h, http.MethodDelete, "/api/orgs/org1", nil)
	require.Equal(t, http.StatusOK, del.Code)
	assert.Empty(t, decode[[]models.Organisation](t, do(t, h, http.MethodGet, "/api/orgs", nil)))
}

func TestContainerEndpoints(t *testing.T) {
	_, h := newTestGateway(t)

	rr := do(t, h, http.MethodPost, "/api/containers", map[string]any{"name": "Payments Prod", "criticality": "high"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "payments-prod", decode[models.LogicContainer](t, rr).ID)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/containers", map[string]any{"name": "payments prod"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/containers", map[string]any{"name": "x", "criticality": "extreme"}).Code)

	for i := 0; i < 2; i++ {
		rr = do(t, h, http.MethodPut, "/api/containers/payments-prod/resources/endpoint/5", nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Equal(t, []string{"endpoint:5"}, decode[models.LogicContainer](t, rr).Resources)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/containers/payments-prod/resources/toaster/5", nil).Code)

	owners := decode[[]models.LogicContainer](t, do(t, h, http.MethodGet, "/api/resources/endpoint/5/containers", nil))
	require.Len(t, owners, 1)
	assert.Empty(t, decode[[]models.LogicContainer](t, do(t, h, http.MethodGet, "/api/resources/variablegroup/5/containers", nil)))

	rr = do(t, h, http.MethodPatch, "/api/containers/payments-prod", map[string]any{"owner": "team-pay"})
	require.Equal(t, http.StatusOK, rr.Code)
	updated := decode[models.LogicContainer](t, rr)
	assert.Equal(t, "team-pay", updated.Owner)
	assert.Equal(t, models.CriticalityHigh, updated.Criticality)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/containers/payments-prod", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/containers/payments-prod", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPatch, "/api/containers/payments-prod", map[string]any{"owner": "x"}).Code)
}

func TestSessionDashboard(t *testing.T) {
	_, h := newTestGateway(t)
	ingestFixture(t, h)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/session/dashboard", nil).Code)

	sess := decode[sessionResponse](t, do(t, h, http.MethodPut, "/api/session", map[string]any{"organisation": "org1", "project": "proj1", "resourceType": "endpoint"}))
	assert.Equal(t, uint64(1), sess.Epoch)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/session", map[string]any{"organisation": "org1", "resourceType": "toaster"}).Code)

	rr := do(t, h, http.MethodPost, "/api/session/dashboard", map[string]any{"pipeline": map[string]any{"unqueriable": true}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view struct {
		Resources []map[string]any `json:"resources"`
		Pipelines []map[string]any `json:"pipelines"`
		Graph     struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"graph"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Len(t, view.Resources, 2)
	assert.Len(t, view.Pipelines, 1)
	var ids []string
	for _, n := range view.Graph.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, "pipeline_12")
	assert.Contains(t, ids, "potential_build_12_broken")

	rr = do(t, h, http.MethodPost, "/api/dashboard", map[string]any{"selection": map[string]any{"organisation": "org1", "resourceType": "pool_merged"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Len(t, view.Resources, 1)
}

func TestSettingsEndpoints(t *testing.T) {
	_, h := newTestGateway(t)
	s := decode[models.GlobalSettings](t, do(t, h, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, models.DefaultGlobalSettings(), s)

	rr := do(t, h, http.MethodPut, "/api/settings", map[string]any{"theme": "light", "showBuilds": false})
	require.Equal(t, http.StatusOK, rr.Code)
	s = decode[models.GlobalSettings](t, do(t, h, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, "light", s.Theme)
	assert.False(t, s.ShowBuilds)
	assert.Equal(t, 25, s.PageSize, "unspecified fields kept")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/settings", map[string]any{"pageSize": 0}).Code)
}

func TestWatcherIngestsNewSnapshots(t *testing.T) {
	gw, h := newTestGateway(t)
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(gw.cfg.Gateway.IngestDir, "org1.yaml"), data, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(gw.cfg.Gateway.IngestDir, "notes.txt"), []byte("ignored"), 0o600))

	got := decode[map[string][]string](t, do(t, h, http.MethodPost, "/api/ingest/rescan", nil))
	assert.Len(t, got["ingested"], 1)
	got = decode[map[string][]string](t, do(t, h, http.MethodPost, "/api/ingest/rescan", nil))
	assert.Empty(t, got["ingested"], "unchanged files are not re-ingested")

	orgs := decode[[]models.Organisation](t, do(t, h, http.MethodGet, "/api/orgs", nil))
	assert.Len(t, orgs, 1)
}
