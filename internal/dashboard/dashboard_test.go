package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/internal/filter"
	"github.com/CosmoTheDev/devops-atlas/internal/graph"
	"github.com/CosmoTheDev/devops-atlas/internal/ingest"
	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/internal/session"
	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	e, err := store.OpenBadger(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	s := store.New(e, nil)
	t.Cleanup(func() { s.Close() })

	repo := repository.New(s)
	snap, err := ingest.LoadFile("../ingest/testdata/org1.yaml")
	require.NoError(t, err)
	_, err = ingest.New(repo).Ingest(context.Background(), snap, ingest.Options{})
	require.NoError(t, err)
	return New(repo, containers.NewRegistry(s))
}

func TestLoadScopesAndLinks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Registry().Create(ctx, models.LogicContainer{ID: "prod", Name: "Production", Criticality: models.CriticalityCritical})
	require.NoError(t, err)
	_, err = svc.Registry().AddResource(ctx, "prod", models.ResourceEndpoint, "5")
	require.NoError(t, err)

	view, err := svc.Load(ctx, Query{Selection: session.Selection{Organisation: "org1", Project: "proj1"}})
	require.NoError(t, err)

	assert.Equal(t, models.ResourceEndpoint, view.Selection.ResourceType, "settings default")
	assert.Len(t, view.Resources, 2)
	require.Len(t, view.Pipelines, 1)
	assert.Equal(t, 1, view.Badges.UnqueriablePipelines)

	for _, id := range []string{"prod", "endpoint_5", "endpoint_9", "pipeline_12", "build_100", "build_101", "potential_build_12_main"} {
		assert.True(t, view.Graph.HasNode(id), id)
	}
	assert.Contains(t, view.Graph.Edges, graphEdge("endpoint_5", "prod"))
	assert.Contains(t, view.Graph.Edges, graphEdge("pipeline_12", "endpoint_9"))
}

func TestLoadAppliesCriteria(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	yes := true
	view, err := svc.Load(ctx, Query{
		Selection: session.Selection{Organisation: "org1", ResourceType: models.ResourceEndpoint},
		Resource:  filter.ResourceCriteria{CrossProject: &yes},
		Pipeline:  filter.PipelineCriteria{Permissioned: true, Recipe: []filter.RecipeFilter{{Field: filter.FieldStepName, Value: "azurecli"}}},
		Highlight: "endpoint_9",
	})
	require.NoError(t, err)
	require.Len(t, view.Resources, 1)
	assert.Equal(t, models.ID("9"), view.Resources[0].Base().ID)
	require.Len(t, view.Pipelines, 1)

	n, ok := view.Graph.Node("pipeline_12")
	require.True(t, ok)
	assert.True(t, n.Highlighted)

	pools, err := svc.Load(ctx, Query{Selection: session.Selection{Organisation: "org1", Project: "proj2", ResourceType: models.ResourcePoolMerged}})
	require.NoError(t, err)
	require.Len(t, pools.Resources, 1)
	assert.True(t, pools.Graph.HasNode("pool_merged_1"))
}

func TestLoadRequiresOrganisation(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Load(context.Background(), Query{})
	assert.Error(t, err)
}

func TestLoadSessionUsesSelection(t *testing.T) {
	svc := newTestService(t)
	sess := session.New(5 * time.Second)
	sess.Select(session.Selection{Organisation: "org1", ResourceType: models.ResourceRepository})

	view, err := svc.LoadSession(context.Background(), sess, Query{})
	require.NoError(t, err)
	require.Len(t, view.Resources, 1)
	assert.Equal(t, "payments-api", view.Resources[0].Base().Name)
}

func graphEdge(source, target string) graph.Edge {
	return graph.Edge{Source: source, Target: target}
}
