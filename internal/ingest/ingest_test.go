package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

func newTestRepository(t *testing.T) *repository.Repository {
	t.Helper()
	e, err := store.OpenBadger(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	s := store.New(e, nil)
	t.Cleanup(func() { s.Close() })
	return repository.New(s)
}

func ingestFixture(t *testing.T, repo *repository.Repository) *Summary {
	t.Helper()
	snap, err := LoadFile("testdata/org1.yaml")
	require.NoError(t, err)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sum, err := New(repo).Ingest(context.Background(), snap, Options{Replace: true, Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	return sum
}

func TestIngestFansOutSnapshot(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	sum := ingestFixture(t, repo)

	assert.Equal(t, "org1", sum.Organisation)
	assert.Equal(t, 2, sum.Projects)
	assert.Equal(t, map[string]int{"endpoint": 2, "pools": 1, "repository": 1}, sum.Resources)
	assert.Equal(t, 1, sum.Pipelines)
	assert.Equal(t, 2, sum.Previews)
	assert.Equal(t, 1, sum.Recipes)
	assert.Equal(t, 2, sum.Builds)
	assert.Equal(t, 2, sum.Branches)
	assert.Equal(t, 2, sum.Commits)
	assert.Equal(t, 1, sum.CommitterStats)
	assert.Equal(t, 2, sum.Skipped, "unknown resource type and orphan package")

	org, err := repo.GetOrganisation(ctx, "org1")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, "Contoso", org.Name)
	require.NotNil(t, org.ScannedAt)
	assert.Equal(t, 2026, org.ScannedAt.Year())

	stats, err := repo.FetchProjectStats(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Counts["endpoint"])
}

func TestIngestDerivesResourceFlags(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ingestFixture(t, repo)

	eps, err := repo.FetchResourcesByType(ctx, "org1", models.ResourceEndpoint)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	byID := map[models.ID]*models.ResourceBase{}
	for _, e := range eps {
		byID[e.Base().ID] = e.Base()
	}
	assert.Equal(t, models.ProtectedStateProtected, byID["5"].ProtectedState)
	assert.False(t, byID["5"].IsCrossProject)
	assert.Equal(t, models.ProtectedStateUnprotected, byID["9"].ProtectedState)
	assert.True(t, byID["9"].IsCrossProject)
	assert.True(t, byID["9"].IsOpenAllPipelines)
	assert.Equal(t, "org1", byID["5"].Organisation)

	pools, err := repo.FetchResourcesByType(ctx, "org1", models.ResourcePool)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.True(t, pools[0].Base().IsCrossProject, "pool queues span two projects")
}

func TestIngestSplitsBranchesAndPreviews(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ingestFixture(t, repo)

	res, err := repo.GetResource(ctx, "org1", models.ResourceRepository, "repo-a")
	require.NoError(t, err)
	assert.Empty(t, res.(*models.Repository).Branches, "branches live in their own collection")

	repos, err := repo.FetchProjectRepositories(ctx, "org1", "proj1", repository.Page{}, true)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Len(t, repos[0].Branches, 2)

	def, err := repo.GetPipeline(ctx, "org1", "12")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, models.IDs("100", "101"), def.Builds.Builds)
	main := def.Builds.Preview["main"]
	require.NotNil(t, main.Recipe)
	assert.Equal(t, []string{"main"}, main.Recipe.Trigger)
	assert.Equal(t, "ubuntu-latest", main.Recipe.Stages[0].Jobs[0].Pool)
	assert.True(t, def.Builds.Preview["broken"].Unqueriable())
	assert.Nil(t, def.Builds.Preview["broken"].Recipe)
}

func TestIngestSeedsBotAccountsAndCommitterStats(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ingestFixture(t, repo)

	bots, err := repo.FetchBotAccounts(ctx, "org1")
	require.NoError(t, err)
	var names []string
	for _, b := range bots {
		names = append(names, b.DisplayName)
	}
	assert.Contains(t, names, "Azure Pipelines")
	assert.Contains(t, names, "Payments Build Service (contoso)")
	assert.Len(t, bots, len(DefaultBotAccounts)+1)

	stats, err := repo.FetchCommitterStats(ctx, "org1", repository.CommittersMultipleAuthors)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "alice@contoso.com", stats[0].CommitterEmail)
	assert.Equal(t, 2, stats[0].CommitCount)
	assert.False(t, stats[0].IsBot)
}

func TestReingestReplacesOrganisation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ingestFixture(t, repo)

	snap, err := Decode(strings.NewReader(`{"organisation":{"id":"org1"},"projects":[{"id":"proj9","name":"Only"}]}`), FormatJSON)
	require.NoError(t, err)
	_, err = New(repo).Ingest(ctx, snap, Options{Replace: true})
	require.NoError(t, err)

	projects, err := repo.FetchProjects(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "proj9", projects[0].ID)

	eps, err := repo.FetchResourcesByType(ctx, "org1", models.ResourceEndpoint)
	require.NoError(t, err)
	assert.Empty(t, eps)
}

func TestIngestRequiresOrganisation(t *testing.T) {
	repo := newTestRepository(t)
	_, err := New(repo).Ingest(context.Background(), &Snapshot{}, Options{})
	assert.Error(t, err)
}

func TestCommitterStatsFlagsBots(t *testing.T) {
	commits := []models.Commit{
		{RepositoryID: "r1", CommitID: "1", Committer: models.GitUser{Name: "Azure Pipelines", Email: "svc@x"}, Author: models.GitUser{Email: "svc@x"}},
		{RepositoryID: "r2", CommitID: "2", Committer: models.GitUser{Name: "Azure Pipelines", Email: "svc@x"}, Author: models.GitUser{Email: "svc@x"}},
	}
	stats := CommitterStats(commits, DefaultBotAccounts)
	require.Len(t, stats, 1)
	assert.True(t, stats[0].IsBot)
	assert.False(t, stats[0].HasMultipleAuthors)
	assert.Equal(t, []string{"r1", "r2"}, stats[0].Repositories)
}
