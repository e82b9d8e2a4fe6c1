package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	e, err := store.OpenBadger(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	s := store.New(e, nil)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func boolPtr(b bool) *bool { return &b }

func endpoint(org, id, project string) *models.Endpoint {
	return &models.Endpoint{ResourceBase: models.ResourceBase{
		Organisation: org,
		ID:           models.ID(id),
		Name:         "conn-" + id,
		WebURL:       "https://dev.example/" + id,
		Project:      &models.ProjectRef{ID: project},
	}}
}

func pool(org, id string, projects ...string) *models.Pool {
	p := &models.Pool{ResourceBase: models.ResourceBase{Organisation: org, ID: models.ID(id), Name: "pool-" + id}}
	for i, proj := range projects {
		p.Queues = append(p.Queues, models.PoolQueue{ID: models.ID(fmt.Sprintf("%s%d", id, i)), ProjectID: proj})
	}
	return p
}

func TestPreviewsRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	preview := map[string]models.PreviewExecution{
		"main": {
			YAML:                   "steps:\n- script: echo hi\n",
			IsYAMLPreviewAvailable: boolPtr(true),
			CICDSast:               []models.SastResult{{Engine: "semgrep", Results: []models.SastFinding{{RuleID: "r1", Line: 3}}}},
			Recipe: &models.Recipe{Stages: []models.RecipeStage{{
				Name: "__default",
				Jobs: []models.RecipeJob{{Name: "__default", Steps: []models.RecipeStep{{Type: "script", Name: "echo hi"}}}},
			}}},
		},
		"feature/x": {IsYAMLPreviewAvailable: boolPtr(false), Error: "template not found"},
	}
	def := models.PipelineDefinition{
		Organisation: "org1",
		ID:           "12",
		Name:         "ci",
		Project:      &models.ProjectRef{ID: "proj1"},
		Process:      models.PipelineProcess{Type: models.ProcessYAML},
		Builds:       models.PipelineBuilds{Builds: models.IDs("100", "101"), Preview: preview},
	}
	require.NoError(t, repo.SavePipeline(ctx, def))

	// The definition record itself carries no previews.
	raw, err := repo.Store().Get(ctx, store.BuildDefinitions, store.K("org1", "12"))
	require.NoError(t, err)
	assert.NotContains(t, raw["builds"].(map[string]any), "preview")

	defs, err := repo.FetchPipelines(ctx, "org1", true)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, preview, defs[0].Builds.Preview)
	assert.Equal(t, models.IDs("100", "101"), defs[0].Builds.Builds)

	defs, err = repo.FetchPipelines(ctx, "org1", false)
	require.NoError(t, err)
	assert.Empty(t, defs[0].Builds.Preview)

	byProject, err := repo.FetchPipelinesByOrgAndProject(ctx, "org1", "proj1", true)
	require.NoError(t, err)
	require.Len(t, byProject, 1)
	assert.Len(t, byProject[0].Builds.Preview, 2)

	// Saving again with fewer branches drops the stale preview.
	def.Builds.Preview = map[string]models.PreviewExecution{"main": preview["main"]}
	require.NoError(t, repo.SavePipeline(ctx, def))
	got, err := repo.GetPipeline(ctx, "org1", "12")
	require.NoError(t, err)
	assert.Len(t, got.Builds.Preview, 1)
}

func TestFetchResourcesByTypeAliasesAndUnknownTypes(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveResource(ctx, pool("org1", "1", "proj1")))
	require.NoError(t, repo.SaveResource(ctx, endpoint("org1", "1", "proj1")))

	pools, err := repo.FetchResourcesByType(ctx, "org1", models.ResourcePoolMerged)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, models.ResourcePool, pools[0].Kind())
	assert.Equal(t, models.ResourcePool, pools[0].Base().ResourceType)

	none, err := repo.FetchResourcesByType(ctx, "org1", "toaster")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = NormalizeResourceType("toaster")
	assert.ErrorIs(t, err, ErrUnknownResourceType)
}

func TestFetchPoolsByProjectUsesQueues(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveResource(ctx, pool("org1", "P1", "proj1")))
	require.NoError(t, repo.SaveResource(ctx, pool("org1", "P2", "proj2", "proj1")))
	require.NoError(t, repo.SaveResource(ctx, pool("org1", "P3", "proj3")))

	got, err := repo.FetchResourcesByTypeAndProject(ctx, "org1", models.ResourcePoolMerged, "proj1")
	require.NoError(t, err)
	var ids []models.ID
	for _, r := range got {
		ids = append(ids, r.Base().ID)
	}
	assert.ElementsMatch(t, models.IDs("P1", "P2"), ids)
}

func TestResourceSummariesOmitUnresolvedIDs(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveResource(ctx, endpoint("org1", "5", "proj1")))
	require.NoError(t, repo.SaveResource(ctx, pool("org1", "5", "proj1")))

	got, err := repo.GetProtectedResourcesByOrgTypeAndIdsSummary(ctx, "org1", models.ResourceEndpoint, models.IDs("5", "9", "5"))
	require.NoError(t, err)
	assert.Equal(t, []models.ResourceSummary{{ID: "5", Name: "conn-5", WebURL: "https://dev.example/5"}}, got)

	got, err = repo.GetProtectedResourcesByOrgTypeAndIdsSummary(ctx, "org1", models.ResourcePoolMerged, models.IDs("5"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pool-5", got[0].Name)
}

func TestFetchProjectRepositoriesWithBranches(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r := &models.Repository{ResourceBase: models.ResourceBase{
			Organisation: "org1",
			ID:           models.ID(fmt.Sprintf("repo%d", i)),
			Name:         fmt.Sprintf("repo-%d", i),
			Project:      &models.ProjectRef{ID: "proj1"},
		}}
		require.NoError(t, repo.SaveResource(ctx, r))
	}
	require.NoError(t, repo.SaveRepositoryBranches(ctx, "org1", "repo0", []models.Branch{
		{ObjectID: "aaa", Name: "refs/heads/main"},
		{ObjectID: "aaa", Name: "refs/heads/release"},
		{ObjectID: "bbb", Name: "refs/heads/feature"},
	}))

	all, err := repo.FetchProjectRepositories(ctx, "org1", "proj1", Page{}, true)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Len(t, all[0].Branches, 3)
	assert.Empty(t, all[1].Branches)

	page2, err := repo.FetchProjectRepositories(ctx, "org1", "proj1", Page{Page: 2, PageSize: 2}, false)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, all[2].ID, page2[0].ID)
	assert.Nil(t, page2[0].Branches)

	n, err := repo.CountProjectRepositories(ctx, "org1", "proj1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	branches, err := repo.Store().GetAllByIndex(ctx, store.RepoBranches, "byOrgAndRepoId", store.K("org1", "repo0"))
	require.NoError(t, err)
	assert.Len(t, branches, 2, "branches are grouped per head commit")
}

func TestFetchCommitsPagesAndCounts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		email := "dev@example.com"
		if i%3 == 0 {
			email = "bot@example.com"
		}
		require.NoError(t, repo.SaveCommit(ctx, models.Commit{
			Organisation:        "org1",
			RepositoryID:        "repo1",
			CommitID:            fmt.Sprintf("c%d", i),
			Committer:           models.GitUser{Email: email},
			AuthorMatchesPusher: i%2 == 0,
		}))
	}

	p, err := repo.FetchCommits(ctx, "org1", "dev@example.com", Page{Page: 1, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, p.Commits, 3)
	assert.Equal(t, 4, p.Total)

	p, err = repo.FetchCommits(ctx, "org1", "", Page{Page: 3, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, p.Commits, 1)
	assert.Equal(t, 7, p.Total)

	p, err = repo.FetchMismatchedCommits(ctx, "org1", "dev@example.com", false, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
}

func TestDeleteOrganisationCascades(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for _, org := range []string{"org1", "org2"} {
		require.NoError(t, repo.SaveOrganisation(ctx, models.Organisation{ID: org, Name: org}))
		require.NoError(t, repo.SaveProject(ctx, models.Project{Organisation: org, ID: "proj1", Name: "Proj"}))
		require.NoError(t, repo.SaveResource(ctx, endpoint(org, "1", "proj1")))
		require.NoError(t, repo.SavePipeline(ctx, models.PipelineDefinition{
			Organisation: org, ID: "1",
			Builds: models.PipelineBuilds{Preview: map[string]models.PreviewExecution{"main": {}}},
		}))
		require.NoError(t, repo.SaveBuild(ctx, models.Build{Organisation: org, ID: "1"}))
		require.NoError(t, repo.SaveBotAccount(ctx, models.BotAccount{Organisation: org, DisplayName: "svc"}))
	}

	removed, err := repo.DeleteOrganisation(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed[store.Projects])
	assert.Equal(t, 1, removed[store.DefinitionPreviews])

	for _, coll := range repo.Store().Schema().OrgScoped() {
		n, err := repo.Store().Count(ctx, coll, store.ByOrganisation, store.K("org1"))
		require.NoError(t, err)
		assert.Zero(t, n, coll)
	}
	org, err := repo.GetOrganisation(ctx, "org1")
	require.NoError(t, err)
	assert.Nil(t, org)

	projects, err := repo.FetchProjects(ctx, "org2")
	require.NoError(t, err)
	assert.Len(t, projects, 1)
	orgs, err := repo.ListOrganisations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "org2", orgs[0].ID)
}

func TestGlobalSettingsDefaults(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.GetGlobalSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGlobalSettings(), s)

	s.Theme = "light"
	s.ID = "ignored"
	require.NoError(t, repo.SaveGlobalSettings(ctx, s))
	got, err := repo.GetGlobalSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "light", got.Theme)
	assert.Equal(t, models.GlobalSettingsID, got.ID)
}

func TestCommitterStatsFilters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveCommitterStat(ctx, models.CommitterStat{Organisation: "org1", CommitterEmail: "a@x", CommitCount: 2, HasMultipleAuthors: true}))
	require.NoError(t, repo.SaveCommitterStat(ctx, models.CommitterStat{Organisation: "org1", CommitterEmail: "b@x", CommitCount: 9, IsBot: true}))

	all, err := repo.FetchCommitterStats(ctx, "org1", CommittersAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b@x", all[0].CommitterEmail)

	multi, err := repo.FetchCommitterStats(ctx, "org1", CommittersMultipleAuthors)
	require.NoError(t, err)
	require.Len(t, multi, 1)
	assert.Equal(t, "a@x", multi[0].CommitterEmail)

	bots, err := repo.FetchCommitterStats(ctx, "org1", CommittersBots)
	require.NoError(t, err)
	require.Len(t, bots, 1)
}
