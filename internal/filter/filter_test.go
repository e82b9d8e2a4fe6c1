package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/models"
)

func pool(id string, hosted bool, projects ...string) *models.Pool {
	p := &models.Pool{IsHosted: hosted}
	p.ID, p.Name, p.ResourceType = models.ID(id), "Pool "+id, models.ResourcePool
	for i, proj := range projects {
		p.Queues = append(p.Queues, models.PoolQueue{ID: models.ID(id + "-" + proj), ProjectID: proj, Name: string(rune('a' + i))})
	}
	return p
}

func endpoint(id, name, project string) *models.Endpoint {
	e := &models.Endpoint{}
	e.ID, e.Name, e.ResourceType = models.ID(id), name, models.ResourceEndpoint
	e.Project = &models.ProjectRef{ID: project}
	e.ProtectedState = models.ProtectedStateUnprotected
	e.PipelinePermissions = []models.ID{}
	return e
}

func ids(list []models.Resource) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, string(r.Base().ID))
	}
	return out
}

func pipelineIDs(list []models.PipelineDefinition) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, string(p.ID))
	}
	return out
}

func TestPoolsFilteredByQueueProjects(t *testing.T) {
	list := []models.Resource{
		pool("P1", false, "proj1"),
		pool("P2", true, "proj2", "proj1"),
		pool("P3", false, "proj3"),
	}
	got := Resources(list, ResourceCriteria{ProjectID: "proj1"}, nil)
	assert.ElementsMatch(t, []string{"P1", "P2"}, ids(got))

	got = Resources(list, ResourceCriteria{ProjectID: "proj1", PoolType: PoolMSHosted}, nil)
	assert.Equal(t, []string{"P2"}, ids(got))
	got = Resources(list, ResourceCriteria{PoolType: PoolSelfHosted}, nil)
	assert.Equal(t, []string{"P1", "P3"}, ids(got))
	got = Resources(list, ResourceCriteria{ProjectID: All, PoolType: All}, nil)
	assert.Len(t, got, 3)
}

func TestOverprivilegedResources(t *testing.T) {
	a, b, c := endpoint("1", "a", "proj1"), endpoint("2", "b", "proj1"), endpoint("3", "c", "proj1")
	idx := containers.NewIndex([]models.LogicContainer{
		{ID: "prod", Resources: []string{"endpoint:1", "endpoint:2"}},
		{ID: "dev", Resources: []string{"endpoint:1"}},
		// Same id, different type: must not count for endpoint 2.
		{ID: "other", Resources: []string{"variablegroup:2"}},
	})
	got := Resources([]models.Resource{a, b, c}, ResourceCriteria{Overprivileged: true}, idx)
	assert.Equal(t, []string{"1"}, ids(got))

	got = Resources([]models.Resource{a, b, c}, ResourceCriteria{ContainerID: "prod"}, idx)
	assert.Equal(t, []string{"1", "2"}, ids(got))
	got = Resources([]models.Resource{a, b, c}, ResourceCriteria{ContainerID: All}, idx)
	assert.Len(t, got, 3)
}

func TestResourcePredicates(t *testing.T) {
	a := endpoint("10", "Prod ARM", "proj1")
	b := endpoint("11", "github", "proj1")
	b.ProtectedState = models.ProtectedStateProtected
	b.IsCrossProject = true
	b.PipelinePermissions = models.IDs("1", "2")
	c := endpoint("12", "legacy", "proj2")
	c.IsOpenAllPipelines = true
	broken := endpoint("", "no id", "proj1")
	list := []models.Resource{a, b, c, broken}

	assert.Equal(t, []string{"10"}, ids(Resources(list, ResourceCriteria{Search: "arm"}, nil)))
	assert.Equal(t, []string{"11"}, ids(Resources(list, ResourceCriteria{Search: "11"}, nil)))
	assert.Equal(t, []string{"11"}, ids(Resources(list, ResourceCriteria{ProtectedState: models.ProtectedStateProtected}, nil)))
	yes, no := true, false
	assert.Equal(t, []string{"11"}, ids(Resources(list, ResourceCriteria{CrossProject: &yes}, nil)))
	assert.Equal(t, []string{"10", "12"}, ids(Resources(list, ResourceCriteria{CrossProject: &no}, nil)))
	assert.Equal(t, []string{"11", "12"}, ids(Resources(list, ResourceCriteria{Overshared: true}, nil)))
	assert.Equal(t, []string{"12"}, ids(Resources(list, ResourceCriteria{ProjectID: "proj2"}, nil)))
	assert.Len(t, list, 4, "input untouched")
}

func recipe(stages ...models.RecipeStage) *models.Recipe {
	return &models.Recipe{Trigger: []string{"main"}, Stages: stages}
}

func withRecipe(id string, r *models.Recipe) models.PipelineDefinition {
	p := models.PipelineDefinition{ID: models.ID(id), Name: "pipe-" + id}
	if r != nil {
		p.Builds.Preview = map[string]models.PreviewExecution{"main": {Recipe: r}}
	}
	return p
}

func TestJobPoolMatchesAnyStage(t *testing.T) {
	matching := withRecipe("1", recipe(
		models.RecipeStage{Name: "A", Jobs: []models.RecipeJob{{Name: "build", Pool: "ubuntu-latest"}}},
		models.RecipeStage{Name: "B", Jobs: []models.RecipeJob{{Name: "deploy", Pool: "windows-2022"}}},
	))
	other := withRecipe("2", recipe(
		models.RecipeStage{Name: "A", Jobs: []models.RecipeJob{{Name: "build", Pool: "macos-14"}}},
	))
	filters := []RecipeFilter{{Field: FieldJobPool, Value: "Ubuntu"}}

	got := Pipelines([]models.PipelineDefinition{matching, other}, nil, nil, nil, PipelineCriteria{Recipe: filters})
	assert.Equal(t, []string{"1"}, pipelineIDs(got))
}

func TestRecipeNesting(t *testing.T) {
	r := recipe(
		models.RecipeStage{Name: "build", Pool: "shared", Jobs: []models.RecipeJob{
			{Name: "compile", Steps: []models.RecipeStep{
				{Type: "script", Name: "make"},
				{Type: "task", Name: "AzureCLI@2", Inputs: map[string]string{"azureSubscription": "prod-conn"}},
			}},
		}},
		models.RecipeStage{Name: "release", Jobs: []models.RecipeJob{
			{Name: "ship", Steps: []models.RecipeStep{{Type: "bash", Name: "deploy.sh"}}},
		}},
	)

	cases := []struct {
		name    string
		filters []RecipeFilter
		want    bool
	}{
		{"trigger", []RecipeFilter{{Field: FieldTrigger, Value: "MAIN"}}, true},
		{"negated trigger", []RecipeFilter{{Field: FieldTrigger, Value: "main", Negate: true}}, false},
		// Both stage filters must hold on the same stage.
		{"stage filters on one stage", []RecipeFilter{{Field: FieldStageName, Value: "build"}, {Field: FieldStagePool, Value: "shared"}}, true},
		{"stage filters split across stages", []RecipeFilter{{Field: FieldStageName, Value: "release"}, {Field: FieldStagePool, Value: "shared"}}, false},
		{"step filters on one step", []RecipeFilter{{Field: FieldStepType, Value: "task"}, {Field: FieldStepInputs, Value: "prod-conn"}}, true},
		{"step filters split across steps", []RecipeFilter{{Field: FieldStepType, Value: "script"}, {Field: FieldStepInputs, Value: "prod-conn"}}, false},
		{"step input key", []RecipeFilter{{Field: FieldStepInputs, Value: "azuresubscription"}}, true},
		{"step enabled", []RecipeFilter{{Field: FieldStepEnabled, Value: "false"}}, false},
		{"negated step", []RecipeFilter{{Field: FieldStepType, Value: "bash", Negate: true}}, true},
		{"scopes combine", []RecipeFilter{{Field: FieldStageName, Value: "release"}, {Field: FieldStepName, Value: "azurecli"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchRecipe(r, tc.filters))
		})
	}
}

func TestUnqueriablePredicate(t *testing.T) {
	no := false
	broken := models.PipelineDefinition{ID: "9", Builds: models.PipelineBuilds{Preview: map[string]models.PreviewExecution{
		"main": {IsYAMLPreviewAvailable: &no, Error: "bad yaml"},
	}}}
	filters := []RecipeFilter{{Field: FieldJobPool, Value: "ubuntu"}}
	assert.False(t, MatchRecipes(broken, filters))
	assert.True(t, MatchRecipes(broken, append(filters, RecipeFilter{Field: FieldUnqueriable, Value: "true"})))

	got := Pipelines([]models.PipelineDefinition{broken, withRecipe("1", recipe())}, nil, nil, nil, PipelineCriteria{Unqueriable: true})
	assert.Equal(t, []string{"9"}, pipelineIDs(got))
}

func TestPipelinePredicates(t *testing.T) {
	e5, e9 := endpoint("5", "five", "proj1"), endpoint("9", "nine", "proj1")
	idx := containers.NewIndex([]models.LogicContainer{
		{ID: "prod", Resources: []string{"endpoint:5"}},
		{ID: "dev", Resources: []string{"endpoint:9"}},
	})
	p1 := models.PipelineDefinition{
		ID: "1", Name: "deploy-api", JobAuthorizationScope: "projectCollection",
		Process:             models.PipelineProcess{Type: models.ProcessYAML},
		ResourcePermissions: map[string][]models.ID{"endpoint": models.IDs("5", "9"), "queue": models.IDs("2")},
		Builds:              models.PipelineBuilds{Builds: models.IDs("100")},
	}
	p2 := models.PipelineDefinition{
		ID: "2", Name: "nightly", QueueStatus: models.QueueStatusDisabled, JobAuthorizationScope: "project",
		Process:             models.PipelineProcess{Type: models.ProcessClassic},
		ResourcePermissions: map[string][]models.ID{"endpoint": models.IDs("5")},
		Builds: models.PipelineBuilds{Preview: map[string]models.PreviewExecution{
			"main": {CICDSast: []models.SastResult{{Engine: "checkov", Results: []models.SastFinding{{RuleID: "CKV_1"}}}}},
		}},
	}
	p3 := models.PipelineDefinition{ID: "3", Name: "docs"}
	pipes := []models.PipelineDefinition{p1, p2, p3}
	builds := map[models.ID]models.Build{"100": {ID: "100", CICDSast: []models.SastResult{{Engine: "x", Results: []models.SastFinding{{}}}}}}
	all := []models.Resource{e5, e9}
	crit := func(c PipelineCriteria) PipelineCriteria {
		c.ResourceType = models.ResourceEndpoint
		return c
	}

	assert.Equal(t, []string{"1", "2"}, pipelineIDs(Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{Permissioned: true}))))
	// Only endpoint 9 visible: p2 loses its permissioned resource.
	assert.Equal(t, []string{"1"}, pipelineIDs(Pipelines(pipes, []models.Resource{e9}, builds, idx, crit(PipelineCriteria{Permissioned: true}))))
	assert.Equal(t, []string{"1"}, pipelineIDs(Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{Overprivileged: true}))))
	assert.Empty(t, Pipelines(pipes, []models.Resource{e5}, builds, idx, crit(PipelineCriteria{Overprivileged: true})))
	assert.Equal(t, []string{"1", "2"}, pipelineIDs(Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{Alerted: true}))))
	assert.Equal(t, []string{"2"}, pipelineIDs(Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{Disabled: true}))))
	assert.Equal(t, []string{"2"}, pipelineIDs(Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{AuthorizationScope: "project"}))))
	assert.Equal(t, []string{"1"}, pipelineIDs(Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{PipelineType: "2"}))))
	assert.Equal(t, []string{"3"}, pipelineIDs(Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{Search: "DOC"}))))
	assert.Len(t, Pipelines(pipes, all, builds, idx, crit(PipelineCriteria{PipelineType: All})), 3)
}

func TestApplyBadges(t *testing.T) {
	e5, e9 := endpoint("5", "five", "proj1"), endpoint("9", "nine", "proj1")
	e9.IsOpenAllPipelines = true
	idx := containers.NewIndex([]models.LogicContainer{
		{ID: "prod", Resources: []string{"endpoint:5", "endpoint:9"}},
		{ID: "dev", Resources: []string{"endpoint:9"}},
	})
	p := models.PipelineDefinition{ID: "1", ResourcePermissions: map[string][]models.ID{"endpoint": models.IDs("5", "9")}}

	res := Apply(Input{
		Resources: []models.Resource{e5, e9},
		Pipelines: []models.PipelineDefinition{p},
		Index:     idx,
		Pipeline:  PipelineCriteria{ResourceType: models.ResourceEndpoint},
	})
	require.Len(t, res.Resources, 2)
	assert.Equal(t, 1, res.Badges.OverprivilegedResources)
	assert.Equal(t, 1, res.Badges.OversharedResources)
	assert.Equal(t, 2, res.Badges.UnprotectedResources)
	assert.Equal(t, []string{"dev", "prod"}, res.ResourceFlags["endpoint:9"].Containers)
	assert.True(t, res.PipelineFlags["1"].Overprivileged)
	assert.Equal(t, 1, res.Badges.OverprivilegedPipelines)
}

func TestParseRecipeFilter(t *testing.T) {
	f, err := ParseRecipeFilter("!jobPool=ubuntu")
	require.NoError(t, err)
	assert.Equal(t, RecipeFilter{Field: FieldJobPool, Value: "ubuntu", Negate: true}, f)

	_, err = ParseRecipeFilter("jobPool")
	assert.Error(t, err)
	_, err = ParseRecipeFilter("color=red")
	assert.Error(t, err)
}
