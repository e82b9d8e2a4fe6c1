package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stagedPipeline = `
trigger:
  branches:
    include: [main, release/*]
    exclude: [experimental]
pool:
  vmImage: ubuntu-latest
stages:
  - stage: Build
    jobs:
      - job: Compile
        steps:
          - checkout: self
          - task: DotNetCoreCLI@2
            displayName: Restore
            inputs:
              command: restore
          - script: make test
            name: unit
            enabled: false
  - stage: Deploy
    pool: prod-agents
    jobs:
      - deployment: Release
        environment: production
        strategy:
          runOnce:
            deploy:
              steps:
                - task: AzureCLI@2
                  inputs:
                    azureSubscription: prod-connection
      - template: jobs/smoke.yml
`

func TestParseStagedPipeline(t *testing.T) {
	r, err := Parse(stagedPipeline)
	require.NoError(t, err)

	assert.Equal(t, []string{"main", "release/*", "!experimental"}, r.Trigger)
	require.Len(t, r.Stages, 2)

	build := r.Stages[0]
	assert.Equal(t, "Build", build.Name)
	assert.Equal(t, "ubuntu-latest", build.Pool)
	require.Len(t, build.Jobs, 1)
	job := build.Jobs[0]
	assert.Equal(t, "Compile", job.Name)
	assert.Equal(t, "ubuntu-latest", job.Pool, "job inherits the stage pool")
	require.Len(t, job.Steps, 3)

	assert.Equal(t, "checkout", job.Steps[0].Type)
	assert.Equal(t, "self", job.Steps[0].Name)

	assert.Equal(t, "task", job.Steps[1].Type)
	assert.Equal(t, "DotNetCoreCLI@2", job.Steps[1].Name)
	assert.Equal(t, "Restore", job.Steps[1].DisplayName)
	assert.Equal(t, map[string]string{"command": "restore"}, job.Steps[1].Inputs)
	assert.True(t, job.Steps[1].IsEnabled())

	assert.Equal(t, "script", job.Steps[2].Type)
	assert.Equal(t, "unit", job.Steps[2].Name)
	assert.Equal(t, "make test", job.Steps[2].Inputs["script"])
	assert.False(t, job.Steps[2].IsEnabled())

	deploy := r.Stages[1]
	assert.Equal(t, "prod-agents", deploy.Pool)
	require.Len(t, deploy.Jobs, 2)
	assert.Equal(t, "Release", deploy.Jobs[0].Name)
	require.Len(t, deploy.Jobs[0].Steps, 1)
	assert.Equal(t, "prod-connection", deploy.Jobs[0].Steps[0].Inputs["azureSubscription"])
	assert.Equal(t, "template:jobs/smoke.yml", deploy.Jobs[1].Name)
	assert.Empty(t, deploy.Jobs[1].Steps)
}

func TestParseStagelessDocuments(t *testing.T) {
	r, err := Parse(`
trigger: none
pool: default
jobs:
  - job: A
    pool:
      name: linux
    steps:
      - bash: echo hi
  - job: B
    steps:
      - pwsh: Write-Host hi
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"none"}, r.Trigger)
	require.Len(t, r.Stages, 1)
	assert.Equal(t, ImplicitName, r.Stages[0].Name)
	require.Len(t, r.Stages[0].Jobs, 2)
	assert.Equal(t, "linux", r.Stages[0].Jobs[0].Pool)
	assert.Equal(t, "default", r.Stages[0].Jobs[1].Pool)

	r, err = Parse(`
trigger: [main]
steps:
  - script: ./build.sh
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, r.Trigger)
	require.Len(t, r.Stages, 1)
	require.Len(t, r.Stages[0].Jobs, 1)
	assert.Equal(t, ImplicitName, r.Stages[0].Jobs[0].Name)
	assert.Equal(t, "./build.sh", r.Stages[0].Jobs[0].Steps[0].Name)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("stages: [unclosed")
	assert.Error(t, err)

	_, err = Parse("- just\n- a list\n")
	assert.Error(t, err)
}

func TestParseIgnoresUnknownShapes(t *testing.T) {
	r, err := Parse(`
stages:
  - "${{ if eq(variables.x, 'y') }}"
  - stage: Only
    jobs:
      - job: J
        steps:
          - unknownStep: value
          - task: Foo@1
`)
	require.NoError(t, err)
	require.Len(t, r.Stages, 1)
	require.Len(t, r.Stages[0].Jobs[0].Steps, 1)
	assert.Equal(t, "Foo@1", r.Stages[0].Jobs[0].Steps[0].Name)
}
