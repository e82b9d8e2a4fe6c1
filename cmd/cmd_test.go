package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/models"
)

func TestEmitFormats(t *testing.T) {
	c := models.LogicContainer{ID: "prod", Name: "Prod", Criticality: models.CriticalityHigh}

	var buf bytes.Buffer
	require.NoError(t, emit(&buf, "json", c, tabular{}))
	assert.Contains(t, buf.String(), `"criticality": "high"`)

	buf.Reset()
	require.NoError(t, emit(&buf, "yaml", c, tabular{}))
	assert.Contains(t, buf.String(), "criticality: high")
	assert.Contains(t, buf.String(), "is_default: false")

	buf.Reset()
	require.NoError(t, emit(&buf, "table", nil, containerRows([]models.LogicContainer{c})))
	assert.Contains(t, buf.String(), "prod")
	assert.Contains(t, buf.String(), "CRITICALITY")

	assert.Error(t, emit(&buf, "xml", c, tabular{}))
}

func TestSetPath(t *testing.T) {
	rec := map[string]any{
		"pageSize":     float64(25),
		"scanDefaults": map[string]any{"collectCommits": true},
	}
	require.NoError(t, setPath(rec, "pageSize", "50"))
	assert.Equal(t, float64(50), rec["pageSize"])

	require.NoError(t, setPath(rec, "scanDefaults.collectCommits", "false"))
	assert.Equal(t, false, rec["scanDefaults"].(map[string]any)["collectCommits"])

	assert.Error(t, setPath(rec, "missing", "1"))
	assert.Error(t, setPath(rec, "pageSize.inner", "1"))
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "atlas:***@tcp(db:3306)/atlas", redactDSN("atlas:secret@tcp(db:3306)/atlas"))
	assert.Equal(t, "atlas@tcp(db:3306)/atlas", redactDSN("atlas@tcp(db:3306)/atlas"))
	assert.Equal(t, "", redactDSN(""))
}

func TestScopeFlagsQuery(t *testing.T) {
	f := scopeFlags{
		org:          "org1",
		resourceType: "endpoint",
		crossProject: "true",
		recipe:       []string{"stepName=AzureCLI", "!stepEnabled=false"},
	}
	q, err := f.query()
	require.NoError(t, err)
	assert.Equal(t, "org1", q.Selection.Organisation)
	require.NotNil(t, q.Resource.CrossProject)
	assert.True(t, *q.Resource.CrossProject)
	require.Len(t, q.Pipeline.Recipe, 2)
	assert.True(t, q.Pipeline.Recipe[1].Negate)

	f.crossProject = "maybe"
	_, err = f.query()
	assert.Error(t, err)
}
