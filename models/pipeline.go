package models

import "time"

// Pipeline process types.
const (
	ProcessClassic = 1
	ProcessYAML    = 2
)

// Queue statuses.
const (
	QueueStatusEnabled  = "enabled"
	QueueStatusDisabled = "disabled"
	QueueStatusPaused   = "paused"
)

// PipelineProcess describes how a definition is authored.
type PipelineProcess struct {
	Type         int    `json:"type"` // 1 classic | 2 yaml
	YAMLFilename string `json:"yamlFilename,omitempty"`
}

// RepositoryRef points from a definition or build to its source repository.
type RepositoryRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// PipelineDefinition is a build/pipeline definition.
type PipelineDefinition struct {
	Organisation          string           `json:"organisation"`
	ID                    ID               `json:"id"`
	Name                  string           `json:"name"`
	Path                  string           `json:"path,omitempty"`
	URL                   string           `json:"url,omitempty"`
	Project               *ProjectRef      `json:"k_project,omitempty"`
	Process               PipelineProcess  `json:"process"`
	QueueStatus           string           `json:"queueStatus,omitempty"`
	JobAuthorizationScope string           `json:"jobAuthorizationScope,omitempty"` // projectCollection | project
	Triggers              []map[string]any `json:"triggers,omitempty"`
	Variables             map[string]any   `json:"variables,omitempty"`
	Repository            *RepositoryRef   `json:"repository,omitempty"`
	// ResourcePermissions maps a resource type to the IDs this pipeline is
	// authorized to use. The "queue" key denotes pool-queue permissions.
	ResourcePermissions map[string][]ID `json:"resourcepermissions,omitempty"`
	Builds              PipelineBuilds  `json:"builds"`
}

// PipelineBuilds holds the historic build IDs and the per-branch previews.
type PipelineBuilds struct {
	Builds  []ID                        `json:"builds"`
	Preview map[string]PreviewExecution `json:"preview,omitempty"`
}

// PreviewExecution is the result of a YAML preview run for one branch.
type PreviewExecution struct {
	YAML                   string       `json:"yaml,omitempty"`
	IsYAMLPreviewAvailable *bool        `json:"is_yaml_preview_available,omitempty"`
	Error                  string       `json:"error,omitempty"`
	CICDSast               []SastResult `json:"cicd_sast,omitempty"`
	Recipe                 *Recipe      `json:"recipe,omitempty"`
	PreviewedAt            *time.Time   `json:"previewedAt,omitempty"`
}

// Unqueriable reports whether the preview failed to produce usable YAML.
func (p PreviewExecution) Unqueriable() bool {
	return p.IsYAMLPreviewAvailable != nil && !*p.IsYAMLPreviewAvailable
}

// SastResult is one engine's security scan output for a build or preview.
type SastResult struct {
	Engine  string        `json:"engine"`
	Scope   string        `json:"scope,omitempty"`
	Results []SastFinding `json:"results"`
}

// SastFinding is a single finding reported by a scan engine.
type SastFinding struct {
	RuleID   string `json:"ruleId,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`
	Path     string `json:"path,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// HasAlerts reports whether any engine returned at least one finding.
func HasAlerts(results []SastResult) bool {
	for _, r := range results {
		if len(r.Results) > 0 {
			return true
		}
	}
	return false
}

// Recipe is the normalized, parsed shape of a pipeline's YAML.
type Recipe struct {
	Trigger []string      `json:"trigger,omitempty"`
	Stages  []RecipeStage `json:"stages"`
}

// RecipeStage is one stage of a recipe. Stage-less YAML is normalized into a
// single implicit stage.
type RecipeStage struct {
	Name string      `json:"name"`
	Pool string      `json:"pool,omitempty"`
	Jobs []RecipeJob `json:"jobs"`
}

// RecipeJob is one job (or deployment) of a stage.
type RecipeJob struct {
	Name  string       `json:"name"`
	Pool  string       `json:"pool,omitempty"`
	Steps []RecipeStep `json:"steps"`
}

// RecipeStep is one step of a job.
type RecipeStep struct {
	Type        string            `json:"type"` // task | script | bash | pwsh | powershell | checkout | template | download | publish
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName,omitempty"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
}

// IsEnabled treats an absent flag as enabled.
func (s RecipeStep) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }
