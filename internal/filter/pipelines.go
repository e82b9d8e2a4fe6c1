package filter

import (
	"sort"
	"strconv"

	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// Pipelines returns the pipelines matching c. resources must already be
// filtered: permission predicates only consider resources in that set.
func Pipelines(list []models.PipelineDefinition, resources []models.Resource, builds map[models.ID]models.Build, idx *containers.Index, c PipelineCriteria) []models.PipelineDefinition {
	visible := idSet(resources)
	out := make([]models.PipelineDefinition, 0, len(list))
	for _, p := range list {
		if p.ID == "" {
			continue
		}
		if matchPipeline(p, visible, builds, idx, c) {
			out = append(out, p)
		}
	}
	return out
}

func matchPipeline(p models.PipelineDefinition, visible map[models.ID]struct{}, builds map[models.ID]models.Build, idx *containers.Index, c PipelineCriteria) bool {
	if c.Search != "" && !containsFold(p.Name, c.Search) && string(p.ID) != c.Search {
		return false
	}
	if c.Permissioned && !permissioned(p, c.ResourceType, visible) {
		return false
	}
	if c.Overprivileged && len(pipelineContainers(p, c.ResourceType, visible, idx)) <= 1 {
		return false
	}
	if c.Alerted && !alerted(p, builds) {
		return false
	}
	if c.Disabled && p.QueueStatus != models.QueueStatusDisabled {
		return false
	}
	if c.Unqueriable && !unqueriable(p) {
		return false
	}
	if !bypass(c.AuthorizationScope) && p.JobAuthorizationScope != c.AuthorizationScope {
		return false
	}
	if !bypass(c.PipelineType) && strconv.Itoa(p.Process.Type) != c.PipelineType {
		return false
	}
	if len(c.Recipe) > 0 && !MatchRecipes(p, c.Recipe) {
		return false
	}
	return true
}

// Permissions returns the IDs p is authorized to use for t. The selection
// alias is tried first, then the storage type.
func Permissions(p models.PipelineDefinition, t models.ResourceType) []models.ID {
	if ids, ok := p.ResourcePermissions[string(t)]; ok {
		return ids
	}
	return p.ResourcePermissions[string(t.Storage())]
}

func permissioned(p models.PipelineDefinition, t models.ResourceType, visible map[models.ID]struct{}) bool {
	for _, id := range Permissions(p, t) {
		if _, ok := visible[id]; ok {
			return true
		}
	}
	return false
}

// pipelineContainers is the union of containers reachable through the
// pipeline's visible permissioned resources.
func pipelineContainers(p models.PipelineDefinition, t models.ResourceType, visible map[models.ID]struct{}, idx *containers.Index) []string {
	set := make(map[string]struct{})
	for _, id := range Permissions(p, t) {
		if _, ok := visible[id]; !ok {
			continue
		}
		for _, c := range idx.ContainersOf(t, id) {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func alerted(p models.PipelineDefinition, builds map[models.ID]models.Build) bool {
	for _, id := range p.Builds.Builds {
		if b, ok := builds[id]; ok && models.HasAlerts(b.CICDSast) {
			return true
		}
	}
	for _, prev := range p.Builds.Preview {
		if models.HasAlerts(prev.CICDSast) {
			return true
		}
	}
	return false
}

func unqueriable(p models.PipelineDefinition) bool {
	for _, prev := range p.Builds.Preview {
		if prev.Unqueriable() {
			return true
		}
	}
	return false
}
