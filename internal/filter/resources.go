package filter

import (
	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// Resources returns the resources matching c, in input order.
func Resources(list []models.Resource, c ResourceCriteria, idx *containers.Index) []models.Resource {
	out := make([]models.Resource, 0, len(list))
	for _, r := range list {
		if r == nil || r.Base() == nil || r.Base().ID == "" {
			continue
		}
		if MatchResource(r, c, idx) {
			out = append(out, r)
		}
	}
	return out
}

// MatchResource applies every resource predicate to r.
func MatchResource(r models.Resource, c ResourceCriteria, idx *containers.Index) bool {
	b := r.Base()
	if !bypass(c.ProjectID) && !inProject(r, c.ProjectID) {
		return false
	}
	if !bypass(c.ContainerID) && !idx.Has(c.ContainerID, r.Kind(), b.ID) {
		return false
	}
	if !bypass(c.ProtectedState) && b.ProtectedState != c.ProtectedState {
		return false
	}
	if c.CrossProject != nil && b.IsCrossProject != *c.CrossProject {
		return false
	}
	if c.Search != "" && !containsFold(b.Name, c.Search) && string(b.ID) != c.Search {
		return false
	}
	if !bypass(c.PoolType) {
		if p, ok := r.(*models.Pool); ok && p.IsHosted != (c.PoolType == PoolMSHosted) {
			return false
		}
	}
	if c.Overprivileged && idx.Count(r.Kind(), b.ID) <= 1 {
		return false
	}
	if c.Overshared && !overshared(r) {
		return false
	}
	return true
}

// inProject uses the resource's own project resolution, so pools match
// through their queues.
func inProject(r models.Resource, project string) bool {
	for _, id := range r.ProjectIDs() {
		if id == project {
			return true
		}
	}
	return false
}

func overshared(r models.Resource) bool {
	b := r.Base()
	return b.IsOpenAllPipelines || len(b.PipelinePermissions) > 1
}

func idSet(list []models.Resource) map[models.ID]struct{} {
	set := make(map[models.ID]struct{}, len(list))
	for _, r := range list {
		set[r.Base().ID] = struct{}{}
	}
	return set
}
