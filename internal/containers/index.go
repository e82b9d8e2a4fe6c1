package containers

import (
	"sort"

	"github.com/CosmoTheDev/devops-atlas/models"
)

// Index maps resources to the containers that hold them. Build it once per
// membership change instead of scanning every container per resource.
type Index struct {
	qualified map[string]map[string]struct{}
	// legacy holds unqualified membership entries, which match any type.
	legacy map[string]map[string]struct{}
	names  map[string]string
}

// NewIndex builds the inverse membership index.
func NewIndex(list []models.LogicContainer) *Index {
	idx := &Index{
		qualified: make(map[string]map[string]struct{}),
		legacy:    make(map[string]map[string]struct{}),
		names:     make(map[string]string, len(list)),
	}
	for _, c := range list {
		idx.names[c.ID] = c.Name
		for _, entry := range c.Resources {
			t, id := models.SplitQualifiedID(entry)
			target := idx.legacy
			key := string(id)
			if t != "" {
				target = idx.qualified
				key = models.QualifiedID(t, id)
			}
			if target[key] == nil {
				target[key] = make(map[string]struct{})
			}
			target[key][c.ID] = struct{}{}
		}
	}
	return idx
}

// ContainersOf returns the sorted IDs of the containers holding (t, id).
func (x *Index) ContainersOf(t models.ResourceType, id models.ID) []string {
	if x == nil {
		return nil
	}
	set := make(map[string]struct{})
	for c := range x.qualified[models.QualifiedID(t, id)] {
		set[c] = struct{}{}
	}
	for c := range x.legacy[string(id)] {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Count returns how many containers hold (t, id).
func (x *Index) Count(t models.ResourceType, id models.ID) int {
	return len(x.ContainersOf(t, id))
}

// Has reports whether container holds (t, id).
func (x *Index) Has(container string, t models.ResourceType, id models.ID) bool {
	if x == nil {
		return false
	}
	if _, ok := x.qualified[models.QualifiedID(t, id)][container]; ok {
		return true
	}
	_, ok := x.legacy[string(id)][container]
	return ok
}

// Name returns a container's display name.
func (x *Index) Name(container string) string {
	if x == nil {
		return ""
	}
	return x.names[container]
}
