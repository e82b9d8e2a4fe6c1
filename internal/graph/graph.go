// Package graph builds the node/edge view of a scope for a force-directed
// layout: containers, resources, pipelines, builds and preview builds.
package graph

import (
	"sort"

	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// NodeKind classifies a node.
type NodeKind string

const (
	KindContainer      NodeKind = "logic_container"
	KindResource       NodeKind = "resource"
	KindPipeline       NodeKind = "pipeline"
	KindBuild          NodeKind = "build"
	KindPotentialBuild NodeKind = "potential_build"
)

// permission types that never produce pipeline edges.
const queuePermission = "queue"

// Node is one graph vertex. Only the fields relevant to its kind are set.
type Node struct {
	ID           string              `json:"id"`
	Kind         NodeKind            `json:"kind"`
	Label        string              `json:"label"`
	ResourceType models.ResourceType `json:"resourceType,omitempty"`
	Projects     []string            `json:"projects,omitempty"`
	Color        string              `json:"color,omitempty"`
	Criticality  models.Criticality  `json:"criticality,omitempty"`
	Branch       string              `json:"branch,omitempty"`
	Result       string              `json:"result,omitempty"`
	Alerted      bool                `json:"alerted,omitempty"`
	Highlighted  bool                `json:"highlighted,omitempty"`
}

// Edge links two nodes. Edges are undirected for highlighting purposes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a deduplicated node and edge set.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	nodes map[string]int
	edges map[Edge]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Nodes: []Node{},
		Edges: []Edge{},
		nodes: make(map[string]int),
		edges: make(map[Edge]struct{}),
	}
}

// AddNode inserts n unless a node with the same ID exists or the ID is
// empty. It reports whether n was added.
func (g *Graph) AddNode(n Node) bool {
	if n.ID == "" {
		return false
	}
	if _, ok := g.nodes[n.ID]; ok {
		return false
	}
	g.nodes[n.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return true
}

// HasNode reports whether id is present.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// AddEdge links source and target when both exist. Duplicates are ignored.
func (g *Graph) AddEdge(source, target string) bool {
	if !g.HasNode(source) || !g.HasNode(target) || source == target {
		return false
	}
	e := Edge{Source: source, Target: target}
	if _, ok := g.edges[e]; ok {
		return false
	}
	if _, ok := g.edges[Edge{Source: target, Target: source}]; ok {
		return false
	}
	g.edges[e] = struct{}{}
	g.Edges = append(g.Edges, e)
	return true
}

// ResourceNodeID is "{type}_{id}".
func ResourceNodeID(t models.ResourceType, id models.ID) string {
	return string(t) + "_" + string(id)
}

// PipelineNodeID is "pipeline_{id}".
func PipelineNodeID(id models.ID) string { return "pipeline_" + string(id) }

// BuildNodeID is "build_{id}".
func BuildNodeID(id models.ID) string { return "build_" + string(id) }

// PotentialBuildNodeID is "potential_build_{definition}_{branch}".
func PotentialBuildNodeID(definition models.ID, branch string) string {
	return "potential_build_" + string(definition) + "_" + branch
}

// Input is the scope to draw. ResourceType is the selected type and names
// resource nodes; it defaults to each resource's own type.
type Input struct {
	Containers   []models.LogicContainer
	Resources    []models.Resource
	ResourceType models.ResourceType
	Pipelines    []models.PipelineDefinition
	Builds       map[models.ID]models.Build
	HideBuilds   bool
	HidePreviews bool
}

// Build constructs the graph. Nodes are only ever added; malformed records
// are skipped.
func Build(in Input) *Graph {
	g := New()
	for _, c := range in.Containers {
		g.AddNode(Node{ID: c.ID, Kind: KindContainer, Label: c.Name, Color: c.Color, Criticality: c.Criticality})
	}

	idx := containers.NewIndex(in.Containers)
	for _, r := range in.Resources {
		if r == nil || r.Base() == nil || r.Base().ID == "" {
			continue
		}
		b := r.Base()
		t := in.ResourceType
		if t == "" {
			t = r.Kind()
		}
		id := ResourceNodeID(t, b.ID)
		g.AddNode(Node{ID: id, Kind: KindResource, Label: b.Name, ResourceType: t, Projects: r.ProjectIDs()})
		for _, c := range idx.ContainersOf(r.Kind(), b.ID) {
			g.AddEdge(id, c)
		}
	}

	for _, p := range in.Pipelines {
		if p.ID == "" {
			continue
		}
		pid := PipelineNodeID(p.ID)
		g.AddNode(Node{ID: pid, Kind: KindPipeline, Label: p.Name})
		for _, t := range sortedKeys(p.ResourcePermissions) {
			if t == queuePermission {
				continue
			}
			kind := nodeType(models.ResourceType(t), in.ResourceType)
			for _, rid := range p.ResourcePermissions[t] {
				target := ResourceNodeID(kind, rid)
				if g.HasNode(target) {
					g.AddEdge(pid, target)
				}
			}
		}
		if !in.HidePreviews {
			for _, branch := range sortedKeys(p.Builds.Preview) {
				prev := p.Builds.Preview[branch]
				nid := PotentialBuildNodeID(p.ID, branch)
				g.AddNode(Node{ID: nid, Kind: KindPotentialBuild, Label: branch, Branch: branch, Alerted: models.HasAlerts(prev.CICDSast)})
				g.AddEdge(nid, pid)
			}
		}
		if !in.HideBuilds {
			for _, bid := range p.Builds.Builds {
				build, ok := in.Builds[bid]
				if !ok {
					continue
				}
				nid := BuildNodeID(bid)
				label := build.BuildNumber
				if label == "" {
					label = string(bid)
				}
				g.AddNode(Node{ID: nid, Kind: KindBuild, Label: label, Branch: build.SourceBranch, Result: build.Result, Alerted: models.HasAlerts(build.CICDSast)})
				g.AddEdge(nid, pid)
			}
		}
	}
	return g
}

// nodeType names resource nodes for permission key t. Aliases of the
// selected type resolve to the selection, everything else to its storage type.
func nodeType(t, selected models.ResourceType) models.ResourceType {
	if selected != "" && t.Storage() == selected.Storage() {
		return selected
	}
	return t.Storage()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
