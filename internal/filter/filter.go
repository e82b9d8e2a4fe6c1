// Package filter narrows scanned resources and pipelines to what the user is
// looking at. Everything here is pure: inputs are never mutated and malformed
// items are skipped rather than reported.
package filter

import (
	"strings"

	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// All bypasses a scope or enum criterion. An empty value does too.
const All = "all"

// Pool type criteria.
const (
	PoolMSHosted   = "ms-hosted"
	PoolSelfHosted = "self-hosted"
)

// ResourceCriteria selects resources. Zero values disable each predicate.
type ResourceCriteria struct {
	ProjectID      string `json:"projectId,omitempty"`
	ContainerID    string `json:"containerId,omitempty"`
	ProtectedState string `json:"protectedState,omitempty"`
	CrossProject   *bool  `json:"crossProject,omitempty"`
	Search         string `json:"search,omitempty"`
	PoolType       string `json:"poolType,omitempty"`
	Overprivileged bool   `json:"overprivileged,omitempty"`
	Overshared     bool   `json:"overshared,omitempty"`
}

// PipelineCriteria selects pipelines. ResourceType is the resource type the
// user has selected; permission-based predicates look at that type only.
type PipelineCriteria struct {
	ResourceType       models.ResourceType `json:"resourceType,omitempty"`
	Search             string              `json:"search,omitempty"`
	Permissioned       bool                `json:"permissioned,omitempty"`
	Overprivileged     bool                `json:"overprivileged,omitempty"`
	Alerted            bool                `json:"alerted,omitempty"`
	Disabled           bool                `json:"disabled,omitempty"`
	Unqueriable        bool                `json:"unqueriable,omitempty"`
	AuthorizationScope string              `json:"authorizationScope,omitempty"`
	PipelineType       string              `json:"pipelineType,omitempty"`
	Recipe             []RecipeFilter      `json:"recipe,omitempty"`
}

// Input is one filtering pass.
type Input struct {
	Resources []models.Resource
	Pipelines []models.PipelineDefinition
	// Builds resolves historic build IDs for the alerted predicate.
	Builds    map[models.ID]models.Build
	Index     *containers.Index
	Resource  ResourceCriteria
	Pipeline  PipelineCriteria
}

// ResourceFlags are the per-resource badge annotations.
type ResourceFlags struct {
	Containers     []string `json:"containers"`
	Overprivileged bool     `json:"overprivileged"`
	Overshared     bool     `json:"overshared"`
}

// PipelineFlags are the per-pipeline badge annotations.
type PipelineFlags struct {
	Containers     []string `json:"containers"`
	Overprivileged bool     `json:"overprivileged"`
	Alerted        bool     `json:"alerted"`
	Disabled       bool     `json:"disabled"`
	Unqueriable    bool     `json:"unqueriable"`
}

// Badges counts flagged items in the filtered result.
type Badges struct {
	Resources               int `json:"resources"`
	Pipelines               int `json:"pipelines"`
	OverprivilegedResources int `json:"overprivilegedResources"`
	OversharedResources     int `json:"oversharedResources"`
	CrossProjectResources   int `json:"crossProjectResources"`
	UnprotectedResources    int `json:"unprotectedResources"`
	OverprivilegedPipelines int `json:"overprivilegedPipelines"`
	AlertedPipelines        int `json:"alertedPipelines"`
	DisabledPipelines       int `json:"disabledPipelines"`
	UnqueriablePipelines    int `json:"unqueriablePipelines"`
}

// Result is the output of Apply. Flag maps are keyed by resource qualified
// ID and pipeline ID respectively.
type Result struct {
	Resources     []models.Resource           `json:"resources"`
	Pipelines     []models.PipelineDefinition `json:"pipelines"`
	ResourceFlags map[string]ResourceFlags    `json:"resourceFlags"`
	PipelineFlags map[models.ID]PipelineFlags `json:"pipelineFlags"`
	Badges        Badges                      `json:"badges"`
}

// Apply filters resources first, then pipelines against the filtered
// resource set.
func Apply(in Input) Result {
	res := Resources(in.Resources, in.Resource, in.Index)
	pipes := Pipelines(in.Pipelines, res, in.Builds, in.Index, in.Pipeline)

	out := Result{
		Resources:     res,
		Pipelines:     pipes,
		ResourceFlags: make(map[string]ResourceFlags, len(res)),
		PipelineFlags: make(map[models.ID]PipelineFlags, len(pipes)),
	}
	out.Badges.Resources = len(res)
	out.Badges.Pipelines = len(pipes)
	for _, r := range res {
		b := r.Base()
		f := ResourceFlags{
			Containers: in.Index.ContainersOf(r.Kind(), b.ID),
			Overshared: overshared(r),
		}
		f.Overprivileged = len(f.Containers) > 1
		out.ResourceFlags[models.QualifiedID(r.Kind(), b.ID)] = f
		if f.Overprivileged {
			out.Badges.OverprivilegedResources++
		}
		if f.Overshared {
			out.Badges.OversharedResources++
		}
		if b.IsCrossProject {
			out.Badges.CrossProjectResources++
		}
		if b.ProtectedState == models.ProtectedStateUnprotected {
			out.Badges.UnprotectedResources++
		}
	}

	visible := idSet(res)
	for _, p := range pipes {
		f := PipelineFlags{
			Containers:  pipelineContainers(p, in.Pipeline.ResourceType, visible, in.Index),
			Alerted:     alerted(p, in.Builds),
			Disabled:    p.QueueStatus == models.QueueStatusDisabled,
			Unqueriable: unqueriable(p),
		}
		f.Overprivileged = len(f.Containers) > 1
		out.PipelineFlags[p.ID] = f
		if f.Overprivileged {
			out.Badges.OverprivilegedPipelines++
		}
		if f.Alerted {
			out.Badges.AlertedPipelines++
		}
		if f.Disabled {
			out.Badges.DisabledPipelines++
		}
		if f.Unqueriable {
			out.Badges.UnqueriablePipelines++
		}
	}
	return out
}

func bypass(v string) bool { return v == "" || v == All }

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
