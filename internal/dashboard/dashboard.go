// Package dashboard loads one scope from the repository and runs it through
// the filter engine and graph builder. The CLI and the gateway both render
// its View.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/devops-atlas/internal/containers"
	"github.com/CosmoTheDev/devops-atlas/internal/filter"
	"github.com/CosmoTheDev/devops-atlas/internal/graph"
	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/internal/session"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// Query is a dashboard request. Selection scopes the fetch; the criteria
// narrow what was fetched.
type Query struct {
	Selection session.Selection       `json:"selection"`
	Resource  filter.ResourceCriteria `json:"resource"`
	Pipeline  filter.PipelineCriteria `json:"pipeline"`
	// Highlight marks the graph neighbourhood of a node ID.
	Highlight string `json:"highlight,omitempty"`
	// Depth overrides the settings highlight depth when positive.
	Depth int `json:"depth,omitempty"`
}

// View is everything the UI needs for one scope.
type View struct {
	Selection  session.Selection       `json:"selection"`
	Settings   models.GlobalSettings   `json:"settings"`
	Containers []models.LogicContainer `json:"containers"`
	filter.Result
	Graph *graph.Graph `json:"graph"`
}

// Service is safe for concurrent use.
type Service struct {
	repo     *repository.Repository
	registry *containers.Registry
}

// New returns a Service.
func New(repo *repository.Repository, registry *containers.Registry) *Service {
	return &Service{repo: repo, registry: registry}
}

// Repository returns the underlying repository.
func (s *Service) Repository() *repository.Repository { return s.repo }

// Registry returns the container registry.
func (s *Service) Registry() *containers.Registry { return s.registry }

type scope struct {
	resources  []models.Resource
	pipelines  []models.PipelineDefinition
	builds     []models.Build
	containers []models.LogicContainer
	index      *containers.Index
	settings   models.GlobalSettings
}

// Load fetches and filters the scope named by q.Selection.
func (s *Service) Load(ctx context.Context, q Query) (*View, error) {
	sel := q.Selection
	if sel.Organisation == "" {
		return nil, fmt.Errorf("organisation is required")
	}

	var sc scope
	settings, err := s.repo.GetGlobalSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	sc.settings = settings
	if sel.ResourceType == "" {
		sel.ResourceType = settings.DefaultResourceType
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if sel.Project != "" {
			sc.resources, err = s.repo.FetchResourcesByTypeAndProject(gctx, sel.Organisation, sel.ResourceType, sel.Project)
		} else {
			sc.resources, err = s.repo.FetchResourcesByType(gctx, sel.Organisation, sel.ResourceType)
		}
		return err
	})
	g.Go(func() (err error) {
		if sel.Project != "" {
			sc.pipelines, err = s.repo.FetchPipelinesByOrgAndProject(gctx, sel.Organisation, sel.Project, true)
		} else {
			sc.pipelines, err = s.repo.FetchPipelines(gctx, sel.Organisation, true)
		}
		return err
	})
	g.Go(func() (err error) {
		if sel.Project != "" {
			sc.builds, err = s.repo.FetchBuildsByOrgAndProject(gctx, sel.Organisation, sel.Project)
		} else {
			sc.builds, err = s.repo.FetchBuilds(gctx, sel.Organisation)
		}
		return err
	})
	g.Go(func() (err error) {
		sc.containers, err = s.registry.List(gctx)
		if err != nil {
			return err
		}
		sc.index, err = s.registry.Index(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rc := q.Resource
	if rc.ProjectID == "" {
		rc.ProjectID = sel.Project
	}
	if rc.ContainerID == "" {
		rc.ContainerID = sel.ContainerID
	}
	pc := q.Pipeline
	pc.ResourceType = sel.ResourceType

	builds := models.IndexBuilds(sc.builds)
	res := filter.Apply(filter.Input{
		Resources: sc.resources,
		Pipelines: sc.pipelines,
		Builds:    builds,
		Index:     sc.index,
		Resource:  rc,
		Pipeline:  pc,
	})

	inScope := sc.containers
	if rc.ContainerID != "" && rc.ContainerID != filter.All {
		inScope = nil
		for _, c := range sc.containers {
			if c.ID == rc.ContainerID {
				inScope = append(inScope, c)
			}
		}
	}
	gr := graph.Build(graph.Input{
		Containers:   inScope,
		Resources:    res.Resources,
		ResourceType: sel.ResourceType,
		Pipelines:    res.Pipelines,
		Builds:       builds,
		HideBuilds:   !settings.ShowBuilds,
		HidePreviews: !settings.ShowPreviews,
	})
	if q.Highlight != "" {
		depth := q.Depth
		if depth <= 0 {
			depth = settings.HighlightDepth
		}
		gr.Highlight(q.Highlight, depth)
	}

	slog.Debug("Dashboard loaded",
		"org", sel.Organisation,
		"project", sel.Project,
		"type", sel.ResourceType,
		"resources", len(res.Resources),
		"pipelines", len(res.Pipelines),
		"nodes", len(gr.Nodes),
	)
	return &View{
		Selection:  sel,
		Settings:   settings,
		Containers: sc.containers,
		Result:     res,
		Graph:      gr,
	}, nil
}

// LoadSession loads the session's current selection. A load overtaken by a
// newer selection fails with session.ErrStale.
func (s *Service) LoadSession(ctx context.Context, sess *session.Session, q Query) (*View, error) {
	return session.Fetch(ctx, sess, func(ctx context.Context, sel session.Selection) (*View, error) {
		q.Selection = sel
		return s.Load(ctx, q)
	})
}
