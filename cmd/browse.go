package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/devops-atlas/internal/dashboard"
	"github.com/CosmoTheDev/devops-atlas/internal/filter"
	"github.com/CosmoTheDev/devops-atlas/internal/session"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// scopeFlags are shared by resources, pipelines and graph.
type scopeFlags struct {
	org          string
	project      string
	resourceType string
	container    string

	protectedState string
	crossProject   string
	search         string
	poolType       string
	overprivileged bool
	overshared     bool

	pipelineSearch string
	permissioned   bool
	pipelineOver   bool
	alerted        bool
	disabled       bool
	unqueriable    bool
	authScope      string
	pipelineType   string
	recipe         []string

	highlight string
	depth     int
}

func (f *scopeFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.org, "org", "", "organisation id (required)")
	fl.StringVar(&f.project, "project", "", "restrict to one project id")
	fl.StringVarP(&f.resourceType, "type", "t", "", "resource type (default from settings)")
	fl.StringVar(&f.container, "container", "", "restrict to members of a logic container")

	fl.StringVar(&f.protectedState, "protected-state", "", "protected|unprotected")
	fl.StringVar(&f.crossProject, "cross-project", "", "true|false")
	fl.StringVar(&f.search, "search", "", "resource name substring or exact id")
	fl.StringVar(&f.poolType, "pool-type", "", "pool type: ms-hosted|self-hosted")
	fl.BoolVar(&f.overprivileged, "overprivileged", false, "resources in more than one container")
	fl.BoolVar(&f.overshared, "overshared", false, "resources open to all pipelines")

	fl.StringVar(&f.pipelineSearch, "pipeline-search", "", "pipeline name substring or exact id")
	fl.BoolVar(&f.permissioned, "permissioned", false, "pipelines with permissions on the listed resources")
	fl.BoolVar(&f.pipelineOver, "pipeline-overprivileged", false, "pipelines reaching more than one container")
	fl.BoolVar(&f.alerted, "alerted", false, "pipelines with SAST alerts")
	fl.BoolVar(&f.disabled, "disabled", false, "disabled pipelines")
	fl.BoolVar(&f.unqueriable, "unqueriable", false, "pipelines whose preview failed")
	fl.StringVar(&f.authScope, "auth-scope", "", "job authorization scope: project|projectCollection")
	fl.StringVar(&f.pipelineType, "pipeline-type", "", "process type: 1 classic, 2 yaml")
	fl.StringArrayVar(&f.recipe, "recipe", nil, "recipe filter field=value, prefix with ! to negate (repeatable)")

	_ = cmd.MarkFlagRequired("org")
}

func (f *scopeFlags) query() (dashboard.Query, error) {
	q := dashboard.Query{
		Selection: session.Selection{
			Organisation: f.org,
			Project:      f.project,
			ResourceType: models.ResourceType(f.resourceType),
			ContainerID:  f.container,
		},
		Resource: filter.ResourceCriteria{
			ProtectedState: f.protectedState,
			Search:         f.search,
			PoolType:       f.poolType,
			Overprivileged: f.overprivileged,
			Overshared:     f.overshared,
		},
		Pipeline: filter.PipelineCriteria{
			Search:             f.pipelineSearch,
			Permissioned:       f.permissioned,
			Overprivileged:     f.pipelineOver,
			Alerted:            f.alerted,
			Disabled:           f.disabled,
			Unqueriable:        f.unqueriable,
			AuthorizationScope: f.authScope,
			PipelineType:       f.pipelineType,
		},
		Highlight: f.highlight,
		Depth:     f.depth,
	}
	if f.crossProject != "" {
		v, err := strconv.ParseBool(f.crossProject)
		if err != nil {
			return q, fmt.Errorf("--cross-project: %w", err)
		}
		q.Resource.CrossProject = &v
	}
	for _, raw := range f.recipe {
		rf, err := filter.ParseRecipeFilter(raw)
		if err != nil {
			return q, fmt.Errorf("--recipe: %w", err)
		}
		q.Pipeline.Recipe = append(q.Pipeline.Recipe, rf)
	}
	return q, nil
}

func (f *scopeFlags) load(ctx context.Context, a *app) (*dashboard.View, error) {
	q, err := f.query()
	if err != nil {
		return nil, err
	}
	return dashboard.New(a.repo, a.registry).Load(ctx, q)
}

var resourcesFlags scopeFlags

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List protected resources of one type",
	Example: `  atlas resources --org myorg --type endpoint --cross-project true
  atlas resources --org myorg --type pool_merged --project proj1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := resourcesFlags.load(ctx, a)
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"ID", "NAME", "TYPE", "PROJECTS", "STATE", "CROSS", "OPEN", "CONTAINERS"}}
		for _, r := range v.Resources {
			b := r.Base()
			flags := v.ResourceFlags[models.QualifiedID(r.Kind(), b.ID)]
			t.rows = append(t.rows, []string{
				b.ID.String(),
				truncate(b.Name, 40),
				string(r.Kind()),
				strings.Join(r.ProjectIDs(), ","),
				b.ProtectedState,
				yesNo(b.IsCrossProject),
				yesNo(b.IsOpenAllPipelines),
				strings.Join(flags.Containers, ","),
			})
		}
		return a.emit(v.Resources, t)
	},
}

var pipelinesFlags scopeFlags

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List pipelines and their permissions on the selected resource type",
	Example: `  atlas pipelines --org myorg --type endpoint --permissioned
  atlas pipelines --org myorg --recipe stepName=AzureCLI --recipe '!stepEnabled=false'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := pipelinesFlags.load(ctx, a)
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"ID", "NAME", "PROJECT", "SCOPE", "PERMS", "BUILDS", "FLAGS", "CONTAINERS"}}
		for _, p := range v.Pipelines {
			project := ""
			if p.Project != nil {
				project = p.Project.ID
			}
			flags := v.PipelineFlags[p.ID]
			t.rows = append(t.rows, []string{
				p.ID.String(),
				truncate(p.Name, 40),
				project,
				p.JobAuthorizationScope,
				strconv.Itoa(len(filter.Permissions(p, v.Selection.ResourceType))),
				strconv.Itoa(len(p.Builds.Builds)),
				pipelineBadges(flags),
				strings.Join(flags.Containers, ","),
			})
		}
		return a.emit(v.Pipelines, t)
	},
}

func pipelineBadges(f filter.PipelineFlags) string {
	var out []string
	if f.Overprivileged {
		out = append(out, "overprivileged")
	}
	if f.Alerted {
		out = append(out, "alerted")
	}
	if f.Disabled {
		out = append(out, "disabled")
	}
	if f.Unqueriable {
		out = append(out, "unqueriable")
	}
	return strings.Join(out, ",")
}

var graphFlags scopeFlags

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the container, resource, pipeline and build graph",
	Long: `Builds the relationship graph for one scope. Containers link to their
resources, resources to the pipelines permitted to use them, and pipelines
to their builds and branch previews. --highlight marks every node within
--depth hops of the given node id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := graphFlags.load(ctx, a)
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"NODE", "KIND", "LABEL", "LINKS", "HL"}}
		links := make(map[string][]string, len(v.Graph.Nodes))
		for _, e := range v.Graph.Edges {
			links[e.Source] = append(links[e.Source], e.Target)
		}
		for _, n := range v.Graph.Nodes {
			hl := ""
			if n.Highlighted {
				hl = "*"
			}
			t.rows = append(t.rows, []string{
				n.ID,
				string(n.Kind),
				truncate(n.Label, 40),
				strings.Join(links[n.ID], ","),
				hl,
			})
		}
		if err := a.emit(v.Graph, t); err != nil {
			return err
		}
		if a.format() == "table" {
			fmt.Println(dimStyle.Render(fmt.Sprintf("%d nodes, %d edges", len(v.Graph.Nodes), len(v.Graph.Edges))))
		}
		return nil
	},
}

func init() {
	resourcesFlags.bind(resourcesCmd)
	pipelinesFlags.bind(pipelinesCmd)
	graphFlags.bind(graphCmd)
	graphCmd.Flags().StringVar(&graphFlags.highlight, "highlight", "", "node id to highlight")
	graphCmd.Flags().IntVar(&graphFlags.depth, "depth", 0, "highlight depth (default from settings)")
}
