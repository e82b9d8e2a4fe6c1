package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/CosmoTheDev/devops-atlas/internal/recipe"
	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// DefaultBotAccounts are seeded into every organisation.
var DefaultBotAccounts = []models.BotAccount{
	{ID: "azure-pipelines", DisplayName: "Azure Pipelines", ExactMatch: true},
	{ID: "project-collection-build-service", DisplayName: "Project Collection Build Service", ExactMatch: false},
	{ID: "github-actions", DisplayName: "github-actions[bot]", ExactMatch: true},
	{ID: "dependabot", DisplayName: "dependabot[bot]", ExactMatch: true},
	{ID: "renovate", DisplayName: "renovate[bot]", ExactMatch: true},
}

const buildServiceMarker = "Build Service"

// Options control an ingestion run.
type Options struct {
	// OrgID overrides the snapshot's organisation id.
	OrgID string
	// Replace deletes any existing data for the organisation first.
	Replace bool
	// Now stamps ScannedAt when the snapshot carries none.
	Now func() time.Time
}

// Summary counts what an ingestion run wrote.
type Summary struct {
	Organisation   string         `json:"organisation"`
	Projects       int            `json:"projects"`
	Resources      map[string]int `json:"resources"`
	Pipelines      int            `json:"pipelines"`
	Previews       int            `json:"previews"`
	Recipes        int            `json:"recipes"`
	Builds         int            `json:"builds"`
	Branches       int            `json:"branches"`
	Commits        int            `json:"commits"`
	CommitterStats int            `json:"committerStats"`
	BotAccounts    int            `json:"botAccounts"`
	Feeds          int            `json:"feeds"`
	Packages       int            `json:"packages"`
	Skipped        int            `json:"skipped"`
}

// Ingester writes snapshots through the repository.
type Ingester struct {
	repo *repository.Repository
}

// New returns an Ingester.
func New(repo *repository.Repository) *Ingester {
	return &Ingester{repo: repo}
}

// Ingest writes snap. Records that cannot be decoded are skipped and
// counted; storage errors abort the run.
func (in *Ingester) Ingest(ctx context.Context, snap *Snapshot, opts Options) (*Summary, error) {
	org := snap.Organisation
	if opts.OrgID != "" {
		org.ID = opts.OrgID
	}
	if org.ID == "" {
		org.ID = org.Name
	}
	if org.ID == "" {
		return nil, errors.New("snapshot has no organisation id or name")
	}
	if org.Name == "" {
		org.Name = org.ID
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	if opts.Replace {
		existing, err := in.repo.GetOrganisation(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if _, err := in.repo.DeleteOrganisation(ctx, org.ID); err != nil {
				return nil, fmt.Errorf("replacing organisation %s: %w", org.ID, err)
			}
		}
	}

	sum := &Summary{Organisation: org.ID, Resources: make(map[string]int)}
	log := slog.With("organisation", org.ID)

	for _, p := range snap.Projects {
		p.Organisation = org.ID
		if err := in.repo.SaveProject(ctx, p.Project); err != nil {
			return nil, err
		}
		sum.Projects++
		if len(p.Stats) > 0 {
			if err := in.repo.SaveProjectStats(ctx, models.ProjectStats{Organisation: org.ID, ID: p.ID, Counts: p.Stats}); err != nil {
				return nil, err
			}
		}
	}

	if err := in.ingestResources(ctx, org.ID, snap.Resources, sum, log); err != nil {
		return nil, err
	}

	buildsByDef := make(map[models.ID][]models.ID)
	for _, b := range snap.Builds {
		if b.ID == "" {
			sum.Skipped++
			continue
		}
		b.Organisation = org.ID
		if err := in.repo.SaveBuild(ctx, b); err != nil {
			return nil, err
		}
		sum.Builds++
		if b.Definition.ID != "" {
			buildsByDef[b.Definition.ID] = append(buildsByDef[b.Definition.ID], b.ID)
		}
	}

	for _, def := range snap.Pipelines {
		if def.ID == "" {
			sum.Skipped++
			continue
		}
		def.Organisation = org.ID
		if len(def.Builds.Builds) == 0 {
			def.Builds.Builds = buildsByDef[def.ID]
		}
		for branch, p := range def.Builds.Preview {
			if p.Recipe == nil && p.YAML != "" {
				r, err := recipe.Parse(p.YAML)
				if err != nil {
					log.Debug("Preview YAML did not parse", "definition", def.ID, "branch", branch, "error", err)
				} else {
					p.Recipe = r
					sum.Recipes++
				}
			} else if p.Recipe != nil {
				sum.Recipes++
			}
			def.Builds.Preview[branch] = p
			sum.Previews++
		}
		if err := in.repo.SavePipeline(ctx, def); err != nil {
			return nil, err
		}
		sum.Pipelines++
	}

	bots, err := in.seedBotAccounts(ctx, org.ID, snap, sum)
	if err != nil {
		return nil, err
	}

	for _, c := range snap.Commits {
		if c.RepositoryID == "" || c.CommitID == "" {
			sum.Skipped++
			continue
		}
		c.Organisation = org.ID
		if err := in.repo.SaveCommit(ctx, c); err != nil {
			return nil, err
		}
		sum.Commits++
	}
	stats := snap.CommitterStats
	if len(stats) == 0 {
		stats = CommitterStats(snap.Commits, bots)
	}
	for _, s := range stats {
		s.Organisation = org.ID
		if err := in.repo.SaveCommitterStat(ctx, s); err != nil {
			return nil, err
		}
		sum.CommitterStats++
	}

	for _, f := range snap.Artifacts.Feeds {
		f.Organisation = org.ID
		if err := in.repo.SaveArtifactFeed(ctx, f); err != nil {
			return nil, err
		}
		sum.Feeds++
	}
	for _, p := range snap.Artifacts.Packages {
		if p.FeedID == "" {
			sum.Skipped++
			continue
		}
		p.Organisation = org.ID
		if err := in.repo.SaveArtifactPackage(ctx, p); err != nil {
			return nil, err
		}
		sum.Packages++
	}

	// The organisation record goes last so a partial run never looks complete.
	org.ResourceCounts = sum.Resources
	if org.ScannedAt == nil {
		t := now().UTC()
		org.ScannedAt = &t
	}
	if err := in.repo.SaveOrganisation(ctx, org); err != nil {
		return nil, err
	}
	log.Info("Snapshot ingested", "projects", sum.Projects, "pipelines", sum.Pipelines,
		"builds", sum.Builds, "commits", sum.Commits, "skipped", sum.Skipped)
	return sum, nil
}

func (in *Ingester) ingestResources(ctx context.Context, org string, buckets map[string][]json.RawMessage, sum *Summary, log *slog.Logger) error {
	types := make([]string, 0, len(buckets))
	for t := range buckets {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, name := range types {
		t := models.ResourceType(name)
		if !t.Known() {
			log.Warn("Skipping unknown resource type in snapshot", "type", name, "count", len(buckets[name]))
			sum.Skipped += len(buckets[name])
			continue
		}
		for _, raw := range buckets[name] {
			res, err := models.DecodeResource(t, raw)
			if err != nil || res.Base().ID == "" {
				log.Warn("Skipping malformed resource", "type", name, "error", err)
				sum.Skipped++
				continue
			}
			b := res.Base()
			b.Organisation = org
			Derive(res, raw)

			if repo, ok := res.(*models.Repository); ok && len(repo.Branches) > 0 {
				if err := in.repo.SaveRepositoryBranches(ctx, org, string(repo.ID), repo.Branches); err != nil {
					return err
				}
				sum.Branches += len(repo.Branches)
				repo.Branches = nil
			}
			if err := in.repo.SaveResource(ctx, res); err != nil {
				return err
			}
			sum.Resources[string(res.Kind())]++
		}
	}
	return nil
}

// Derive fills the flags the filters rely on when the scan left them unset.
func Derive(res models.Resource, raw json.RawMessage) {
	b := res.Base()
	if b.ProtectedState == "" {
		b.ProtectedState = models.ProtectedStateUnprotected
		if len(b.Checks) > 0 {
			b.ProtectedState = models.ProtectedStateProtected
		}
	}
	if !b.IsCrossProject && len(res.ProjectIDs()) > 1 {
		b.IsCrossProject = true
	}
	if !b.IsOpenAllPipelines && len(raw) > 0 {
		var probe struct {
			AllPipelines *struct {
				Authorized bool `json:"authorized"`
			} `json:"allPipelines"`
		}
		if json.Unmarshal(raw, &probe) == nil && probe.AllPipelines != nil {
			b.IsOpenAllPipelines = probe.AllPipelines.Authorized
		}
	}
	if b.PipelinePermissions == nil {
		b.PipelinePermissions = []models.ID{}
	}
}

func (in *Ingester) seedBotAccounts(ctx context.Context, org string, snap *Snapshot, sum *Summary) ([]models.BotAccount, error) {
	seen := make(map[string]bool)
	var bots []models.BotAccount
	add := func(b models.BotAccount) {
		if b.ID == "" {
			b.ID = b.DisplayName
		}
		if b.ID == "" || seen[b.ID] {
			return
		}
		seen[b.ID] = true
		b.Organisation = org
		bots = append(bots, b)
	}
	for _, b := range DefaultBotAccounts {
		add(b)
	}
	for _, b := range snap.BotAccounts {
		add(b)
	}
	for _, b := range snap.Builds {
		for _, id := range []*models.Identity{b.RequestedFor, b.RequestedBy} {
			if id != nil && strings.Contains(id.DisplayName, buildServiceMarker) {
				add(models.BotAccount{ID: id.DisplayName, DisplayName: id.DisplayName, ExactMatch: true})
			}
		}
	}
	for _, b := range bots {
		if err := in.repo.SaveBotAccount(ctx, b); err != nil {
			return nil, err
		}
	}
	sum.BotAccounts = len(bots)
	return bots, nil
}

// CommitterStats aggregates commits per committer email.
func CommitterStats(commits []models.Commit, bots []models.BotAccount) []models.CommitterStat {
	type agg struct {
		stat    models.CommitterStat
		authors map[string]bool
		repos   map[string]bool
	}
	byEmail := make(map[string]*agg)
	var order []string
	for _, c := range commits {
		email := c.Committer.Email
		if email == "" {
			continue
		}
		a, ok := byEmail[email]
		if !ok {
			a = &agg{
				stat:    models.CommitterStat{CommitterEmail: email},
				authors: make(map[string]bool),
				repos:   make(map[string]bool),
			}
			byEmail[email] = a
			order = append(order, email)
		}
		a.stat.CommitCount++
		if author := strings.ToLower(c.Author.Email); author != "" && !a.authors[author] {
			a.authors[author] = true
			a.stat.Authors = append(a.stat.Authors, author)
		}
		if c.RepositoryID != "" && !a.repos[c.RepositoryID] {
			a.repos[c.RepositoryID] = true
			a.stat.Repositories = append(a.stat.Repositories, c.RepositoryID)
		}
		if d := c.Committer.Date; d != nil {
			if a.stat.FirstCommit == nil || d.Before(*a.stat.FirstCommit) {
				a.stat.FirstCommit = d
			}
			if a.stat.LastCommit == nil || d.After(*a.stat.LastCommit) {
				a.stat.LastCommit = d
			}
		}
		if !a.stat.IsBot {
			for _, b := range bots {
				if b.Matches(c.Committer.Name) || b.Matches(c.Committer.Email) {
					a.stat.IsBot = true
					break
				}
			}
		}
	}
	out := make([]models.CommitterStat, 0, len(order))
	for _, email := range order {
		s := byEmail[email].stat
		s.HasMultipleAuthors = len(s.Authors) > 1
		out = append(out, s)
	}
	return out
}
