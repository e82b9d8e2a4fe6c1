// Package repository provides typed, org-scoped accessors over the document
// store. Each accessor uses the index that matches its access pattern.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// previewConcurrency bounds parallel preview lookups in FetchPipelines.
const previewConcurrency = 8

// Repository reads and writes scan data.
type Repository struct {
	store *store.Store
}

// New returns a Repository over s.
func New(s *store.Store) *Repository {
	return &Repository{store: s}
}

// Store exposes the underlying store.
func (r *Repository) Store() *store.Store { return r.store }

// Page is a 1-based window. A zero or negative page or size means "everything".
type Page struct {
	Page     int
	PageSize int
}

func (p Page) query(index string, value store.Key) store.PageQuery {
	q := store.PageQuery{Index: index, Value: value}
	if p.Page > 0 && p.PageSize > 0 {
		q.Offset = (p.Page - 1) * p.PageSize
		q.Limit = p.PageSize
	}
	return q
}

// --- organisations ---

// ListOrganisations returns every scanned organisation ordered by name.
func (r *Repository) ListOrganisations(ctx context.Context) ([]models.Organisation, error) {
	orgs, err := store.AllAs[models.Organisation](ctx, r.store, store.Organisations, "", nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

// GetOrganisation returns nil when the organisation has not been scanned.
func (r *Repository) GetOrganisation(ctx context.Context, id string) (*models.Organisation, error) {
	return store.GetAs[models.Organisation](ctx, r.store, store.Organisations, store.K(id))
}

// SaveOrganisation inserts or replaces an organisation record.
func (r *Repository) SaveOrganisation(ctx context.Context, org models.Organisation) error {
	return r.store.PutValue(ctx, store.Organisations, org)
}

// DeleteOrganisation removes the organisation and every record scoped to it.
// It returns the number of records removed per collection.
func (r *Repository) DeleteOrganisation(ctx context.Context, id string) (map[string]int, error) {
	removed := make(map[string]int)
	for _, coll := range r.store.Schema().OrgScoped() {
		n, err := r.store.DeleteAllByIndex(ctx, coll, store.ByOrganisation, store.K(id))
		if err != nil {
			return removed, fmt.Errorf("deleting %s of organisation %s: %w", coll, id, err)
		}
		removed[coll] = n
	}
	if err := r.store.Delete(ctx, store.Organisations, store.K(id)); err != nil {
		return removed, err
	}
	removed[store.Organisations] = 1
	slog.Info("Organisation deleted", "organisation", id, "collections", len(removed))
	return removed, nil
}

// --- projects ---

// FetchProjects returns every project of an organisation ordered by name.
func (r *Repository) FetchProjects(ctx context.Context, org string) ([]models.Project, error) {
	projects, err := store.AllAs[models.Project](ctx, r.store, store.Projects, store.ByOrganisation, store.K(org))
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// GetProject returns nil when the project does not exist.
func (r *Repository) GetProject(ctx context.Context, org, id string) (*models.Project, error) {
	return store.GetAs[models.Project](ctx, r.store, store.Projects, store.K(org, id))
}

// FindProjectByName resolves a project by its name within an organisation.
func (r *Repository) FindProjectByName(ctx context.Context, org, name string) (*models.Project, error) {
	projects, err := store.AllAs[models.Project](ctx, r.store, store.Projects, "byOrgAndKProjectName", store.K(org, name))
	if err != nil || len(projects) == 0 {
		return nil, err
	}
	return &projects[0], nil
}

// SaveProject keeps k_project in step with the project's own identity.
func (r *Repository) SaveProject(ctx context.Context, p models.Project) error {
	p.KProject = models.ProjectRef{ID: p.ID, Name: p.Name}
	return r.store.PutValue(ctx, store.Projects, p)
}

// FetchProjectStats returns the per-project counters of an organisation.
func (r *Repository) FetchProjectStats(ctx context.Context, org string) ([]models.ProjectStats, error) {
	return store.AllAs[models.ProjectStats](ctx, r.store, store.Stats, store.ByOrganisation, store.K(org))
}

// SaveProjectStats stores counters for one project.
func (r *Repository) SaveProjectStats(ctx context.Context, s models.ProjectStats) error {
	return r.store.PutValue(ctx, store.Stats, s)
}

// --- bot accounts ---

// FetchBotAccounts returns the bot identities of an organisation.
func (r *Repository) FetchBotAccounts(ctx context.Context, org string) ([]models.BotAccount, error) {
	return store.AllAs[models.BotAccount](ctx, r.store, store.BotAccounts, store.ByOrganisation, store.K(org))
}

// SaveBotAccount inserts or replaces a bot identity.
func (r *Repository) SaveBotAccount(ctx context.Context, b models.BotAccount) error {
	if b.ID == "" {
		b.ID = b.DisplayName
	}
	return r.store.PutValue(ctx, store.BotAccounts, b)
}

// DeleteBotAccount removes a bot identity.
func (r *Repository) DeleteBotAccount(ctx context.Context, org, id string) error {
	return r.store.Delete(ctx, store.BotAccounts, store.K(org, id))
}

// --- global settings ---

// GetGlobalSettings returns the saved settings, or the defaults when none
// have been saved yet.
func (r *Repository) GetGlobalSettings(ctx context.Context) (models.GlobalSettings, error) {
	s, err := store.GetAs[models.GlobalSettings](ctx, r.store, store.GlobalSettings, store.K(models.GlobalSettingsID))
	if err != nil {
		return models.GlobalSettings{}, err
	}
	if s == nil {
		return models.DefaultGlobalSettings(), nil
	}
	return *s, nil
}

// SaveGlobalSettings stores the singleton settings record.
func (r *Repository) SaveGlobalSettings(ctx context.Context, s models.GlobalSettings) error {
	s.ID = models.GlobalSettingsID
	return r.store.PutValue(ctx, store.GlobalSettings, s)
}

// --- artifacts ---

// FetchArtifactFeeds returns the artifact feeds of an organisation.
func (r *Repository) FetchArtifactFeeds(ctx context.Context, org string) ([]models.ArtifactFeed, error) {
	return store.AllAs[models.ArtifactFeed](ctx, r.store, store.ArtifactsFeeds, store.ByOrganisation, store.K(org))
}

// FetchArtifactPackages returns the packages of one feed, or of every feed
// when feedID is empty.
func (r *Repository) FetchArtifactPackages(ctx context.Context, org, feedID string) ([]models.ArtifactPackage, error) {
	if feedID == "" {
		return store.AllAs[models.ArtifactPackage](ctx, r.store, store.ArtifactsPackages, store.ByOrganisation, store.K(org))
	}
	return store.AllAs[models.ArtifactPackage](ctx, r.store, store.ArtifactsPackages, "byOrgAndFeedId", store.K(org, feedID))
}

// SaveArtifactFeed inserts or replaces a feed.
func (r *Repository) SaveArtifactFeed(ctx context.Context, f models.ArtifactFeed) error {
	return r.store.PutValue(ctx, store.ArtifactsFeeds, f)
}

// SaveArtifactPackage inserts or replaces a package.
func (r *Repository) SaveArtifactPackage(ctx context.Context, p models.ArtifactPackage) error {
	return r.store.PutValue(ctx, store.ArtifactsPackages, p)
}

func recordJSON(rec store.Record) ([]byte, error) {
	return json.Marshal(rec)
}
