package repository

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// previewRecord is how a preview is stored: the execution plus the fields
// that key it to its definition and branch.
type previewRecord struct {
	Organisation string    `json:"organisation"`
	DefinitionID models.ID `json:"definitionId"`
	Branch       string    `json:"branch"`
	models.PreviewExecution
}

// FetchPipelines returns every pipeline definition of an organisation. With
// includePreviews, each definition's builds.preview is rebuilt from the
// previews collection.
func (r *Repository) FetchPipelines(ctx context.Context, org string, includePreviews bool) ([]models.PipelineDefinition, error) {
	defs, err := store.AllAs[models.PipelineDefinition](ctx, r.store, store.BuildDefinitions, store.ByOrganisation, store.K(org))
	if err != nil {
		return nil, err
	}
	if includePreviews {
		if err := r.attachPreviews(ctx, org, defs); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// FetchPipelinesByOrgAndProject is FetchPipelines restricted to one project.
func (r *Repository) FetchPipelinesByOrgAndProject(ctx context.Context, org, projectID string, includePreviews bool) ([]models.PipelineDefinition, error) {
	defs, err := store.AllAs[models.PipelineDefinition](ctx, r.store, store.BuildDefinitions, store.ByOrgAndKProject, store.K(org, projectID))
	if err != nil {
		return nil, err
	}
	if includePreviews {
		if err := r.attachPreviews(ctx, org, defs); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// GetPipeline returns one definition with its previews, or nil.
func (r *Repository) GetPipeline(ctx context.Context, org string, id models.ID) (*models.PipelineDefinition, error) {
	def, err := store.GetAs[models.PipelineDefinition](ctx, r.store, store.BuildDefinitions, store.K(org, id))
	if err != nil || def == nil {
		return def, err
	}
	preview, err := r.FetchPreviews(ctx, org, id)
	if err != nil {
		return nil, err
	}
	def.Builds.Preview = preview
	return def, nil
}

func (r *Repository) attachPreviews(ctx context.Context, org string, defs []models.PipelineDefinition) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(previewConcurrency)
	for i := range defs {
		g.Go(func() error {
			preview, err := r.FetchPreviews(gctx, org, defs[i].ID)
			if err != nil {
				return err
			}
			defs[i].Builds.Preview = preview
			return nil
		})
	}
	return g.Wait()
}

// FetchPreviews returns a definition's previews keyed by branch.
func (r *Repository) FetchPreviews(ctx context.Context, org string, definitionID models.ID) (map[string]models.PreviewExecution, error) {
	recs, err := store.AllAs[previewRecord](ctx, r.store, store.DefinitionPreviews, "byOrgAndDefinitionId", store.K(org, definitionID))
	if err != nil {
		return nil, err
	}
	preview := make(map[string]models.PreviewExecution, len(recs))
	for _, rec := range recs {
		preview[rec.Branch] = rec.PreviewExecution
	}
	return preview, nil
}

// SavePipeline stores a definition and moves its previews into their own
// collection, one record per branch. Previews of branches no longer present
// are removed.
func (r *Repository) SavePipeline(ctx context.Context, def models.PipelineDefinition) error {
	preview := def.Builds.Preview
	def.Builds.Preview = nil
	if def.Builds.Builds == nil {
		def.Builds.Builds = []models.ID{}
	}
	if err := r.store.PutValue(ctx, store.BuildDefinitions, def); err != nil {
		return err
	}
	if _, err := r.store.DeleteAllByIndex(ctx, store.DefinitionPreviews, "byOrgAndDefinitionId", store.K(def.Organisation, def.ID)); err != nil {
		return err
	}
	for branch, p := range preview {
		if err := r.SavePreview(ctx, def.Organisation, def.ID, branch, p); err != nil {
			return err
		}
	}
	return nil
}

// SavePreview stores one branch preview independently of its definition.
func (r *Repository) SavePreview(ctx context.Context, org string, definitionID models.ID, branch string, p models.PreviewExecution) error {
	return r.store.PutValue(ctx, store.DefinitionPreviews, previewRecord{
		Organisation:     org,
		DefinitionID:     definitionID,
		Branch:           branch,
		PreviewExecution: p,
	})
}

// --- builds ---

// FetchBuilds returns every historic build of an organisation.
func (r *Repository) FetchBuilds(ctx context.Context, org string) ([]models.Build, error) {
	return store.AllAs[models.Build](ctx, r.store, store.Builds, store.ByOrganisation, store.K(org))
}

// FetchBuildsByOrgAndProject returns the builds of one project.
func (r *Repository) FetchBuildsByOrgAndProject(ctx context.Context, org, projectID string) ([]models.Build, error) {
	return store.AllAs[models.Build](ctx, r.store, store.Builds, store.ByOrgAndKProject, store.K(org, projectID))
}

// FetchBuildsByDefinition returns the builds of one pipeline definition.
func (r *Repository) FetchBuildsByDefinition(ctx context.Context, org string, definitionID models.ID) ([]models.Build, error) {
	return store.AllAs[models.Build](ctx, r.store, store.Builds, "byOrgAndDefinitionId", store.K(org, definitionID))
}

// SaveBuild inserts or replaces a build.
func (r *Repository) SaveBuild(ctx context.Context, b models.Build) error {
	return r.store.PutValue(ctx, store.Builds, b)
}
