package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// ErrUnknownResourceType is returned by NormalizeResourceType. Fetches never
// return it; they log a warning and return no data instead.
var ErrUnknownResourceType = errors.New("unknown resource type")

// NormalizeResourceType resolves aliases to the stored bucket name.
func NormalizeResourceType(t models.ResourceType) (models.ResourceType, error) {
	if !t.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownResourceType, t)
	}
	return t.Storage(), nil
}

func warnUnknownType(org string, t models.ResourceType) {
	slog.Warn("Unknown resource type, returning no resources", "organisation", org, "type", t)
}

func decodeResources(t models.ResourceType, recs []store.Record) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(recs))
	for _, rec := range recs {
		raw, err := recordJSON(rec)
		if err != nil {
			return nil, err
		}
		res, err := models.DecodeResource(t, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// FetchResourcesByType returns every resource of type t in the organisation.
// The pool_merged alias reads the pools bucket. Unknown types yield an empty
// result and a logged warning.
func (r *Repository) FetchResourcesByType(ctx context.Context, org string, t models.ResourceType) ([]models.Resource, error) {
	st, err := NormalizeResourceType(t)
	if err != nil {
		warnUnknownType(org, t)
		return []models.Resource{}, nil
	}
	recs, err := r.store.GetAllByIndex(ctx, store.ProtectedResources, "byOrgAndType", store.K(org, string(st)))
	if err != nil {
		return nil, err
	}
	return decodeResources(st, recs)
}

// sharedTypes can span projects through k_projects_refs (or queues, for
// pools), which the single-project index does not cover.
var sharedTypes = map[models.ResourceType]bool{
	models.ResourcePool:          true,
	models.ResourceEndpoint:      true,
	models.ResourceVariableGroup: true,
}

// FetchResourcesByTypeAndProject returns the resources of type t bound to a
// project. Pools are org-level and match through their queues.
func (r *Repository) FetchResourcesByTypeAndProject(ctx context.Context, org string, t models.ResourceType, projectID string) ([]models.Resource, error) {
	st, err := NormalizeResourceType(t)
	if err != nil {
		warnUnknownType(org, t)
		return []models.Resource{}, nil
	}
	if sharedTypes[st] {
		all, err := r.FetchResourcesByType(ctx, org, st)
		if err != nil {
			return nil, err
		}
		out := make([]models.Resource, 0, len(all))
		for _, res := range all {
			for _, p := range res.ProjectIDs() {
				if p == projectID {
					out = append(out, res)
					break
				}
			}
		}
		return out, nil
	}
	recs, err := r.store.GetAllByIndex(ctx, store.ProtectedResources, "byResourceTypeAndOrgAndProject", store.K(string(st), org, projectID))
	if err != nil {
		return nil, err
	}
	return decodeResources(st, recs)
}

// GetResource returns nil when the resource does not exist.
func (r *Repository) GetResource(ctx context.Context, org string, t models.ResourceType, id models.ID) (models.Resource, error) {
	st, err := NormalizeResourceType(t)
	if err != nil {
		warnUnknownType(org, t)
		return nil, nil
	}
	rec, err := r.store.Get(ctx, store.ProtectedResources, store.K(org, string(st), id))
	if err != nil || rec == nil {
		return nil, err
	}
	res, err := decodeResources(st, []store.Record{rec})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// SaveResource stores res under its own type bucket.
func (r *Repository) SaveResource(ctx context.Context, res models.Resource) error {
	b := res.Base()
	b.ResourceType = res.Kind()
	if b.ID == "" {
		return fmt.Errorf("%s resource without id", res.Kind())
	}
	return r.store.PutValue(ctx, store.ProtectedResources, res)
}

// GetProtectedResourcesByOrgTypeAndIdsSummary resolves resource IDs to
// display summaries. IDs that do not resolve are omitted; callers diff the
// result against their input to fall back to raw IDs.
func (r *Repository) GetProtectedResourcesByOrgTypeAndIdsSummary(ctx context.Context, org string, t models.ResourceType, ids []models.ID) ([]models.ResourceSummary, error) {
	st, err := NormalizeResourceType(t)
	if err != nil {
		warnUnknownType(org, t)
		return []models.ResourceSummary{}, nil
	}
	out := make([]models.ResourceSummary, 0, len(ids))
	seen := make(map[models.ID]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		res, err := r.GetResource(ctx, org, st, id)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		b := res.Base()
		out = append(out, models.ResourceSummary{ID: b.ID, Name: b.Name, WebURL: b.WebURL})
	}
	return out, nil
}

// FetchProjectRepositories returns the repositories of a project, paged when
// page is set. With includeBranches each repository carries its branches.
func (r *Repository) FetchProjectRepositories(ctx context.Context, org, projectID string, page Page, includeBranches bool) ([]*models.Repository, error) {
	q := page.query("byResourceTypeAndOrgAndProject", store.K(string(models.ResourceRepository), org, projectID))
	recs, err := r.store.GetPage(ctx, store.ProtectedResources, q)
	if err != nil {
		return nil, err
	}
	res, err := decodeResources(models.ResourceRepository, recs)
	if err != nil {
		return nil, err
	}
	repos := make([]*models.Repository, 0, len(res))
	for _, rr := range res {
		repo := rr.(*models.Repository)
		if includeBranches {
			branches, err := r.FetchRepositoryBranches(ctx, org, string(repo.ID))
			if err != nil {
				return nil, err
			}
			repo.Branches = branches
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// CountProjectRepositories counts a project's repositories.
func (r *Repository) CountProjectRepositories(ctx context.Context, org, projectID string) (int, error) {
	return r.store.Count(ctx, store.ProtectedResources, "byResourceTypeAndOrgAndProject",
		store.K(string(models.ResourceRepository), org, projectID))
}

// branchRecord groups the branches whose head is the same commit.
type branchRecord struct {
	Organisation string          `json:"organisation"`
	RepoID       string          `json:"repoId"`
	ObjectID     string          `json:"objectId"`
	Branches     []models.Branch `json:"branches"`
}

// FetchRepositoryBranches flattens a repository's branch records into one
// list without any storage fields.
func (r *Repository) FetchRepositoryBranches(ctx context.Context, org, repoID string) ([]models.Branch, error) {
	recs, err := store.AllAs[branchRecord](ctx, r.store, store.RepoBranches, "byOrgAndRepoId", store.K(org, repoID))
	if err != nil {
		return nil, err
	}
	branches := []models.Branch{}
	for _, rec := range recs {
		branches = append(branches, rec.Branches...)
	}
	return branches, nil
}

// SaveRepositoryBranches replaces a repository's branches, grouping them
// into one record per head commit.
func (r *Repository) SaveRepositoryBranches(ctx context.Context, org, repoID string, branches []models.Branch) error {
	if _, err := r.store.DeleteAllByIndex(ctx, store.RepoBranches, "byOrgAndRepoId", store.K(org, repoID)); err != nil {
		return err
	}
	groups := make(map[string]*branchRecord)
	var order []string
	for _, b := range branches {
		oid := b.ObjectID
		if oid == "" {
			oid = "unknown"
		}
		g, ok := groups[oid]
		if !ok {
			g = &branchRecord{Organisation: org, RepoID: repoID, ObjectID: oid}
			groups[oid] = g
			order = append(order, oid)
		}
		g.Branches = append(g.Branches, b)
	}
	for _, oid := range order {
		if err := r.store.PutValue(ctx, store.RepoBranches, groups[oid]); err != nil {
			return err
		}
	}
	return nil
}
