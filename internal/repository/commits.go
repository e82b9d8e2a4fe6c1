package repository

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/devops-atlas/internal/store"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// CommitPage is one page of commits plus the total number of matches.
type CommitPage struct {
	Commits []models.Commit `json:"commits"`
	Total   int             `json:"total"`
}

// FetchCommits pages through an organisation's commits, optionally for one
// committer email, and counts all matches in parallel.
func (r *Repository) FetchCommits(ctx context.Context, org, committerEmail string, page Page) (CommitPage, error) {
	index, value := store.ByOrganisation, store.K(org)
	if committerEmail != "" {
		index, value = "byOrgAndCommitterEmail", store.K(org, committerEmail)
	}
	return r.commitPage(ctx, index, value, page)
}

// FetchRepositoryCommits pages through one repository's commits.
func (r *Repository) FetchRepositoryCommits(ctx context.Context, org, repoID string, page Page) (CommitPage, error) {
	return r.commitPage(ctx, "byOrgAndRepositoryId", store.K(org, repoID), page)
}

// FetchMismatchedCommits pages through a committer's commits whose author
// (or committer, when byCommitter is set) differs from the pusher.
func (r *Repository) FetchMismatchedCommits(ctx context.Context, org, committerEmail string, byCommitter bool, page Page) (CommitPage, error) {
	index := "byOrgAndCommitterEmailAndAuthorMatch"
	if byCommitter {
		index = "byOrgAndCommitterEmailAndCommitterMatch"
	}
	return r.commitPage(ctx, index, store.K(org, committerEmail, false), page)
}

func (r *Repository) commitPage(ctx context.Context, index string, value store.Key, page Page) (CommitPage, error) {
	var out CommitPage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		commits, err := store.PageAs[models.Commit](gctx, r.store, store.Commits, page.query(index, value))
		out.Commits = commits
		return err
	})
	g.Go(func() error {
		n, err := r.store.Count(gctx, store.Commits, index, value)
		out.Total = n
		return err
	})
	if err := g.Wait(); err != nil {
		return CommitPage{}, err
	}
	return out, nil
}

// SaveCommit inserts or replaces a commit.
func (r *Repository) SaveCommit(ctx context.Context, c models.Commit) error {
	return r.store.PutValue(ctx, store.Commits, c)
}

// CommitterFilter narrows FetchCommitterStats.
type CommitterFilter string

const (
	CommittersAll             CommitterFilter = ""
	CommittersMultipleAuthors CommitterFilter = "multiple-authors"
	CommittersBots            CommitterFilter = "bots"
)

// FetchCommitterStats returns committer statistics ordered by commit count.
func (r *Repository) FetchCommitterStats(ctx context.Context, org string, filter CommitterFilter) ([]models.CommitterStat, error) {
	index, value := store.ByOrganisation, store.K(org)
	switch filter {
	case CommittersMultipleAuthors:
		index, value = "byOrgAndHasMultipleAuthors", store.K(org, true)
	case CommittersBots:
		index, value = "byOrgAndIsBot", store.K(org, true)
	}
	stats, err := store.AllAs[models.CommitterStat](ctx, r.store, store.CommitterStats, index, value)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].CommitCount > stats[j].CommitCount })
	return stats, nil
}

// SaveCommitterStat inserts or replaces one committer's statistics.
func (r *Repository) SaveCommitterStat(ctx context.Context, s models.CommitterStat) error {
	return r.store.PutValue(ctx, store.CommitterStats, s)
}
