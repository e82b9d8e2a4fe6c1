package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/models"
)

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

var (
	buildsOrg        string
	buildsProject    string
	buildsDefinition string
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "List historic builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var builds []models.Build
		switch {
		case buildsDefinition != "":
			builds, err = a.repo.FetchBuildsByDefinition(ctx, buildsOrg, models.ID(buildsDefinition))
		case buildsProject != "":
			builds, err = a.repo.FetchBuildsByOrgAndProject(ctx, buildsOrg, buildsProject)
		default:
			builds, err = a.repo.FetchBuilds(ctx, buildsOrg)
		}
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"ID", "NUMBER", "PIPELINE", "BRANCH", "RESULT", "FINISHED", "ALERTS"}}
		for _, b := range builds {
			t.rows = append(t.rows, []string{
				b.ID.String(),
				b.BuildNumber,
				truncate(b.Definition.Name, 30),
				b.SourceBranch,
				b.Result,
				formatTime(b.FinishTime),
				yesNo(models.HasAlerts(b.CICDSast)),
			})
		}
		return a.emit(builds, t)
	},
}

var (
	reposOrg      string
	reposProject  string
	reposBranches bool
	reposPage     int
	reposPageSize int
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List the repositories of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		page := repository.Page{Page: reposPage, PageSize: reposPageSize}
		if page.Page > 0 && page.PageSize <= 0 {
			page.PageSize = a.cfg.Display.PageSize
		}
		repos, err := a.repo.FetchProjectRepositories(ctx, reposOrg, reposProject, page, reposBranches)
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"ID", "NAME", "DEFAULT BRANCH", "BRANCHES", "DISABLED"}}
		for _, r := range repos {
			t.rows = append(t.rows, []string{
				r.ID.String(),
				truncate(r.Name, 40),
				r.DefaultBranch,
				strconv.Itoa(len(r.Branches)),
				yesNo(r.IsDisabled),
			})
		}
		return a.emit(repos, t)
	},
}

var (
	commitsOrg         string
	commitsRepo        string
	commitsCommitter   string
	commitsMismatched  bool
	commitsByCommitter bool
	commitsPage        int
	commitsPageSize    int
)

var commitsCmd = &cobra.Command{
	Use:   "commits",
	Short: "Page through commits, optionally only those whose author differs from the pusher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		page := repository.Page{Page: commitsPage, PageSize: commitsPageSize}
		if page.PageSize <= 0 {
			page.PageSize = a.cfg.Display.PageSize
		}
		var res repository.CommitPage
		switch {
		case commitsRepo != "":
			res, err = a.repo.FetchRepositoryCommits(ctx, commitsOrg, commitsRepo, page)
		case commitsMismatched:
			res, err = a.repo.FetchMismatchedCommits(ctx, commitsOrg, commitsCommitter, commitsByCommitter, page)
		default:
			res, err = a.repo.FetchCommits(ctx, commitsOrg, commitsCommitter, page)
		}
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"COMMIT", "REPOSITORY", "AUTHOR", "COMMITTER", "PUSHER", "DATE"}}
		for _, c := range res.Commits {
			pusher := ""
			if c.Pusher != nil {
				pusher = c.Pusher.DisplayName
			}
			t.rows = append(t.rows, []string{
				truncate(c.CommitID, 12),
				c.RepositoryID,
				c.Author.Email,
				c.Committer.Email,
				pusher,
				formatTime(c.Committer.Date),
			})
		}
		if err := a.emit(res, t); err != nil {
			return err
		}
		if a.format() == "table" {
			fmt.Println(dimStyle.Render(fmt.Sprintf("page %d, %d of %d commits", page.Page, len(res.Commits), res.Total)))
		}
		return nil
	},
}

var (
	committersOrg    string
	committersFilter string
)

var committersCmd = &cobra.Command{
	Use:   "committers",
	Short: "Show per-committer statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.repo.FetchCommitterStats(ctx, committersOrg, repository.CommitterFilter(committersFilter))
		if err != nil {
			return err
		}
		t := tabular{headers: []string{"COMMITTER", "COMMITS", "AUTHORS", "REPOS", "MULTI", "BOT", "LAST"}}
		for _, s := range stats {
			t.rows = append(t.rows, []string{
				s.CommitterEmail,
				strconv.Itoa(s.CommitCount),
				strconv.Itoa(len(s.Authors)),
				strconv.Itoa(len(s.Repositories)),
				yesNo(s.HasMultipleAuthors),
				yesNo(s.IsBot),
				formatTime(s.LastCommit),
			})
		}
		return a.emit(stats, t)
	},
}

func init() {
	buildsCmd.Flags().StringVar(&buildsOrg, "org", "", "organisation id (required)")
	buildsCmd.Flags().StringVar(&buildsProject, "project", "", "restrict to one project id")
	buildsCmd.Flags().StringVar(&buildsDefinition, "pipeline", "", "restrict to one pipeline definition id")
	_ = buildsCmd.MarkFlagRequired("org")

	reposCmd.Flags().StringVar(&reposOrg, "org", "", "organisation id (required)")
	reposCmd.Flags().StringVar(&reposProject, "project", "", "project id (required)")
	reposCmd.Flags().BoolVar(&reposBranches, "branches", false, "include branches")
	reposCmd.Flags().IntVar(&reposPage, "page", 0, "1-based page (0 lists everything)")
	reposCmd.Flags().IntVar(&reposPageSize, "page-size", 0, "page size (default from display.page_size)")
	_ = reposCmd.MarkFlagRequired("org")
	_ = reposCmd.MarkFlagRequired("project")

	commitsCmd.Flags().StringVar(&commitsOrg, "org", "", "organisation id (required)")
	commitsCmd.Flags().StringVar(&commitsRepo, "repo", "", "restrict to one repository id")
	commitsCmd.Flags().StringVar(&commitsCommitter, "committer", "", "restrict to one committer email")
	commitsCmd.Flags().BoolVar(&commitsMismatched, "mismatched", false, "only commits whose author differs from the pusher")
	commitsCmd.Flags().BoolVar(&commitsByCommitter, "by-committer", false, "with --mismatched, compare the committer instead of the author")
	commitsCmd.Flags().IntVar(&commitsPage, "page", 1, "1-based page")
	commitsCmd.Flags().IntVar(&commitsPageSize, "page-size", 0, "page size (default from display.page_size)")
	_ = commitsCmd.MarkFlagRequired("org")

	committersCmd.Flags().StringVar(&committersOrg, "org", "", "organisation id (required)")
	committersCmd.Flags().StringVar(&committersFilter, "filter", "", "multiple-authors|bots")
	_ = committersCmd.MarkFlagRequired("org")
}
