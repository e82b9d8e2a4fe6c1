package gateway

import (
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/devops-atlas/internal/repository"
	"github.com/CosmoTheDev/devops-atlas/models"
)

func (gw *Gateway) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := gw.repo.ListOrganisations(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (gw *Gateway) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	org, err := gw.repo.GetOrganisation(r.Context(), r.PathValue("org"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organisation not found")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (gw *Gateway) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("org")
	removed, err := gw.repo.DeleteOrganisation(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	gw.broadcaster.send(SSEEvent{Type: "org.deleted", Payload: map[string]any{"id": id, "removed": removed}})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "removed": removed})
}

func (gw *Gateway) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := gw.repo.FetchProjects(r.Context(), r.PathValue("org"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (gw *Gateway) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	stats, err := gw.repo.FetchProjectStats(r.Context(), r.PathValue("org"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListResources soft-fails on unknown types with an empty list.
func (gw *Gateway) handleListResources(w http.ResponseWriter, r *http.Request) {
	org, t := r.PathValue("org"), models.ResourceType(r.PathValue("type"))
	var (
		list []models.Resource
		err  error
	)
	if project := r.URL.Query().Get("project"); project != "" {
		list, err = gw.repo.FetchResourcesByTypeAndProject(r.Context(), org, t, project)
	} else {
		list, err = gw.repo.FetchResourcesByType(r.Context(), org, t)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []models.Resource{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (gw *Gateway) handleGetResource(w http.ResponseWriter, r *http.Request) {
	res, err := gw.repo.GetResource(r.Context(), r.PathValue("org"), models.ResourceType(r.PathValue("type")), models.ID(r.PathValue("id")))
	if err != nil {
		writeErr(w, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type summaryRequest struct {
	IDs []models.ID `json:"ids"`
}

type summaryResponse struct {
	Resources []models.ResourceSummary `json:"resources"`
	Missing   []models.ID              `json:"missing"`
}

func (gw *Gateway) handleResourceSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	got, err := gw.repo.GetProtectedResourcesByOrgTypeAndIdsSummary(r.Context(), r.PathValue("org"), models.ResourceType(r.PathValue("type")), req.IDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Resources: got, Missing: diffIDs(req.IDs, got)})
}

func (gw *Gateway) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	previews := queryBool(r, "previews")
	var (
		list []models.PipelineDefinition
		err  error
	)
	if project := r.URL.Query().Get("project"); project != "" {
		list, err = gw.repo.FetchPipelinesByOrgAndProject(r.Context(), org, project, previews)
	} else {
		list, err = gw.repo.FetchPipelines(r.Context(), org, previews)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (gw *Gateway) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	def, err := gw.repo.GetPipeline(r.Context(), r.PathValue("org"), models.ID(r.PathValue("id")))
	if err != nil {
		writeErr(w, err)
		return
	}
	if def == nil {
		writeError(w, http.StatusNotFound, "pipeline not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (gw *Gateway) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	org, q := r.PathValue("org"), r.URL.Query()
	var (
		list []models.Build
		err  error
	)
	switch {
	case q.Get("definition") != "":
		list, err = gw.repo.FetchBuildsByDefinition(r.Context(), org, models.ID(q.Get("definition")))
	case q.Get("project") != "":
		list, err = gw.repo.FetchBuildsByOrgAndProject(r.Context(), org, q.Get("project"))
	default:
		list, err = gw.repo.FetchBuilds(r.Context(), org)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleListRepositories fetches the page and the total in parallel.
func (gw *Gateway) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	org, project := r.PathValue("org"), r.PathValue("project")
	p := parsePaginationParams(r, gw.cfg.Display.PageSize, 200)

	var (
		repos []*models.Repository
		total int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		repos, err = gw.repo.FetchProjectRepositories(ctx, org, project, p.repoPage(), queryBool(r, "branches"))
		return err
	})
	g.Go(func() (err error) {
		total, err = gw.repo.CountProjectRepositories(ctx, org, project)
		return err
	})
	if err := g.Wait(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(repos, total, p))
}

func (gw *Gateway) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := gw.repo.FetchRepositoryBranches(r.Context(), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (gw *Gateway) handleRepositoryCommits(w http.ResponseWriter, r *http.Request) {
	p := parsePaginationParams(r, gw.cfg.Display.PageSize, 500)
	page, err := gw.repo.FetchRepositoryCommits(r.Context(), r.PathValue("org"), r.PathValue("id"), p.repoPage())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(page.Commits, page.Total, p))
}

// handleListCommits serves ?email= (required) with optional ?mismatched=true
// and ?by=author|committer.
func (gw *Gateway) handleListCommits(w http.ResponseWriter, r *http.Request) {
	org, q := r.PathValue("org"), r.URL.Query()
	email := strings.TrimSpace(q.Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	p := parsePaginationParams(r, gw.cfg.Display.PageSize, 500)
	var (
		page repository.CommitPage
		err  error
	)
	if queryBool(r, "mismatched") {
		page, err = gw.repo.FetchMismatchedCommits(r.Context(), org, email, q.Get("by") == "committer", p.repoPage())
	} else {
		page, err = gw.repo.FetchCommits(r.Context(), org, email, p.repoPage())
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(page.Commits, page.Total, p))
}

func (gw *Gateway) handleListCommitters(w http.ResponseWriter, r *http.Request) {
	stats, err := gw.repo.FetchCommitterStats(r.Context(), r.PathValue("org"), repository.CommitterFilter(r.URL.Query().Get("filter")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (gw *Gateway) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := gw.repo.FetchBotAccounts(r.Context(), r.PathValue("org"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bots)
}

func (gw *Gateway) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var bot models.BotAccount
	if err := decodeBody(r, &bot); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(bot.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}
	bot.Organisation = r.PathValue("org")
	if bot.ID == "" {
		bot.ID = bot.DisplayName
	}
	if err := gw.repo.SaveBotAccount(r.Context(), bot); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (gw *Gateway) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	if err := gw.repo.DeleteBotAccount(r.Context(), r.PathValue("org"), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (gw *Gateway) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := gw.repo.FetchArtifactFeeds(r.Context(), r.PathValue("org"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feeds)
}

func (gw *Gateway) handleListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := gw.repo.FetchArtifactPackages(r.Context(), r.PathValue("org"), r.PathValue("feed"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkgs)
}
