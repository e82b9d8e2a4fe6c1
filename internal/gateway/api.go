package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// buildHandler wires all REST and SSE routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	// Root / health / status
	mux.HandleFunc("GET /{$}", gw.handleRoot)
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/status", gw.handleStatus)

	// Organisations and scanned data
	mux.HandleFunc("GET /api/orgs", gw.handleListOrgs)
	mux.HandleFunc("GET /api/orgs/{org}", gw.handleGetOrg)
	mux.HandleFunc("DELETE /api/orgs/{org}", gw.handleDeleteOrg)
	mux.HandleFunc("GET /api/orgs/{org}/projects", gw.handleListProjects)
	mux.HandleFunc("GET /api/orgs/{org}/stats", gw.handleProjectStats)
	mux.HandleFunc("GET /api/orgs/{org}/resources/{type}", gw.handleListResources)
	mux.HandleFunc("GET /api/orgs/{org}/resources/{type}/{id}", gw.handleGetResource)
	mux.HandleFunc("POST /api/orgs/{org}/resources/{type}/summary", gw.handleResourceSummary)
	mux.HandleFunc("GET /api/orgs/{org}/pipelines", gw.handleListPipelines)
	mux.HandleFunc("GET /api/orgs/{org}/pipelines/{id}", gw.handleGetPipeline)
	mux.HandleFunc("GET /api/orgs/{org}/builds", gw.handleListBuilds)
	mux.HandleFunc("GET /api/orgs/{org}/projects/{project}/repositories", gw.handleListRepositories)
	mux.HandleFunc("GET /api/orgs/{org}/repositories/{id}/branches", gw.handleListBranches)
	mux.HandleFunc("GET /api/orgs/{org}/repositories/{id}/commits", gw.handleRepositoryCommits)
	mux.HandleFunc("GET /api/orgs/{org}/commits", gw.handleListCommits)
	mux.HandleFunc("GET /api/orgs/{org}/committers", gw.handleListCommitters)
	mux.HandleFunc("GET /api/orgs/{org}/bots", gw.handleListBots)
	mux.HandleFunc("POST /api/orgs/{org}/bots", gw.handleCreateBot)
	mux.HandleFunc("DELETE /api/orgs/{org}/bots/{id}", gw.handleDeleteBot)
	mux.HandleFunc("GET /api/orgs/{org}/artifacts/feeds", gw.handleListFeeds)
	mux.HandleFunc("GET /api/orgs/{org}/artifacts/feeds/{feed}/packages", gw.handleListPackages)

	// Dashboard and per-user selection
	mux.HandleFunc("POST /api/dashboard", gw.handleDashboard)
	mux.HandleFunc("GET /api/session", gw.handleGetSession)
	mux.HandleFunc("PUT /api/session", gw.handlePutSession)
	mux.HandleFunc("POST /api/session/dashboard", gw.handleSessionDashboard)

	// Logic containers
	mux.HandleFunc("GET /api/containers", gw.handleListContainers)
	mux.HandleFunc("POST /api/containers", gw.handleCreateContainer)
	mux.HandleFunc("GET /api/containers/{id}", gw.handleGetContainer)
	mux.HandleFunc("PATCH /api/containers/{id}", gw.handleUpdateContainer)
	mux.HandleFunc("DELETE /api/containers/{id}", gw.handleDeleteContainer)
	mux.HandleFunc("PUT /api/containers/{id}/resources/{type}/{rid}", gw.handleAddContainerResource)
	mux.HandleFunc("DELETE /api/containers/{id}/resources/{type}/{rid}", gw.handleRemoveContainerResource)
	mux.HandleFunc("GET /api/resources/{type}/{rid}/containers", gw.handleContainersForResource)

	// Settings
	mux.HandleFunc("GET /api/settings", gw.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", gw.handlePutSettings)

	// Ingestion
	mux.HandleFunc("POST /api/ingest", gw.handleIngest)
	mux.HandleFunc("POST /api/ingest/rescan", gw.handleRescan)

	// Server-Sent Events stream
	mux.HandleFunc("GET /events", gw.handleEvents)

	return mux
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "atlas gateway",
		"status":  "running",
		"message": "Gateway is up. REST/SSE API available here.",
		"endpoints": []string{
			"GET /health",
			"GET /api/status",
			"GET /api/orgs",
			"GET /api/orgs/{org}/resources/{type}",
			"GET /api/orgs/{org}/pipelines",
			"POST /api/dashboard",
			"PUT /api/session",
			"GET /api/containers",
			"POST /api/containers",
			"GET /api/settings",
			"POST /api/ingest",
			"GET /events",
		},
	})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.currentStatus(r.Context()))
}

// handleEvents streams SSE to the client. Each data line is a JSON SSEEvent.
// Clients receive a "connected" event immediately, then any frames missed
// since Last-Event-ID, then live updates.
func (gw *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if behind a proxy

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch, missed := gw.broadcaster.subscribe(lastID)
	defer gw.broadcaster.unsubscribe(ch)

	connected, _ := json.Marshal(SSEEvent{Type: "connected", Payload: gw.currentStatus(r.Context())})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
	for _, f := range missed {
		_, _ = w.Write(f)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
