package gateway

import (
	"net/http"

	"github.com/CosmoTheDev/devops-atlas/internal/dashboard"
	"github.com/CosmoTheDev/devops-atlas/internal/session"
	"github.com/CosmoTheDev/devops-atlas/models"
)

// handleDashboard loads an explicit selection without touching any session.
func (gw *Gateway) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var q dashboard.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Selection.Organisation == "" {
		writeError(w, http.StatusBadRequest, "selection.organisation is required")
		return
	}
	view, err := gw.dash.Load(r.Context(), q)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type sessionResponse struct {
	Selection session.Selection `json:"selection"`
	Epoch     uint64            `json:"epoch"`
}

func (gw *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sel, epoch := gw.sessionFor(r).Current()
	writeJSON(w, http.StatusOK, sessionResponse{Selection: sel, Epoch: epoch})
}

// handlePutSession replaces the selection. Loads still running for the old
// selection are cancelled and answer 409.
func (gw *Gateway) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var sel session.Selection
	if err := decodeBody(r, &sel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sel.ResourceType != "" && !sel.ResourceType.Known() {
		writeError(w, http.StatusBadRequest, "unknown resource type "+string(sel.ResourceType))
		return
	}
	epoch := gw.sessionFor(r).Select(sel)
	writeJSON(w, http.StatusOK, sessionResponse{Selection: sel, Epoch: epoch})
}

// handleSessionDashboard loads the session's selection with the criteria in
// the body. Any selection in the body is ignored.
func (gw *Gateway) handleSessionDashboard(w http.ResponseWriter, r *http.Request) {
	var q dashboard.Query
	if r.ContentLength != 0 {
		if err := decodeBody(r, &q); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	sess := gw.sessionFor(r)
	if sel, _ := sess.Current(); sel.Organisation == "" {
		writeError(w, http.StatusBadRequest, "no organisation selected; PUT /api/session first")
		return
	}
	view, err := gw.dash.LoadSession(r.Context(), sess, q)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (gw *Gateway) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := gw.repo.GetGlobalSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// handlePutSettings merges the body over the current settings.
func (gw *Gateway) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	s, err := gw.repo.GetGlobalSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := decodeBody(r, &s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.ID = models.GlobalSettingsID
	if s.DefaultResourceType != "" && !s.DefaultResourceType.Known() {
		writeError(w, http.StatusBadRequest, "unknown resource type "+string(s.DefaultResourceType))
		return
	}
	if s.PageSize <= 0 || s.HighlightDepth < 0 {
		writeError(w, http.StatusBadRequest, "pageSize must be positive and highlightDepth non-negative")
		return
	}
	if err := gw.repo.SaveGlobalSettings(r.Context(), s); err != nil {
		writeErr(w, err)
		return
	}
	gw.broadcaster.send(SSEEvent{Type: "settings.updated", Payload: s})
	writeJSON(w, http.StatusOK, s)
}
