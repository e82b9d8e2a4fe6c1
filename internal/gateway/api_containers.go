package gateway

import (
	"net/http"

	"github.com/CosmoTheDev/devops-atlas/models"
)

func (gw *Gateway) containerChanged(action, id string) {
	gw.broadcaster.send(SSEEvent{Type: "container." + action, Payload: map[string]string{"id": id}})
}

func (gw *Gateway) handleListContainers(w http.ResponseWriter, r *http.Request) {
	list, err := gw.registry.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (gw *Gateway) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	c, err := gw.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (gw *Gateway) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var c models.LogicContainer
	if err := decodeBody(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := gw.registry.Create(r.Context(), c)
	if err != nil {
		writeErr(w, err)
		return
	}
	gw.containerChanged("created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateContainer shallow-merges the body's top-level fields.
func (gw *Gateway) handleUpdateContainer(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := gw.registry.Update(r.Context(), r.PathValue("id"), fields)
	if err != nil {
		writeErr(w, err)
		return
	}
	gw.containerChanged("updated", updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (gw *Gateway) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := gw.registry.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	gw.containerChanged("deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (gw *Gateway) handleAddContainerResource(w http.ResponseWriter, r *http.Request) {
	t := models.ResourceType(r.PathValue("type"))
	if !t.Known() {
		writeError(w, http.StatusBadRequest, "unknown resource type "+string(t))
		return
	}
	c, err := gw.registry.AddResource(r.Context(), r.PathValue("id"), t, models.ID(r.PathValue("rid")))
	if err != nil {
		writeErr(w, err)
		return
	}
	gw.containerChanged("updated", c.ID)
	writeJSON(w, http.StatusOK, c)
}

func (gw *Gateway) handleRemoveContainerResource(w http.ResponseWriter, r *http.Request) {
	t := models.ResourceType(r.PathValue("type"))
	c, err := gw.registry.RemoveResource(r.Context(), r.PathValue("id"), t, models.ID(r.PathValue("rid")))
	if err != nil {
		writeErr(w, err)
		return
	}
	gw.containerChanged("updated", c.ID)
	writeJSON(w, http.StatusOK, c)
}

func (gw *Gateway) handleContainersForResource(w http.ResponseWriter, r *http.Request) {
	list, err := gw.registry.ContainersForResource(r.Context(), models.ResourceType(r.PathValue("type")), models.ID(r.PathValue("rid")))
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []models.LogicContainer{}
	}
	writeJSON(w, http.StatusOK, list)
}
