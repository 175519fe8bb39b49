package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Mappings lists stored conversation mappings, newest first.
// GET /admin/mappings?limit=N
func (h *Handlers) Mappings(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	mappings, err := h.store.AllMappings(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"count": len(mappings), "mappings": mappings})
}

// PurgeMappings deletes every stored mapping. Used when the two
// platforms are re-synchronized from scratch.
// DELETE /admin/mappings
func (h *Handlers) PurgeMappings(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.PurgeMappings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Warn().Int64("deleted", deleted).Msg("Purged all conversation mappings")
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "deleted": deleted})
}

// WebhookLogs lists the audit trail, newest first.
// GET /admin/webhook-logs?limit=N
func (h *Handlers) WebhookLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.store.WebhookLogs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"count": len(logs), "logs": logs})
}

// AgentMappingList returns the agent id → Cloud user id table.
// GET /admin/agent-mappings
func (h *Handlers) AgentMappingList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.agents.List())
}

type agentMappingRequest struct {
	AgentID     string `json:"agent_id"`
	CloudUserID string `json:"cloud_user_id"`
}

// AgentMappingUpsert registers or replaces one agent mapping.
// PUT /admin/agent-mappings
func (h *Handlers) AgentMappingUpsert(w http.ResponseWriter, r *http.Request) {
	var req agentMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.agents.Add(req.AgentID, req.CloudUserID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Info().Str("agentID", req.AgentID).Str("cloudUserID", req.CloudUserID).Msg("Agent mapping stored")
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AgentMappingDelete removes one agent mapping.
// DELETE /admin/agent-mappings/{id}
func (h *Handlers) AgentMappingDelete(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	removed, err := h.agents.Remove(agentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "no mapping for agent "+agentID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
