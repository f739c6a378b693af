package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/claims"
)

// ClaimHandler serves the worker claim registry on /worker/claim-room.
// POST claims a room for an agent process; DELETE releases it.
type ClaimHandler struct {
	Registry *claims.Registry
}

type claimRequest struct {
	RoomName string `json:"roomName"`
	AgentID  string `json:"agentId"`
}

type claimResponse struct {
	Success         bool   `json:"success"`
	Claimed         bool   `json:"claimed,omitempty"`
	ExistingAgentID string `json:"existingAgentId,omitempty"`
}

func (h ClaimHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, apierror.NewInvalidRequest("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.RoomName) == "" {
		writeError(w, r, apierror.NewInvalidRequestWithParam("roomName is required", "roomName"))
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeError(w, r, apierror.NewInvalidRequestWithParam("agentId is required", "agentId"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		res, err := h.Registry.Claim(r.Context(), req.RoomName, req.AgentID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claimResponse{
			Success:         true,
			Claimed:         res.Claimed,
			ExistingAgentID: res.ExistingAgentID,
		})
	case http.MethodDelete:
		if err := h.Registry.Release(r.Context(), req.RoomName, req.AgentID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claimResponse{Success: true})
	default:
		writeMethodNotAllowed(w, r)
	}
}
