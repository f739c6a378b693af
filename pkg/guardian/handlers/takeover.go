package handlers

import (
	"net/http"
	"strings"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/auth"
	"github.com/auralis-ai/guardian/pkg/guardian/takeover"
)

// TakeoverHandler drives human takeover on
// POST/DELETE /admin/guardian/takeover/{sessionId}.
type TakeoverHandler struct {
	Orchestrator *takeover.Orchestrator
}

func (h TakeoverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("sessionId"))
	if sessionID == "" {
		writeError(w, r, apierror.NewInvalidRequestWithParam("sessionId is required", "sessionId"))
		return
	}

	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, apierror.NewAuthentication("missing principal"))
		return
	}

	var out takeover.Outcome
	var err error
	switch r.Method {
	case http.MethodPost:
		out, err = h.Orchestrator.Takeover(r.Context(), sessionID, p)
	case http.MethodDelete:
		out, err = h.Orchestrator.Release(r.Context(), sessionID, p)
	default:
		writeMethodNotAllowed(w, r)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
