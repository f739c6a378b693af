package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/auth"
	"github.com/auralis-ai/guardian/pkg/guardian/mediaroom"
)

// TokenHandler issues operator room tokens on GET /admin/guardian/token.
type TokenHandler struct {
	Rooms *mediaroom.Client
}

type tokenResponse struct {
	Token    string `json:"token"`
	WSURL    string `json:"wsUrl"`
	Identity string `json:"identity"`
	RoomName string `json:"roomName"`
}

func (h TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	p, ok := auth.PrincipalFrom(r.Context())
	if !ok || !p.CanTakeover() {
		writeError(w, r, apierror.NewPermission("token issuance requires ADMIN or AGENT role"))
		return
	}

	roomName := strings.TrimSpace(r.URL.Query().Get("roomName"))
	if roomName == "" {
		writeError(w, r, apierror.NewInvalidRequestWithParam("roomName is required", "roomName"))
		return
	}

	tok, err := h.Rooms.IssueOperatorToken(roomName, p.Name, p.Role == auth.RoleAdmin)
	if err != nil {
		if errors.Is(err, mediaroom.ErrNotConfigured) {
			writeError(w, r, apierror.NewAPI("media room credentials are not configured"))
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:    tok.Token,
		WSURL:    tok.WSURL,
		Identity: tok.Identity,
		RoomName: roomName,
	})
}
