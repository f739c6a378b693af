package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/auralis-ai/guardian/pkg/guardian/monitor"
	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// IngestHandler accepts worker events on POST /guardian/events. The shared
// bearer secret is already verified by the auth middleware.
type IngestHandler struct {
	Monitor *monitor.Service
	Logger  *slog.Logger
}

type ingestResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

func (h IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}

	ev, err := types.DecodeIngestEvent(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ack, err := h.Monitor.Ingest(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Success:   true,
		SessionID: ack.SessionID,
		Warning:   ack.Warning,
	})
}
