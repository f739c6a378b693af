// Package handlers implements the Guardian HTTP surface: worker ingest and
// claims, and the dashboard's takeover, token, stream, and event-log routes.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/mw"
)

// maxBodyBytes bounds ingest and claim request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apiErr, status := apierror.FromError(err, reqID)
	if apiErr != nil && apiErr.RetryAfter != nil && *apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(*apiErr.RetryAfter))
	}
	writeJSON(w, status, apierror.Envelope{Error: apiErr})
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, http.StatusMethodNotAllowed, apierror.Envelope{Error: &apierror.Error{
		Type:      apierror.ErrInvalidRequest,
		Message:   "method not allowed",
		RequestID: reqID,
	}})
}
