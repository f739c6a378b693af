package handlers

import (
	"net/http"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, http.StatusNotFound, apierror.Envelope{Error: &apierror.Error{
		Type:      apierror.ErrNotFound,
		Message:   "unknown route",
		RequestID: reqID,
	}})
}
