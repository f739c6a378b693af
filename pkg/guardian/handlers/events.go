package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Query bounds for the event log.
const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	maxEventHours     = 24 * 30
)

// EventsHandler serves the filtered audit trail on GET /admin/guardian/events.
type EventsHandler struct {
	Store store.Store
}

type eventsResponse struct {
	Success   bool                    `json:"success"`
	Events    []*types.Event          `json:"events"`
	Histogram map[types.RiskLevel]int `json:"histogram"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
}

func (h EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	q := store.EventQuery{
		SessionID: strings.TrimSpace(r.URL.Query().Get("sessionId")),
		Limit:     defaultEventLimit,
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("eventType")); raw != "" {
		q.EventType = types.EventType(strings.ToUpper(raw))
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("riskLevel")); raw != "" {
		level, err := types.ParseRiskLevel(raw)
		if err != nil {
			writeError(w, r, apierror.NewInvalidRequestWithParam("riskLevel must be one of LOW|MEDIUM|HIGH|CRITICAL", "riskLevel"))
			return
		}
		q.RiskLevel = level
	}

	var err error
	if q.Hours, err = intParam(r, "hours", 0, maxEventHours); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Limit, err = intParam(r, "limit", defaultEventLimit, maxEventLimit); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Offset, err = intParam(r, "offset", 0, 1<<30); err != nil {
		writeError(w, r, err)
		return
	}

	events, histogram, err := h.Store.QueryEvents(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	if histogram == nil {
		histogram = map[types.RiskLevel]int{}
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Success:   true,
		Events:    events,
		Histogram: histogram,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
}

func intParam(r *http.Request, name string, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apierror.NewInvalidRequestWithParam(name+" must be a non-negative integer", name)
	}
	if n == 0 {
		// An explicit zero means "unset"; echoing it back while the store
		// substitutes its own default would misreport the page size.
		return def, nil
	}
	if n > max {
		n = max
	}
	return n, nil
}
