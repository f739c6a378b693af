package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/auth"
	"github.com/auralis-ai/guardian/pkg/guardian/broadcast"
	"github.com/auralis-ai/guardian/pkg/guardian/lifecycle"
	"github.com/auralis-ai/guardian/pkg/guardian/ratelimit"
)

// StreamHandler serves the SSE live status stream on GET /admin/guardian/stream.
type StreamHandler struct {
	Hub       *broadcast.Hub
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}
	permit, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer permit.Release()

	if err := h.Hub.ServeSSE(w, r); err != nil {
		// Headers may already be gone; only pre-stream failures can report.
		writeError(w, r, err)
	}
}

// WSHandler serves the WebSocket variant on GET /admin/guardian/ws.
type WSHandler struct {
	Hub       *broadcast.Hub
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}
	sh := StreamHandler{Hub: h.Hub, Limiter: h.Limiter, Lifecycle: h.Lifecycle, Logger: h.Logger}
	permit, ok := sh.acquire(w, r)
	if !ok {
		return
	}
	defer permit.Release()

	if err := h.Hub.ServeWS(w, r); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket stream failed", "error", err)
		}
	}
}

// acquire gates new streams on drain state and the per-caller stream cap.
func (h StreamHandler) acquire(w http.ResponseWriter, r *http.Request) (*ratelimit.Permit, bool) {
	if h.Lifecycle.IsDraining() {
		writeError(w, r, &apierror.Error{Type: apierror.ErrOverloaded, Message: "server is draining"})
		return nil, false
	}

	if h.Limiter == nil {
		return &ratelimit.Permit{}, true
	}
	principal := "anonymous"
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		principal = ratelimit.PrincipalKeyFromAPIKey(p.Name)
	}
	dec := h.Limiter.AcquireStream(principal, time.Now())
	if !dec.Allowed {
		writeError(w, r, apierror.NewRateLimit("too many concurrent streams", dec.RetryAfter))
		return nil, false
	}
	return dec.Permit, true
}
