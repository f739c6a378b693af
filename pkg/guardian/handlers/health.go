package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/config"
	"github.com/auralis-ai/guardian/pkg/guardian/lifecycle"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger covers the store and the Redis client for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Store     store.Store
	Redis     Pinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			issues = append(issues, "database unreachable")
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx); err != nil {
			issues = append(issues, "redis unreachable")
		}
	}
	if len(h.Config.AdminAPIKeys) == 0 && len(h.Config.AgentAPIKeys) == 0 {
		issues = append(issues, "no dashboard api keys configured")
	}
	if h.Config.IngestSecret == "" {
		issues = append(issues, "ingest secret not configured")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{OK: ok, Draining: draining, Issues: issues})
}
