package mw

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/auth"
	"github.com/auralis-ai/guardian/pkg/guardian/config"
)

type ctxKeyRequestID struct{}

func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyRequestID{}).(string)
	return id, ok && id != ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = "req_" + randHex(10)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// Auth resolves the caller per surface. Dashboard routes (/admin/) need an
// operator API key and get a Principal in context; service routes
// (/guardian/events, /worker/) need the shared ingest secret. Health probes
// stay open.
func Auth(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := RequestIDFrom(r.Context())
		path := r.URL.Path

		switch {
		case path == "/healthz" || path == "/readyz" || r.Method == http.MethodOptions:
			next.ServeHTTP(w, r)

		case strings.HasPrefix(path, "/admin/"):
			token, ok := auth.ParseBearer(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, &apierror.Error{
					Type:      apierror.ErrAuthentication,
					Message:   "missing bearer token",
					Param:     "Authorization",
					RequestID: reqID,
				})
				return
			}
			p, ok := principalForKey(cfg, token)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, &apierror.Error{
					Type:      apierror.ErrAuthentication,
					Message:   "invalid api key",
					RequestID: reqID,
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))

		case path == "/guardian/events" || strings.HasPrefix(path, "/worker/"):
			token, ok := auth.ParseBearer(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.IngestSecret)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, &apierror.Error{
					Type:      apierror.ErrAuthentication,
					Message:   "invalid ingest secret",
					RequestID: reqID,
				})
				return
			}
			next.ServeHTTP(w, r)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

func principalForKey(cfg config.Config, key string) (*auth.Principal, bool) {
	if name, ok := cfg.AdminAPIKeys[key]; ok {
		return &auth.Principal{Name: name, Role: auth.RoleAdmin}, true
	}
	if name, ok := cfg.AgentAPIKeys[key]; ok {
		return &auth.Principal{Name: name, Role: auth.RoleAgent}, true
	}
	return nil, false
}

func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if logger != nil {
					logger.Error("panic", "panic", v)
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush preserves streaming through the access log wrapper; the live status
// stream relies on it.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		if logger == nil {
			return
		}
		reqID, _ := RequestIDFrom(r.Context())
		logger.Info("request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand should not fail in practice; fall back to time-based entropy.
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b)
}

func writeJSONError(w http.ResponseWriter, status int, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: err})
}
