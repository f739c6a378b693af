package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/broadcast"
	"github.com/auralis-ai/guardian/pkg/guardian/bus"
	"github.com/auralis-ai/guardian/pkg/guardian/lifecycle"
	"github.com/auralis-ai/guardian/pkg/guardian/ratelimit"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
)

func newStreamHandler() (StreamHandler, *lifecycle.Lifecycle) {
	hub := broadcast.NewHub(store.NewMemory(), bus.NewMemory(), broadcast.Options{
		PollInterval: time.Hour,
		PingInterval: time.Hour,
		MaxDuration:  time.Hour,
	}, nil)
	lc := &lifecycle.Lifecycle{}
	return StreamHandler{
		Hub:       hub,
		Limiter:   ratelimit.New(ratelimit.Config{MaxConcurrentStreams: 1}),
		Lifecycle: lc,
	}, lc
}

func TestStreamHandler_RejectsWhileDraining(t *testing.T) {
	h, lc := newStreamHandler()
	lc.SetDraining(true)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/guardian/stream", nil))
	if rr.Code != 529 {
		t.Fatalf("status=%d, want 529", rr.Code)
	}
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newStreamHandler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/guardian/stream", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestStreamHandler_CapsConcurrentStreams(t *testing.T) {
	h, _ := newStreamHandler()

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("first stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first stream status=%d", resp.StatusCode)
	}
	// Read a byte so the stream is known to be established.
	buf := make([]byte, 1)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	resp2, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("second stream: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second stream status=%d, want 429", resp2.StatusCode)
	}
}
