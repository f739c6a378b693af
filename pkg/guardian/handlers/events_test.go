package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

func seedEvents(t *testing.T, st store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := &types.Event{
			ID:        "ev_" + string(rune('a'+i)),
			SessionID: "sess-1",
			EventType: types.EventRiskDetected,
			RiskLevel: types.RiskHigh,
			CreatedAt: time.Now().UTC(),
		}
		if err := st.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("seed event %d: %v", i, err)
		}
	}
}

func TestEventsExplicitZeroLimitUsesDefault(t *testing.T) {
	st := store.NewMemory()
	seedEvents(t, st, 3)
	h := EventsHandler{Store: st}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/guardian/events?limit=0&offset=0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp eventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The echoed limit must be the one actually applied, not a literal zero
	// the store would silently replace.
	if resp.Limit != defaultEventLimit {
		t.Fatalf("limit=%d, want default %d", resp.Limit, defaultEventLimit)
	}
	if len(resp.Events) != 3 {
		t.Fatalf("events=%d, want 3", len(resp.Events))
	}
}

func TestEventsLimitClampedToMax(t *testing.T) {
	h := EventsHandler{Store: store.NewMemory()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/guardian/events?limit=10000", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp eventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Limit != maxEventLimit {
		t.Fatalf("limit=%d, want clamp to %d", resp.Limit, maxEventLimit)
	}
}

func TestEventsNegativeLimitRejected(t *testing.T) {
	h := EventsHandler{Store: store.NewMemory()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/guardian/events?limit=-1", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}
