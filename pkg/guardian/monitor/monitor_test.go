package monitor

import (
	"context"
	"testing"

	"github.com/auralis-ai/guardian/pkg/guardian/bus"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

func newTestService() (*Service, *store.Memory, *bus.Memory) {
	st := store.NewMemory()
	b := bus.NewMemory()
	return NewService(st, b, nil), st, b
}

func mustIngest(t *testing.T, svc *Service, ev types.IngestEvent) Ack {
	t.Helper()
	ack, err := svc.Ingest(context.Background(), ev)
	if err != nil {
		t.Fatalf("ingest %T: %v", ev, err)
	}
	return ack
}

func TestSessionStartIdempotent(t *testing.T) {
	svc, st, _ := newTestService()

	mustIngest(t, svc, types.SessionStart{SessionID: "s1", RoomName: "r1"})
	ack := mustIngest(t, svc, types.SessionStart{SessionID: "s1", RoomName: "r1"})
	if ack.SessionID != "s1" {
		t.Fatalf("sessionId=%q", ack.SessionID)
	}

	active, _ := st.ListActiveSessions(context.Background())
	if len(active) != 1 {
		t.Fatalf("active=%d, want 1", len(active))
	}

	// Exactly one SESSION_START in the audit trail.
	events, _, _ := st.QueryEvents(context.Background(), store.EventQuery{
		SessionID: "s1", EventType: types.EventSessionStart,
	})
	if len(events) != 1 {
		t.Fatalf("start events=%d, want 1", len(events))
	}
}

func TestSessionStartStampsBackend(t *testing.T) {
	svc, st, _ := newTestService()

	mustIngest(t, svc, types.SessionStart{SessionID: "s1", RoomName: "sip-bridge-77"})
	mustIngest(t, svc, types.SessionStart{SessionID: "s2", RoomName: "call-room-9"})

	s1, _ := st.GetSession(context.Background(), "s1")
	s2, _ := st.GetSession(context.Background(), "s2")
	if s1.Backend != types.BackendBridge {
		t.Fatalf("s1 backend=%s", s1.Backend)
	}
	if s2.Backend != types.BackendMediaRoom {
		t.Fatalf("s2 backend=%s", s2.Backend)
	}
}

func TestSessionEndFallsBackToRoom(t *testing.T) {
	svc, st, _ := newTestService()
	mustIngest(t, svc, types.SessionStart{SessionID: "s1", RoomName: "r1"})

	// Producer's id drifted; room lookup must still find the session.
	ack := mustIngest(t, svc, types.SessionEnd{SessionID: "other-id", RoomName: "r1"})
	if ack.SessionID != "s1" || ack.Warning != "" {
		t.Fatalf("ack=%+v", ack)
	}

	s, _ := st.GetSession(context.Background(), "s1")
	if s.Status != types.StatusCompleted || s.EndedAt == nil {
		t.Fatalf("session not completed: %+v", s)
	}
}

func TestSessionEndUnknownSucceedsWithWarning(t *testing.T) {
	svc, _, _ := newTestService()

	ack := mustIngest(t, svc, types.SessionEnd{SessionID: "ghost"})
	if ack.Warning == "" {
		t.Fatalf("expected warning for unknown session")
	}
}

func TestRiskDetectedMergesAndLogs(t *testing.T) {
	svc, st, b := newTestService()
	mustIngest(t, svc, types.SessionStart{SessionID: "s1", RoomName: "r1"})

	notices, stop, _ := b.SubscribeNotices(context.Background())
	defer stop()

	mustIngest(t, svc, types.RiskDetected{SessionID: "s1", RiskLevel: "high", Keywords: []string{"refund"}})
	mustIngest(t, svc, types.RiskDetected{SessionID: "s1", RiskLevel: "low"})

	s, _ := st.GetSession(context.Background(), "s1")
	if s.MaxRiskLevel != types.RiskHigh {
		t.Fatalf("maxRiskLevel=%s, want HIGH (never downgraded)", s.MaxRiskLevel)
	}
	if s.MessageCount != 2 {
		t.Fatalf("messageCount=%d", s.MessageCount)
	}

	n := <-notices
	if n.Type != types.KindRiskDetected || n.RiskLevel != types.RiskHigh || len(n.Keywords) != 1 {
		t.Fatalf("notice=%+v", n)
	}
}

func TestSentimentUpdateSynthesizesAlerts(t *testing.T) {
	svc, st, _ := newTestService()
	mustIngest(t, svc, types.SessionStart{SessionID: "s1", RoomName: "r1"})

	mustIngest(t, svc, types.SentimentUpdate{SessionID: "s1", Sentiment: -0.6})
	mustIngest(t, svc, types.SentimentUpdate{SessionID: "s1", Sentiment: -0.9})
	mustIngest(t, svc, types.SentimentUpdate{SessionID: "s1", Sentiment: 0.4})

	events, _, _ := st.QueryEvents(context.Background(), store.EventQuery{
		SessionID: "s1", EventType: types.EventSentimentAlert,
	})
	if len(events) != 2 {
		t.Fatalf("alerts=%d, want 2", len(events))
	}
	// Newest first: 0.4 produced none, -0.9 is HIGH, -0.6 is MEDIUM.
	if events[0].RiskLevel != types.RiskHigh {
		t.Fatalf("alert[0]=%s, want HIGH", events[0].RiskLevel)
	}
	if events[1].RiskLevel != types.RiskMedium {
		t.Fatalf("alert[1]=%s, want MEDIUM", events[1].RiskLevel)
	}

	s, _ := st.GetSession(context.Background(), "s1")
	if s.MinSentiment != -0.9 {
		t.Fatalf("minSentiment=%v", s.MinSentiment)
	}
}

func TestProducerHumanTakeover(t *testing.T) {
	svc, st, _ := newTestService()
	mustIngest(t, svc, types.SessionStart{SessionID: "s1", RoomName: "r1"})

	mustIngest(t, svc, types.HumanTakeover{SessionID: "s1", OperatorID: "op-7"})

	s, _ := st.GetSession(context.Background(), "s1")
	if !s.HumanActive || s.TakeoverBy != "op-7" || s.TakeoverAt == nil {
		t.Fatalf("takeover not applied: %+v", s)
	}

	events, _, _ := st.QueryEvents(context.Background(), store.EventQuery{
		SessionID: "s1", EventType: types.EventHumanTakeover,
	})
	if len(events) != 1 {
		t.Fatalf("takeover events=%d", len(events))
	}
}
