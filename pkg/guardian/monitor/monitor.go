// Package monitor folds worker events into Guardian session state and the
// append-only audit trail.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/auralis-ai/guardian/pkg/guardian/bus"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Sentiment thresholds for synthesized alerts. A future per-agent override
// plugs in here.
const (
	sentimentAlertThreshold = -0.5
	sentimentHighThreshold  = -0.8
)

// Ack is the ingest outcome reported back to the producer.
type Ack struct {
	SessionID string
	// Warning notes a tolerated anomaly (e.g. end for an unknown session).
	// The producer's pipeline must not fail over these.
	Warning string
}

// Service applies ingest events. All dependencies are injected; there is no
// hidden process-wide state.
type Service struct {
	store  store.Store
	bus    bus.Bus
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, b bus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, bus: b, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Ingest applies one worker event. Each event is transactional on its own;
// there is no cross-event transaction and no internal retry.
func (s *Service) Ingest(ctx context.Context, ev types.IngestEvent) (Ack, error) {
	switch ev := ev.(type) {
	case types.SessionStart:
		return s.sessionStart(ctx, ev)
	case types.SessionEnd:
		return s.sessionEnd(ctx, ev)
	case types.RiskDetected:
		return s.riskDetected(ctx, ev)
	case types.SentimentUpdate:
		return s.sentimentUpdate(ctx, ev)
	case types.HumanTakeover:
		return s.humanTakeover(ctx, ev)
	default:
		return Ack{}, fmt.Errorf("unhandled ingest event %T", ev)
	}
}

func (s *Service) sessionStart(ctx context.Context, ev types.SessionStart) (Ack, error) {
	sess, created, err := s.store.StartSession(ctx, ev.SessionID, ev.RoomName, ev.AgentConfigID, types.BackendForRoom(ev.RoomName))
	if err != nil {
		return Ack{}, err
	}
	if created {
		if err := s.store.AppendEvent(ctx, s.newEvent(sess.ID, types.EventSessionStart, types.SourceSystem, func(*types.Event) {})); err != nil {
			return Ack{}, err
		}
	}
	s.notify(ctx, bus.Notice{Type: types.KindSessionStart, SessionID: sess.ID, RoomName: sess.RoomName})
	return Ack{SessionID: sess.ID}, nil
}

func (s *Service) sessionEnd(ctx context.Context, ev types.SessionEnd) (Ack, error) {
	sess, err := s.resolve(ctx, ev.SessionID, ev.RoomName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Do not fail the producer's pipeline over a session the store
			// never saw (bridge-only calls, id drift after restarts).
			s.logger.Warn("session_end for unknown session", "session_id", ev.SessionID, "room", ev.RoomName)
			return Ack{SessionID: ev.SessionID, Warning: "session not found"}, nil
		}
		return Ack{}, err
	}

	if _, err := s.store.EndSession(ctx, sess.ID, s.now()); err != nil {
		return Ack{}, err
	}
	if err := s.store.AppendEvent(ctx, s.newEvent(sess.ID, types.EventSessionEnd, types.SourceSystem, func(e *types.Event) {
		avg := sess.AvgSentiment
		e.Sentiment = &avg
		e.Metadata = map[string]any{"messageCount": sess.MessageCount}
	})); err != nil {
		return Ack{}, err
	}
	s.notify(ctx, bus.Notice{Type: types.KindSessionEnd, SessionID: sess.ID, RoomName: sess.RoomName})
	return Ack{SessionID: sess.ID}, nil
}

func (s *Service) riskDetected(ctx context.Context, ev types.RiskDetected) (Ack, error) {
	level, err := types.ParseRiskLevel(ev.RiskLevel)
	if err != nil {
		return Ack{}, &types.DecodeError{Param: "riskLevel", Message: err.Error()}
	}

	sess, err := s.resolve(ctx, ev.SessionID, ev.RoomName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("risk_detected for unknown session", "session_id", ev.SessionID)
			return Ack{SessionID: ev.SessionID, Warning: "session not found"}, nil
		}
		return Ack{}, err
	}

	if _, err := s.store.ApplyRisk(ctx, sess.ID, level); err != nil {
		return Ack{}, err
	}
	if err := s.store.AppendEvent(ctx, s.newEvent(sess.ID, types.EventRiskDetected, sourceOr(ev.Source, types.SourceUser), func(e *types.Event) {
		e.RiskLevel = level
		e.Keywords = ev.Keywords
		e.Category = ev.Category
		e.Text = ev.Text
		e.Metadata = ev.Metadata
	})); err != nil {
		return Ack{}, err
	}
	s.notify(ctx, bus.Notice{
		Type: types.KindRiskDetected, SessionID: sess.ID, RoomName: sess.RoomName,
		RiskLevel: level, Keywords: ev.Keywords, Category: ev.Category, Text: ev.Text,
	})
	return Ack{SessionID: sess.ID}, nil
}

func (s *Service) sentimentUpdate(ctx context.Context, ev types.SentimentUpdate) (Ack, error) {
	sess, err := s.resolve(ctx, ev.SessionID, ev.RoomName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("sentiment_update for unknown session", "session_id", ev.SessionID)
			return Ack{SessionID: ev.SessionID, Warning: "session not found"}, nil
		}
		return Ack{}, err
	}

	if _, err := s.store.ApplySentiment(ctx, sess.ID, ev.Sentiment); err != nil {
		return Ack{}, err
	}

	if ev.Sentiment < sentimentAlertThreshold {
		level := types.RiskMedium
		if ev.Sentiment < sentimentHighThreshold {
			level = types.RiskHigh
		}
		if err := s.store.AppendEvent(ctx, s.newEvent(sess.ID, types.EventSentimentAlert, sourceOr(ev.Source, types.SourceUser), func(e *types.Event) {
			e.RiskLevel = level
			value := ev.Sentiment
			e.Sentiment = &value
			e.Text = ev.Text
		})); err != nil {
			return Ack{}, err
		}
	}

	value := ev.Sentiment
	s.notify(ctx, bus.Notice{
		Type: types.KindSentimentUpdate, SessionID: sess.ID, RoomName: sess.RoomName, Sentiment: &value,
	})
	return Ack{SessionID: sess.ID}, nil
}

func (s *Service) humanTakeover(ctx context.Context, ev types.HumanTakeover) (Ack, error) {
	sess, err := s.resolve(ctx, ev.SessionID, ev.RoomName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("human_takeover for unknown session", "session_id", ev.SessionID)
			return Ack{SessionID: ev.SessionID, Warning: "session not found"}, nil
		}
		return Ack{}, err
	}

	operator := ev.OperatorID
	if operator == "" {
		operator = "producer"
	}
	if _, err := s.store.SetHumanActive(ctx, sess.ID, true, operator, s.now()); err != nil {
		return Ack{}, err
	}
	if err := s.store.AppendEvent(ctx, s.newEvent(sess.ID, types.EventHumanTakeover, types.SourceSystem, func(e *types.Event) {
		e.RiskLevel = types.RiskHigh
		e.Metadata = map[string]any{"operator": operator, "initiator": "producer"}
	})); err != nil {
		return Ack{}, err
	}
	return Ack{SessionID: sess.ID}, nil
}

// resolve looks a session up by id, falling back to the room's active session
// when the id misses (handles id drift between producer and store).
func (s *Service) resolve(ctx context.Context, sessionID, roomName string) (*types.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) || roomName == "" {
		return nil, err
	}
	return s.store.FindActiveByRoom(ctx, roomName)
}

func (s *Service) newEvent(sessionID string, evType types.EventType, source types.Source, fill func(*types.Event)) *types.Event {
	ev := &types.Event{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		EventType: evType,
		Source:    source,
		CreatedAt: s.now(),
	}
	fill(ev)
	return ev
}

// notify is best-effort: a dead bus must not fail ingestion, since the store
// write already succeeded and the poll loop will reconcile observers.
func (s *Service) notify(ctx context.Context, n bus.Notice) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishNotice(ctx, n); err != nil {
		s.logger.Warn("publish notice failed", "type", n.Type, "session_id", n.SessionID, "error", err)
	}
}

func sourceOr(raw string, def types.Source) types.Source {
	switch src := types.Source(raw); src {
	case types.SourceSystem, types.SourceUser, types.SourceAdmin:
		return src
	default:
		return def
	}
}
