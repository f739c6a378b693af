package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Memory is an in-memory Store used by tests and local development. It
// mirrors the Postgres implementation's semantics, including the one-active-
// session-per-room invariant and monotonic merges.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	events   []*types.Event
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*types.Session)}
}

func (m *Memory) StartSession(_ context.Context, id, roomName, agentConfigID string, backend types.Backend) (*types.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.RoomName == roomName && isLive(s) {
			return copySession(s), false, nil
		}
	}
	if existing, ok := m.sessions[id]; ok {
		return copySession(existing), false, nil
	}

	s := &types.Session{
		ID:            id,
		RoomName:      roomName,
		AgentConfigID: agentConfigID,
		Status:        types.StatusActive,
		Backend:       backend,
		MaxRiskLevel:  types.RiskLow,
		StartedAt:     time.Now().UTC(),
	}
	m.sessions[id] = s
	return copySession(s), true, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

func (m *Memory) FindActiveByRoom(_ context.Context, roomName string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RoomName == roomName && isLive(s) {
			return copySession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) EndSession(_ context.Context, id string, endedAt time.Time) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = types.StatusCompleted
	s.EndedAt = &endedAt
	return copySession(s), nil
}

func (m *Memory) ApplyRisk(_ context.Context, id string, level types.RiskLevel) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.MaxRiskLevel = types.MaxRisk(s.MaxRiskLevel, level)
	s.MessageCount++
	return copySession(s), nil
}

func (m *Memory) ApplySentiment(_ context.Context, id string, value float64) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.SentimentCount == 0 {
		s.AvgSentiment = value
		s.MinSentiment = value
	} else {
		s.AvgSentiment = (s.AvgSentiment*float64(s.SentimentCount) + value) / float64(s.SentimentCount+1)
		if value < s.MinSentiment {
			s.MinSentiment = value
		}
	}
	s.SentimentCount++
	s.MessageCount++
	return copySession(s), nil
}

func (m *Memory) SetHumanActive(_ context.Context, id string, active bool, operator string, at time.Time) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.HumanActive = active
	if active {
		t := at
		s.TakeoverAt = &t
		s.TakeoverBy = operator
	}
	return copySession(s), nil
}

func (m *Memory) SetActiveAgent(_ context.Context, roomName, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RoomName == roomName && isLive(s) {
			s.ActiveAgentID = agentID
		}
	}
	return nil
}

func (m *Memory) ClearActiveAgent(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ActiveAgentID == agentID {
			s.ActiveAgentID = ""
		}
	}
	return nil
}

func (m *Memory) ListActiveSessions(_ context.Context) ([]*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Session
	for _, s := range m.sessions {
		if isLive(s) {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (types.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats types.Stats
	var sentimentSum float64
	var sentimentSessions int
	for _, s := range m.sessions {
		if !isLive(s) {
			continue
		}
		stats.ActiveSessions++
		if s.SentimentCount > 0 {
			sentimentSum += s.AvgSentiment
			sentimentSessions++
		}
	}
	if sentimentSessions > 0 {
		stats.AvgSentiment = sentimentSum / float64(sentimentSessions)
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, ev := range m.events {
		if ev.CreatedAt.Before(cutoff) {
			continue
		}
		switch ev.EventType {
		case types.EventRiskDetected, types.EventSentimentAlert:
			stats.RiskEvents++
		case types.EventHumanTakeover:
			stats.HumanTakeovers++
		}
	}
	return stats, nil
}

func (m *Memory) AppendEvent(_ context.Context, ev *types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *ev
	m.events = append(m.events, &stored)
	return nil
}

func (m *Memory) QueryEvents(_ context.Context, q EventQuery) ([]*types.Event, map[types.RiskLevel]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cutoff time.Time
	if q.Hours > 0 {
		cutoff = time.Now().Add(-time.Duration(q.Hours) * time.Hour)
	}

	var matched []*types.Event
	histogram := make(map[types.RiskLevel]int)
	for i := len(m.events) - 1; i >= 0; i-- { // newest first
		ev := m.events[i]
		if q.SessionID != "" && ev.SessionID != q.SessionID {
			continue
		}
		if q.EventType != "" && ev.EventType != q.EventType {
			continue
		}
		if q.RiskLevel != "" && ev.RiskLevel != q.RiskLevel {
			continue
		}
		if q.Hours > 0 && ev.CreatedAt.Before(cutoff) {
			continue
		}
		matched = append(matched, ev)
		if ev.RiskLevel != "" {
			histogram[ev.RiskLevel]++
		}
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]*types.Event, 0, end-start)
	for _, ev := range matched[start:end] {
		copied := *ev
		page = append(page, &copied)
	}
	return page, histogram, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

// isLive counts legacy takeover-status rows as active, matching the Postgres
// queries that select status IN ('active', 'takeover').
func isLive(s *types.Session) bool {
	return s.Status == types.StatusActive || s.Status == types.StatusLegacyTakeover
}

func copySession(s *types.Session) *types.Session {
	out := *s
	normalizeLegacyStatus(&out)
	return &out
}
