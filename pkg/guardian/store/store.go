// Package store persists Guardian sessions and their append-only event log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// ErrNotFound is returned when a session lookup misses.
var ErrNotFound = errors.New("not found")

// EventQuery filters the event log. Zero values mean "no filter".
type EventQuery struct {
	SessionID string
	EventType types.EventType
	RiskLevel types.RiskLevel
	// Hours bounds results to events created within the last N hours.
	Hours  int
	Limit  int
	Offset int
}

// Store is the session/event persistence interface. The Postgres
// implementation is authoritative in production; Memory backs tests.
type Store interface {
	// StartSession creates the session if no active session exists for the
	// room, otherwise returns the existing one. created reports which.
	StartSession(ctx context.Context, id, roomName, agentConfigID string, backend types.Backend) (sess *types.Session, created bool, err error)

	// GetSession retrieves a session by id. Returns ErrNotFound on miss.
	GetSession(ctx context.Context, id string) (*types.Session, error)

	// FindActiveByRoom retrieves the active session for a room, if any.
	// Returns ErrNotFound on miss.
	FindActiveByRoom(ctx context.Context, roomName string) (*types.Session, error)

	// EndSession marks a session completed and stamps endedAt.
	EndSession(ctx context.Context, id string, endedAt time.Time) (*types.Session, error)

	// ApplyRisk merges a risk level into the session (max-merge, never
	// downgraded) and increments the message counter.
	ApplyRisk(ctx context.Context, id string, level types.RiskLevel) (*types.Session, error)

	// ApplySentiment folds one sentiment sample into the running average and
	// minimum and increments the message counter.
	ApplySentiment(ctx context.Context, id string, value float64) (*types.Session, error)

	// SetHumanActive flips human control. On takeover it stamps the operator
	// and time; on release the historical stamps are left for the audit log.
	SetHumanActive(ctx context.Context, id string, active bool, operator string, at time.Time) (*types.Session, error)

	// SetActiveAgent mirrors the claim registry owner onto the active session
	// for the room. Best-effort observability only; the registry is the
	// source of truth.
	SetActiveAgent(ctx context.Context, roomName, agentID string) error

	// ClearActiveAgent clears the mirror for any session owned by agentID.
	ClearActiveAgent(ctx context.Context, agentID string) error

	// ListActiveSessions returns all active sessions, newest first.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// Stats computes the aggregate snapshot for dashboard observers.
	Stats(ctx context.Context) (types.Stats, error)

	// AppendEvent appends to the audit trail. Events are never mutated.
	AppendEvent(ctx context.Context, ev *types.Event) error

	// QueryEvents returns a filtered page of events (newest first) and a
	// risk-level histogram over the filtered set.
	QueryEvents(ctx context.Context, q EventQuery) ([]*types.Event, map[types.RiskLevel]int, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying pool.
	Close()
}

// normalizeLegacyStatus maps retired status values onto the current
// representation: status stays active during human control and a boolean
// carries the takeover bit.
func normalizeLegacyStatus(s *types.Session) {
	if s.Status == types.StatusLegacyTakeover {
		s.Status = types.StatusActive
		s.HumanActive = true
	}
}
