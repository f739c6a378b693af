// Package takeover arbitrates exclusive human-vs-AI control of a live call.
package takeover

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/auralis-ai/guardian/pkg/guardian/apierror"
	"github.com/auralis-ai/guardian/pkg/guardian/auth"
	"github.com/auralis-ai/guardian/pkg/guardian/bus"
	"github.com/auralis-ai/guardian/pkg/guardian/mediaroom"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Dispatch targets.
const (
	TargetBridge    = "bridge"
	TargetMediaRoom = "media-room"
)

// Outcome is the control-plane result returned to the dashboard. CommandSent
// is advisory: the state mutation in the store is the source of truth, and
// the UI shows "confirming" rather than an error when delivery failed.
type Outcome struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SessionID   string `json:"sessionId"`
	CommandSent bool   `json:"commandSent"`
	Target      string `json:"target"`
}

// RoomDataSender is the media-room dispatch seam. *mediaroom.Client
// satisfies it.
type RoomDataSender interface {
	SendData(ctx context.Context, roomName string, payload any) error
}

// Orchestrator validates, rate limits, and dispatches takeover/release
// commands through the channel owning the session's room.
type Orchestrator struct {
	store   store.Store
	bus     bus.Bus
	rooms   RoomDataSender
	limiter Limiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewOrchestrator(st store.Store, b bus.Bus, rooms RoomDataSender, limiter Limiter, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store: st, bus: b, rooms: rooms, limiter: limiter, logger: logger,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Takeover hands control of the session's call to the human operator.
func (o *Orchestrator) Takeover(ctx context.Context, sessionID string, p *auth.Principal) (Outcome, error) {
	return o.dispatch(ctx, sessionID, p, true)
}

// Release returns control of the session's call to the AI agent.
func (o *Orchestrator) Release(ctx context.Context, sessionID string, p *auth.Principal) (Outcome, error) {
	return o.dispatch(ctx, sessionID, p, false)
}

func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, p *auth.Principal, takeover bool) (Outcome, error) {
	if !p.CanTakeover() {
		return Outcome{}, apierror.NewPermission("takeover requires ADMIN or AGENT role")
	}

	if o.limiter != nil {
		allowed, retryAfter, err := o.limiter.Allow(ctx, p.Name)
		if err != nil {
			return Outcome{}, err
		}
		if !allowed {
			return Outcome{}, apierror.NewRateLimit("rate limit exceeded", int(math.Ceil(retryAfter.Seconds())))
		}
	}

	cmdType := bus.CommandTakeover
	if !takeover {
		cmdType = bus.CommandRelease
	}

	sess, err := o.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		// Bridge-only sessions never reach the store; the id is the
		// bridge's external conversation identifier. Relay the command and
		// let the bridge decide whether it knows the call.
		sent := o.publishBridgeCommand(ctx, sessionID, sessionID, cmdType, p.Name, "")
		return Outcome{
			Success: true, Message: "bridge command published",
			SessionID: sessionID, CommandSent: sent, Target: TargetBridge,
		}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	if sess.Status != types.StatusActive {
		return Outcome{}, apierror.NewInvalidRequest("session is not live")
	}

	if _, err := o.store.SetHumanActive(ctx, sess.ID, takeover, p.Name, o.now()); err != nil {
		return Outcome{}, err
	}

	evType := types.EventHumanTakeover
	level := types.RiskHigh
	if !takeover {
		evType = types.EventHumanRelease
		level = types.RiskLow
	}
	if err := o.store.AppendEvent(ctx, &types.Event{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		EventType: evType,
		RiskLevel: level,
		Source:    types.SourceAdmin,
		Metadata:  map[string]any{"operator": p.Name, "role": string(p.Role)},
		CreatedAt: o.now(),
	}); err != nil {
		return Outcome{}, err
	}

	var sent bool
	var target string
	switch sess.Backend {
	case types.BackendBridge:
		target = TargetBridge
		sent = o.publishBridgeCommand(ctx, sess.RoomName, sess.ID, cmdType, p.Name, sess.ActiveAgentID)
	default:
		target = TargetMediaRoom
		sent = o.sendRoomCommand(ctx, sess, cmdType, p.Name)
	}

	return Outcome{
		Success: true, Message: cmdType + " applied",
		SessionID: sess.ID, CommandSent: sent, Target: target,
	}, nil
}

func (o *Orchestrator) publishBridgeCommand(ctx context.Context, roomName, sessionID, cmdType, operator, agentName string) bool {
	err := o.bus.PublishCommand(ctx, roomName, bus.Command{
		Type:       cmdType,
		SessionID:  sessionID,
		RoomName:   roomName,
		AgentName:  agentName,
		OperatorID: operator,
		Timestamp:  o.now(),
	})
	if err != nil {
		o.logger.Error("bridge command publish failed", "room", roomName, "type", cmdType, "error", err)
		return false
	}
	return true
}

func (o *Orchestrator) sendRoomCommand(ctx context.Context, sess *types.Session, cmdType, operator string) bool {
	if o.rooms == nil {
		o.logger.Warn("media room client not configured, command not sent", "session_id", sess.ID)
		return false
	}
	err := o.rooms.SendData(ctx, sess.RoomName, map[string]any{
		"type":        cmdType,
		"agent_name":  sess.ActiveAgentID,
		"operator_id": operator,
		"timestamp":   o.now().Format(time.RFC3339),
	})
	if err != nil {
		o.logger.Error("media room command send failed", "room", sess.RoomName, "type", cmdType, "error", err)
		return false
	}
	return true
}

var _ RoomDataSender = (*mediaroom.Client)(nil)
