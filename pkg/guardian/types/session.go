package types

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a monitored call.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"

	// StatusLegacyTakeover is a retired status value that older rows may
	// still carry. It is normalized on read to active + HumanActive and is
	// never written.
	StatusLegacyTakeover SessionStatus = "takeover"
)

// Backend identifies which call-handling subsystem owns a session's room and
// therefore which control channel takeover commands must use. It is stamped
// on the session at creation so dispatch never has to sniff room names.
type Backend string

const (
	BackendMediaRoom Backend = "media_room"
	BackendBridge    Backend = "bridge"
)

// BridgeRoomPrefix marks rooms served by the SIP bridge, which have no
// media-service room object.
const BridgeRoomPrefix = "sip-bridge-"

// BackendForRoom derives the backend from the room naming convention. Only
// session creation (and the orchestrator's no-row fallback) should call this;
// everything else reads the stored Backend field.
func BackendForRoom(roomName string) Backend {
	if strings.HasPrefix(roomName, BridgeRoomPrefix) {
		return BackendBridge
	}
	return BackendMediaRoom
}

// Session is one monitored call.
type Session struct {
	ID            string        `json:"id"`
	RoomName      string        `json:"roomName"`
	AgentConfigID string        `json:"agentConfigId,omitempty"`
	Status        SessionStatus `json:"status"`
	Backend       Backend       `json:"backend"`

	AvgSentiment float64   `json:"avgSentiment"`
	MinSentiment float64   `json:"minSentiment"`
	MaxRiskLevel RiskLevel `json:"maxRiskLevel"`
	MessageCount int       `json:"messageCount"`
	// SentimentCount tracks how many sentiment samples feed AvgSentiment.
	// Internal to the running-average math, not part of the API surface.
	SentimentCount int `json:"-"`

	HumanActive   bool       `json:"humanActive"`
	TakeoverAt    *time.Time `json:"takeoverAt,omitempty"`
	TakeoverBy    string     `json:"takeoverBy,omitempty"`
	ActiveAgentID string     `json:"activeAgentId,omitempty"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Stats is the aggregate snapshot pushed to dashboard observers.
type Stats struct {
	ActiveSessions int     `json:"activeSessions"`
	RiskEvents     int     `json:"riskEvents"`
	HumanTakeovers int     `json:"humanTakeovers"`
	AvgSentiment   float64 `json:"avgSentiment"`
}
