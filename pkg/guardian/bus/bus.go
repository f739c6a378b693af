// Package bus carries asynchronous control commands to whichever process is
// bridging a call's audio, and fans Guardian events out to stream observers.
// Delivery order follows publish order per channel.
package bus

import (
	"context"
	"time"

	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Command kinds.
const (
	CommandTakeover = "takeover"
	CommandRelease  = "release"
)

// Command is a control message for the process bridging a call.
type Command struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	RoomName   string    `json:"room_name,omitempty"`
	AgentName  string    `json:"agent_name,omitempty"`
	OperatorID string    `json:"operator_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notice is a Guardian event forwarded to live status observers so the
// dashboard reacts without waiting for the next poll.
type Notice struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	RoomName  string          `json:"roomName,omitempty"`
	RiskLevel types.RiskLevel `json:"riskLevel,omitempty"`
	Sentiment *float64        `json:"sentiment,omitempty"`
	Keywords  []string        `json:"keywords,omitempty"`
	Category  string          `json:"category,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// Bus is the publish/subscribe surface. The Redis implementation is
// authoritative in production; Memory backs tests.
type Bus interface {
	// PublishCommand sends a control command on the room's command channel.
	PublishCommand(ctx context.Context, roomName string, cmd Command) error

	// PublishNotice fans a Guardian event out to all stream observers.
	PublishNotice(ctx context.Context, n Notice) error

	// SubscribeNotices returns a channel of notices in publish order. The
	// returned stop function releases the subscription; callers must invoke
	// it on teardown.
	SubscribeNotices(ctx context.Context) (<-chan Notice, func(), error)
}

const (
	commandChannelPrefix = "guardian:commands:"
	noticeChannel        = "guardian:notices"
)
