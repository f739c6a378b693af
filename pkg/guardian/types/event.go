package types

import "time"

// EventType classifies an audit-trail event.
type EventType string

const (
	EventSessionStart   EventType = "SESSION_START"
	EventSessionEnd     EventType = "SESSION_END"
	EventRiskDetected   EventType = "RISK_DETECTED"
	EventSentimentAlert EventType = "SENTIMENT_ALERT"
	EventHumanTakeover  EventType = "HUMAN_TAKEOVER"
	EventHumanRelease   EventType = "HUMAN_RELEASE"
)

// Source identifies who produced an event.
type Source string

const (
	SourceSystem Source = "system"
	SourceUser   Source = "user"
	SourceAdmin  Source = "admin"
)

// Event is an immutable append-only log entry tied to a session. Events are
// never mutated or deleted; they are the authoritative audit trail.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	EventType EventType      `json:"eventType"`
	RiskLevel RiskLevel      `json:"riskLevel,omitempty"`
	Sentiment *float64       `json:"sentiment,omitempty"`
	Keywords  []string       `json:"keywords,omitempty"`
	Category  string         `json:"category,omitempty"`
	Text      string         `json:"text,omitempty"`
	Source    Source         `json:"source"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
