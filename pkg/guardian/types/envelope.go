package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError is returned when strict ingest decoding fails. It includes an
// optional Param field suitable for API error reporting.
type DecodeError struct {
	Param   string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Param != "" {
		return fmt.Sprintf("%s: %s", e.Param, e.Message)
	}
	return e.Message
}

func decodeErr(param, msg string) error {
	return &DecodeError{Param: param, Message: msg}
}

// IngestEvent is one variant of the typed envelope posted by the upstream
// voice worker. Each variant carries its own validated schema; ad hoc field
// access on a generic bag is deliberately not supported.
type IngestEvent interface {
	Kind() string
}

// Ingest envelope type tags.
const (
	KindSessionStart    = "session_start"
	KindSessionEnd      = "session_end"
	KindRiskDetected    = "risk_detected"
	KindSentimentUpdate = "sentiment_update"
	KindHumanTakeover   = "human_takeover"
)

type SessionStart struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	RoomName      string `json:"roomName"`
	AgentConfigID string `json:"agentConfigId,omitempty"`
}

func (SessionStart) Kind() string { return KindSessionStart }

type SessionEnd struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	RoomName  string `json:"roomName,omitempty"`
}

func (SessionEnd) Kind() string { return KindSessionEnd }

type RiskDetected struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	RoomName  string         `json:"roomName,omitempty"`
	RiskLevel string         `json:"riskLevel"`
	Keywords  []string       `json:"keywords,omitempty"`
	Category  string         `json:"category,omitempty"`
	Text      string         `json:"text,omitempty"`
	Source    string         `json:"source,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (RiskDetected) Kind() string { return KindRiskDetected }

type SentimentUpdate struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	RoomName  string  `json:"roomName,omitempty"`
	Sentiment float64 `json:"sentiment"`
	Text      string  `json:"text,omitempty"`
	Source    string  `json:"source,omitempty"`
}

func (SentimentUpdate) Kind() string { return KindSentimentUpdate }

type HumanTakeover struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	RoomName   string `json:"roomName,omitempty"`
	OperatorID string `json:"operatorId,omitempty"`
}

func (HumanTakeover) Kind() string { return KindHumanTakeover }

// DecodeIngestEvent deserializes a worker envelope and rejects unknown types,
// unknown fields, and out-of-range values. The type tag selects the variant.
func DecodeIngestEvent(data []byte) (IngestEvent, error) {
	var typeHolder struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &typeHolder); err != nil {
		return nil, decodeErr("", "invalid JSON body")
	}

	switch typeHolder.Type {
	case KindSessionStart:
		var ev SessionStart
		if err := strictUnmarshal(data, &ev); err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.SessionID) == "" {
			return nil, decodeErr("sessionId", "sessionId is required")
		}
		if strings.TrimSpace(ev.RoomName) == "" {
			return nil, decodeErr("roomName", "roomName is required")
		}
		return ev, nil
	case KindSessionEnd:
		var ev SessionEnd
		if err := strictUnmarshal(data, &ev); err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.SessionID) == "" {
			return nil, decodeErr("sessionId", "sessionId is required")
		}
		return ev, nil
	case KindRiskDetected:
		var ev RiskDetected
		if err := strictUnmarshal(data, &ev); err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.SessionID) == "" {
			return nil, decodeErr("sessionId", "sessionId is required")
		}
		if _, err := ParseRiskLevel(ev.RiskLevel); err != nil {
			return nil, decodeErr("riskLevel", "riskLevel must be one of LOW|MEDIUM|HIGH|CRITICAL")
		}
		if ev.Source != "" && !validSource(ev.Source) {
			return nil, decodeErr("source", "source must be one of system|user|admin")
		}
		return ev, nil
	case KindSentimentUpdate:
		var ev SentimentUpdate
		if err := strictUnmarshal(data, &ev); err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.SessionID) == "" {
			return nil, decodeErr("sessionId", "sessionId is required")
		}
		if ev.Sentiment < -1 || ev.Sentiment > 1 {
			return nil, decodeErr("sentiment", "sentiment must be in [-1,1]")
		}
		if ev.Source != "" && !validSource(ev.Source) {
			return nil, decodeErr("source", "source must be one of system|user|admin")
		}
		return ev, nil
	case KindHumanTakeover:
		var ev HumanTakeover
		if err := strictUnmarshal(data, &ev); err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.SessionID) == "" {
			return nil, decodeErr("sessionId", "sessionId is required")
		}
		return ev, nil
	case "":
		return nil, decodeErr("type", "type is required")
	default:
		return nil, decodeErr("type", fmt.Sprintf("unknown event type %q", typeHolder.Type))
	}
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return decodeErr("", err.Error())
	}
	return nil
}

func validSource(raw string) bool {
	switch Source(raw) {
	case SourceSystem, SourceUser, SourceAdmin:
		return true
	default:
		return false
	}
}
