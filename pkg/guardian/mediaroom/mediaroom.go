// Package mediaroom talks to the real-time media-room service: it mints
// short-lived room-scoped join tokens for human operators and relays
// server-side data messages into a room.
package mediaroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotConfigured is returned when media-room credentials are absent.
var ErrNotConfigured = errors.New("media room credentials are not configured")

// Config carries the media-room service credentials.
type Config struct {
	HostURL   string
	WSURL     string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

// Client is the media-room service client. Construct it explicitly and pass
// it down; there is deliberately no package-level singleton.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c.cfg.HostURL != "" && c.cfg.WSURL != "" && c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

// roomGrant is the capability set embedded in a room token.
type roomGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Video    roomGrant `json:"video"`
	Metadata string    `json:"metadata,omitempty"`
}

// Token is an issued operator credential.
type Token struct {
	Token    string `json:"token"`
	WSURL    string `json:"wsUrl"`
	Identity string `json:"identity"`
}

// IssueOperatorToken mints a join+publish+subscribe+publish-data token scoped
// to one room. The role marker in the metadata lets the room UI distinguish
// the human operator from the AI participant.
func (c *Client) IssueOperatorToken(roomName, operatorName string, admin bool) (Token, error) {
	if !c.Configured() {
		return Token{}, ErrNotConfigured
	}
	if strings.TrimSpace(roomName) == "" {
		return Token{}, errors.New("roomName is required")
	}

	identity := "operator-" + operatorName
	role := "agent"
	if admin {
		role = "admin"
	}
	metadata, err := json.Marshal(map[string]any{"role": role, "operator": operatorName, "isAdmin": admin})
	if err != nil {
		return Token{}, err
	}

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.APIKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.TokenTTL)),
		},
		Video: roomGrant{
			Room:           roomName,
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
		Metadata: string(metadata),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.APISecret))
	if err != nil {
		return Token{}, fmt.Errorf("sign room token: %w", err)
	}
	return Token{Token: signed, WSURL: c.cfg.WSURL, Identity: identity}, nil
}

// SendData relays a data message into a room through the service's
// server-side API, authenticated with a short-lived admin token.
func (c *Client) SendData(ctx context.Context, roomName string, payload any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode room data: %w", err)
	}

	adminToken, err := c.serviceToken(roomName)
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.cfg.HostURL, "/") + "/rooms/" + roomName + "/data"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send room data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send room data: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// serviceToken mints the short-lived room-admin credential used for
// server-to-service calls.
func (c *Client) serviceToken(roomName string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.APIKey,
			Subject:   "guardian-coordinator",
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Video: roomGrant{Room: roomName, RoomAdmin: true},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}
