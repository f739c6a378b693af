package mediaroom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig(hostURL string) Config {
	return Config{
		HostURL:   hostURL,
		WSURL:     "wss://media.example.com",
		APIKey:    "api-key",
		APISecret: "api-secret",
		TokenTTL:  time.Hour,
	}
}

func TestIssueOperatorToken(t *testing.T) {
	c := NewClient(testConfig("https://media.example.com"), nil)

	tok, err := c.IssueOperatorToken("room-1", "alex", true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.WSURL != "wss://media.example.com" {
		t.Fatalf("wsUrl=%q", tok.WSURL)
	}
	if tok.Identity != "operator-alex" {
		t.Fatalf("identity=%q", tok.Identity)
	}

	parsed, err := jwt.ParseWithClaims(tok.Token, &tokenClaims{}, func(*jwt.Token) (any, error) {
		return []byte("api-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("parse token: %v", err)
	}
	claims := parsed.Claims.(*tokenClaims)
	if claims.Video.Room != "room-1" || !claims.Video.RoomJoin || !claims.Video.CanPublishData {
		t.Fatalf("grants: %+v", claims.Video)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(claims.Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if isAdmin, _ := meta["isAdmin"].(bool); !isAdmin {
		t.Fatalf("metadata missing admin marker: %v", meta)
	}
}

func TestIssueOperatorTokenUnconfigured(t *testing.T) {
	c := NewClient(Config{}, nil)
	if _, err := c.IssueOperatorToken("room-1", "alex", false); err != ErrNotConfigured {
		t.Fatalf("got %v, want ErrNotConfigured", err)
	}
}

func TestIssueOperatorTokenRequiresRoom(t *testing.T) {
	c := NewClient(testConfig("https://media.example.com"), nil)
	if _, err := c.IssueOperatorToken("  ", "alex", false); err == nil {
		t.Fatalf("expected error for missing room")
	}
}

func TestSendData(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	err := c.SendData(context.Background(), "room-1", map[string]any{
		"type": "takeover", "operator_id": "alex",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/rooms/room-1/data" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotAuth == "" {
		t.Fatalf("missing service token")
	}
	if gotBody["type"] != "takeover" {
		t.Fatalf("body=%v", gotBody)
	}
}

func TestSendDataServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	if err := c.SendData(context.Background(), "room-x", map[string]any{"type": "release"}); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}
