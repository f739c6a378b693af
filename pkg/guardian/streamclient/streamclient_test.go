package streamclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestReader_ParsesEventsAndSkipsComments(t *testing.T) {
	stream := ": ping\n\n" +
		"event: init\n" +
		"data: {\"sessions\":[]}\n\n" +
		"event: guardian_event\n" +
		"data: {\"type\":\"risk_detected\"}\n\n"
	r := newReader(io.NopCloser(strings.NewReader(stream)))

	event, data, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if event != "init" || string(data) != `{"sessions":[]}` {
		t.Fatalf("event=%q data=%q", event, data)
	}

	event, _, err = r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if event != "guardian_event" {
		t.Fatalf("event=%q", event)
	}

	if _, _, err := r.Next(); err != io.EOF {
		t.Fatalf("err=%v, want EOF", err)
	}
}

func TestClient_ReceivesAndReconnects(t *testing.T) {
	var mu sync.Mutex
	var connects int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connects++
		n := connects
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer dash-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: init\ndata: {\"attempt\":%d}\n\n", n)
		w.(http.Flusher).Flush()
		// Server closes; the client must reconnect.
	}))
	defer srv.Close()

	msgs := make(chan Message, 16)
	states := make(chan State, 16)
	c, err := New(Options{
		URL:            srv.URL,
		APIKey:         "dash-key",
		ReconnectDelay: 20 * time.Millisecond,
		OnMessage:      func(m Message) { msgs <- m },
		OnStateChange:  func(s State) { states <- s },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("initial state=%q", c.State())
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("second Start must fail")
	}

	waitMsg := func() Message {
		select {
		case m := <-msgs:
			return m
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message")
			return Message{}
		}
	}

	first := waitMsg()
	if first.Event != "init" {
		t.Fatalf("event=%q", first.Event)
	}
	second := waitMsg()
	if string(second.Data) == string(first.Data) {
		t.Fatalf("expected a fresh init from a reconnect, got %s twice", first.Data)
	}

	mu.Lock()
	n := connects
	mu.Unlock()
	if n < 2 {
		t.Fatalf("connects=%d, want >= 2", n)
	}

	c.Stop()
	if c.State() != StateDisconnected {
		t.Fatalf("state after stop=%q", c.State())
	}

	// Transition order reaches Connected then Reconnecting at least once.
	seen := map[State]bool{}
	for {
		select {
		case s := <-states:
			seen[s] = true
		default:
			if !seen[StateConnecting] || !seen[StateConnected] || !seen[StateReconnecting] {
				t.Fatalf("states seen=%v", seen)
			}
			return
		}
	}
}

func TestClient_KeepsReconnectingOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Options{URL: srv.URL, ReconnectDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for c.State() != StateReconnecting {
		if time.Now().After(deadline) {
			t.Fatalf("state=%q, want reconnecting", c.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	if c.State() != StateDisconnected {
		t.Fatalf("state=%q", c.State())
	}
}
