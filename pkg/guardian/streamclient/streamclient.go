// Package streamclient consumes a Guardian live status stream over SSE and
// reconnects automatically. It is the Go counterpart of the dashboard's
// EventSource wiring, useful for headless observers and tests.
package streamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// State is the connection lifecycle. Transitions are linear:
// Disconnected -> Connecting -> Connected -> Reconnecting -> Connecting ...
// and Stop forces Disconnected from anywhere.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Message is one stream event.
type Message struct {
	Event string
	Data  json.RawMessage
}

type Options struct {
	// URL is the stream endpoint, e.g. https://guardian.internal/admin/guardian/stream.
	URL string
	// APIKey is sent as a bearer token.
	APIKey string
	// ReconnectDelay is the fixed pause between connection attempts.
	// Defaults to 3s.
	ReconnectDelay time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger

	// OnMessage receives every stream event. Called from the client's
	// goroutine; blocking here stalls the stream.
	OnMessage func(Message)
	// OnStateChange observes lifecycle transitions. Optional.
	OnStateChange func(State)
}

// Client maintains one live status stream.
type Client struct {
	opts Options

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("streamclient: URL is required")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{opts: opts, state: StateDisconnected}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// Start opens the stream and keeps it open until Stop. Calling Start on a
// running client is an error.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return fmt.Errorf("streamclient: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx)
	}()
	return nil
}

// Stop tears the stream down and waits for the run loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.setState(StateDisconnected)
}

func (c *Client) run(ctx context.Context) {
	// One timer reused across reconnect pauses.
	timer := time.NewTimer(c.opts.ReconnectDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if first {
			c.setState(StateConnecting)
			first = false
		}

		err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.opts.Logger.Warn("stream connection lost", "url", c.opts.URL, "error", err)
		}

		c.setState(StateReconnecting)
		timer.Reset(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		c.setState(StateConnecting)
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	c.setState(StateConnected)

	r := newReader(resp.Body)
	defer r.Close()
	for {
		event, data, err := r.Next()
		if err != nil {
			return err
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(Message{Event: event, Data: json.RawMessage(data)})
		}
	}
}
