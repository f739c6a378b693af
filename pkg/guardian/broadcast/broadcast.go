// Package broadcast pushes live session status to dashboard observers over
// SSE and WebSocket. Every stream opens with a full snapshot, then receives
// incremental Guardian events from the bus and periodic stats refreshes, so a
// client that misses a notice converges on the next poll.
package broadcast

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auralis-ai/guardian/pkg/guardian/bus"
	"github.com/auralis-ai/guardian/pkg/guardian/sse"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Stream event names shared by the SSE and WebSocket transports.
const (
	EventInit          = "init"
	EventGuardianEvent = "guardian_event"
	EventStatsUpdate   = "stats_update"
	EventServerNotice  = "server_notice"
)

// Snapshot is the full state pushed on connect and on every poll tick.
type Snapshot struct {
	Sessions  []*types.Session `json:"sessions"`
	Stats     types.Stats      `json:"stats"`
	Timestamp time.Time        `json:"timestamp"`
}

type Options struct {
	PollInterval   time.Duration
	PingInterval   time.Duration
	MaxDuration    time.Duration
	WSWriteTimeout time.Duration
}

// Hub serves live status streams from one store/bus pair.
type Hub struct {
	store   store.Store
	bus     bus.Bus
	opts    Options
	logger  *slog.Logger
	tracker *Tracker
	now     func() time.Time
}

func NewHub(st store.Store, b bus.Bus, opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 2 * time.Hour
	}
	if opts.WSWriteTimeout <= 0 {
		opts.WSWriteTimeout = 5 * time.Second
	}
	return &Hub{
		store:   st,
		bus:     b,
		opts:    opts,
		logger:  logger,
		tracker: NewTracker(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Tracker exposes the open-stream registry for shutdown coordination.
func (h *Hub) Tracker() *Tracker { return h.tracker }

func (h *Hub) snapshot(ctx context.Context) (Snapshot, error) {
	sessions, err := h.store.ListActiveSessions(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	return Snapshot{Sessions: sessions, Stats: stats, Timestamp: h.now()}, nil
}

// sender abstracts the transport write so SSE and WebSocket share one pump.
type sender interface {
	send(event string, data any) error
	ping() error
}

// ServeSSE streams over server-sent events until the client disconnects, the
// stream hits its max duration, or the process drains.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) error {
	sw, err := sse.New(w)
	if err != nil {
		return err
	}
	// The 200 goes out with the first write, so a failed snapshot can still
	// report a proper error status.
	return h.run(r.Context(), &sseSender{w: sw})
}

type sseSender struct{ w *sse.Writer }

func (s *sseSender) send(event string, data any) error { return s.w.Send(event, data) }
func (s *sseSender) ping() error                       { return s.w.Comment("ping") }

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser origin policy is enforced by the CORS middleware allowlist;
	// non-browser dashboard clients send no Origin at all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS streams the same payloads over a WebSocket. Each frame is a JSON
// object {"type": <event>, "data": <payload>}.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: the client sends nothing meaningful, but reads must drain
	// for close frames and pings to be processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return h.run(ctx, &wsSender{conn: conn, timeout: h.opts.WSWriteTimeout})
}

type wsSender struct {
	conn    *websocket.Conn
	timeout time.Duration
}

type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *wsSender) send(event string, data any) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.WriteJSON(wsFrame{Type: event, Data: data})
}

func (s *wsSender) ping() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.timeout))
}

func (h *Hub) run(ctx context.Context, out sender) error {
	// Subscribe before the snapshot so no event falls between the two.
	notices, stop, err := h.bus.SubscribeNotices(ctx)
	if err != nil {
		return err
	}
	defer stop()

	snap, err := h.snapshot(ctx)
	if err != nil {
		return err
	}
	if err := out.send(EventInit, snap); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamID := "stream_" + randHex(8)
	unregister := h.tracker.Register(streamID, Handle{
		Cancel: cancel,
		Warn: func(code, message string) error {
			return out.send(EventServerNotice, map[string]string{"code": code, "message": message})
		},
	})
	defer unregister()

	poll := time.NewTicker(h.opts.PollInterval)
	defer poll.Stop()
	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()
	deadline := time.NewTimer(h.opts.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			// Long-lived dashboards reconnect; bounding stream age keeps
			// rolling restarts from waiting on immortal connections.
			_ = out.send(EventServerNotice, map[string]string{"code": "stream_expired", "message": "reconnect"})
			return nil
		case <-ping.C:
			if err := out.ping(); err != nil {
				return nil
			}
		case <-poll.C:
			snap, err := h.snapshot(ctx)
			if err != nil {
				h.logger.Warn("stats poll failed", "stream_id", streamID, "error", err)
				continue
			}
			if err := out.send(EventStatsUpdate, snap); err != nil {
				return nil
			}
		case n, ok := <-notices:
			if !ok {
				return nil
			}
			if err := out.send(EventGuardianEvent, n); err != nil {
				return nil
			}
		}
	}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("150405.000000000")))
	}
	return hex.EncodeToString(b)
}
