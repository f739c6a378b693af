package broadcast

import (
	"context"
	"sync"
)

// Handle is the control surface a live stream registers with the tracker.
// Cancel tears the stream down; Warn pushes a server notice to the client.
type Handle struct {
	Cancel func()
	Warn   func(code, message string) error
}

// Tracker keeps the set of open live streams so shutdown can warn them,
// cancel them, and wait for their goroutines to unwind.
type Tracker struct {
	mu      sync.Mutex
	streams map[string]*trackedStream
	wg      sync.WaitGroup
}

type trackedStream struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		streams: make(map[string]*trackedStream),
	}
}

func (t *Tracker) Register(streamID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedStream{handle: h}

	t.mu.Lock()
	if t.streams == nil {
		t.streams = make(map[string]*trackedStream)
	}
	old := t.streams[streamID]
	t.streams[streamID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(streamID, old)
	}

	return func() { t.unregister(streamID, entry) }
}

func (t *Tracker) unregister(streamID string, entry *trackedStream) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.streams != nil && t.streams[streamID] == entry {
			delete(t.streams, streamID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}

	var warns []func(code, message string) error
	t.mu.Lock()
	for _, entry := range t.streams {
		if entry == nil || entry.handle.Warn == nil {
			continue
		}
		warns = append(warns, entry.handle.Warn)
	}
	t.mu.Unlock()

	for _, warn := range warns {
		_ = warn(code, message)
		sent++
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.streams {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
