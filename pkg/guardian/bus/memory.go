package bus

import (
	"context"
	"sync"
)

// Memory is an in-process Bus for tests. Publish order is preserved per
// subscriber by holding the lock across the fan-out.
type Memory struct {
	mu          sync.Mutex
	commands    map[string][]Command
	subscribers map[int]chan Notice
	nextSub     int
}

func NewMemory() *Memory {
	return &Memory{
		commands:    make(map[string][]Command),
		subscribers: make(map[int]chan Notice),
	}
}

func (b *Memory) PublishCommand(_ context.Context, roomName string, cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[roomName] = append(b.commands[roomName], cmd)
	return nil
}

func (b *Memory) PublishNotice(_ context.Context, n Notice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- n:
		default: // slow subscriber, drop rather than block the publisher
		}
	}
	return nil
}

func (b *Memory) SubscribeNotices(context.Context) (<-chan Notice, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Notice, 64)
	b.subscribers[id] = ch

	stop := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, stop, nil
}

// Commands returns the commands published for a room, in publish order.
// Test helper.
func (b *Memory) Commands(roomName string) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Command, len(b.commands[roomName]))
	copy(out, b.commands[roomName])
	return out
}
