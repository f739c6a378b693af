package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis implements Bus on Redis pub/sub. Redis delivers messages per channel
// in publish order, which is the FIFO guarantee the stream relies on.
type Redis struct {
	client *redis.Client
	buffer int
	logger *slog.Logger
}

func NewRedis(client *redis.Client, bufferEvents int, logger *slog.Logger) *Redis {
	if bufferEvents <= 0 {
		bufferEvents = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, buffer: bufferEvents, logger: logger}
}

func (b *Redis) PublishCommand(ctx context.Context, roomName string, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := b.client.Publish(ctx, commandChannelPrefix+roomName, payload).Err(); err != nil {
		return fmt.Errorf("publish command to %s: %w", roomName, err)
	}
	return nil
}

func (b *Redis) PublishNotice(ctx context.Context, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if err := b.client.Publish(ctx, noticeChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish notice: %w", err)
	}
	return nil
}

func (b *Redis) SubscribeNotices(ctx context.Context) (<-chan Notice, func(), error) {
	sub := b.client.Subscribe(ctx, noticeChannel)
	// Force the subscription handshake so a dead Redis fails here, not
	// silently in the pump goroutine.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe notices: %w", err)
	}

	out := make(chan Notice, b.buffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var n Notice
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				b.logger.Warn("dropping malformed notice", "error", err)
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}
