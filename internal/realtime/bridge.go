package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tintworks/dyeops/internal/notifications"
)

// Channel is the Redis pub/sub channel notification events travel on.
const Channel = "dyeops:notifications"

// RedisBridge publishes events through Redis so that processes without
// websocket clients, such as the worker, reach clients held by the API.
type RedisBridge struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBridge constructs RedisBridge.
func NewRedisBridge(client *redis.Client, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{client: client, logger: logger}
}

// Publish implements notifications.Publisher.
func (b *RedisBridge) Publish(ctx context.Context, evt notifications.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	return nil
}

// Run forwards events from Redis into hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context, hub *Hub) error {
	sub := b.client.Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt struct {
				Room string `json:"room"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil || evt.Room == "" {
				b.logger.Warn("realtime: drop malformed event", slog.Any("error", err))
				continue
			}
			hub.deliver(evt.Room, []byte(msg.Payload))
		}
	}
}

var _ notifications.Publisher = (*RedisBridge)(nil)
