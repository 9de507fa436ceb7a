// Package fanout relays document change notifications between service
// instances that share one document database, so every instance can wake
// its own live subscriptions.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/mmynk/studygroup/internal/codec"
)

// DefaultChannel is the Redis pub/sub channel used for change events.
const DefaultChannel = "studygroup:changes"

// Change is the wire form of one change notification.
type Change struct {
	Collection string `cbor:"1,keyasint"`
	Origin     string `cbor:"2,keyasint"`
}

// Redis publishes and receives change notifications over Redis pub/sub.
type Redis struct {
	client  *redis.Client
	channel string
	origin  string
}

// NewRedis creates a relay on channel. Each relay has its own origin id
// and ignores its own notifications.
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, origin: uuid.New().String()}
}

// Publish announces a change to collection.
func (r *Redis) Publish(ctx context.Context, collection string) error {
	payload, err := codec.Marshal(Change{Collection: collection, Origin: r.origin})
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Run delivers remote changes to onChange until ctx is done.
func (r *Redis) Run(ctx context.Context, onChange func(collection string)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	slog.Info("Change relay subscribed", "channel", r.channel, "origin", r.origin)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if collection, ok := r.accept([]byte(msg.Payload)); ok {
				onChange(collection)
			}
		}
	}
}

// accept decodes a payload and reports whether it came from another
// instance.
func (r *Redis) accept(payload []byte) (string, bool) {
	var c Change
	if err := codec.Unmarshal(payload, &c); err != nil {
		slog.Warn("Dropping malformed change event", "error", err)
		return "", false
	}
	if c.Origin == r.origin || c.Collection == "" {
		return "", false
	}
	return c.Collection, true
}
