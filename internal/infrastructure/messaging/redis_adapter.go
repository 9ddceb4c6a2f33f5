package messaging

import (
	"context"
	"errors"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// GO-REDIS ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// GoRedisAdapter adapts a go-redis client to the RedisClient interface used by
// RedisEventBus. The underlying connection is shared with the rest of the
// application, so Close only tears down subscriptions opened here.
type GoRedisAdapter struct {
	client *goredis.Client
	mu     sync.Mutex
	subs   []*goredis.PubSub
	closed bool
}

// NewGoRedisAdapter wraps an existing go-redis client.
func NewGoRedisAdapter(client *goredis.Client) *GoRedisAdapter {
	return &GoRedisAdapter{client: client}
}

// Publish sends a message to a Redis channel.
func (a *GoRedisAdapter) Publish(ctx context.Context, channel string, message interface{}) error {
	return a.client.Publish(ctx, channel, message).Err()
}

// Subscribe opens a Redis Pub/Sub subscription and bridges its messages into
// the channel format the event bus consumes. The returned channel is closed
// when the subscription ends.
func (a *GoRedisAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.New("redis adapter is closed")
	}
	sub := a.client.Subscribe(ctx, channels...)
	a.subs = append(a.subs, sub)
	a.mu.Unlock()

	// Confirm the subscription before handing out the channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan RedisMessage, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close tears down subscriptions opened through this adapter. The underlying
// client is owned by the caller and stays open.
func (a *GoRedisAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	for _, sub := range a.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.subs = nil
	return firstErr
}
