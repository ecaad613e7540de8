// Package broker caches per-user content hashes in redis and fans out
// change events to connected clients. A nil *Broker is valid and turns
// every operation into a no-op, for deployments without redis.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultHashTTL bounds how long a cached hash may outlive the row store.
const DefaultHashTTL = 24 * time.Hour

const keyPrefix = "playlist-sync:"

// EventType names the resource that changed.
type EventType string

const (
	EventPlaylists EventType = "playlists"
	EventPinned    EventType = "pinned"
)

// Event is published after a successful write.
type Event struct {
	Type        EventType `json:"type"`
	ContentHash string    `json:"contentHash"`
}

// Broker wraps a redis client.
type Broker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps an existing client.
func New(rdb *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{rdb: rdb, ttl: DefaultHashTTL, logger: logger}
}

// Open connects to the redis URL and pings it.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Broker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return New(rdb, logger), nil
}

// Close closes the client.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}

	return b.rdb.Close()
}

func hashKey(userID string, t EventType) string {
	return keyPrefix + "hash:" + userID + ":" + string(t)
}

// Channel returns the pub/sub channel for a user.
func Channel(userID string) string {
	return keyPrefix + userID
}

// CachedHash returns the cached content hash, if any. Redis errors are
// logged and reported as a miss.
func (b *Broker) CachedHash(ctx context.Context, userID string, t EventType) (string, bool) {
	if b == nil {
		return "", false
	}

	v, err := b.rdb.Get(ctx, hashKey(userID, t)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}

	if err != nil {
		b.logger.Warn("reading cached hash", slog.String("user", userID), slog.String("error", err.Error()))
		return "", false
	}

	return v, true
}

// StoreHash caches a content hash.
func (b *Broker) StoreHash(ctx context.Context, userID string, t EventType, hash string) {
	if b == nil {
		return
	}

	if err := b.rdb.Set(ctx, hashKey(userID, t), hash, b.ttl).Err(); err != nil {
		b.logger.Warn("caching hash", slog.String("user", userID), slog.String("error", err.Error()))
	}
}

// Publish sends an event to the user's subscribers.
func (b *Broker) Publish(ctx context.Context, userID string, ev Event) error {
	if b == nil {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	if err := b.rdb.Publish(ctx, Channel(userID), data).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	return nil
}

// Subscribe returns a channel of events for the user. The subscription
// is active when Subscribe returns. The channel is closed when ctx is
// done or the returned stop func is called.
func (b *Broker) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	if b == nil {
		return nil, func() {}, nil
	}

	sub := b.rdb.Subscribe(ctx, Channel(userID))

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", Channel(userID), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed event", slog.String("error", err.Error()))
					continue
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}
