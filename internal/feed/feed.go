// Package feed implements the change-notification feed over Redis pub/sub.
//
// Delivery is fan-out, at-least-once and unordered across tables. Events
// carry only an id reference; consumers must refetch the row and be
// idempotent to duplicates. A monotonically increasing version key is
// bumped on every publish so a late subscriber can detect that something
// changed while it was away and re-derive its view.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "feed"
	versionKey    = "feed:version"
)

// Event types mirrored from the store mutations.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Tables observable through the feed.
const (
	TableVisits    = "visits"
	TableApprovals = "approval_requests"
	TableSales     = "sales"
	TableClients   = "clients"
)

// Event references a changed row. It never carries a consistent snapshot.
type Event struct {
	Table string `json:"table"`
	Type  string `json:"type"`
	ID    int64  `json:"id"`
}

// Bus publishes and subscribes change notifications.
type Bus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBus constructs the feed bus.
func NewBus(client *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{client: client, logger: logger}
}

// Publish broadcasts an event after the owning transaction has committed.
// Publish failures are logged, not returned: the feed is a refresh cue, the
// primary operation's success must not depend on it.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil || b.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("feed marshal", slog.Any("error", err))
		return
	}
	if err := b.client.Incr(ctx, versionKey).Err(); err != nil {
		b.logger.Warn("feed version bump", slog.Any("error", err))
	}
	channel := channelPrefix + ":" + event.Table
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		b.logger.Warn("feed publish", slog.String("channel", channel), slog.Any("error", err))
	}
}

// Version returns the current feed version, zero when nothing was published.
func (b *Bus) Version(ctx context.Context) (int64, error) {
	if b == nil || b.client == nil {
		return 0, nil
	}
	ver, err := b.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Subscribe streams events for the given tables until ctx is cancelled or
// stop is called. Malformed payloads are dropped.
func (b *Bus) Subscribe(ctx context.Context, tables ...string) (<-chan Event, func(), error) {
	if b == nil || b.client == nil {
		return nil, nil, errors.New("feed: bus not configured")
	}
	if len(tables) == 0 {
		return nil, nil, errors.New("feed: at least one table required")
	}
	channels := make([]string, 0, len(tables))
	for _, t := range tables {
		channels = append(channels, channelPrefix+":"+t)
	}

	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan Event)
	done := make(chan struct{})
	stop := func() {
		select {
		case <-done:
		default:
			close(done)
		}
		_ = pubsub.Close()
	}

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("feed payload", slog.Any("error", err))
					continue
				}
				if event.Table == "" {
					event.Table = strings.TrimPrefix(msg.Channel, channelPrefix+":")
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	return out, stop, nil
}
