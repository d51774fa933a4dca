// Package redisfeed bridges Redis pub/sub into the websocket manager. One
// forwarder goroutine drains the subscription in order, so scope delivery
// order matches publish order.
package redisfeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/zigaf/car-auction-sub000/internal/events"
	"github.com/zigaf/car-auction-sub000/internal/ws"
)

// Subscriber consumes every auction channel and forwards payloads to rooms.
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	log    *slog.Logger
}

// NewSubscriber connects and verifies the Redis connection.
func NewSubscriber(addr, password string, db int, log *slog.Logger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Subscriber{client: rdb, log: log}, nil
}

// Listen subscribes to all auction channels and forwards each message to
// the matching room until the context is cancelled. Blocking; run in a
// goroutine.
func (s *Subscriber) Listen(ctx context.Context, manager *ws.Manager) error {
	s.pubsub = s.client.PSubscribe(ctx, "auction:*")
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			scope, ok := scopeForChannel(msg.Channel)
			if !ok {
				s.log.Warn("message on unknown channel", "channel", msg.Channel)
				continue
			}
			manager.Broadcast(scope, []byte(msg.Payload))
		}
	}
}

// scopeForChannel maps a Redis channel name onto a room scope.
func scopeForChannel(channel string) (string, bool) {
	if channel == events.GlobalChannel() {
		return ws.GlobalScope, true
	}
	if itemID, ok := strings.CutPrefix(channel, events.ItemChannel("")); ok && itemID != "" {
		return ws.ItemScope(itemID), true
	}
	return "", false
}

// Close tears down the subscription and the connection.
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
