package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis pub/sub channels feeding the websocket layer.
	itemChannelPrefix = "auction:item:"
	globalChannel     = "auction:global"

	streamName    = "AUCTION_EVENTS"
	subjectPrefix = "auction.events."
)

// ItemChannel returns the Redis channel for one item's scope.
func ItemChannel(itemID string) string { return itemChannelPrefix + itemID }

// GlobalChannel returns the Redis channel for the cross-item scope.
func GlobalChannel() string { return globalChannel }

// Publisher fans committed batches out to Redis pub/sub (real-time
// broadcast) and NATS JetStream (durable archival feed). Publishes happen
// synchronously and in batch order so subscribers observe events in the
// order the transaction produced them.
type Publisher struct {
	rdb *redis.Client
	js  jetstream.JetStream
	log *slog.Logger
}

// NewPublisher connects the sink to Redis and NATS and ensures the archival
// stream exists.
func NewPublisher(rdb *redis.Client, nc *nats.Conn, log *slog.Logger) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Auction event archival stream",
		Subjects:    []string{subjectPrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update stream: %w", err)
	}

	return &Publisher{rdb: rdb, js: js, log: log}, nil
}

// PublishBatch delivers the batch: item-scope events first, then global
// mirrors, each publish in sequence. A failed publish is logged and the rest
// of the batch still goes out; the transactional layer has already
// committed, so dropping the whole batch would lose more than continuing.
func (p *Publisher) PublishBatch(ctx context.Context, b *Batch) {
	if b == nil || b.Empty() {
		return
	}
	itemChannel := ItemChannel(b.ItemID.String())
	subject := subjectPrefix + b.ItemID.String()

	for _, ev := range b.Item {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.log.Error("marshal event", "error", err)
			continue
		}
		if err := p.rdb.Publish(ctx, itemChannel, payload).Err(); err != nil {
			p.log.Error("publish to redis", "channel", itemChannel, "error", err)
		}
		if _, err := p.js.Publish(ctx, subject, payload); err != nil {
			p.log.Error("publish to jetstream", "subject", subject, "error", err)
		}
	}
	for _, ev := range b.Global {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.log.Error("marshal event", "error", err)
			continue
		}
		if err := p.rdb.Publish(ctx, globalChannel, payload).Err(); err != nil {
			p.log.Error("publish to redis", "channel", globalChannel, "error", err)
		}
	}
}

var _ Sink = (*Publisher)(nil)
