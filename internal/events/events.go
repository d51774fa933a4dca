// Package events carries committed state changes from the transactional
// layer to the broadcast and archival collaborators. It holds no
// authoritative state: batches are built after commit and replayed in order.
package events

import (
	"context"

	"github.com/google/uuid"
)

// Batch is the ordered set of events produced by one committed operation.
// Item events are delivered to the per-item scope first, in the order they
// were appended; Global events mirror bids onto the cross-item feed and are
// delivered after the item events. Reordering either list is a correctness
// bug: clients reconstruct price history from receipt order.
type Batch struct {
	ItemID uuid.UUID
	Item   []any
	Global []any
}

// NewBatch returns an empty batch for one item.
func NewBatch(itemID uuid.UUID) *Batch {
	return &Batch{ItemID: itemID}
}

// AddItem appends an event to the per-item scope.
func (b *Batch) AddItem(ev any) { b.Item = append(b.Item, ev) }

// AddGlobal appends a mirrored event to the global scope.
func (b *Batch) AddGlobal(ev any) { b.Global = append(b.Global, ev) }

// Empty reports whether the batch carries no events.
func (b *Batch) Empty() bool { return len(b.Item) == 0 && len(b.Global) == 0 }

// Sink receives committed batches. The production sink publishes to Redis
// pub/sub and NATS JetStream; tests use a recording sink.
type Sink interface {
	PublishBatch(ctx context.Context, b *Batch)
}

// Discard is a Sink that drops every batch.
type Discard struct{}

func (Discard) PublishBatch(ctx context.Context, b *Batch) {}
