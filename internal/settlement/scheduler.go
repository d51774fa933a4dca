package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/events"
	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

// SystemActor is the identity recorded on order history rows written by the
// scheduler.
var SystemActor = uuid.Nil

// Scheduler settles expired auctions on a fixed interval. The running flag
// only stops one process from overlapping itself; correctness under
// concurrent schedulers comes from the per-item row lock and the post-lock
// state re-check in settle.
type Scheduler struct {
	st         store.Store
	sink       events.Sink
	commission decimal.Decimal
	interval   time.Duration
	running    atomic.Bool
	now        func() time.Time
	log        *slog.Logger
}

// NewScheduler builds a settlement scheduler. A nil now defaults to time.Now.
func NewScheduler(st store.Store, sink events.Sink, commission decimal.Decimal, interval time.Duration, now func() time.Time, log *slog.Logger) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		st:         st,
		sink:       sink,
		commission: commission,
		interval:   interval,
		now:        func() time.Time { return now().UTC() },
		log:        log,
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("settlement scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("settlement scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick settles every expired trading item, each in its own transaction so
// one failure does not block the batch. Failed items are simply re-selected
// next cycle; settle is idempotent per item.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	ids, err := s.st.ExpiredTradingItems(ctx, s.now())
	if err != nil {
		s.log.Error("select expired items", "error", err)
		return
	}
	for _, id := range ids {
		batch, err := s.settle(ctx, id)
		if err != nil {
			s.log.Error("settle item", "item_id", id, "error", err)
			continue
		}
		if batch != nil {
			s.sink.PublishBatch(ctx, batch)
		}
	}
}

// settle runs one item's settlement transaction and returns the terminal
// broadcast batch to emit after commit, or nil when the item was skipped.
func (s *Scheduler) settle(ctx context.Context, itemID uuid.UUID) (*events.Batch, error) {
	var batch *events.Batch
	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()

		item, err := tx.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		// State may have changed between selection and lock acquisition
		// (buy-now, rollback, another scheduler). Re-check before acting.
		if item.Status != models.ItemStatusTrading || item.EndAt.After(now) {
			return nil
		}

		highest, err := tx.HighestBid(ctx, itemID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			if err := Cancel(ctx, tx, item, "auction ended with no bids", now); err != nil {
				return err
			}
			batch = endedBatch(item, nil, now)
			return nil
		case err != nil:
			return err
		}

		if !item.MeetsReserve(highest.Amount) {
			if err := Cancel(ctx, tx, item, "reserve price not met", now); err != nil {
				return err
			}
			batch = endedBatch(item, nil, now)
			return nil
		}

		if _, err := Finalize(ctx, tx, item, highest, s.commission, SystemActor, now); err != nil {
			return err
		}
		batch = endedBatch(item, &highest.BidderID, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func endedBatch(item *models.AuctionItem, winnerID *uuid.UUID, now time.Time) *events.Batch {
	b := events.NewBatch(item.ID)
	ev := models.AuctionEndedEvent{
		Type:       models.EventAuctionEnded,
		ItemID:     item.ID,
		WinnerID:   winnerID,
		FinalPrice: item.CurrentPrice,
		Timestamp:  now,
	}
	b.AddItem(ev)
	b.AddGlobal(ev)
	return b
}
