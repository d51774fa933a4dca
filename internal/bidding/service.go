// Package bidding implements bid placement, proxy bidding, buy-now and the
// administrative rollback, all against the transactional store. Lock order
// is item row first, then the bidder's account, everywhere.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/events"
	"github.com/zigaf/car-auction-sub000/internal/ledger"
	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

// Service is the bid placement and correction service.
type Service struct {
	st             store.Store
	sink           events.Sink
	commission     decimal.Decimal
	snipeWindow    time.Duration
	snipeExtension time.Duration
	now            func() time.Time
	log            *slog.Logger
}

// NewService builds the bidding service. A nil now defaults to time.Now.
func NewService(st store.Store, sink events.Sink, commission decimal.Decimal, snipeWindow, snipeExtension time.Duration, now func() time.Time, log *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		st:             st,
		sink:           sink,
		commission:     commission,
		snipeWindow:    snipeWindow,
		snipeExtension: snipeExtension,
		now:            func() time.Time { return now().UTC() },
		log:            log,
	}
}

// PlaceResult is the outcome of an accepted placement.
type PlaceResult struct {
	Bid      *models.Bid   `json:"bid"`
	Extended bool          `json:"extended"`
	EndAt    time.Time     `json:"end_at"`
	Cascade  []*models.Bid `json:"cascade,omitempty"`
}

// PlaceBid places a manual bid. Replay with a known idempotency key returns
// the original bid with no side effects.
func (s *Service) PlaceBid(ctx context.Context, bidderID, itemID uuid.UUID, amount decimal.Decimal, key string) (*PlaceResult, error) {
	return s.place(ctx, bidderID, itemID, &amount, nil, key)
}

// PlaceProxyBid places a standing proxy bid with the given ceiling. The
// engine bids the minimum increment immediately and keeps counter-bidding on
// the holder's behalf up to the ceiling.
func (s *Service) PlaceProxyBid(ctx context.Context, bidderID, itemID uuid.UUID, ceiling decimal.Decimal, key string) (*PlaceResult, error) {
	return s.place(ctx, bidderID, itemID, nil, &ceiling, key)
}

func (s *Service) place(ctx context.Context, bidderID, itemID uuid.UUID, amount, ceiling *decimal.Decimal, key string) (*PlaceResult, error) {
	// Fast-path idempotency check outside any lock. Keys are globally
	// unique and bids immutable, so a hit can be returned as-is.
	if existing, err := s.st.BidByKey(ctx, key); err == nil {
		return s.replayResult(ctx, existing)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	var (
		result *PlaceResult
		batch  *events.Batch
	)
	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		result = nil
		batch = nil

		item, err := tx.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}

		// Close the race between the lock-free check above and lock
		// acquisition. Checked before any validation: a concurrent twin
		// may already have moved the price, and a replay must still see
		// the original bid.
		if existing, err := tx.BidByKey(ctx, key); err == nil {
			result = &PlaceResult{Bid: existing, EndAt: item.EndAt}
			return nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		if err := s.validatePlacement(item, bidderID, now); err != nil {
			return err
		}

		bidAmount := item.MinNextBid()
		if amount != nil {
			bidAmount = *amount
			if bidAmount.LessThan(item.MinNextBid()) {
				return fmt.Errorf("%w: minimum is %s", models.ErrBelowMinimum, item.MinNextBid())
			}
		}
		if ceiling != nil && ceiling.LessThan(bidAmount) {
			return fmt.Errorf("%w: ceiling below minimum bid %s", models.ErrBelowMinimum, bidAmount)
		}

		prevPrice := item.CurrentPrice
		bid, err := s.persistAcceptedBid(ctx, tx, item, bidderID, bidAmount, ceiling != nil, ceiling, key, now)
		if err != nil {
			return err
		}

		batch = events.NewBatch(item.ID)
		addBidEvent(batch, bid, prevPrice, now)

		// Anti-sniping: one extension per placement, only when the bid
		// lands inside the closing window.
		extended := false
		if item.EndAt.Sub(now) <= s.snipeWindow {
			item.EndAt = now.Add(s.snipeExtension)
			extended = true
			batch.AddItem(models.AuctionExtendedEvent{
				Type:      models.EventAuctionExtended,
				ItemID:    item.ID,
				EndAt:     item.EndAt,
				Timestamp: now,
			})
		}

		cascade, err := s.runCascade(ctx, tx, item, bid, batch, now)
		if err != nil {
			return err
		}

		if err := tx.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		result = &PlaceResult{Bid: bid, Extended: extended, EndAt: item.EndAt, Cascade: cascade}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if batch != nil {
		s.sink.PublishBatch(ctx, batch)
	}
	return result, nil
}

func (s *Service) validatePlacement(item *models.AuctionItem, bidderID uuid.UUID, now time.Time) error {
	if item.Status != models.ItemStatusTrading {
		return fmt.Errorf("%w: item is %s", models.ErrInvalidState, item.Status)
	}
	if !item.EndAt.After(now) {
		return models.ErrAuctionEnded
	}
	if item.SellerID == bidderID {
		return fmt.Errorf("%w: cannot bid on own listing", models.ErrForbidden)
	}
	return nil
}

// persistAcceptedBid records one accepted bid under the already-held item
// lock: account lock, funds check, release of the bidder's previous hold on
// this item, the bid row, the new fund hold and the price move. The bidder's
// outstanding hold on an item always equals their top standing bid.
func (s *Service) persistAcceptedBid(ctx context.Context, tx store.Tx, item *models.AuctionItem, bidderID uuid.UUID, amount decimal.Decimal, isAuto bool, maxAmount *decimal.Decimal, key string, now time.Time) (*models.Bid, error) {
	balance, err := ledger.BalanceForUpdate(ctx, tx, bidderID)
	if err != nil {
		return nil, err
	}
	held, err := tx.OutstandingHold(ctx, item.ID, bidderID)
	if err != nil {
		return nil, err
	}
	// The previous hold on this item is released below, so it counts as
	// available again when checking funds.
	if balance.Add(held).LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, bid %s", models.ErrInsufficientFunds, balance.Add(held), amount)
	}
	if err := ledger.ReleaseHold(ctx, tx, now, item.ID, bidderID, "superseded by higher own bid"); err != nil {
		return nil, err
	}

	bid := &models.Bid{
		ID:             uuid.New(),
		ItemID:         item.ID,
		BidderID:       bidderID,
		Amount:         amount,
		IsAuto:         isAuto,
		MaxAmount:      maxAmount,
		IdempotencyKey: key,
		CreatedAt:      now,
	}
	if err := tx.InsertBid(ctx, bid); err != nil {
		return nil, fmt.Errorf("insert bid: %w", err)
	}
	if _, err := ledger.Append(ctx, tx, now, ledger.EntryInput{
		OwnerID:     bidderID,
		Kind:        models.EntryLock,
		Amount:      amount.Neg(),
		Description: fmt.Sprintf("hold for bid on %s", item.Title),
		ItemID:      &item.ID,
		BidID:       &bid.ID,
	}); err != nil {
		return nil, err
	}

	item.CurrentPrice = amount
	item.UpdatedAt = now
	return bid, nil
}

// runCascade resolves and persists proxy counter-bids one step at a time.
// A ceiling holder who cannot fund their counter drops out of the chain and
// resolution continues over the remaining ceilings.
func (s *Service) runCascade(ctx context.Context, tx store.Tx, item *models.AuctionItem, trigger *models.Bid, batch *events.Batch, now time.Time) ([]*models.Bid, error) {
	ceilings, err := tx.ProxyCeilings(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("proxy ceilings: %w", err)
	}
	if len(ceilings) == 0 {
		return nil, nil
	}

	dropped := make(map[uuid.UUID]bool)
	leader := trigger.BidderID
	var cascade []*models.Bid
	for {
		remaining := ceilings[:0:0]
		for _, c := range ceilings {
			if !dropped[c.BidderID] {
				remaining = append(remaining, c)
			}
		}
		chain := ResolveCascade(leader, item.CurrentPrice, item.BidStep, remaining)
		if len(chain) == 0 {
			return cascade, nil
		}

		next := chain[0]
		prevPrice := item.CurrentPrice
		bid, err := s.persistAcceptedBid(ctx, tx, item, next.BidderID, next.Amount, true, nil, "auto-"+uuid.New().String(), now)
		if errors.Is(err, models.ErrInsufficientFunds) {
			dropped[next.BidderID] = true
			continue
		}
		if err != nil {
			return nil, err
		}
		cascade = append(cascade, bid)
		addBidEvent(batch, bid, prevPrice, now)
		leader = next.BidderID
	}
}

// replayResult rebuilds the caller-visible result for an idempotent replay.
func (s *Service) replayResult(ctx context.Context, bid *models.Bid) (*PlaceResult, error) {
	res := &PlaceResult{Bid: bid}
	if item, err := s.st.Item(ctx, bid.ItemID); err == nil {
		res.EndAt = item.EndAt
	}
	return res, nil
}

func addBidEvent(batch *events.Batch, bid *models.Bid, prevPrice decimal.Decimal, now time.Time) {
	ev := models.BidPlacedEvent{
		Type:          models.EventBidPlaced,
		EventID:       uuid.New().String(),
		ItemID:        bid.ItemID,
		BidID:         bid.ID,
		Bidder:        models.BidderTag(bid.BidderID),
		Amount:        bid.Amount,
		PreviousPrice: prevPrice,
		IsAuto:        bid.IsAuto,
		Timestamp:     now,
	}
	batch.AddItem(ev)
	batch.AddGlobal(ev)
}
