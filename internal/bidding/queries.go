package bidding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zigaf/car-auction-sub000/internal/events"
	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/settlement"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

const defaultPageSize = 50

// Item returns the current state of one item.
func (s *Service) Item(ctx context.Context, itemID uuid.UUID) (*models.AuctionItem, error) {
	return s.st.Item(ctx, itemID)
}

// BidsForItem returns a page of an item's bids, highest amount first, ties
// broken by earliest creation. Bidder identities are obscured.
func (s *Service) BidsForItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]models.PublicBid, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	bids, err := s.st.BidsForItem(ctx, itemID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicBid, len(bids))
	for i := range bids {
		out[i] = bids[i].Public()
	}
	return out, nil
}

// BidsForBidder returns a page of the bidder's own bids, most recent first.
func (s *Service) BidsForBidder(ctx context.Context, bidderID uuid.UUID, limit, offset int) ([]models.Bid, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.st.BidsForBidder(ctx, bidderID, limit, offset)
}

// ActivateItem opens a listed item for bidding.
func (s *Service) ActivateItem(ctx context.Context, itemID uuid.UUID) (*models.AuctionItem, error) {
	return s.transitionItem(ctx, itemID, models.ItemStatusTrading)
}

// RelistItem returns a cancelled item to the listed state.
func (s *Service) RelistItem(ctx context.Context, itemID uuid.UUID) (*models.AuctionItem, error) {
	return s.transitionItem(ctx, itemID, models.ItemStatusListed)
}

func (s *Service) transitionItem(ctx context.Context, itemID uuid.UUID, next models.ItemStatus) (*models.AuctionItem, error) {
	var updated *models.AuctionItem
	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		item, err := tx.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidState, item.Status, next)
		}
		item.Status = next
		item.UpdatedAt = s.now()
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelItem administratively cancels a listed or trading item, releasing
// every outstanding fund hold on it.
func (s *Service) CancelItem(ctx context.Context, itemID uuid.UUID) (*models.AuctionItem, error) {
	var (
		updated *models.AuctionItem
		batch   *events.Batch
	)
	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		item, err := tx.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		wasTrading := item.Status == models.ItemStatusTrading
		if err := settlement.Cancel(ctx, tx, item, "cancelled by administrator", now); err != nil {
			return err
		}
		if wasTrading {
			batch = events.NewBatch(item.ID)
			ended := models.AuctionEndedEvent{
				Type:       models.EventAuctionEnded,
				ItemID:     item.ID,
				WinnerID:   nil,
				FinalPrice: item.CurrentPrice,
				Timestamp:  now,
			}
			batch.AddItem(ended)
			batch.AddGlobal(ended)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	if batch != nil {
		s.sink.PublishBatch(ctx, batch)
	}
	return updated, nil
}
