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

// BuyNowResult is the outcome of a buy-now purchase.
type BuyNowResult struct {
	Bid   *models.Bid   `json:"bid"`
	Order *models.Order `json:"order"`
}

// BuyNow purchases the item at its fixed buy-now price, bypassing the
// scheduler: the same lock discipline as placement collapsed to a single
// step, finished by the shared settlement finalizer.
func (s *Service) BuyNow(ctx context.Context, bidderID, itemID uuid.UUID) (*BuyNowResult, error) {
	var (
		result *BuyNowResult
		batch  *events.Batch
	)
	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()

		item, err := tx.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if err := s.validatePlacement(item, bidderID, now); err != nil {
			return err
		}
		if item.BuyNowPrice == nil {
			return fmt.Errorf("%w: item has no buy-now price", models.ErrInvalidState)
		}

		price := *item.BuyNowPrice
		prevPrice := item.CurrentPrice
		bid, err := s.persistAcceptedBid(ctx, tx, item, bidderID, price, false, nil, "buynow-"+uuid.New().String(), now)
		if err != nil {
			return err
		}

		order, err := settlement.Finalize(ctx, tx, item, bid, s.commission, bidderID, now)
		if err != nil {
			return err
		}

		batch = events.NewBatch(item.ID)
		addBidEvent(batch, bid, prevPrice, now)
		ended := models.AuctionEndedEvent{
			Type:       models.EventAuctionEnded,
			ItemID:     item.ID,
			WinnerID:   &bid.BidderID,
			FinalPrice: price,
			Timestamp:  now,
		}
		batch.AddItem(ended)
		batch.AddGlobal(ended)

		result = &BuyNowResult{Bid: bid, Order: order}
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
