package bidding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/ledger"
	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

// Rollback administratively removes the current top bid of an active
// auction. A bid that is no longer the highest is rejected: removing it
// would silently corrupt the price history. Returns the recomputed current
// price.
func (s *Service) Rollback(ctx context.Context, bidID uuid.UUID) (decimal.Decimal, error) {
	var newPrice decimal.Decimal
	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()

		bid, err := tx.BidByID(ctx, bidID)
		if err != nil {
			return err
		}
		item, err := tx.ItemForUpdate(ctx, bid.ItemID)
		if err != nil {
			return err
		}
		if item.Status != models.ItemStatusTrading {
			return fmt.Errorf("%w: item is %s", models.ErrInvalidState, item.Status)
		}
		highest, err := tx.HighestBid(ctx, item.ID)
		if err != nil {
			return err
		}
		if highest.ID != bid.ID {
			return fmt.Errorf("%w: bid is not the current highest", models.ErrConflict)
		}

		if err := ledger.ReleaseHold(ctx, tx, now, item.ID, bid.BidderID, "bid rolled back"); err != nil {
			return err
		}
		if err := tx.DeleteBid(ctx, bid.ID); err != nil {
			return fmt.Errorf("delete bid: %w", err)
		}

		// The bidder's hold must keep backing their top remaining bid,
		// if they still have one.
		if remaining, err := tx.HighestBidByBidder(ctx, item.ID, bid.BidderID); err == nil {
			if _, err := ledger.Append(ctx, tx, now, ledger.EntryInput{
				OwnerID:     bid.BidderID,
				Kind:        models.EntryLock,
				Amount:      remaining.Amount.Neg(),
				Description: fmt.Sprintf("hold restored after rollback on %s", item.Title),
				ItemID:      &item.ID,
				BidID:       &remaining.ID,
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		switch next, err := tx.HighestBid(ctx, item.ID); {
		case err == nil:
			newPrice = next.Amount
		case errors.Is(err, models.ErrNotFound):
			newPrice = item.StartPrice
		default:
			return err
		}

		item.CurrentPrice = newPrice
		item.UpdatedAt = now
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newPrice, nil
}
