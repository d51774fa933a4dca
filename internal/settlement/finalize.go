// Package settlement closes out ended auctions: winner determination, fund
// transfer, order creation and hold release, one transaction per item.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/ledger"
	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

// Finalize turns a trading item into a sold one inside the caller's
// transaction: unlocks the winner's hold, debits price and commission as two
// separate recompute-under-lock entries, creates the order with its initial
// status row, unlocks every other bidder's hold and persists the terminal
// item state. It is the single order-creation path in the engine: the
// scheduler and buy-now both land here.
func Finalize(ctx context.Context, tx store.Tx, item *models.AuctionItem, winning *models.Bid, commissionRate decimal.Decimal, actorID uuid.UUID, now time.Time) (*models.Order, error) {
	if !item.Status.CanTransitionTo(models.ItemStatusSold) {
		return nil, fmt.Errorf("%w: item %s is %s", models.ErrInvalidState, item.ID, item.Status)
	}

	price := winning.Amount
	commission := price.Mul(commissionRate).Round(2)
	orderID := uuid.New()

	if err := ledger.ReleaseHold(ctx, tx, now, item.ID, winning.BidderID, "release winning hold"); err != nil {
		return nil, err
	}

	priceEntry, err := ledger.Append(ctx, tx, now, ledger.EntryInput{
		OwnerID:     winning.BidderID,
		Kind:        models.EntryDebit,
		Amount:      price.Neg(),
		Description: fmt.Sprintf("final price for %s", item.Title),
		ItemID:      &item.ID,
		BidID:       &winning.ID,
		OrderID:     &orderID,
	})
	if err != nil {
		return nil, err
	}
	commissionEntry, err := ledger.Append(ctx, tx, now, ledger.EntryInput{
		OwnerID:     winning.BidderID,
		Kind:        models.EntryCommission,
		Amount:      commission.Neg(),
		Description: fmt.Sprintf("commission for %s", item.Title),
		ItemID:      &item.ID,
		BidID:       &winning.ID,
		OrderID:     &orderID,
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:                orderID,
		ItemID:            item.ID,
		BuyerID:           winning.BidderID,
		Price:             price,
		Commission:        commission,
		Total:             price.Add(commission),
		Status:            models.OrderStatusCreated,
		PriceEntryID:      priceEntry.ID,
		CommissionEntryID: commissionEntry.ID,
		CreatedAt:         now,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	if err := tx.InsertOrderEvent(ctx, &models.OrderStatusEvent{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    models.OrderStatusCreated,
		Comment:   "auction won",
		ActorID:   actorID,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert order event: %w", err)
	}

	if err := ledger.ReleaseAllHolds(ctx, tx, now, item.ID, "auction ended", winning.BidderID); err != nil {
		return nil, err
	}

	item.Status = models.ItemStatusSold
	item.WinnerID = &winning.BidderID
	item.FinalPrice = &price
	item.CurrentPrice = price
	item.UpdatedAt = now
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return order, nil
}

// Cancel transitions an item to cancelled and releases every outstanding
// hold on it, inside the caller's transaction.
func Cancel(ctx context.Context, tx store.Tx, item *models.AuctionItem, reason string, now time.Time) error {
	if !item.Status.CanTransitionTo(models.ItemStatusCancelled) {
		return fmt.Errorf("%w: item %s is %s", models.ErrInvalidState, item.ID, item.Status)
	}
	if err := ledger.ReleaseAllHolds(ctx, tx, now, item.ID, reason); err != nil {
		return err
	}
	item.Status = models.ItemStatusCancelled
	item.UpdatedAt = now
	return tx.UpdateItem(ctx, item)
}
