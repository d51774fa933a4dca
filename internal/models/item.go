package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemStatus is the lifecycle state of an auction item.
type ItemStatus string

const (
	ItemStatusImported  ItemStatus = "imported"
	ItemStatusListed    ItemStatus = "listed"
	ItemStatusTrading   ItemStatus = "trading"
	ItemStatusSold      ItemStatus = "sold"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// validTransitions is the only source of truth for status changes.
// sold is terminal; cancelled can be re-listed by an administrator.
var validTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusImported:  {ItemStatusListed},
	ItemStatusListed:    {ItemStatusTrading, ItemStatusCancelled},
	ItemStatusTrading:   {ItemStatusSold, ItemStatusCancelled},
	ItemStatusCancelled: {ItemStatusListed},
}

// CanTransitionTo reports whether a status change is allowed.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AuctionItem represents a vehicle lot up for auction.
//
// CurrentPrice is always the starting price or the amount of the highest
// persisted bid; it is only mutated inside the transaction that persists
// the bid or the settlement decision.
type AuctionItem struct {
	ID           uuid.UUID        `json:"id"`
	SellerID     uuid.UUID        `json:"seller_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	StartPrice   decimal.Decimal  `json:"start_price"`
	CurrentPrice decimal.Decimal  `json:"current_price"`
	BidStep      decimal.Decimal  `json:"bid_step"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice  *decimal.Decimal `json:"buy_now_price,omitempty"`
	WinnerID     *uuid.UUID       `json:"winner_id,omitempty"`
	FinalPrice   *decimal.Decimal `json:"final_price,omitempty"`
	Status       ItemStatus       `json:"status"`
	StartAt      time.Time        `json:"start_at"`
	EndAt        time.Time        `json:"end_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// MinNextBid returns the lowest amount the next bid must reach.
func (i *AuctionItem) MinNextBid() decimal.Decimal {
	return i.CurrentPrice.Add(i.BidStep)
}

// MeetsReserve reports whether amount clears the reserve price, if one is set.
func (i *AuctionItem) MeetsReserve(amount decimal.Decimal) bool {
	if i.ReservePrice == nil {
		return true
	}
	return amount.Cmp(*i.ReservePrice) >= 0
}
