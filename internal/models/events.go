package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types carried on the broadcast channels. Field names and emission
// order are the externally observable contract; clients replay price history
// from them without re-querying.
const (
	EventBidPlaced       = "bid_placed"
	EventAuctionExtended = "auction_extended"
	EventAuctionEnded    = "auction_ended"
	EventWatcherCount    = "watcher_count"
)

// BidPlacedEvent is published for every persisted bid, manual or proxy.
type BidPlacedEvent struct {
	Type          string          `json:"type"`
	EventID       string          `json:"event_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	BidID         uuid.UUID       `json:"bid_id"`
	Bidder        string          `json:"bidder"`
	Amount        decimal.Decimal `json:"amount"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	IsAuto        bool            `json:"is_auto"`
	Timestamp     time.Time       `json:"timestamp"`
}

// AuctionExtendedEvent reports an anti-snipe deadline extension.
type AuctionExtendedEvent struct {
	Type      string    `json:"type"`
	ItemID    uuid.UUID `json:"item_id"`
	EndAt     time.Time `json:"end_at"`
	Timestamp time.Time `json:"timestamp"`
}

// AuctionEndedEvent reports the terminal transition of an item. WinnerID is
// null when the auction was cancelled.
type AuctionEndedEvent struct {
	Type       string          `json:"type"`
	ItemID     uuid.UUID       `json:"item_id"`
	WinnerID   *uuid.UUID      `json:"winner_id"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// WatcherCountEvent reports the live connection count of an item room.
type WatcherCountEvent struct {
	Type   string    `json:"type"`
	ItemID uuid.UUID `json:"item_id"`
	Count  int       `json:"count"`
}
