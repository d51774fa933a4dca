package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is an immutable record of a single bid on an item. Bids are never
// updated, and are deleted only by the administrative rollback path.
type Bid struct {
	ID             uuid.UUID        `json:"id"`
	ItemID         uuid.UUID        `json:"item_id"`
	BidderID       uuid.UUID        `json:"bidder_id"`
	Amount         decimal.Decimal  `json:"amount"`
	IsAuto         bool             `json:"is_auto"`
	MaxAmount      *decimal.Decimal `json:"max_amount,omitempty"`
	IdempotencyKey string           `json:"idempotency_key"`
	CreatedAt      time.Time        `json:"created_at"`
}

// BidderTag returns the short opaque tag shown to third parties instead of
// the raw bidder identifier.
func BidderTag(bidderID uuid.UUID) string {
	sum := sha256.Sum256([]byte(bidderID.String()))
	return "bidder-" + hex.EncodeToString(sum[:])[:8]
}

// PublicBid is the third-party view of a bid with the bidder obscured.
type PublicBid struct {
	ID        uuid.UUID       `json:"id"`
	ItemID    uuid.UUID       `json:"item_id"`
	Bidder    string          `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
	IsAuto    bool            `json:"is_auto"`
	CreatedAt time.Time       `json:"created_at"`
}

// Public returns the obscured view of the bid.
func (b *Bid) Public() PublicBid {
	return PublicBid{
		ID:        b.ID,
		ItemID:    b.ItemID,
		Bidder:    BidderTag(b.BidderID),
		Amount:    b.Amount,
		IsAuto:    b.IsAuto,
		CreatedAt: b.CreatedAt,
	}
}
