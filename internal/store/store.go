// Package store defines the transactional persistence contract shared by the
// Postgres implementation and the in-memory implementation used in tests.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

// Hold is an outstanding fund reservation behind a bid: the net of lock and
// unlock entries for one item/bidder pair.
type Hold struct {
	BidderID uuid.UUID
	Amount   decimal.Decimal
}

// ProxyCeiling is the standing auto-bid ceiling of one bidder on one item.
type ProxyCeiling struct {
	BidderID  uuid.UUID
	Max       decimal.Decimal
	CreatedAt time.Time
}

// Tx is the set of operations available inside one exclusive transaction.
// ItemForUpdate and LockAccount take row-level exclusive locks; lock order is
// always item first, then account, across the whole engine.
type Tx interface {
	ItemForUpdate(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error)
	UpdateItem(ctx context.Context, item *models.AuctionItem) error

	BidByKey(ctx context.Context, key string) (*models.Bid, error)
	BidByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	InsertBid(ctx context.Context, b *models.Bid) error
	DeleteBid(ctx context.Context, id uuid.UUID) error
	HighestBid(ctx context.Context, itemID uuid.UUID) (*models.Bid, error)
	HighestBidByBidder(ctx context.Context, itemID, bidderID uuid.UUID) (*models.Bid, error)
	ProxyCeilings(ctx context.Context, itemID uuid.UUID) ([]ProxyCeiling, error)

	LockAccount(ctx context.Context, ownerID uuid.UUID) error
	SumEntries(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
	InsertEntry(ctx context.Context, e *models.LedgerEntry) error
	OutstandingHold(ctx context.Context, itemID, bidderID uuid.UUID) (decimal.Decimal, error)
	OutstandingHolds(ctx context.Context, itemID uuid.UUID) ([]Hold, error)

	InsertOrder(ctx context.Context, o *models.Order) error
	InsertOrderEvent(ctx context.Context, ev *models.OrderStatusEvent) error
}

// Store is the top-level persistence interface. WithTx runs fn inside one
// ACID transaction; any error rolls everything back.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateItem(ctx context.Context, item *models.AuctionItem) error
	Item(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error)
	ExpiredTradingItems(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	BidByKey(ctx context.Context, key string) (*models.Bid, error)
	BidsForItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]models.Bid, error)
	BidsForBidder(ctx context.Context, bidderID uuid.UUID, limit, offset int) ([]models.Bid, error)

	Balance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
	EntriesForOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)

	OrderForItem(ctx context.Context, itemID uuid.UUID) (*models.Order, error)

	CreateBotConfig(ctx context.Context, cfg *models.BotConfig) error
	UpdateBotConfig(ctx context.Context, cfg *models.BotConfig) error
	DeleteBotConfig(ctx context.Context, id uuid.UUID) error
	BotConfig(ctx context.Context, id uuid.UUID) (*models.BotConfig, error)
	BotConfigs(ctx context.Context) ([]models.BotConfig, error)
	ActiveBotConfigs(ctx context.Context) ([]models.BotConfig, error)
	SetBotLastBid(ctx context.Context, id uuid.UUID, t time.Time) error
}
