package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatusCreated is the only status the engine itself writes; later
// transitions belong to the fulfilment service.
const OrderStatusCreated = "created"

// Order is created exactly once per sold item, referencing the two ledger
// debits (price and commission) recorded in the same transaction.
type Order struct {
	ID                uuid.UUID       `json:"id"`
	ItemID            uuid.UUID       `json:"item_id"`
	BuyerID           uuid.UUID       `json:"buyer_id"`
	Price             decimal.Decimal `json:"price"`
	Commission        decimal.Decimal `json:"commission"`
	Total             decimal.Decimal `json:"total"`
	Status            string          `json:"status"`
	PriceEntryID      uuid.UUID       `json:"price_entry_id"`
	CommissionEntryID uuid.UUID       `json:"commission_entry_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

// OrderStatusEvent is one row of an order's append-only status history.
type OrderStatusEvent struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	Status      string     `json:"status"`
	Comment     string     `json:"comment,omitempty"`
	EstimatedAt *time.Time `json:"estimated_at,omitempty"`
	ActorID     uuid.UUID  `json:"actor_id"`
	CreatedAt   time.Time  `json:"created_at"`
}
