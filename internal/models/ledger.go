package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryWithdraw   EntryKind = "withdraw"
	EntryLock       EntryKind = "lock"
	EntryUnlock     EntryKind = "unlock"
	EntryDebit      EntryKind = "debit"
	EntryCommission EntryKind = "commission"
)

// LedgerEntry is one append-only fund movement. A user's balance equals the
// sum of all their entries; BalanceAfter is the running balance captured at
// insert time under the owner's exclusive lock. Entries are never mutated.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	Kind         EntryKind       `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	ItemID       *uuid.UUID      `json:"item_id,omitempty"`
	BidID        *uuid.UUID      `json:"bid_id,omitempty"`
	OrderID      *uuid.UUID      `json:"order_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
