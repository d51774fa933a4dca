// Package ledger implements the append-only balance store. Balances are
// derived, never stored: every mutation locks the owner's account row,
// recomputes the current balance and appends one entry carrying the running
// balance. The lock/unlock entry pair reserves funds behind an outstanding
// bid.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

// EntryInput describes one fund movement to record.
type EntryInput struct {
	OwnerID     uuid.UUID
	Kind        models.EntryKind
	Amount      decimal.Decimal
	Description string
	ItemID      *uuid.UUID
	BidID       *uuid.UUID
	OrderID     *uuid.UUID
}

// Append records one entry inside the caller's transaction. It locks the
// owner's account row, recomputes the balance and writes the entry with
// balance_after = balance + amount. This recompute-under-lock step is what
// prevents lost updates between concurrent writers on the same owner.
func Append(ctx context.Context, tx store.Tx, now time.Time, in EntryInput) (*models.LedgerEntry, error) {
	if err := tx.LockAccount(ctx, in.OwnerID); err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	balance, err := tx.SumEntries(ctx, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("sum entries: %w", err)
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		OwnerID:      in.OwnerID,
		Kind:         in.Kind,
		Amount:       in.Amount,
		BalanceAfter: balance.Add(in.Amount),
		Description:  in.Description,
		ItemID:       in.ItemID,
		BidID:        in.BidID,
		OrderID:      in.OrderID,
		CreatedAt:    now,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return entry, nil
}

// BalanceForUpdate locks the owner's account row and returns the recomputed
// balance. Callers use it for mutation decisions; the unlocked Store.Balance
// read is display-only.
func BalanceForUpdate(ctx context.Context, tx store.Tx, ownerID uuid.UUID) (decimal.Decimal, error) {
	if err := tx.LockAccount(ctx, ownerID); err != nil {
		return decimal.Zero, fmt.Errorf("lock account: %w", err)
	}
	return tx.SumEntries(ctx, ownerID)
}

// ReleaseHold nets out the outstanding lock for an item/bidder pair with one
// unlock entry. It is a no-op when nothing is held.
func ReleaseHold(ctx context.Context, tx store.Tx, now time.Time, itemID, bidderID uuid.UUID, reason string) error {
	held, err := tx.OutstandingHold(ctx, itemID, bidderID)
	if err != nil {
		return fmt.Errorf("outstanding hold: %w", err)
	}
	if !held.IsPositive() {
		return nil
	}
	item := itemID
	_, err = Append(ctx, tx, now, EntryInput{
		OwnerID:     bidderID,
		Kind:        models.EntryUnlock,
		Amount:      held,
		Description: reason,
		ItemID:      &item,
	})
	return err
}

// ReleaseAllHolds unlocks every outstanding hold on an item, used when an
// auction is cancelled or after a winner is chosen.
func ReleaseAllHolds(ctx context.Context, tx store.Tx, now time.Time, itemID uuid.UUID, reason string, except ...uuid.UUID) error {
	holds, err := tx.OutstandingHolds(ctx, itemID)
	if err != nil {
		return fmt.Errorf("outstanding holds: %w", err)
	}
	skip := make(map[uuid.UUID]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}
	for _, h := range holds {
		if skip[h.BidderID] {
			continue
		}
		if err := ReleaseHold(ctx, tx, now, itemID, h.BidderID, reason); err != nil {
			return err
		}
	}
	return nil
}

// Service exposes the non-transactional ledger operations.
type Service struct {
	st  store.Store
	now func() time.Time
}

// NewService returns a ledger service. A nil now defaults to time.Now.
func NewService(st store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{st: st, now: func() time.Time { return now().UTC() }}
}

// Balance returns the owner's derived balance under a shared read. Display
// only; mutation decisions recompute under the account lock.
func (s *Service) Balance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	return s.st.Balance(ctx, ownerID)
}

// Entries returns a page of the owner's ledger history.
func (s *Service) Entries(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	return s.st.EntriesForOwner(ctx, ownerID, limit, offset)
}

// Deposit credits an account. Administrative: used to provision bot
// identities and test balances.
func (s *Service) Deposit(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal, description string) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive", models.ErrInvalidState)
	}
	var entry *models.LedgerEntry
	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		entry, err = Append(ctx, tx, s.now(), EntryInput{
			OwnerID:     ownerID,
			Kind:        models.EntryDeposit,
			Amount:      amount,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
