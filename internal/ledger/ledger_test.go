package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func TestAppendCarriesRunningBalance(t *testing.T) {
	st := store.NewMemory()
	owner := uuid.New()

	var entries []*models.LedgerEntry
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, amount := range []int64{1000, -300, 500} {
			e, err := Append(ctx, tx, testNow, EntryInput{
				OwnerID: owner,
				Kind:    models.EntryDeposit,
				Amount:  decimal.NewFromInt(amount),
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.True(t, entries[0].BalanceAfter.Equal(decimal.NewFromInt(1000)))
	assert.True(t, entries[1].BalanceAfter.Equal(decimal.NewFromInt(700)))
	assert.True(t, entries[2].BalanceAfter.Equal(decimal.NewFromInt(1200)))

	balance, err := st.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1200)), "balance is the sum of all entries")
}

func TestReleaseHoldNetsLockToZero(t *testing.T) {
	st := store.NewMemory()
	owner := uuid.New()
	itemID := uuid.New()

	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := Append(ctx, tx, testNow, EntryInput{
			OwnerID: owner,
			Kind:    models.EntryDeposit,
			Amount:  decimal.NewFromInt(2000),
		}); err != nil {
			return err
		}
		if _, err := Append(ctx, tx, testNow, EntryInput{
			OwnerID: owner,
			Kind:    models.EntryLock,
			Amount:  decimal.NewFromInt(-1100),
			ItemID:  &itemID,
		}); err != nil {
			return err
		}

		held, err := tx.OutstandingHold(ctx, itemID, owner)
		if err != nil {
			return err
		}
		assert.True(t, held.Equal(decimal.NewFromInt(1100)))

		if err := ReleaseHold(ctx, tx, testNow, itemID, owner, "test release"); err != nil {
			return err
		}
		held, err = tx.OutstandingHold(ctx, itemID, owner)
		if err != nil {
			return err
		}
		assert.True(t, held.IsZero(), "unlock nets the lock out exactly")
		return nil
	})
	require.NoError(t, err)

	balance, err := st.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(2000)))
}

func TestReleaseHoldNoopWhenNothingHeld(t *testing.T) {
	st := store.NewMemory()
	owner := uuid.New()
	itemID := uuid.New()

	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return ReleaseHold(ctx, tx, testNow, itemID, owner, "nothing to do")
	})
	require.NoError(t, err)

	entries, err := st.EntriesForOwner(context.Background(), owner, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "no stray unlock entry")
}

func TestReleaseAllHoldsSparesException(t *testing.T) {
	st := store.NewMemory()
	winner := uuid.New()
	loser := uuid.New()
	itemID := uuid.New()

	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for owner, amount := range map[uuid.UUID]int64{winner: -5000, loser: -2000} {
			if _, err := Append(ctx, tx, testNow, EntryInput{
				OwnerID: owner,
				Kind:    models.EntryLock,
				Amount:  decimal.NewFromInt(amount),
				ItemID:  &itemID,
			}); err != nil {
				return err
			}
		}
		return ReleaseAllHolds(ctx, tx, testNow, itemID, "auction ended", winner)
	})
	require.NoError(t, err)

	err = st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		winnerHeld, err := tx.OutstandingHold(ctx, itemID, winner)
		require.NoError(t, err)
		assert.True(t, winnerHeld.Equal(decimal.NewFromInt(5000)), "the winner's hold survives")
		loserHeld, err := tx.OutstandingHold(ctx, itemID, loser)
		require.NoError(t, err)
		assert.True(t, loserHeld.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestDeposit(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, clock)
	owner := uuid.New()

	entry, err := svc.Deposit(context.Background(), owner, decimal.NewFromInt(5000), "initial funding")
	require.NoError(t, err)
	assert.Equal(t, models.EntryDeposit, entry.Kind)
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(5000)))

	balance, err := svc.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(5000)))
}

func TestDepositRejectsNonPositive(t *testing.T) {
	svc := NewService(store.NewMemory(), clock)
	_, err := svc.Deposit(context.Background(), uuid.New(), decimal.Zero, "zero")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = svc.Deposit(context.Background(), uuid.New(), decimal.NewFromInt(-100), "negative")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}
