package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

func TestRollbackTopBid(t *testing.T) {
	f := newFixture(t)
	item := f.tradingItem(t, 10*time.Minute)
	a := uuid.New()
	b := uuid.New()
	f.deposit(t, a, 5000)
	f.deposit(t, b, 5000)

	first, err := f.svc.PlaceBid(context.Background(), a, item.ID, d(1100), "a1")
	require.NoError(t, err)
	second, err := f.svc.PlaceBid(context.Background(), b, item.ID, d(1200), "b1")
	require.NoError(t, err)

	newPrice, err := f.svc.Rollback(context.Background(), second.Bid.ID)
	require.NoError(t, err)

	assert.True(t, newPrice.Equal(d(1100)), "price falls back to the next highest bid")
	assert.True(t, f.balance(t, b).Equal(d(5000)), "removed bidder's hold is released")
	assert.True(t, f.balance(t, a).Equal(d(3900)), "surviving bidder keeps their hold")

	bids, err := f.st.BidsForItem(context.Background(), item.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, first.Bid.ID, bids[0].ID)

	got, err := f.st.Item(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(d(1100)))
}

func TestRollbackOnlyBidRestoresStartPrice(t *testing.T) {
	f := newFixture(t)
	item := f.tradingItem(t, 10*time.Minute)
	a := uuid.New()
	f.deposit(t, a, 5000)

	res, err := f.svc.PlaceBid(context.Background(), a, item.ID, d(1100), "a1")
	require.NoError(t, err)

	newPrice, err := f.svc.Rollback(context.Background(), res.Bid.ID)
	require.NoError(t, err)
	assert.True(t, newPrice.Equal(d(1000)), "price falls back to the start price")
	assert.True(t, f.balance(t, a).Equal(d(5000)))
}

func TestRollbackNonTopBidRejected(t *testing.T) {
	f := newFixture(t)
	item := f.tradingItem(t, 10*time.Minute)
	a := uuid.New()
	b := uuid.New()
	f.deposit(t, a, 5000)
	f.deposit(t, b, 5000)

	first, err := f.svc.PlaceBid(context.Background(), a, item.ID, d(1100), "a1")
	require.NoError(t, err)
	_, err = f.svc.PlaceBid(context.Background(), b, item.ID, d(1200), "b1")
	require.NoError(t, err)

	_, err = f.svc.Rollback(context.Background(), first.Bid.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRollbackRestoresEarlierOwnHold(t *testing.T) {
	f := newFixture(t)
	item := f.tradingItem(t, 10*time.Minute)
	a := uuid.New()
	b := uuid.New()
	f.deposit(t, a, 5000)
	f.deposit(t, b, 5000)

	_, err := f.svc.PlaceBid(context.Background(), a, item.ID, d(1100), "a1")
	require.NoError(t, err)
	_, err = f.svc.PlaceBid(context.Background(), b, item.ID, d(1200), "b1")
	require.NoError(t, err)
	top, err := f.svc.PlaceBid(context.Background(), a, item.ID, d(1300), "a2")
	require.NoError(t, err)

	newPrice, err := f.svc.Rollback(context.Background(), top.Bid.ID)
	require.NoError(t, err)

	assert.True(t, newPrice.Equal(d(1200)))
	// a's surviving 1100 bid must be backed by a hold again.
	assert.True(t, f.balance(t, a).Equal(d(3900)))
}

func TestRollbackUnknownBid(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Rollback(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRollbackOnSoldItemRejected(t *testing.T) {
	f := newFixture(t)
	buyNow := d(8000)
	item := f.tradingItem(t, 10*time.Minute)
	item.BuyNowPrice = &buyNow
	require.NoError(t, f.st.CreateItem(context.Background(), item))
	a := uuid.New()
	buyer := uuid.New()
	f.deposit(t, a, 5000)
	f.deposit(t, buyer, 10000)

	res, err := f.svc.PlaceBid(context.Background(), a, item.ID, d(1100), "a1")
	require.NoError(t, err)
	_, err = f.svc.BuyNow(context.Background(), buyer, item.ID)
	require.NoError(t, err)

	_, err = f.svc.Rollback(context.Background(), res.Bid.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}
