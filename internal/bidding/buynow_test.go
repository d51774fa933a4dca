package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

func (f *fixture) buyNowItem(t *testing.T, price int64) *models.AuctionItem {
	t.Helper()
	item := f.tradingItem(t, 10*time.Minute)
	p := d(price)
	item.BuyNowPrice = &p
	require.NoError(t, f.st.CreateItem(context.Background(), item))
	return item
}

func TestBuyNowCreatesOrder(t *testing.T) {
	f := newFixture(t)
	item := f.buyNowItem(t, 8000)
	buyer := uuid.New()
	f.deposit(t, buyer, 10000)

	res, err := f.svc.BuyNow(context.Background(), buyer, item.ID)
	require.NoError(t, err)

	require.NotNil(t, res.Order)
	assert.True(t, res.Order.Price.Equal(d(8000)))
	assert.True(t, res.Order.Commission.Equal(d(400)), "five percent commission on the buy-now price")
	assert.True(t, res.Order.Total.Equal(d(8400)))
	assert.Equal(t, buyer, res.Order.BuyerID)
	assert.Equal(t, models.OrderStatusCreated, res.Order.Status)

	got, err := f.st.Item(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusSold, got.Status)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, buyer, *got.WinnerID)
	require.NotNil(t, got.FinalPrice)
	assert.True(t, got.FinalPrice.Equal(d(8000)))

	assert.True(t, f.balance(t, buyer).Equal(d(1600)), "price and commission both debited")

	order, err := f.st.OrderForItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, order.ID)
	history := f.st.OrderEvents(order.ID)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderStatusCreated, history[0].Status)
	assert.Equal(t, buyer, history[0].ActorID, "buy-now orders record the buyer as actor")
}

func TestBuyNowReleasesLosingHolds(t *testing.T) {
	f := newFixture(t)
	item := f.buyNowItem(t, 8000)
	loser := uuid.New()
	buyer := uuid.New()
	f.deposit(t, loser, 5000)
	f.deposit(t, buyer, 10000)

	_, err := f.svc.PlaceBid(context.Background(), loser, item.ID, d(1100), "l1")
	require.NoError(t, err)
	assert.True(t, f.balance(t, loser).Equal(d(3900)))

	_, err = f.svc.BuyNow(context.Background(), buyer, item.ID)
	require.NoError(t, err)

	assert.True(t, f.balance(t, loser).Equal(d(5000)), "losing hold released on sale")
}

func TestBuyNowWithoutPrice(t *testing.T) {
	f := newFixture(t)
	item := f.tradingItem(t, 10*time.Minute)
	buyer := uuid.New()
	f.deposit(t, buyer, 10000)

	_, err := f.svc.BuyNow(context.Background(), buyer, item.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestBuyNowInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	item := f.buyNowItem(t, 8000)
	buyer := uuid.New()
	f.deposit(t, buyer, 500)

	_, err := f.svc.BuyNow(context.Background(), buyer, item.ID)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestBuyNowOnSoldItemRejected(t *testing.T) {
	f := newFixture(t)
	item := f.buyNowItem(t, 8000)
	first := uuid.New()
	second := uuid.New()
	f.deposit(t, first, 10000)
	f.deposit(t, second, 10000)

	_, err := f.svc.BuyNow(context.Background(), first, item.ID)
	require.NoError(t, err)
	_, err = f.svc.BuyNow(context.Background(), second, item.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestBuyNowEmitsBidAndEndedEvents(t *testing.T) {
	f := newFixture(t)
	item := f.buyNowItem(t, 8000)
	buyer := uuid.New()
	f.deposit(t, buyer, 10000)

	_, err := f.svc.BuyNow(context.Background(), buyer, item.ID)
	require.NoError(t, err)

	require.Len(t, f.sink.batches, 1)
	batch := f.sink.batches[0]
	require.Len(t, batch.Item, 2)
	assert.IsType(t, models.BidPlacedEvent{}, batch.Item[0])
	ended, ok := batch.Item[1].(models.AuctionEndedEvent)
	require.True(t, ok)
	require.NotNil(t, ended.WinnerID)
	assert.Equal(t, buyer, *ended.WinnerID)
	assert.True(t, ended.FinalPrice.Equal(decimal.NewFromInt(8000)))
	assert.Equal(t, batch.Item, batch.Global)
}
