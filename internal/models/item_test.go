package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestItemStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ItemStatus
		to      ItemStatus
		allowed bool
	}{
		{ItemStatusImported, ItemStatusListed, true},
		{ItemStatusImported, ItemStatusTrading, false},
		{ItemStatusListed, ItemStatusTrading, true},
		{ItemStatusListed, ItemStatusCancelled, true},
		{ItemStatusListed, ItemStatusSold, false},
		{ItemStatusTrading, ItemStatusSold, true},
		{ItemStatusTrading, ItemStatusCancelled, true},
		{ItemStatusTrading, ItemStatusListed, false},
		{ItemStatusSold, ItemStatusTrading, false},
		{ItemStatusSold, ItemStatusCancelled, false},
		{ItemStatusCancelled, ItemStatusListed, true},
		{ItemStatusCancelled, ItemStatusTrading, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestMinNextBid(t *testing.T) {
	item := AuctionItem{
		CurrentPrice: decimal.NewFromInt(1000),
		BidStep:      decimal.NewFromInt(100),
	}
	assert.True(t, item.MinNextBid().Equal(decimal.NewFromInt(1100)))
}

func TestMeetsReserve(t *testing.T) {
	item := AuctionItem{}
	assert.True(t, item.MeetsReserve(decimal.NewFromInt(1)), "no reserve means any amount clears")

	reserve := decimal.NewFromInt(6000)
	item.ReservePrice = &reserve
	assert.False(t, item.MeetsReserve(decimal.NewFromInt(5999)))
	assert.True(t, item.MeetsReserve(decimal.NewFromInt(6000)))
	assert.True(t, item.MeetsReserve(decimal.NewFromInt(6001)))
}

func TestBidderTagStableAndAnonymous(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, BidderTag(a), BidderTag(a), "same bidder always maps to the same tag")
	assert.NotEqual(t, BidderTag(a), BidderTag(b))
	assert.True(t, strings.HasPrefix(BidderTag(a), "bidder-"))
	assert.Len(t, BidderTag(a), len("bidder-")+8)
}

func TestPublicBidHidesBidder(t *testing.T) {
	bid := Bid{
		ID:        uuid.New(),
		ItemID:    uuid.New(),
		BidderID:  uuid.New(),
		Amount:    decimal.NewFromInt(1100),
		CreatedAt: time.Now(),
	}
	pub := bid.Public()
	assert.Equal(t, bid.ID, pub.ID)
	assert.Equal(t, BidderTag(bid.BidderID), pub.Bidder)
	assert.NotContains(t, pub.Bidder, bid.BidderID.String())
}
