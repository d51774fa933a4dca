package bidding

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigaf/car-auction-sub000/internal/store"
)

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func ceiling(id uuid.UUID, max int64, at time.Time) store.ProxyCeiling {
	return store.ProxyCeiling{BidderID: id, Max: d(max), CreatedAt: at}
}

func TestResolveCascadeNoCeilings(t *testing.T) {
	assert.Nil(t, ResolveCascade(uuid.New(), d(1000), d(100), nil))
}

func TestResolveCascadeSingleCounter(t *testing.T) {
	base := time.Now()
	proxy := uuid.New()
	manual := uuid.New()

	chain := ResolveCascade(manual, d(1200), d(100), []store.ProxyCeiling{
		ceiling(proxy, 2000, base),
	})

	require.Len(t, chain, 1)
	assert.Equal(t, proxy, chain[0].BidderID)
	assert.True(t, chain[0].Amount.Equal(d(1300)))
}

func TestResolveCascadeLeaderDoesNotCounterItself(t *testing.T) {
	base := time.Now()
	proxy := uuid.New()

	chain := ResolveCascade(proxy, d(1100), d(100), []store.ProxyCeiling{
		ceiling(proxy, 2000, base),
	})
	assert.Empty(t, chain, "the current leader never outbids themselves")
}

func TestResolveCascadeTwoProxiesDuel(t *testing.T) {
	base := time.Now()
	low := uuid.New()
	high := uuid.New()

	// low holds 1500, high holds 2000, high just led at 1200: the duel runs
	// until low is exhausted and high ends leading one step past low's
	// ceiling.
	chain := ResolveCascade(high, d(1200), d(100), []store.ProxyCeiling{
		ceiling(low, 1500, base),
		ceiling(high, 2000, base.Add(time.Second)),
	})

	require.Len(t, chain, 4)
	want := []struct {
		bidder uuid.UUID
		amount int64
	}{
		{low, 1300},
		{high, 1400},
		{low, 1500},
		{high, 1600},
	}
	for i, w := range want {
		assert.Equal(t, w.bidder, chain[i].BidderID, "step %d", i)
		assert.True(t, chain[i].Amount.Equal(d(w.amount)), "step %d: got %s", i, chain[i].Amount)
	}
}

func TestResolveCascadeEqualCeilingsEarlierWins(t *testing.T) {
	base := time.Now()
	first := uuid.New()
	second := uuid.New()
	manual := uuid.New()

	chain := ResolveCascade(manual, d(1400), d(100), []store.ProxyCeiling{
		ceiling(second, 1500, base.Add(time.Second)),
		ceiling(first, 1500, base),
	})

	require.Len(t, chain, 1)
	assert.Equal(t, first, chain[0].BidderID, "ties break to the earlier ceiling")
	assert.True(t, chain[0].Amount.Equal(d(1500)))
}

func TestResolveCascadeCeilingBelowNextStep(t *testing.T) {
	base := time.Now()
	proxy := uuid.New()

	// 1250 cannot cover the next full step of 1300.
	chain := ResolveCascade(uuid.New(), d(1200), d(100), []store.ProxyCeiling{
		ceiling(proxy, 1250, base),
	})
	assert.Empty(t, chain)
}

func TestResolveCascadeNonPositiveStep(t *testing.T) {
	assert.Nil(t, ResolveCascade(uuid.New(), d(1000), decimal.Zero, []store.ProxyCeiling{
		ceiling(uuid.New(), 2000, time.Now()),
	}))
}
