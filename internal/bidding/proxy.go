package bidding

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/store"
)

// Counter is one synthetic counter-bid produced by cascade resolution.
type Counter struct {
	BidderID uuid.UUID
	Amount   decimal.Decimal
}

// ResolveCascade computes the chain of proxy counter-bids triggered by a bid
// landing at price with leaderID leading. It is a pure function over a
// snapshot of standing ceilings: ceilings are walked in ascending
// (ceiling, created) order, each qualifying holder counters at price+step
// and becomes the leader, and the chain stops when no remaining ceiling can
// top the current price by a full step. The returned counters are in the
// exact order they must be persisted and broadcast.
func ResolveCascade(leaderID uuid.UUID, price, step decimal.Decimal, ceilings []store.ProxyCeiling) []Counter {
	if !step.IsPositive() || len(ceilings) == 0 {
		return nil
	}

	sorted := make([]store.ProxyCeiling, len(ceilings))
	copy(sorted, ceilings)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Max.Equal(sorted[j].Max) {
			return sorted[i].Max.LessThan(sorted[j].Max)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var chain []Counter
	for {
		next := price.Add(step)
		found := false
		for _, c := range sorted {
			if c.BidderID == leaderID {
				continue
			}
			if c.Max.Cmp(next) >= 0 {
				chain = append(chain, Counter{BidderID: c.BidderID, Amount: next})
				leaderID = c.BidderID
				price = next
				found = true
				break
			}
		}
		if !found {
			return chain
		}
	}
}
