package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

// Memory is an in-memory Store used by tests and local development. A single
// mutex stands in for the database's exclusive transactions: WithTx holds it
// for the whole callback, so transaction bodies observe the same isolation
// the Postgres implementation gets from row locks.
type Memory struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*models.AuctionItem
	bids    map[uuid.UUID]*models.Bid
	bidSeq  map[uuid.UUID]int
	seq     int
	entries []*models.LedgerEntry
	orders  map[uuid.UUID]*models.Order
	history []*models.OrderStatusEvent
	bots    map[uuid.UUID]*models.BotConfig
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items:  make(map[uuid.UUID]*models.AuctionItem),
		bids:   make(map[uuid.UUID]*models.Bid),
		bidSeq: make(map[uuid.UUID]int),
		orders: make(map[uuid.UUID]*models.Order),
		bots:   make(map[uuid.UUID]*models.BotConfig),
	}
}

// memTx reuses the Memory receiver for all Tx operations; the mutex is
// already held by WithTx.
type memTx struct{ m *Memory }

// WithTx runs fn while holding the store lock. Memory has no rollback: test
// scenarios that exercise failure paths assert on returned errors, not on
// partially-applied state.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memTx{m: m})
}

func copyItem(i *models.AuctionItem) *models.AuctionItem {
	c := *i
	return &c
}

func copyBid(b *models.Bid) *models.Bid {
	c := *b
	return &c
}

func (t *memTx) ItemForUpdate(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	item, ok := t.m.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyItem(item), nil
}

func (t *memTx) UpdateItem(ctx context.Context, item *models.AuctionItem) error {
	if _, ok := t.m.items[item.ID]; !ok {
		return models.ErrNotFound
	}
	t.m.items[item.ID] = copyItem(item)
	return nil
}

func (t *memTx) BidByKey(ctx context.Context, key string) (*models.Bid, error) {
	return t.m.bidByKeyLocked(key)
}

func (m *Memory) bidByKeyLocked(key string) (*models.Bid, error) {
	for _, b := range m.bids {
		if b.IdempotencyKey == key {
			return copyBid(b), nil
		}
	}
	return nil, models.ErrNotFound
}

func (t *memTx) BidByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	b, ok := t.m.bids[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyBid(b), nil
}

func (t *memTx) InsertBid(ctx context.Context, b *models.Bid) error {
	if _, err := t.m.bidByKeyLocked(b.IdempotencyKey); err == nil {
		return models.ErrConflict
	}
	t.m.seq++
	t.m.bidSeq[b.ID] = t.m.seq
	t.m.bids[b.ID] = copyBid(b)
	return nil
}

func (t *memTx) DeleteBid(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.m.bids[id]; !ok {
		return models.ErrNotFound
	}
	delete(t.m.bids, id)
	delete(t.m.bidSeq, id)
	return nil
}

// itemBidsLocked returns bids for an item ordered by amount descending, ties
// broken by earliest creation.
func (m *Memory) itemBidsLocked(itemID uuid.UUID) []*models.Bid {
	var out []*models.Bid
	for _, b := range m.bids {
		if b.ItemID == itemID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return m.bidSeq[out[i].ID] < m.bidSeq[out[j].ID]
	})
	return out
}

func (t *memTx) HighestBid(ctx context.Context, itemID uuid.UUID) (*models.Bid, error) {
	bids := t.m.itemBidsLocked(itemID)
	if len(bids) == 0 {
		return nil, models.ErrNotFound
	}
	return copyBid(bids[0]), nil
}

func (t *memTx) HighestBidByBidder(ctx context.Context, itemID, bidderID uuid.UUID) (*models.Bid, error) {
	for _, b := range t.m.itemBidsLocked(itemID) {
		if b.BidderID == bidderID {
			return copyBid(b), nil
		}
	}
	return nil, models.ErrNotFound
}

func (t *memTx) ProxyCeilings(ctx context.Context, itemID uuid.UUID) ([]ProxyCeiling, error) {
	best := make(map[uuid.UUID]ProxyCeiling)
	for _, b := range t.m.bids {
		if b.ItemID != itemID || b.MaxAmount == nil {
			continue
		}
		cur, ok := best[b.BidderID]
		if !ok || b.MaxAmount.GreaterThan(cur.Max) {
			best[b.BidderID] = ProxyCeiling{BidderID: b.BidderID, Max: *b.MaxAmount, CreatedAt: b.CreatedAt}
		}
	}
	out := make([]ProxyCeiling, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Max.Equal(out[j].Max) {
			return out[i].Max.LessThan(out[j].Max)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// LockAccount is a no-op: the store mutex already serialises writers.
func (t *memTx) LockAccount(ctx context.Context, ownerID uuid.UUID) error { return nil }

func (m *Memory) sumEntriesLocked(ownerID uuid.UUID) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range m.entries {
		if e.OwnerID == ownerID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

func (t *memTx) SumEntries(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	return t.m.sumEntriesLocked(ownerID), nil
}

func (t *memTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	c := *e
	t.m.entries = append(t.m.entries, &c)
	return nil
}

func (m *Memory) holdLocked(itemID, bidderID uuid.UUID) decimal.Decimal {
	net := decimal.Zero
	for _, e := range m.entries {
		if e.OwnerID != bidderID || e.ItemID == nil || *e.ItemID != itemID {
			continue
		}
		if e.Kind == models.EntryLock || e.Kind == models.EntryUnlock {
			net = net.Add(e.Amount)
		}
	}
	// locks are negative; outstanding hold is the positive magnitude
	return net.Neg()
}

func (t *memTx) OutstandingHold(ctx context.Context, itemID, bidderID uuid.UUID) (decimal.Decimal, error) {
	return t.m.holdLocked(itemID, bidderID), nil
}

func (t *memTx) OutstandingHolds(ctx context.Context, itemID uuid.UUID) ([]Hold, error) {
	seen := make(map[uuid.UUID]bool)
	var out []Hold
	for _, e := range t.m.entries {
		if e.ItemID == nil || *e.ItemID != itemID || seen[e.OwnerID] {
			continue
		}
		if e.Kind != models.EntryLock && e.Kind != models.EntryUnlock {
			continue
		}
		seen[e.OwnerID] = true
		if amt := t.m.holdLocked(itemID, e.OwnerID); amt.IsPositive() {
			out = append(out, Hold{BidderID: e.OwnerID, Amount: amt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BidderID.String() < out[j].BidderID.String() })
	return out, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	for _, existing := range t.m.orders {
		if existing.ItemID == o.ItemID {
			return models.ErrConflict
		}
	}
	c := *o
	t.m.orders[o.ID] = &c
	return nil
}

func (t *memTx) InsertOrderEvent(ctx context.Context, ev *models.OrderStatusEvent) error {
	c := *ev
	t.m.history = append(t.m.history, &c)
	return nil
}

func (m *Memory) CreateItem(ctx context.Context, item *models.AuctionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = copyItem(item)
	return nil
}

func (m *Memory) Item(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyItem(item), nil
}

func (m *Memory) ExpiredTradingItems(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for id, item := range m.items {
		if item.Status == models.ItemStatusTrading && !item.EndAt.After(now) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (m *Memory) BidByKey(ctx context.Context, key string) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bidByKeyLocked(key)
}

func (m *Memory) BidsForItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.itemBidsLocked(itemID)
	return pageBids(all, limit, offset), nil
}

func (m *Memory) BidsForBidder(ctx context.Context, bidderID uuid.UUID, limit, offset int) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Bid
	for _, b := range m.bids {
		if b.BidderID == bidderID {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return m.bidSeq[all[i].ID] > m.bidSeq[all[j].ID]
	})
	return pageBids(all, limit, offset), nil
}

func pageBids(all []*models.Bid, limit, offset int) []models.Bid {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]models.Bid, len(all))
	for i, b := range all {
		out[i] = *b
	}
	return out
}

func (m *Memory) Balance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sumEntriesLocked(ownerID), nil
}

func (m *Memory) EntriesForOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.LedgerEntry
	for _, e := range m.entries {
		if e.OwnerID == ownerID {
			all = append(all, *e)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) OrderForItem(ctx context.Context, itemID uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ItemID == itemID {
			c := *o
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

// OrderEvents returns the status history for an order; test helper.
func (m *Memory) OrderEvents(orderID uuid.UUID) []models.OrderStatusEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderStatusEvent
	for _, ev := range m.history {
		if ev.OrderID == orderID {
			out = append(out, *ev)
		}
	}
	return out
}

func (m *Memory) CreateBotConfig(ctx context.Context, cfg *models.BotConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cfg
	m.bots[cfg.ID] = &c
	return nil
}

func (m *Memory) UpdateBotConfig(ctx context.Context, cfg *models.BotConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[cfg.ID]; !ok {
		return models.ErrNotFound
	}
	c := *cfg
	m.bots[cfg.ID] = &c
	return nil
}

func (m *Memory) DeleteBotConfig(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.bots, id)
	return nil
}

func (m *Memory) BotConfig(ctx context.Context, id uuid.UUID) (*models.BotConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.bots[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *cfg
	return &c, nil
}

func (m *Memory) BotConfigs(ctx context.Context) ([]models.BotConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BotConfig
	for _, cfg := range m.bots {
		out = append(out, *cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *Memory) ActiveBotConfigs(ctx context.Context) ([]models.BotConfig, error) {
	all, err := m.BotConfigs(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.BotConfig
	for _, cfg := range all {
		if cfg.Active {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *Memory) SetBotLastBid(ctx context.Context, id uuid.UUID, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.bots[id]
	if !ok {
		return models.ErrNotFound
	}
	ts := t
	cfg.LastBidAt = &ts
	return nil
}
