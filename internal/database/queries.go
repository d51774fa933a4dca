package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

var _ store.Store = (*Postgres)(nil)

// CreateItem persists a new catalog item. Items normally arrive through the
// import pipeline; this path serves provisioning and tests.
func (p *Postgres) CreateItem(ctx context.Context, item *models.AuctionItem) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO items (id, seller_id, title, description, start_price, current_price, bid_step,
			reserve_price, buy_now_price, winner_id, final_price, status, start_at, end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		item.ID, item.SellerID, item.Title, item.Description,
		item.StartPrice, item.CurrentPrice, item.BidStep,
		nullDecimal(item.ReservePrice), nullDecimal(item.BuyNowPrice),
		nullUUID(item.WinnerID), nullDecimal(item.FinalPrice),
		item.Status, item.StartAt, item.EndAt, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// Item reads one item without locking it.
func (p *Postgres) Item(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	return scanItem(row)
}

// ExpiredTradingItems selects candidates for settlement. The settle
// transaction re-checks state under the item lock, so a stale selection is
// harmless.
func (p *Postgres) ExpiredTradingItems(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM items WHERE status = $1 AND end_at <= $2 ORDER BY end_at`,
		models.ItemStatusTrading, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BidByKey is the lock-free idempotency fast path.
func (p *Postgres) BidByKey(ctx context.Context, key string) (*models.Bid, error) {
	return bidByKey(ctx, p.db, key)
}

func (p *Postgres) queryBids(ctx context.Context, query string, args ...any) ([]models.Bid, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *bid)
	}
	return out, rows.Err()
}

// BidsForItem pages an item's bids, highest first, earliest winning ties.
func (p *Postgres) BidsForItem(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]models.Bid, error) {
	return p.queryBids(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE item_id = $1
		ORDER BY amount DESC, created_at ASC LIMIT $2 OFFSET $3`, itemID, limit, offset)
}

// BidsForBidder pages a bidder's own bids by recency.
func (p *Postgres) BidsForBidder(ctx context.Context, bidderID uuid.UUID, limit, offset int) ([]models.Bid, error) {
	return p.queryBids(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE bidder_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, bidderID, limit, offset)
}

// Balance is the shared display-only read of an owner's derived balance.
func (p *Postgres) Balance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE owner_id = $1`, ownerID).Scan(&sum)
	return sum, err
}

// EntriesForOwner pages an owner's ledger history, oldest first.
func (p *Postgres) EntriesForOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, amount, balance_after, description, item_id, bid_id, order_id, created_at
		FROM ledger_entries WHERE owner_id = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var (
			e       models.LedgerEntry
			itemID  uuid.NullUUID
			bidID   uuid.NullUUID
			orderID uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Kind, &e.Amount, &e.BalanceAfter,
			&e.Description, &itemID, &bidID, &orderID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if itemID.Valid {
			e.ItemID = &itemID.UUID
		}
		if bidID.Valid {
			e.BidID = &bidID.UUID
		}
		if orderID.Valid {
			e.OrderID = &orderID.UUID
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OrderForItem returns the single order of a sold item.
func (p *Postgres) OrderForItem(ctx context.Context, itemID uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := p.db.QueryRowContext(ctx, `
		SELECT id, item_id, buyer_id, price, commission, total, status, price_entry_id, commission_entry_id, created_at
		FROM orders WHERE item_id = $1`, itemID).Scan(
		&o.ID, &o.ItemID, &o.BuyerID, &o.Price, &o.Commission, &o.Total,
		&o.Status, &o.PriceEntryID, &o.CommissionEntryID, &o.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &o, nil
}

const botColumns = `id, user_id, item_id, max_price, pattern, active,
	min_delay_secs, max_delay_secs, start_before_end_secs, intensity, last_bid_at, created_at, updated_at`

func scanBotConfig(row interface{ Scan(...any) error }) (*models.BotConfig, error) {
	var (
		cfg         models.BotConfig
		minSecs     int64
		maxSecs     int64
		startBefore sql.NullInt64
		lastBid     sql.NullTime
	)
	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.ItemID, &cfg.MaxPrice, &cfg.Pattern, &cfg.Active,
		&minSecs, &maxSecs, &startBefore, &cfg.Intensity, &lastBid, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	cfg.MinDelay = time.Duration(minSecs) * time.Second
	cfg.MaxDelay = time.Duration(maxSecs) * time.Second
	if startBefore.Valid {
		d := time.Duration(startBefore.Int64) * time.Second
		cfg.StartBeforeEnd = &d
	}
	if lastBid.Valid {
		t := lastBid.Time
		cfg.LastBidAt = &t
	}
	return &cfg, nil
}

func (p *Postgres) CreateBotConfig(ctx context.Context, cfg *models.BotConfig) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bot_configs (id, user_id, item_id, max_price, pattern, active,
			min_delay_secs, max_delay_secs, start_before_end_secs, intensity, last_bid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		cfg.ID, cfg.UserID, cfg.ItemID, cfg.MaxPrice, cfg.Pattern, cfg.Active,
		int64(cfg.MinDelay/time.Second), int64(cfg.MaxDelay/time.Second),
		nullSeconds(cfg.StartBeforeEnd), cfg.Intensity, cfg.LastBidAt, cfg.CreatedAt, cfg.UpdatedAt,
	)
	return err
}

func (p *Postgres) UpdateBotConfig(ctx context.Context, cfg *models.BotConfig) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bot_configs SET max_price = $2, pattern = $3, active = $4,
			min_delay_secs = $5, max_delay_secs = $6, start_before_end_secs = $7,
			intensity = $8, updated_at = $9
		WHERE id = $1`,
		cfg.ID, cfg.MaxPrice, cfg.Pattern, cfg.Active,
		int64(cfg.MinDelay/time.Second), int64(cfg.MaxDelay/time.Second),
		nullSeconds(cfg.StartBeforeEnd), cfg.Intensity, cfg.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteBotConfig(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM bot_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) BotConfig(ctx context.Context, id uuid.UUID) (*models.BotConfig, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+botColumns+` FROM bot_configs WHERE id = $1`, id)
	return scanBotConfig(row)
}

func (p *Postgres) queryBotConfigs(ctx context.Context, query string, args ...any) ([]models.BotConfig, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BotConfig
	for rows.Next() {
		cfg, err := scanBotConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

func (p *Postgres) BotConfigs(ctx context.Context) ([]models.BotConfig, error) {
	return p.queryBotConfigs(ctx,
		`SELECT `+botColumns+` FROM bot_configs ORDER BY created_at`)
}

func (p *Postgres) ActiveBotConfigs(ctx context.Context) ([]models.BotConfig, error) {
	return p.queryBotConfigs(ctx,
		`SELECT `+botColumns+` FROM bot_configs WHERE active ORDER BY created_at`)
}

func (p *Postgres) SetBotLastBid(ctx context.Context, id uuid.UUID, t time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bot_configs SET last_bid_at = $2, updated_at = $2 WHERE id = $1`, id, t)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func nullSeconds(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*d / time.Second), Valid: true}
}
