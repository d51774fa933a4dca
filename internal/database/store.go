package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside one transaction, rolling back on error.
func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgTx implements store.Tx on one *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

const itemColumns = `id, seller_id, title, description, start_price, current_price, bid_step,
	reserve_price, buy_now_price, winner_id, final_price, status, start_at, end_at, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*models.AuctionItem, error) {
	var (
		item       models.AuctionItem
		reserve    decimal.NullDecimal
		buyNow     decimal.NullDecimal
		finalPrice decimal.NullDecimal
		winner     uuid.NullUUID
	)
	err := row.Scan(
		&item.ID, &item.SellerID, &item.Title, &item.Description,
		&item.StartPrice, &item.CurrentPrice, &item.BidStep,
		&reserve, &buyNow, &winner, &finalPrice,
		&item.Status, &item.StartAt, &item.EndAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if reserve.Valid {
		item.ReservePrice = &reserve.Decimal
	}
	if buyNow.Valid {
		item.BuyNowPrice = &buyNow.Decimal
	}
	if winner.Valid {
		item.WinnerID = &winner.UUID
	}
	if finalPrice.Valid {
		item.FinalPrice = &finalPrice.Decimal
	}
	return &item, nil
}

func (t *pgTx) ItemForUpdate(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
	return scanItem(row)
}

func (t *pgTx) UpdateItem(ctx context.Context, item *models.AuctionItem) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE items SET
			current_price = $2, bid_step = $3, reserve_price = $4, buy_now_price = $5,
			winner_id = $6, final_price = $7, status = $8, end_at = $9, updated_at = $10
		WHERE id = $1`,
		item.ID, item.CurrentPrice, item.BidStep,
		nullDecimal(item.ReservePrice), nullDecimal(item.BuyNowPrice),
		nullUUID(item.WinnerID), nullDecimal(item.FinalPrice),
		item.Status, item.EndAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
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

const bidColumns = `id, item_id, bidder_id, amount, is_auto, max_amount, idempotency_key, created_at`

func scanBid(row interface{ Scan(...any) error }) (*models.Bid, error) {
	var (
		bid models.Bid
		max decimal.NullDecimal
	)
	err := row.Scan(&bid.ID, &bid.ItemID, &bid.BidderID, &bid.Amount, &bid.IsAuto, &max, &bid.IdempotencyKey, &bid.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if max.Valid {
		bid.MaxAmount = &max.Decimal
	}
	return &bid, nil
}

func bidByKey(ctx context.Context, q querier, key string) (*models.Bid, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE idempotency_key = $1`, key)
	return scanBid(row)
}

func (t *pgTx) BidByKey(ctx context.Context, key string) (*models.Bid, error) {
	return bidByKey(ctx, t.tx, key)
}

func (t *pgTx) BidByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = $1`, id)
	return scanBid(row)
}

func (t *pgTx) InsertBid(ctx context.Context, b *models.Bid) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bids (id, item_id, bidder_id, amount, is_auto, max_amount, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.ItemID, b.BidderID, b.Amount, b.IsAuto, nullDecimal(b.MaxAmount), b.IdempotencyKey, b.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.ErrConflict
	}
	return err
}

func (t *pgTx) DeleteBid(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bids WHERE id = $1`, id)
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

func (t *pgTx) HighestBid(ctx context.Context, itemID uuid.UUID) (*models.Bid, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE item_id = $1
		ORDER BY amount DESC, created_at ASC LIMIT 1`, itemID)
	return scanBid(row)
}

func (t *pgTx) HighestBidByBidder(ctx context.Context, itemID, bidderID uuid.UUID) (*models.Bid, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE item_id = $1 AND bidder_id = $2
		ORDER BY amount DESC, created_at ASC LIMIT 1`, itemID, bidderID)
	return scanBid(row)
}

func (t *pgTx) ProxyCeilings(ctx context.Context, itemID uuid.UUID) ([]store.ProxyCeiling, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT bidder_id, MAX(max_amount) AS ceiling, MIN(created_at) AS created_at
		FROM bids
		WHERE item_id = $1 AND max_amount IS NOT NULL
		GROUP BY bidder_id
		ORDER BY ceiling ASC, created_at ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ProxyCeiling
	for rows.Next() {
		var c store.ProxyCeiling
		if err := rows.Scan(&c.BidderID, &c.Max, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LockAccount takes the exclusive lock every balance mutation must hold.
// The accounts row is the lock anchor; balances stay derived from entries.
func (t *pgTx) LockAccount(ctx context.Context, ownerID uuid.UUID) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, ownerID); err != nil {
		return err
	}
	var id uuid.UUID
	return t.tx.QueryRowContext(ctx,
		`SELECT user_id FROM accounts WHERE user_id = $1 FOR UPDATE`, ownerID).Scan(&id)
}

func (t *pgTx) SumEntries(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE owner_id = $1`, ownerID).Scan(&sum)
	return sum, err
}

func (t *pgTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, owner_id, kind, amount, balance_after, description, item_id, bid_id, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OwnerID, e.Kind, e.Amount, e.BalanceAfter, e.Description,
		nullUUID(e.ItemID), nullUUID(e.BidID), nullUUID(e.OrderID), e.CreatedAt,
	)
	return err
}

func (t *pgTx) OutstandingHold(ctx context.Context, itemID, bidderID uuid.UUID) (decimal.Decimal, error) {
	var net decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(-SUM(amount), 0) FROM ledger_entries
		WHERE item_id = $1 AND owner_id = $2 AND kind IN ('lock', 'unlock')`,
		itemID, bidderID).Scan(&net)
	return net, err
}

func (t *pgTx) OutstandingHolds(ctx context.Context, itemID uuid.UUID) ([]store.Hold, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT owner_id, -SUM(amount) AS held FROM ledger_entries
		WHERE item_id = $1 AND kind IN ('lock', 'unlock')
		GROUP BY owner_id
		HAVING SUM(amount) < 0
		ORDER BY owner_id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Hold
	for rows.Next() {
		var h store.Hold
		if err := rows.Scan(&h.BidderID, &h.Amount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, item_id, buyer_id, price, commission, total, status, price_entry_id, commission_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.ItemID, o.BuyerID, o.Price, o.Commission, o.Total, o.Status,
		o.PriceEntryID, o.CommissionEntryID, o.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.ErrConflict
	}
	return err
}

func (t *pgTx) InsertOrderEvent(ctx context.Context, ev *models.OrderStatusEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, status, comment, estimated_at, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.OrderID, ev.Status, ev.Comment, ev.EstimatedAt, ev.ActorID, ev.CreatedAt,
	)
	return err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
