// Package database is the Postgres-backed store: the single authoritative
// home of items, bids, ledger entries, orders and bot configs. All
// cross-writer coordination happens here through row-level exclusive locks.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Postgres wraps the database connection pool.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens and verifies a connection pool.
func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// InitSchema creates the tables if they do not exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		user_id UUID PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY,
		seller_id UUID NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_price NUMERIC(12, 2) NOT NULL,
		current_price NUMERIC(12, 2) NOT NULL,
		bid_step NUMERIC(12, 2) NOT NULL,
		reserve_price NUMERIC(12, 2),
		buy_now_price NUMERIC(12, 2),
		winner_id UUID,
		final_price NUMERIC(12, 2),
		status VARCHAR(20) NOT NULL,
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_items_status_end ON items(status, end_at);

	CREATE TABLE IF NOT EXISTS bids (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id),
		bidder_id UUID NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		is_auto BOOLEAN NOT NULL DEFAULT FALSE,
		max_amount NUMERIC(12, 2),
		idempotency_key VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bids_item ON bids(item_id, amount DESC, created_at ASC);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids(bidder_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		kind VARCHAR(20) NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		balance_after NUMERIC(12, 2) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		item_id UUID,
		bid_id UUID,
		order_id UUID,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_owner ON ledger_entries(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_item ON ledger_entries(item_id) WHERE item_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL UNIQUE REFERENCES items(id),
		buyer_id UUID NOT NULL,
		price NUMERIC(12, 2) NOT NULL,
		commission NUMERIC(12, 2) NOT NULL,
		total NUMERIC(12, 2) NOT NULL,
		status VARCHAR(30) NOT NULL,
		price_entry_id UUID NOT NULL,
		commission_entry_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_status_history (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id),
		status VARCHAR(30) NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		estimated_at TIMESTAMPTZ,
		actor_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bot_configs (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		item_id UUID NOT NULL REFERENCES items(id),
		max_price NUMERIC(12, 2) NOT NULL,
		pattern VARCHAR(20) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		min_delay_secs INT NOT NULL,
		max_delay_secs INT NOT NULL,
		start_before_end_secs INT,
		intensity DOUBLE PRECISION NOT NULL DEFAULT 1,
		last_bid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
