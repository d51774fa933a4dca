package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BotPattern selects the behaviour of a synthetic bidder.
type BotPattern string

const (
	BotSteady     BotPattern = "steady"
	BotAggressive BotPattern = "aggressive"
	BotSniper     BotPattern = "sniper"
	BotRandom     BotPattern = "random"
)

// Valid reports whether the pattern is a known one.
func (p BotPattern) Valid() bool {
	switch p {
	case BotSteady, BotAggressive, BotSniper, BotRandom:
		return true
	}
	return false
}

// BotConfig binds one synthetic identity to one item. Administrators mutate
// it; the bot engine reads it on every tick.
type BotConfig struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	ItemID         uuid.UUID       `json:"item_id"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	Pattern        BotPattern      `json:"pattern"`
	Active         bool            `json:"active"`
	MinDelay       time.Duration   `json:"min_delay"`
	MaxDelay       time.Duration   `json:"max_delay"`
	StartBeforeEnd *time.Duration  `json:"start_before_end,omitempty"`
	Intensity      float64         `json:"intensity"`
	LastBidAt      *time.Time      `json:"last_bid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
