package bots

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/bidding"
	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

// BidPlacer is the slice of the bidding service the engine uses. Bots go
// through the identical placement path as real users, funds checks included.
type BidPlacer interface {
	PlaceBid(ctx context.Context, bidderID, itemID uuid.UUID, amount decimal.Decimal, key string) (*bidding.PlaceResult, error)
}

// Engine ticks over every active bot config on a fixed interval.
type Engine struct {
	st       store.Store
	placer   BidPlacer
	interval time.Duration
	now      func() time.Time
	rnd      func() float64
	log      *slog.Logger
}

// NewEngine builds the bot engine. Nil now defaults to time.Now; nil rnd to
// math/rand.
func NewEngine(st store.Store, placer BidPlacer, interval time.Duration, now func() time.Time, rnd func() float64, log *slog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Engine{
		st:       st,
		placer:   placer,
		interval: interval,
		now:      func() time.Time { return now().UTC() },
		rnd:      rnd,
		log:      log,
	}
}

// Run ticks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	e.log.Info("bot engine started", "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("bot engine stopped")
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every active config once. Per-config failures are logged
// and do not abort the tick for the other configs.
func (e *Engine) Tick(ctx context.Context) {
	configs, err := e.st.ActiveBotConfigs(ctx)
	if err != nil {
		e.log.Error("load bot configs", "error", err)
		return
	}
	for _, cfg := range configs {
		if err := e.act(ctx, cfg); err != nil {
			e.log.Error("bot action failed", "config_id", cfg.ID, "item_id", cfg.ItemID, "error", err)
		}
	}
}

func (e *Engine) act(ctx context.Context, cfg models.BotConfig) error {
	now := e.now()

	item, err := e.st.Item(ctx, cfg.ItemID)
	if err != nil {
		return err
	}
	if item.Status != models.ItemStatusTrading || !item.EndAt.After(now) {
		return nil
	}

	leading := false
	if top, err := e.st.BidsForItem(ctx, cfg.ItemID, 1, 0); err == nil && len(top) > 0 {
		leading = top[0].BidderID == cfg.UserID
	}

	if !Decide(cfg, *item, leading, now, e.rnd) {
		return nil
	}

	amount := item.MinNextBid()
	if amount.GreaterThan(cfg.MaxPrice) {
		return nil
	}

	if _, err := e.placer.PlaceBid(ctx, cfg.UserID, cfg.ItemID, amount, "bot-"+uuid.New().String()); err != nil {
		return err
	}
	return e.st.SetBotLastBid(ctx, cfg.ID, now)
}
