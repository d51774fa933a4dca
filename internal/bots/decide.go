// Package bots runs synthetic bidding agents through the same placement
// path real users take. Decisions are pure functions of the config, the
// item, the leader flag and the clock, so a tick has no behaviour of its
// own.
package bots

import (
	"time"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

// sniperWindow is how close to the end a sniper bot starts acting.
const sniperWindow = 30 * time.Second

// Decide reports whether a bot should act right now. rnd supplies a value
// in [0,1) for the patterns that draw random delays; passing a fixed
// function makes the decision fully deterministic for tests.
func Decide(cfg models.BotConfig, item models.AuctionItem, leading bool, now time.Time, rnd func() float64) bool {
	if cfg.StartBeforeEnd != nil && item.EndAt.Sub(now) > *cfg.StartBeforeEnd {
		return false
	}

	elapsed := time.Duration(1<<62 - 1)
	if cfg.LastBidAt != nil {
		elapsed = now.Sub(*cfg.LastBidAt)
	}

	switch cfg.Pattern {
	case models.BotSteady:
		return elapsed >= scale(cfg.MaxDelay, cfg.Intensity)
	case models.BotAggressive:
		if leading {
			return false
		}
		return elapsed >= scale(drawDelay(cfg.MinDelay, cfg.MaxDelay, rnd), cfg.Intensity)
	case models.BotSniper:
		if leading {
			return false
		}
		if item.EndAt.Sub(now) > sniperWindow {
			return false
		}
		return elapsed >= scale(cfg.MinDelay, cfg.Intensity)
	case models.BotRandom:
		// The threshold is redrawn on every evaluation rather than stored
		// per action, so Decide stays stateless; elapsed time still gates
		// the bid rate to the [MinDelay, MaxDelay] band.
		return elapsed >= scale(drawDelay(cfg.MinDelay, cfg.MaxDelay, rnd), cfg.Intensity)
	}
	return false
}

// drawDelay draws a delay uniformly from [min, max].
func drawDelay(min, max time.Duration, rnd func() float64) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rnd()*float64(max-min))
}

// scale divides a delay by the intensity factor; higher intensity means a
// more active bot. Non-positive intensity is treated as 1.
func scale(d time.Duration, intensity float64) time.Duration {
	if intensity <= 0 {
		return d
	}
	return time.Duration(float64(d) / intensity)
}
