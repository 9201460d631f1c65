package engine

import (
	"time"

	"github.com/scrypster/confidant/pkg/types"
)

// Loyalty tier constants, ordered by daily allowance.
const (
	TierNew            = "new"
	TierRegular        = "regular"
	TierLoyal          = "loyal"
	TierHighEngagement = "high-engagement"
)

// Daily token limits per tier. Limits are derived, never stored, so a
// tier upgrade takes effect on the very next check.
const (
	limitNew            = 2000
	limitRegular        = 4000
	limitLoyal          = 8000
	limitHighEngagement = 12000
)

// softLimitRatio is the usage ratio at which the probabilistic soft limit
// starts firing; the probability rises linearly to 1.0 at full usage.
const softLimitRatio = 0.8

// BudgetStatus is the per-user daily budget snapshot.
type BudgetStatus struct {
	Tier       string  `json:"tier"`
	Used       int     `json:"used"`
	Limit      int     `json:"limit"`
	Percentage float64 `json:"percentage"` // used/limit in [0, 1+]
}

// BudgetEnforcer tracks per-user daily token usage against tier-derived
// limits. The soft limit is probabilistic, an increasing chance of
// "suggest a break" interjections; the hard limit is a terminal
// condition for the turn.
type BudgetEnforcer struct {
	rnd Rand
}

// NewBudgetEnforcer creates an enforcer using the given random source for
// the soft-limit roll.
func NewBudgetEnforcer(rnd Rand) *BudgetEnforcer {
	return &BudgetEnforcer{rnd: rnd}
}

// DeriveTier classifies the user from engagement-record counters.
// Thresholds are evaluated deepest-first so the richest matching tier wins.
func DeriveTier(rec *types.EngagementRecord) string {
	switch {
	case rec.VisitDays >= 14 ||
		(types.StageRank(rec.EffectiveStage()) >= types.StageRank(types.StageClose) && rec.InteractionCount >= 100):
		return TierHighEngagement
	case rec.VisitDays >= 7 || rec.InteractionCount >= 60:
		return TierLoyal
	case rec.VisitDays >= 3 || rec.InteractionCount >= 20:
		return TierRegular
	default:
		return TierNew
	}
}

// tierLimit returns the daily token limit for a tier.
func tierLimit(tier string) int {
	switch tier {
	case TierHighEngagement:
		return limitHighEngagement
	case TierLoyal:
		return limitLoyal
	case TierRegular:
		return limitRegular
	default:
		return limitNew
	}
}

// rollover resets DailyUsed when the stored reset date no longer matches
// the current date. It must run before any read or write of the budget,
// so usage recorded before midnight never leaks into the new day.
func (b *BudgetEnforcer) rollover(rec *types.EngagementRecord, now time.Time) {
	today := now.Format(types.DateFormat)
	if rec.Budget.ResetDate != today {
		rec.Budget.DailyUsed = 0
		rec.Budget.ResetDate = today
	}
}

// RecordUsage adds tokens to the user's daily usage. Negative counts
// clamp to zero. The daily rollover check runs first.
func (b *BudgetEnforcer) RecordUsage(rec *types.EngagementRecord, tokens int, now time.Time) {
	b.rollover(rec, now)
	if tokens < 0 {
		tokens = 0
	}
	rec.Budget.DailyUsed += tokens
	rec.UpdatedAt = now
}

// IsHardLimited reports whether the user has exhausted today's budget.
func (b *BudgetEnforcer) IsHardLimited(rec *types.EngagementRecord, now time.Time) bool {
	b.rollover(rec, now)
	return rec.Budget.DailyUsed >= tierLimit(DeriveTier(rec))
}

// IsSoftLimited rolls the probabilistic soft limit: always false below
// softLimitRatio, then true with probability rising linearly from 0 at
// the threshold to 1 at full usage.
func (b *BudgetEnforcer) IsSoftLimited(rec *types.EngagementRecord, now time.Time) bool {
	b.rollover(rec, now)
	limit := tierLimit(DeriveTier(rec))
	ratio := float64(rec.Budget.DailyUsed) / float64(limit)
	if ratio < softLimitRatio {
		return false
	}
	p := (ratio - softLimitRatio) / (1.0 - softLimitRatio)
	if p >= 1 {
		return true
	}
	return b.rnd.Float64() < p
}

// Status returns the current budget snapshot after the rollover check.
func (b *BudgetEnforcer) Status(rec *types.EngagementRecord, now time.Time) BudgetStatus {
	b.rollover(rec, now)
	tier := DeriveTier(rec)
	limit := tierLimit(tier)
	return BudgetStatus{
		Tier:       tier,
		Used:       rec.Budget.DailyUsed,
		Limit:      limit,
		Percentage: float64(rec.Budget.DailyUsed) / float64(limit),
	}
}
