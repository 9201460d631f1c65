// Package engine implements the Confidant engagement engine: relationship
// staging, simulated presence, reply timing, daily token budgets, and
// media deduplication, composed by a single orchestrator.
package engine

import (
	"math"
	"time"

	"github.com/scrypster/confidant/pkg/types"
)

const (
	// sentimentScale converts a per-message score in [-1, 1] into the
	// integer accumulator domain.
	sentimentScale = 10.0
)

// stageThreshold describes one stage transition: the source stage advances
// to the next stage when either bound is met.
type stageThreshold struct {
	fromStage        string
	minInteractions  int
	minSentiment     int
}

// stageThresholds are evaluated in this fixed order. Only the first
// matching transition is applied per call, so stages are never skipped
// even when several thresholds are satisfied at once.
var stageThresholds = []stageThreshold{
	{fromStage: types.StageCasual, minInteractions: 5, minSentiment: 3},
	{fromStage: types.StageFriendly, minInteractions: 20, minSentiment: 10},
	{fromStage: types.StageClose, minInteractions: 50, minSentiment: 30},
}

// StageTracker advances the per-user relationship stage from interaction
// counts and accumulated sentiment. Stages are monotonically
// non-decreasing; the only path backwards is an explicit Reset.
type StageTracker struct{}

// NewStageTracker returns a StageTracker.
func NewStageTracker() *StageTracker {
	return &StageTracker{}
}

// Advance processes one user message: it bumps the interaction and
// visit-day counters, folds the message sentiment into the clamped
// accumulator, and applies at most one stage transition.
//
// score is the per-message sentiment in [-1, 1]; out-of-range values are
// clamped, never rejected. Returns the (possibly updated) stage and the
// new interaction count.
func (t *StageTracker) Advance(rec *types.EngagementRecord, score float64, now time.Time) (string, int) {
	if rec.Stage == "" {
		rec.Stage = types.StageCasual
	}

	if score < -1 {
		score = -1
	}
	if score > 1 {
		score = 1
	}

	rec.InteractionCount++
	rec.CumulativeSentiment = types.ClampSentiment(
		rec.CumulativeSentiment + int(math.Round(score*sentimentScale)))
	rec.LastInteractionAt = now
	rec.UpdatedAt = now

	// Visit-day counter: first message of a new calendar day.
	today := now.Format(types.DateFormat)
	if rec.LastVisitDate != today {
		rec.VisitDays++
		rec.LastVisitDate = today
	}

	// At most one transition per call, evaluated in fixed order.
	for _, th := range stageThresholds {
		if rec.Stage != th.fromStage {
			continue
		}
		if rec.InteractionCount >= th.minInteractions || rec.CumulativeSentiment >= th.minSentiment {
			next, ok := types.NextStage(rec.Stage)
			if ok {
				rec.Stage = next
			}
		}
		break
	}

	return rec.Stage, rec.InteractionCount
}

// Reset returns the relationship portion of the record to its zero state.
// This is the only regression path; stages never decay on their own.
func (t *StageTracker) Reset(rec *types.EngagementRecord, now time.Time) {
	rec.Stage = types.StageCasual
	rec.InteractionCount = 0
	rec.CumulativeSentiment = 0
	rec.VisitDays = 0
	rec.LastVisitDate = ""
	rec.UpdatedAt = now
}
