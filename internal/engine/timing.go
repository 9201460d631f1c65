package engine

import (
	"strings"
	"time"

	"github.com/scrypster/confidant/pkg/types"
)

// Timing constants. Modifier order is part of the contract: tests rely on
// the pipeline applying recency, presence, ignore, distraction, typing,
// hesitation, and batch gap in exactly that sequence.
const (
	// baseThinkDelay is the fixed baseline thinking time.
	baseThinkDelay = 800 * time.Millisecond
	// thinkJitterMax is the upper bound of the uniform jitter added to the baseline.
	thinkJitterMax = 1200 * time.Millisecond

	// longIdleThreshold marks a user returning after a long absence; the
	// companion answers eagerly.
	longIdleThreshold = 3 * time.Hour
	longIdleFactor    = 0.6
	// rapidFireThreshold marks back-to-back messages; a small pause keeps
	// replies from looking instant.
	rapidFireThreshold = 5 * time.Second
	rapidFirePause     = 400 * time.Millisecond

	// Presence multipliers.
	busyDelayFactor     = 2.5
	sleepingDelayFactor = 4.0
	// The sleeping-equivalent window in local hours [start, end).
	sleepHourStart = 1
	sleepHourEnd   = 7

	// Probabilistic "ignore" surcharge: deeper stages sometimes leave the
	// user on read for a while.
	ignoreProbabilityCap = 0.25
	ignoreSurchargeMin   = 6 * time.Second
	ignoreSurchargeSpan  = 6 * time.Second

	// Minor distraction surcharge.
	distractionProbability = 0.05
	distractionMin         = 1500 * time.Millisecond
	distractionSpan        = 1500 * time.Millisecond

	// Typing simulation.
	typingWordsPerSecond = 2.5

	// Hesitation bonus for trailing-off messages.
	hesitationBonus = 900 * time.Millisecond

	// Gap applied to every message after the first in a batch.
	interMessageGap = 600 * time.Millisecond

	// Hard clamp on every final delay, regardless of modifiers.
	MinReplyDelay = 1500 * time.Millisecond
	MaxReplyDelay = 20 * time.Second
)

// stageIgnoreProbability is the base chance per stage of the ignore
// surcharge firing, before the engagement bonus.
var stageIgnoreProbability = map[string]float64{
	types.StageCasual:   0,
	types.StageFriendly: 0.05,
	types.StageClose:    0.10,
	types.StageIntimate: 0.18,
}

// TimingContext carries the per-turn inputs the delay pipeline reads.
type TimingContext struct {
	Mode             string        // presence mode at reply time
	Stage            string        // relationship stage
	InteractionCount int           // rolling engagement counter
	IdleGap          time.Duration // time since the previous interaction, 0 = first contact
	LocalHour        int           // 0-23, drives the sleeping window
}

// TimingCalculator produces human-plausible reply delays. All randomness
// flows through the injected Rand so tests can pin every branch.
type TimingCalculator struct {
	rnd Rand
}

// NewTimingCalculator creates a calculator using the given random source.
func NewTimingCalculator(rnd Rand) *TimingCalculator {
	return &TimingCalculator{rnd: rnd}
}

// ComputeDelays returns one delay per message. Delays are consumed in
// order: the caller waits delays[i] before delivering messages[i]. Every
// returned delay lies within [MinReplyDelay, MaxReplyDelay].
func (c *TimingCalculator) ComputeDelays(messages []string, tctx TimingContext) []time.Duration {
	if len(messages) == 0 {
		return nil
	}

	// The ignore roll happens once per turn, not per message: the user is
	// left on read before the whole batch, not between its parts.
	ignoreSurcharge := c.rollIgnoreSurcharge(tctx)

	delays := make([]time.Duration, len(messages))
	for i, msg := range messages {
		d := baseThinkDelay + c.jitter(thinkJitterMax)

		// 1. Recency.
		if tctx.IdleGap > 0 {
			if tctx.IdleGap >= longIdleThreshold {
				d = time.Duration(float64(d) * longIdleFactor)
			} else if tctx.IdleGap < rapidFireThreshold {
				d += rapidFirePause
			}
		}

		// 2. Presence mode. The sleeping window dominates busy.
		switch {
		case tctx.LocalHour >= sleepHourStart && tctx.LocalHour < sleepHourEnd:
			d = time.Duration(float64(d) * sleepingDelayFactor)
		case tctx.Mode == types.ModeBusy:
			d = time.Duration(float64(d) * busyDelayFactor)
		}

		// 3. Ignore surcharge (first message of the batch only).
		if i == 0 {
			d += ignoreSurcharge
		}

		// 4. Distraction.
		if c.rnd.Float64() < distractionProbability {
			d += distractionMin + c.jitter(distractionSpan)
		}

		// 5. Typing time.
		words := len(strings.Fields(msg))
		d += time.Duration(float64(words) / typingWordsPerSecond * float64(time.Second))

		// 6. Hesitation.
		if strings.Contains(msg, "...") || strings.Contains(msg, "…") {
			d += hesitationBonus
		}

		// 7. Batch gap.
		if i > 0 {
			d += interMessageGap
		}

		delays[i] = clampDelay(d)
	}
	return delays
}

// rollIgnoreSurcharge returns the extra "left on read" delay, or 0. The
// probability grows with stage and with the rolling engagement counter,
// capped at ignoreProbabilityCap.
func (c *TimingCalculator) rollIgnoreSurcharge(tctx TimingContext) time.Duration {
	p := stageIgnoreProbability[tctx.Stage]
	if p == 0 {
		return 0
	}
	p += float64(tctx.InteractionCount) / 1000.0
	if p > ignoreProbabilityCap {
		p = ignoreProbabilityCap
	}
	if c.rnd.Float64() >= p {
		return 0
	}
	return ignoreSurchargeMin + c.jitter(ignoreSurchargeSpan)
}

// jitter returns a uniform random duration in [0, max).
func (c *TimingCalculator) jitter(max time.Duration) time.Duration {
	return time.Duration(c.rnd.Float64() * float64(max))
}

// clampDelay enforces the hard [MinReplyDelay, MaxReplyDelay] invariant.
func clampDelay(d time.Duration) time.Duration {
	if d < MinReplyDelay {
		return MinReplyDelay
	}
	if d > MaxReplyDelay {
		return MaxReplyDelay
	}
	return d
}
