package engine

import (
	"strings"
	"time"

	"github.com/scrypster/confidant/internal/catalog"
	"github.com/scrypster/confidant/pkg/types"
)

const (
	// minDeliveryGap is the minimum time between two media deliveries to
	// the same user.
	minDeliveryGap = 10 * time.Minute

	// Trigger scoring: base chance plus fixed increments per detected
	// cue, capped to prevent spam.
	mediaBaseProbability       = 0.05
	mediaRequestCueBonus       = 0.25
	mediaComplimentCueBonus    = 0.10
	mediaMilestoneBonus        = 0.15
	mediaProbabilityCap        = 0.40
	mediaMilestoneInterval     = 25

	// ledgerResetThreshold is the lifetime delivery count at which the
	// dedup ledger is cleared entirely, allowing asset recycling.
	ledgerResetThreshold = 200
)

// requestCues are lowercase substrings that read as a direct request for
// a photo or similar asset.
var requestCues = []string{
	"send me", "show me", "can i see", "pic", "photo", "picture", "selfie",
}

// complimentCues are lowercase substrings that read as a compliment.
var complimentCues = []string{
	"beautiful", "gorgeous", "pretty", "cute", "stunning", "lovely",
}

// MediaEngine decides when to surface a media asset and guarantees no
// asset repeats for a user until the pool is exhausted or the ledger is
// periodically reset.
type MediaEngine struct {
	catalog catalog.AssetCatalog
	rnd     Rand
}

// NewMediaEngine creates a media engine over the given catalog and
// random source.
func NewMediaEngine(cat catalog.AssetCatalog, rnd Rand) *MediaEngine {
	return &MediaEngine{catalog: cat, rnd: rnd}
}

// MaybeSelect returns an unseen asset for the user, or nil when no
// delivery should happen. Nil is the normal no-trigger outcome, never an
// error. On selection the record's ledger is updated in place; the caller
// holds the per-user lock, making the read-modify-write atomic.
func (m *MediaEngine) MaybeSelect(rec *types.EngagementRecord, messageText string, now time.Time) *catalog.Asset {
	// Inter-delivery gap, checked first: no roll can override it.
	if !rec.Media.LastSentAt.IsZero() && now.Sub(rec.Media.LastSentAt) < minDeliveryGap {
		return nil
	}

	if m.rnd.Float64() >= m.triggerProbability(rec, messageText) {
		return nil
	}

	pool := m.catalog.ListAvailable()
	if len(pool) == 0 {
		return nil
	}

	// Periodic recycling: after enough lifetime deliveries, forget
	// everything and start the pool over.
	if rec.Media.TotalDeliveries >= ledgerResetThreshold {
		rec.Media.Clear()
		rec.Media.TotalDeliveries = 0
	}

	unseen := make([]catalog.Asset, 0, len(pool))
	for _, a := range pool {
		if !rec.Media.HasSent(a.ID) {
			unseen = append(unseen, a)
		}
	}
	// Pool exhausted: the whole pool becomes eligible again rather than
	// failing the turn (availability over exhaustion).
	if len(unseen) == 0 {
		rec.Media.Clear()
		unseen = pool
	}

	asset := unseen[m.rnd.Intn(len(unseen))]
	rec.Media.MarkSent(asset.ID, now)
	rec.UpdatedAt = now
	return &asset
}

// triggerProbability computes the delivery chance for this message from
// the base rate plus cue bonuses, capped at mediaProbabilityCap.
func (m *MediaEngine) triggerProbability(rec *types.EngagementRecord, messageText string) float64 {
	p := mediaBaseProbability
	lower := strings.ToLower(messageText)

	if containsAny(lower, requestCues) {
		p += mediaRequestCueBonus
	}
	if containsAny(lower, complimentCues) {
		p += mediaComplimentCueBonus
	}
	if rec.InteractionCount > 0 && rec.InteractionCount%mediaMilestoneInterval == 0 {
		p += mediaMilestoneBonus
	}

	if p > mediaProbabilityCap {
		p = mediaProbabilityCap
	}
	return p
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
