// Package types defines the shared domain types for the Confidant
// engagement engine: relationship stages, presence modes, and the
// per-user records the engine mutates on every turn.
package types

import "time"

// Relationship stage constants, ordered by engagement depth.
const (
	StageCasual   = "casual"   // Default stage for new users
	StageFriendly = "friendly" // Reached after sustained light interaction
	StageClose    = "close"    // Reached after regular, positive interaction
	StageIntimate = "intimate" // Deepest stage, long interaction history
)

// ValidStages contains all valid relationship stage values, ordered from
// shallowest to deepest.
var ValidStages = []string{
	StageCasual,
	StageFriendly,
	StageClose,
	StageIntimate,
}

// IsValidStage checks if the given stage is a valid relationship stage.
// Empty string is considered valid (means stage not set, treated as casual).
func IsValidStage(stage string) bool {
	if stage == "" {
		return true
	}
	for _, s := range ValidStages {
		if stage == s {
			return true
		}
	}
	return false
}

// StageRank returns the ordinal position of a stage (casual=0 ... intimate=3).
// Unknown or empty stages rank as casual.
func StageRank(stage string) int {
	for i, s := range ValidStages {
		if stage == s {
			return i
		}
	}
	return 0
}

// NextStage returns the stage one step deeper than the given stage.
// Returns the same stage and false when there is no deeper stage.
func NextStage(stage string) (string, bool) {
	rank := StageRank(stage)
	if rank >= len(ValidStages)-1 {
		return ValidStages[len(ValidStages)-1], false
	}
	return ValidStages[rank+1], true
}

// Presence mode constants.
const (
	ModeAvailable      = "available"        // Companion is reachable
	ModeBusy           = "busy"             // Companion is in a scripted situation
	ModeOfflineGoodbye = "offline-goodbye"  // Companion said goodbye, time-gated return
)

// ValidPresenceModes contains all valid presence mode values.
var ValidPresenceModes = []string{
	ModeAvailable,
	ModeBusy,
	ModeOfflineGoodbye,
}

// IsValidPresenceMode checks if the given mode is a valid presence mode.
// Empty string is considered valid (means mode not set, treated as available).
func IsValidPresenceMode(mode string) bool {
	if mode == "" {
		return true
	}
	for _, m := range ValidPresenceModes {
		if mode == m {
			return true
		}
	}
	return false
}

// IsValidPresenceTransition validates presence mode transitions.
//
// Valid transitions:
//
//	(empty) -> available
//	available -> busy | offline-goodbye
//	busy -> busy | offline-goodbye
//	offline-goodbye -> available (only via the time-gated recovery check)
func IsValidPresenceTransition(currentMode, newMode string) bool {
	if newMode == "" {
		return false
	}

	switch currentMode {
	case "": // empty mode, lazily created record
		return newMode == ModeAvailable

	case ModeAvailable:
		return newMode == ModeBusy || newMode == ModeOfflineGoodbye

	case ModeBusy:
		// Busy may re-enter busy (situation switch) or wind down to goodbye.
		return newMode == ModeBusy || newMode == ModeOfflineGoodbye

	case ModeOfflineGoodbye:
		return newMode == ModeAvailable

	default:
		return false
	}
}

// Sentiment bounds for the cumulative per-user sentiment accumulator.
const (
	SentimentMin = -100
	SentimentMax = 100
)

// ClampSentiment clamps a cumulative sentiment value to [SentimentMin, SentimentMax].
func ClampSentiment(v int) int {
	if v < SentimentMin {
		return SentimentMin
	}
	if v > SentimentMax {
		return SentimentMax
	}
	return v
}

// DateFormat is the day-granularity format used for daily resets and
// visit-day tracking.
const DateFormat = "2006-01-02"

// EngagementRecord is the long-lived per-user record the engine mutates
// on every processed message. A zero-valued record is a valid record for
// a user the engine has never seen.
type EngagementRecord struct {
	UserID string `json:"user_id"`

	// Relationship tracking
	Stage               string    `json:"stage"`                // one of ValidStages, "" = casual
	InteractionCount    int       `json:"interaction_count"`    // messages processed
	CumulativeSentiment int       `json:"cumulative_sentiment"` // clamped to [-100, 100]
	LastInteractionAt   time.Time `json:"last_interaction_at"`

	// Visit-day counters feeding the budget tier derivation.
	VisitDays     int    `json:"visit_days"`      // distinct days with >= 1 message
	LastVisitDate string `json:"last_visit_date"` // DateFormat, "" = never visited

	// Daily token budget
	Budget TokenBudget `json:"budget"`

	// Media delivery ledger
	Media MediaLedger `json:"media"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEngagementRecord returns a zero-valued record for a first-contact user.
func NewEngagementRecord(userID string, now time.Time) *EngagementRecord {
	return &EngagementRecord{
		UserID:    userID,
		Stage:     StageCasual,
		CreatedAt: now,
		UpdatedAt: now,
		Media: MediaLedger{
			SentAssetIDs: map[string]bool{},
		},
	}
}

// Clone returns a deep copy of the record. Snapshots handed to other
// goroutines must be clones: the media ledger map would otherwise be
// shared with the live record.
func (r *EngagementRecord) Clone() *EngagementRecord {
	c := *r
	c.Media = r.Media.Copy()
	return &c
}

// EffectiveStage returns the record's stage, mapping the unset value to casual.
func (r *EngagementRecord) EffectiveStage() string {
	if r.Stage == "" {
		return StageCasual
	}
	return r.Stage
}

// TokenBudget tracks daily token usage for one user. The daily limit is
// never stored; it is re-derived from the engagement record's tier on
// every check so tier upgrades take effect immediately.
type TokenBudget struct {
	DailyUsed int    `json:"daily_used"` // never decreases except on rollover
	ResetDate string `json:"reset_date"` // DateFormat of the day DailyUsed belongs to
}

// MediaLedger records which assets have been delivered to one user,
// guaranteeing no repeats until the pool is exhausted or the ledger is
// periodically cleared.
type MediaLedger struct {
	SentAssetIDs    map[string]bool `json:"sent_asset_ids"`
	LastSentAt      time.Time       `json:"last_sent_at"`
	TotalDeliveries int             `json:"total_deliveries"` // lifetime count, drives periodic reset
}

// HasSent reports whether the asset id has been delivered to this user
// since the last ledger reset.
func (l *MediaLedger) HasSent(assetID string) bool {
	if l.SentAssetIDs == nil {
		return false
	}
	return l.SentAssetIDs[assetID]
}

// MarkSent records a delivery of the given asset id.
func (l *MediaLedger) MarkSent(assetID string, now time.Time) {
	if l.SentAssetIDs == nil {
		l.SentAssetIDs = map[string]bool{}
	}
	l.SentAssetIDs[assetID] = true
	l.LastSentAt = now
	l.TotalDeliveries++
}

// Clear empties the dedup set. TotalDeliveries and LastSentAt are preserved:
// the inter-delivery gap still applies after a reset.
func (l *MediaLedger) Clear() {
	l.SentAssetIDs = map[string]bool{}
}

// Copy returns a deep copy of the ledger. The dedup set is a map, so a
// plain struct copy would alias it.
func (l MediaLedger) Copy() MediaLedger {
	c := l
	c.SentAssetIDs = make(map[string]bool, len(l.SentAssetIDs))
	for id := range l.SentAssetIDs {
		c.SentAssetIDs[id] = true
	}
	return c
}

// PresenceState is the transient per-user presence record. It is held in
// memory by the presence machine and purged by the idle-cleanup sweep; it
// is not persisted alongside the engagement record.
type PresenceState struct {
	UserID string `json:"user_id"`

	Mode               string    `json:"mode"` // one of ValidPresenceModes
	SituationTag       string    `json:"situation_tag,omitempty"`
	SituationStartedAt time.Time `json:"situation_started_at,omitempty"`
	StepCount          int       `json:"step_count"`

	// GoodbyeAt is the instant offline-goodbye was entered; the return
	// gate is measured from here.
	GoodbyeAt time.Time `json:"goodbye_at,omitempty"`

	// TouchedAt is updated on every presence operation and drives the
	// idle-cleanup sweep.
	TouchedAt time.Time `json:"touched_at"`
}
