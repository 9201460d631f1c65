package engine

import (
	"log"
	"sync"
	"time"

	"github.com/scrypster/confidant/pkg/types"
)

const (
	// DefaultMinOfflineDuration is how long offline-goodbye must last
	// before the companion may return online. No external event shortens it.
	DefaultMinOfflineDuration = 5 * time.Minute

	// DefaultIdleWindow is how long a presence record may go untouched
	// before the cleanup sweep purges it.
	DefaultIdleWindow = 6 * time.Hour
)

// PresenceMachine tracks per-user presence: available, busy within a
// scripted situation, or offline after a goodbye. Records are transient,
// created lazily, and purged by Sweep once idle.
type PresenceMachine struct {
	minOffline time.Duration
	idleWindow time.Duration

	mu     sync.RWMutex
	states map[string]*types.PresenceState
}

// NewPresenceMachine creates a presence machine with the default offline
// gate and idle window.
func NewPresenceMachine() *PresenceMachine {
	return NewPresenceMachineWithDurations(DefaultMinOfflineDuration, DefaultIdleWindow)
}

// NewPresenceMachineWithDurations creates a presence machine with custom
// durations. Non-positive values fall back to the defaults.
func NewPresenceMachineWithDurations(minOffline, idleWindow time.Duration) *PresenceMachine {
	if minOffline <= 0 {
		minOffline = DefaultMinOfflineDuration
	}
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	return &PresenceMachine{
		minOffline: minOffline,
		idleWindow: idleWindow,
		states:     make(map[string]*types.PresenceState),
	}
}

// MinOfflineDuration returns the configured offline gate duration.
func (m *PresenceMachine) MinOfflineDuration() time.Duration {
	return m.minOffline
}

// state returns the presence record for userID, creating a zero-valued
// available record on first contact. Caller must hold m.mu.
func (m *PresenceMachine) state(userID string, now time.Time) *types.PresenceState {
	st, ok := m.states[userID]
	if !ok {
		st = &types.PresenceState{
			UserID:    userID,
			Mode:      types.ModeAvailable,
			TouchedAt: now,
		}
		m.states[userID] = st
	}
	return st
}

// Mode returns the current presence mode for userID. Unknown users are
// available.
func (m *PresenceMachine) Mode(userID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[userID]; ok {
		return st.Mode
	}
	return types.ModeAvailable
}

// Snapshot returns a copy of the presence record for userID, or a
// zero-valued available record for unknown users.
func (m *PresenceMachine) Snapshot(userID string) types.PresenceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[userID]; ok {
		return *st
	}
	return types.PresenceState{UserID: userID, Mode: types.ModeAvailable}
}

// EnterGoodbye moves the user's companion to offline-goodbye at now.
// While in this mode the orchestrator suppresses all outbound messages.
func (m *PresenceMachine) EnterGoodbye(userID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(userID, now)
	st.Mode = types.ModeOfflineGoodbye
	st.GoodbyeAt = now
	st.SituationTag = ""
	st.SituationStartedAt = time.Time{}
	st.StepCount = 0
	st.TouchedAt = now
}

// ShouldReturnOnline reports whether the offline gate has opened: true iff
// the mode is offline-goodbye and at least MinOfflineDuration has elapsed
// since the goodbye. The comparison is boundary-inclusive.
func (m *PresenceMachine) ShouldReturnOnline(userID string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[userID]
	if !ok || st.Mode != types.ModeOfflineGoodbye {
		return false
	}
	return now.Sub(st.GoodbyeAt) >= m.minOffline
}

// ReturnOnline moves the user's companion back to available, clearing the
// situation tag and step counters. Call only after ShouldReturnOnline.
func (m *PresenceMachine) ReturnOnline(userID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(userID, now)
	st.Mode = types.ModeAvailable
	st.GoodbyeAt = time.Time{}
	st.SituationTag = ""
	st.SituationStartedAt = time.Time{}
	st.StepCount = 0
	st.TouchedAt = now
}

// EnterSituation starts a scripted unavailability narrative for the user.
// The machine records only the tag, start time, and step count; step
// content selection belongs to the situation table.
func (m *PresenceMachine) EnterSituation(userID, tag string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(userID, now)
	st.Mode = types.ModeBusy
	st.SituationTag = tag
	st.SituationStartedAt = now
	st.StepCount = 0
	st.TouchedAt = now
}

// AdvanceStep increments the active situation's step counter and returns
// the new count. ok is false when the user has no active situation.
func (m *PresenceMachine) AdvanceStep(userID string, now time.Time) (step int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, found := m.states[userID]
	if !found || st.Mode != types.ModeBusy {
		return 0, false
	}
	st.StepCount++
	st.TouchedAt = now
	return st.StepCount, true
}

// Sweep purges presence records untouched for longer than the idle window
// and returns how many were removed. Candidates are collected from a
// snapshot under the read lock so the sweep does not contend with
// in-flight per-user updates; each candidate is re-checked before removal.
func (m *PresenceMachine) Sweep(now time.Time) int {
	cutoff := now.Add(-m.idleWindow)

	m.mu.RLock()
	var stale []string
	for userID, st := range m.states {
		if st.TouchedAt.Before(cutoff) {
			stale = append(stale, userID)
		}
	}
	m.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	removed := 0
	m.mu.Lock()
	for _, userID := range stale {
		if st, ok := m.states[userID]; ok && st.TouchedAt.Before(cutoff) {
			delete(m.states, userID)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		log.Printf("presence: swept %d idle record(s)", removed)
	}
	return removed
}

// Len returns the number of tracked presence records.
func (m *PresenceMachine) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
