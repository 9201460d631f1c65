package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/confidant/internal/catalog"
	"github.com/scrypster/confidant/internal/sentiment"
	"github.com/scrypster/confidant/internal/storage"
	"github.com/scrypster/confidant/pkg/types"
)

const (
	// defaultSweepInterval is how often the idle-cleanup sweep runs.
	defaultSweepInterval = 15 * time.Minute

	// saveQueueSize bounds the fire-and-forget persistence queue. When
	// the queue is full, saves are dropped (in-memory state stays
	// authoritative) rather than blocking a turn.
	saveQueueSize = 1024
)

// farewellText is the single message emitted when the daily budget is
// exhausted, before the companion goes offline.
const farewellText = "I'm getting really sleepy... let's pick this up tomorrow, okay?"

// breakSuggestionText is interjected with rising probability as the user
// approaches the daily budget.
const breakSuggestionText = "We've been talking so much today... maybe a tiny break soon?"

// Config holds engine tuning. The zero value is usable; unset fields fall
// back to defaults.
type Config struct {
	MinOfflineDuration time.Duration // offline-goodbye gate, default 5m
	IdleWindow         time.Duration // presence purge window, default 6h
	SweepInterval      time.Duration // cleanup period, default 15m
}

// Validate checks the configuration for nonsensical values.
func (c Config) Validate() error {
	if c.MinOfflineDuration < 0 || c.IdleWindow < 0 || c.SweepInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MinOfflineDuration: DefaultMinOfflineDuration,
		IdleWindow:         DefaultIdleWindow,
		SweepInterval:      defaultSweepInterval,
	}
}

// TurnInput is one inbound user message plus the reply parts the upstream
// generation layer produced for it. The engine decides whether, when, and
// with what extras those parts reach the user; it never generates or
// transmits content itself.
type TurnInput struct {
	UserID     string
	Message    string
	ReplyParts []string

	// TokensUsed is the token cost of generating the reply parts. When
	// zero, the engine estimates from the reply word count.
	TokensUsed int
}

// TimedMessage is one outbound message with the delay the caller must
// wait before delivering it.
type TimedMessage struct {
	Text  string        `json:"text"`
	Delay time.Duration `json:"delay"`
}

// TurnResult is the engine's decision for one turn.
type TurnResult struct {
	UserID       string         `json:"user_id"`
	Silent       bool           `json:"silent"` // offline: deliver nothing
	Stage        string         `json:"stage"`
	PresenceMode string         `json:"presence_mode"`
	Messages     []TimedMessage `json:"messages"`
	Asset        *catalog.Asset `json:"asset,omitempty"`
	Budget       BudgetStatus   `json:"budget"`
	SoftLimited  bool           `json:"soft_limited"`
	HardLimited  bool           `json:"hard_limited"`
}

// Engine is the engagement & presence engine. It composes the stage
// tracker, presence machine, timing calculator, budget enforcer, and
// media engine behind a single per-turn entry point, with all state
// partitioned by user identifier.
//
// In-memory records are authoritative for the process lifetime;
// persistence is fire-and-forget through the injected store.
type Engine struct {
	config Config

	store  storage.EngagementStore
	clock  Clock
	rnd    Rand
	scorer sentiment.Scorer

	tracker    *StageTracker
	presence   *PresenceMachine
	timing     *TimingCalculator
	budget     *BudgetEnforcer
	media      *MediaEngine
	situations SituationTable

	// Per-user records and locks. userLocks guards read-modify-write
	// sequences per user; recordsMu only guards the map itself.
	recordsMu sync.RWMutex
	records   map[string]*types.EngagementRecord
	locksMu   sync.Mutex
	userLocks map[string]*sync.Mutex

	saveQueue chan *types.EngagementRecord
	wg        sync.WaitGroup
	cancel    context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// NewEngine creates an engine with its dependencies injected. store,
// clock, rnd, scorer, and cat are all required; situations may be nil to
// use the built-in scripts.
func NewEngine(cfg Config, store storage.EngagementStore, clock Clock, rnd Rand,
	scorer sentiment.Scorer, cat catalog.AssetCatalog, situations SituationTable) (*Engine, error) {

	if store == nil {
		return nil, fmt.Errorf("engagement store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if rnd == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("sentiment scorer is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("asset catalog is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if situations == nil {
		situations = DefaultSituations()
	}

	return &Engine{
		config:     cfg,
		store:      store,
		clock:      clock,
		rnd:        rnd,
		scorer:     scorer,
		tracker:    NewStageTracker(),
		presence:   NewPresenceMachineWithDurations(cfg.MinOfflineDuration, cfg.IdleWindow),
		timing:     NewTimingCalculator(rnd),
		budget:     NewBudgetEnforcer(rnd),
		media:      NewMediaEngine(cat, rnd),
		situations: situations,
		records:    make(map[string]*types.EngagementRecord),
		userLocks:  make(map[string]*sync.Mutex),
		saveQueue:  make(chan *types.EngagementRecord, saveQueueSize),
	}, nil
}

// Start launches the background save worker and the idle-cleanup sweeper.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}
	e.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go e.saveWorker(workerCtx)
	go e.sweepLoop(workerCtx)

	log.Printf("engine: started (sweep every %s)", e.config.SweepInterval)
	return nil
}

// Stop halts the background workers and waits for them to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	log.Println("engine: stopped")
}

// userLock returns the mutex dedicated to userID, creating it on first
// contact. Records are fully partitioned by user, so this is the only
// locking a turn needs.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	return l
}

// record returns the in-memory record for userID, loading it from the
// store on first touch. Load failures and absence both degrade to a
// zero-valued default; they are never fatal. Caller must hold the user lock.
func (e *Engine) record(ctx context.Context, userID string, now time.Time) *types.EngagementRecord {
	e.recordsMu.RLock()
	rec, ok := e.records[userID]
	e.recordsMu.RUnlock()
	if ok {
		return rec
	}

	rec, err := e.store.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("engine: load failed for user %s, using defaults: %v", userID, err)
		}
		rec = types.NewEngagementRecord(userID, now)
	}

	e.recordsMu.Lock()
	e.records[userID] = rec
	e.recordsMu.Unlock()
	return rec
}

// ProcessTurn runs one inbound message through the full decision
// sequence: presence gate, stage advance, budget check, media selection,
// and delay computation. It is safe for concurrent use; overlapping calls
// for the same user serialize on the per-user lock.
func (e *Engine) ProcessTurn(ctx context.Context, in TurnInput) *TurnResult {
	lock := e.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	result := &TurnResult{UserID: in.UserID}

	// 1. Presence gate. An offline companion produces nothing until the
	// time gate opens, then quietly returns before handling the message.
	if e.presence.Mode(in.UserID) == types.ModeOfflineGoodbye {
		if !e.presence.ShouldReturnOnline(in.UserID, now) {
			result.Silent = true
			result.PresenceMode = types.ModeOfflineGoodbye
			return result
		}
		e.presence.ReturnOnline(in.UserID, now)
	}

	rec := e.record(ctx, in.UserID, now)
	idleGap := time.Duration(0)
	if !rec.LastInteractionAt.IsZero() {
		idleGap = now.Sub(rec.LastInteractionAt)
	}

	// 2. Relationship stage.
	score := e.scorer.Score(in.Message)
	stage, _ := e.tracker.Advance(rec, score, now)
	result.Stage = stage

	// 3. Token budget.
	tokens := in.TokensUsed
	if tokens == 0 {
		tokens = estimateTokens(in.ReplyParts)
	}
	e.budget.RecordUsage(rec, tokens, now)
	result.Budget = e.budget.Status(rec, now)

	mode := e.presence.Mode(in.UserID)
	tctx := TimingContext{
		Mode:             mode,
		Stage:            stage,
		InteractionCount: rec.InteractionCount,
		IdleGap:          idleGap,
		LocalHour:        now.Hour(),
	}

	if e.budget.IsHardLimited(rec, now) {
		// Designed terminal condition: one farewell, then offline.
		result.HardLimited = true
		delays := e.timing.ComputeDelays([]string{farewellText}, tctx)
		result.Messages = []TimedMessage{{Text: farewellText, Delay: delays[0]}}
		e.presence.EnterGoodbye(in.UserID, now)
		result.PresenceMode = types.ModeOfflineGoodbye
		e.enqueueSave(rec)
		return result
	}

	// 4. Reply planning. A busy companion answers with its situation
	// script instead of the generated reply parts.
	parts := in.ReplyParts
	if mode == types.ModeBusy {
		parts = e.situationReply(in.UserID, now)
		if parts == nil {
			// Script exhausted: the situation winds down to goodbye.
			e.presence.EnterGoodbye(in.UserID, now)
			result.PresenceMode = types.ModeOfflineGoodbye
			result.Silent = true
			e.enqueueSave(rec)
			return result
		}
	}

	if e.budget.IsSoftLimited(rec, now) {
		result.SoftLimited = true
		parts = append(append([]string{}, parts...), breakSuggestionText)
	}

	// 5. Media selection.
	result.Asset = e.media.MaybeSelect(rec, in.Message, now)

	// 6. Delays.
	delays := e.timing.ComputeDelays(parts, tctx)
	result.Messages = make([]TimedMessage, len(parts))
	for i, p := range parts {
		result.Messages[i] = TimedMessage{Text: p, Delay: delays[i]}
	}
	result.PresenceMode = e.presence.Mode(in.UserID)

	e.enqueueSave(rec)
	return result
}

// situationReply advances the active situation and returns its next step
// text, or nil when the script is exhausted (or the tag is unknown).
func (e *Engine) situationReply(userID string, now time.Time) []string {
	st := e.presence.Snapshot(userID)
	elapsed := now.Sub(st.SituationStartedAt)

	step, ok := e.situations.Step(st.SituationTag, st.StepCount)
	if !ok {
		// Script exhausted or tag unknown.
		return nil
	}
	if elapsed < step.After {
		// Next scripted line is not yet due; hold on the previous one.
		if st.StepCount == 0 {
			return nil
		}
		prev, prevOK := e.situations.Step(st.SituationTag, st.StepCount-1)
		if !prevOK {
			return nil
		}
		return []string{prev.Text}
	}

	e.presence.AdvanceStep(userID, now)
	return []string{step.Text}
}

// EnterSituation starts a scripted unavailability narrative for the user.
// Unknown tags are rejected.
func (e *Engine) EnterSituation(userID, tag string) error {
	if _, ok := e.situations[tag]; !ok {
		return fmt.Errorf("unknown situation tag %q", tag)
	}
	e.presence.EnterSituation(userID, tag, e.clock.Now())
	return nil
}

// EnterGoodbye immediately takes the companion offline for the user.
func (e *Engine) EnterGoodbye(userID string) {
	e.presence.EnterGoodbye(userID, e.clock.Now())
}

// Status returns the engagement, budget, and presence snapshot for a user
// without processing a message.
func (e *Engine) Status(ctx context.Context, userID string) (*types.EngagementRecord, BudgetStatus, types.PresenceState) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	rec := e.record(ctx, userID, now)
	return rec.Clone(), e.budget.Status(rec, now), e.presence.Snapshot(userID)
}

// enqueueSave queues the record for asynchronous persistence. The queued
// snapshot is a deep copy: the save worker serializes it outside the
// per-user lock, so it must not share the ledger map with the live
// record. Saves never block: when the queue is full the write is dropped
// and the in-memory record remains authoritative.
func (e *Engine) enqueueSave(rec *types.EngagementRecord) {
	select {
	case e.saveQueue <- rec.Clone():
	default:
		log.Printf("engine: save queue full, dropping write for user %s", rec.UserID)
	}
}

// saveWorker drains the persistence queue in the background.
func (e *Engine) saveWorker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case rec := <-e.saveQueue:
					e.persist(rec)
				default:
					return
				}
			}
		case rec := <-e.saveQueue:
			e.persist(rec)
		}
	}
}

func (e *Engine) persist(rec *types.EngagementRecord) {
	if err := e.store.Save(context.Background(), rec); err != nil {
		log.Printf("engine: save failed for user %s: %v", rec.UserID, err)
	}
}

// sweepLoop runs the presence idle cleanup on a fixed period.
func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.presence.Sweep(e.clock.Now())
		}
	}
}

// estimateTokens approximates token usage from reply word counts when the
// caller does not report actuals.
func estimateTokens(parts []string) int {
	words := 0
	for _, p := range parts {
		words += len(strings.Fields(p))
	}
	// Rough words-to-tokens ratio for English text.
	return words * 4 / 3
}
