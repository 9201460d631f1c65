package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/confidant/internal/sentiment"
	"github.com/scrypster/confidant/internal/storage"
	"github.com/scrypster/confidant/pkg/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// newTestEngine builds an engine on an in-memory store with a fixed
// afternoon clock and a high stub roll, so no probabilistic behavior
// (ignore, media, soft limit) fires unless a test overrides the source.
func newTestEngine(t *testing.T, rnd Rand) (*Engine, *fakeClock, *storage.MemoryStore) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore()

	eng, err := NewEngine(DefaultConfig(), store, clock, rnd,
		sentiment.NewLexicalScorer(), testPool(3), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return eng, clock, store
}

func TestProcessTurnBasicFlow(t *testing.T) {
	eng, _, _ := newTestEngine(t, stubRand{0.99})
	ctx := context.Background()

	res := eng.ProcessTurn(ctx, TurnInput{
		UserID:     "u1",
		Message:    "hello there",
		ReplyParts: []string{"hi!", "how was your day?"},
		TokensUsed: 50,
	})

	if res.Silent {
		t.Fatal("available companion should not be silent")
	}
	if res.Stage != types.StageCasual {
		t.Errorf("Stage = %q, want casual on first contact", res.Stage)
	}
	if res.PresenceMode != types.ModeAvailable {
		t.Errorf("PresenceMode = %q, want available", res.PresenceMode)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(res.Messages))
	}
	for i, m := range res.Messages {
		if m.Delay < MinReplyDelay || m.Delay > MaxReplyDelay {
			t.Errorf("message %d delay %v outside clamp", i, m.Delay)
		}
	}
	if res.Budget.Used != 50 || res.Budget.Tier != TierNew {
		t.Errorf("budget = %+v, want 50 used on new tier", res.Budget)
	}
	if res.HardLimited || res.SoftLimited {
		t.Error("limits should not trip at 50 tokens")
	}
}

func TestProcessTurnStageAdvances(t *testing.T) {
	eng, _, _ := newTestEngine(t, stubRand{0.99})
	ctx := context.Background()

	var res *TurnResult
	for i := 0; i < 5; i++ {
		res = eng.ProcessTurn(ctx, TurnInput{
			UserID:     "u1",
			Message:    "just checking in",
			ReplyParts: []string{"hey"},
			TokensUsed: 1,
		})
	}
	if res.Stage != types.StageFriendly {
		t.Errorf("Stage after 5 turns = %q, want friendly", res.Stage)
	}
}

func TestProcessTurnHardLimitEntersGoodbye(t *testing.T) {
	eng, clock, _ := newTestEngine(t, stubRand{0.99})
	ctx := context.Background()

	res := eng.ProcessTurn(ctx, TurnInput{
		UserID:     "u1",
		Message:    "tell me everything",
		ReplyParts: []string{"okay so..."},
		TokensUsed: 2000, // exhausts the new-tier allowance in one turn
	})

	if !res.HardLimited {
		t.Fatal("expected hard limit at full usage")
	}
	if len(res.Messages) != 1 || res.Messages[0].Text != farewellText {
		t.Errorf("expected a single farewell, got %+v", res.Messages)
	}
	if res.PresenceMode != types.ModeOfflineGoodbye {
		t.Errorf("PresenceMode = %q, want offline-goodbye", res.PresenceMode)
	}

	// Inside the offline gate nothing is delivered.
	clock.advance(4 * time.Minute)
	res = eng.ProcessTurn(ctx, TurnInput{
		UserID: "u1", Message: "are you there?", ReplyParts: []string{"..."},
	})
	if !res.Silent {
		t.Error("turn inside the offline gate should be silent")
	}

	// Next day the gate is open and the budget has rolled over.
	clock.advance(24 * time.Hour)
	res = eng.ProcessTurn(ctx, TurnInput{
		UserID:     "u1",
		Message:    "good morning!",
		ReplyParts: []string{"morning!"},
		TokensUsed: 10,
	})
	if res.Silent || res.HardLimited {
		t.Errorf("expected normal turn after rollover, got %+v", res)
	}
	if res.PresenceMode != types.ModeAvailable {
		t.Errorf("PresenceMode = %q, want available after return", res.PresenceMode)
	}
	if res.Budget.Used != 10 {
		t.Errorf("Budget.Used = %d after rollover, want 10", res.Budget.Used)
	}
}

func TestProcessTurnSoftLimitInterjects(t *testing.T) {
	// A zero roll makes the soft limit fire at any ratio above the
	// threshold. 1800 of 2000 is 90%, half-way up the ramp.
	eng, _, _ := newTestEngine(t, stubRand{0.0})
	ctx := context.Background()

	res := eng.ProcessTurn(ctx, TurnInput{
		UserID:     "u1",
		Message:    "one more story?",
		ReplyParts: []string{"alright, one more"},
		TokensUsed: 1800,
	})

	if res.HardLimited {
		t.Fatal("90% usage must not hard-limit")
	}
	if !res.SoftLimited {
		t.Fatal("expected soft limit to fire with a zero roll at 90%")
	}
	last := res.Messages[len(res.Messages)-1]
	if last.Text != breakSuggestionText {
		t.Errorf("last message = %q, want break suggestion", last.Text)
	}
}

func TestProcessTurnBusyFollowsScript(t *testing.T) {
	eng, clock, _ := newTestEngine(t, stubRand{0.99})
	ctx := context.Background()
	script := DefaultSituations()["studying"]

	if err := eng.EnterSituation("u1", "studying"); err != nil {
		t.Fatalf("EnterSituation failed: %v", err)
	}

	// First turn gets the opening line; generated replies are ignored.
	res := eng.ProcessTurn(ctx, TurnInput{
		UserID: "u1", Message: "hey!", ReplyParts: []string{"generated reply"},
	})
	if len(res.Messages) != 1 || res.Messages[0].Text != script.Steps[0].Text {
		t.Fatalf("got %+v, want opening script line", res.Messages)
	}
	if res.PresenceMode != types.ModeBusy {
		t.Errorf("PresenceMode = %q, want busy", res.PresenceMode)
	}

	// Before the next step is due the previous line repeats.
	clock.advance(2 * time.Minute)
	res = eng.ProcessTurn(ctx, TurnInput{
		UserID: "u1", Message: "still busy?", ReplyParts: []string{"x"},
	})
	if res.Messages[0].Text != script.Steps[0].Text {
		t.Errorf("got %q, want held opening line", res.Messages[0].Text)
	}

	// Past each step's offset the script advances.
	clock.advance(10 * time.Minute)
	res = eng.ProcessTurn(ctx, TurnInput{
		UserID: "u1", Message: "now?", ReplyParts: []string{"x"},
	})
	if res.Messages[0].Text != script.Steps[1].Text {
		t.Errorf("got %q, want second script line", res.Messages[0].Text)
	}

	clock.advance(20 * time.Minute)
	res = eng.ProcessTurn(ctx, TurnInput{
		UserID: "u1", Message: "now??", ReplyParts: []string{"x"},
	})
	if res.Messages[0].Text != script.Steps[2].Text {
		t.Errorf("got %q, want final script line", res.Messages[0].Text)
	}

	// Exhausted script winds down to goodbye.
	clock.advance(5 * time.Minute)
	res = eng.ProcessTurn(ctx, TurnInput{
		UserID: "u1", Message: "done yet?", ReplyParts: []string{"x"},
	})
	if !res.Silent || res.PresenceMode != types.ModeOfflineGoodbye {
		t.Errorf("expected silent goodbye after script end, got %+v", res)
	}
}

func TestEnterSituationUnknownTag(t *testing.T) {
	eng, _, _ := newTestEngine(t, stubRand{0.99})
	if err := eng.EnterSituation("u1", "interpretive_dance"); err == nil {
		t.Error("expected error for unknown situation tag")
	}
}

func TestStatusUnknownUserDefaults(t *testing.T) {
	eng, _, _ := newTestEngine(t, stubRand{0.99})

	rec, budget, presence := eng.Status(context.Background(), "nobody")
	if rec.EffectiveStage() != types.StageCasual || rec.InteractionCount != 0 {
		t.Errorf("record = %+v, want fresh defaults", rec)
	}
	if budget.Tier != TierNew || budget.Used != 0 {
		t.Errorf("budget = %+v, want empty new tier", budget)
	}
	if presence.Mode != types.ModeAvailable {
		t.Errorf("presence = %q, want available", presence.Mode)
	}
}

func TestStopDrainsPendingSaves(t *testing.T) {
	eng, _, store := newTestEngine(t, stubRand{0.99})
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eng.ProcessTurn(ctx, TurnInput{
		UserID: "u1", Message: "hi", ReplyParts: []string{"hi"}, TokensUsed: 5,
	})
	eng.Stop()

	rec, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("record not persisted after Stop: %v", err)
	}
	if rec.InteractionCount != 1 || rec.Budget.DailyUsed != 5 {
		t.Errorf("persisted record mismatch: %+v", rec)
	}
}

// The save worker serializes queued snapshots in the background while
// later turns keep writing to the live record's media ledger. Snapshots
// must be deep copies; an aliased ledger map makes this test fail under
// the race detector and can panic the worker mid-marshal.
func TestSaveWorkerOverlappingMediaTurns(t *testing.T) {
	eng, clock, store := newTestEngine(t, stubRand{0.0}) // media fires every eligible turn
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const turns = 400
	for i := 0; i < turns; i++ {
		eng.ProcessTurn(ctx, TurnInput{
			UserID:     "u1",
			Message:    "show me a photo",
			ReplyParts: []string{"okay, one sec..."},
			TokensUsed: 1,
		})
		clock.advance(11 * time.Minute) // keep each turn past the delivery gap
	}
	eng.Stop()

	rec, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.InteractionCount != turns {
		t.Errorf("persisted count = %d, want %d", rec.InteractionCount, turns)
	}
	if rec.Media.TotalDeliveries == 0 {
		t.Error("expected media deliveries to be recorded")
	}
}

func TestProcessTurnConcurrentUsers(t *testing.T) {
	eng, _, _ := newTestEngine(t, stubRand{0.99})
	ctx := context.Background()

	const users = 8
	const turns = 25

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", u)
			for i := 0; i < turns; i++ {
				eng.ProcessTurn(ctx, TurnInput{
					UserID:     userID,
					Message:    "hello",
					ReplyParts: []string{"hey"},
					TokensUsed: 1,
				})
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		rec, _, _ := eng.Status(ctx, fmt.Sprintf("user-%d", u))
		if rec.InteractionCount != turns {
			t.Errorf("user-%d count = %d, want %d", u, rec.InteractionCount, turns)
		}
	}
}
