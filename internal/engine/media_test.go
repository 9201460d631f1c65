package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/scrypster/confidant/internal/catalog"
	"github.com/scrypster/confidant/pkg/types"
)

// seqRand cycles through preset Float64 values and selects index 0 from
// every Intn call, making selection order deterministic.
type seqRand struct {
	vals []float64
	i    int
}

func (s *seqRand) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}
func (s *seqRand) Intn(n int) int { return 0 }

func testPool(n int) *catalog.StaticCatalog {
	assets := make([]catalog.Asset, n)
	for i := range assets {
		assets[i] = catalog.Asset{ID: fmt.Sprintf("asset-%02d", i), URL: "https://cdn.example.com/a.jpg"}
	}
	return catalog.NewStaticCatalog(assets)
}

func TestMaybeSelectRespectsDeliveryGap(t *testing.T) {
	me := NewMediaEngine(testPool(5), &seqRand{vals: []float64{0.0}})
	now := time.Now()
	rec := types.NewEngagementRecord("u1", now)

	first := me.MaybeSelect(rec, "send me a pic", now)
	if first == nil {
		t.Fatal("expected a delivery on a zero roll with a request cue")
	}

	// Within the gap nothing is delivered, regardless of roll or cues.
	if got := me.MaybeSelect(rec, "send me a pic", now.Add(minDeliveryGap-time.Second)); got != nil {
		t.Error("delivery inside the minimum gap should return nil")
	}

	if got := me.MaybeSelect(rec, "send me a pic", now.Add(minDeliveryGap+time.Second)); got == nil {
		t.Error("delivery after the gap should succeed")
	}
}

func TestMaybeSelectNeverRepeatsUntilPoolExhausted(t *testing.T) {
	const poolSize = 8
	me := NewMediaEngine(testPool(poolSize), &seqRand{vals: []float64{0.0}})
	now := time.Now()
	rec := types.NewEngagementRecord("u1", now)

	seen := map[string]bool{}
	for i := 0; i < poolSize; i++ {
		at := now.Add(time.Duration(i) * (minDeliveryGap + time.Minute))
		asset := me.MaybeSelect(rec, "send me a photo", at)
		if asset == nil {
			t.Fatalf("delivery %d unexpectedly nil", i)
		}
		if seen[asset.ID] {
			t.Fatalf("asset %q repeated before pool exhaustion", asset.ID)
		}
		seen[asset.ID] = true
	}

	// Pool exhausted: the next selection implicitly resets rather than erroring.
	at := now.Add(time.Duration(poolSize) * (minDeliveryGap + time.Minute))
	asset := me.MaybeSelect(rec, "send me a photo", at)
	if asset == nil {
		t.Fatal("exhausted pool should implicitly reset, not return nil")
	}
	if !seen[asset.ID] {
		t.Error("post-reset asset should come from the original pool")
	}
}

func TestMaybeSelectNoTriggerReturnsNil(t *testing.T) {
	// Roll of 0.99 beats every capped probability.
	me := NewMediaEngine(testPool(5), &seqRand{vals: []float64{0.99}})
	now := time.Now()
	rec := types.NewEngagementRecord("u1", now)

	if got := me.MaybeSelect(rec, "send me the most beautiful pic", now); got != nil {
		t.Error("high roll should suppress delivery even with stacked cues")
	}
}

func TestMaybeSelectEmptyCatalog(t *testing.T) {
	me := NewMediaEngine(catalog.NewStaticCatalog(nil), &seqRand{vals: []float64{0.0}})
	now := time.Now()
	rec := types.NewEngagementRecord("u1", now)

	if got := me.MaybeSelect(rec, "send me a pic", now); got != nil {
		t.Error("empty catalog should return nil, not panic")
	}
}

func TestTriggerProbabilityCues(t *testing.T) {
	me := NewMediaEngine(testPool(1), &seqRand{vals: []float64{0.5}})
	rec := types.NewEngagementRecord("u1", time.Now())

	cases := []struct {
		name string
		msg  string
		rec  func(*types.EngagementRecord)
		want float64
	}{
		{"plain", "how are you", nil, mediaBaseProbability},
		{"request", "show me something", nil, mediaBaseProbability + mediaRequestCueBonus},
		{"compliment", "you are gorgeous", nil, mediaBaseProbability + mediaComplimentCueBonus},
		{"milestone", "hello", func(r *types.EngagementRecord) { r.InteractionCount = mediaMilestoneInterval * 2 }, mediaBaseProbability + mediaMilestoneBonus},
		{"stacked_capped", "show me, you gorgeous thing", func(r *types.EngagementRecord) { r.InteractionCount = mediaMilestoneInterval }, mediaProbabilityCap},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := *rec
			if tc.rec != nil {
				tc.rec(&r)
			}
			if got := me.triggerProbability(&r, tc.msg); got != tc.want {
				t.Errorf("triggerProbability = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPeriodicLedgerReset(t *testing.T) {
	me := NewMediaEngine(testPool(3), &seqRand{vals: []float64{0.0}})
	now := time.Now()
	rec := types.NewEngagementRecord("u1", now)

	rec.Media.TotalDeliveries = ledgerResetThreshold
	rec.Media.MarkSent("asset-00", now.Add(-time.Hour))
	rec.Media.MarkSent("asset-01", now.Add(-time.Hour))
	rec.Media.TotalDeliveries = ledgerResetThreshold // MarkSent bumped it

	asset := me.MaybeSelect(rec, "send me a pic", now)
	if asset == nil {
		t.Fatal("expected delivery after periodic reset")
	}
	// Ledger was cleared before selection: only the new delivery remains.
	if rec.Media.TotalDeliveries != 1 {
		t.Errorf("TotalDeliveries = %d after periodic reset, want 1", rec.Media.TotalDeliveries)
	}
	if len(rec.Media.SentAssetIDs) != 1 {
		t.Errorf("ledger holds %d ids after reset, want 1", len(rec.Media.SentAssetIDs))
	}
}
