// v1
// internal/monitor/scheduler_test.go
package monitor

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/learning"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSink(t *testing.T) *learning.Store {
	t.Helper()
	params, err := learning.NewParams(learning.DefaultParamsConfig())
	if err != nil {
		t.Fatalf("params init failed: %v", err)
	}
	store, err := learning.NewStore(params, testLogger())
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	return store
}

func pendingFor(entity string) Pending {
	return Pending{
		RecommendationID: "rec-" + entity,
		EntityID:         entity,
		Context:          bands.Key{Outdoor: "hot", Target: "comfortable", Room: "medium"},
		Adjustment:       +1,
		TargetC:          25,
		CreatedAt:        time.Now().UTC(),
	}
}

// windowFor plucks the live window so tests can drive the timeout path
// deterministically instead of waiting on real timers.
func windowFor(t *testing.T, s *Scheduler, entity string) *window {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[entity]
	if !ok {
		t.Fatalf("no window armed for %s", entity)
	}
	return w
}

func TestExpiryAppliesPositiveReward(t *testing.T) {
	store := newTestSink(t)
	key := pendingFor("unit-1").Context

	var resolutions []Resolution
	s, err := NewScheduler(store, testLogger(), time.Hour, func(r Resolution) {
		resolutions = append(resolutions, r)
	})
	if err != nil {
		t.Fatalf("scheduler init failed: %v", err)
	}

	before := store.QValues("unit-1", key)
	if err := s.Arm(pendingFor("unit-1")); err != nil {
		t.Fatalf("arm failed: %v", err)
	}

	w := windowFor(t, s, "unit-1")
	w.timer.Stop()
	s.expire(w)

	after := store.QValues("unit-1", key)
	idx := learning.Action(+1).Index()
	if after[idx] <= before[idx] {
		t.Fatalf("q after acceptance = %v, want > %v", after[idx], before[idx])
	}
	wantQ := before[idx] + 0.1*(RewardAccepted-before[idx])
	if math.Abs(after[idx]-wantQ) > 1e-12 {
		t.Fatalf("q after acceptance = %v, want %v", after[idx], wantQ)
	}

	total, successful := store.Counters("unit-1")
	if total != 1 || successful != 1 {
		t.Fatalf("counters = (%d,%d), want (1,1)", total, successful)
	}
	if len(resolutions) != 1 || resolutions[0].Outcome != OutcomeAccepted {
		t.Fatalf("unexpected resolutions: %+v", resolutions)
	}
	if s.ActiveCount() != 0 {
		t.Fatalf("active windows = %d, want 0", s.ActiveCount())
	}
}

func TestOverrideAppliesNegativeReward(t *testing.T) {
	store := newTestSink(t)
	key := pendingFor("unit-1").Context

	s, err := NewScheduler(store, testLogger(), time.Hour, nil)
	if err != nil {
		t.Fatalf("scheduler init failed: %v", err)
	}

	before := store.QValues("unit-1", key)
	if err := s.Arm(pendingFor("unit-1")); err != nil {
		t.Fatalf("arm failed: %v", err)
	}

	// Manual change lands well inside the window.
	res, claimed := s.Override("unit-1")
	if !claimed {
		t.Fatal("override must claim the active window")
	}
	if res.Outcome != OutcomeOverridden || res.Reward != RewardOverridden {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	after := store.QValues("unit-1", key)
	idx := learning.Action(+1).Index()
	if after[idx] >= before[idx] {
		t.Fatalf("q after override = %v, want < %v", after[idx], before[idx])
	}

	total, successful := store.Counters("unit-1")
	if total != 1 || successful != 0 {
		t.Fatalf("counters = (%d,%d), want (1,0)", total, successful)
	}

	// A second override finds nothing to claim.
	if _, claimed := s.Override("unit-1"); claimed {
		t.Fatal("second override must not claim anything")
	}
}

func TestOverrideWithoutWindowIsNoop(t *testing.T) {
	s, err := NewScheduler(newTestSink(t), testLogger(), time.Hour, nil)
	if err != nil {
		t.Fatalf("scheduler init failed: %v", err)
	}
	if _, claimed := s.Override("unit-1"); claimed {
		t.Fatal("override with no window must not claim")
	}
}

func TestRaceExactlyOneResolution(t *testing.T) {
	// Deliver the override and fire the countdown on the same tick, in
	// both orders, and require exactly one reward per armed window.
	for _, overrideFirst := range []bool{true, false} {
		store := newTestSink(t)

		var mu sync.Mutex
		var resolutions []Resolution
		s, err := NewScheduler(store, testLogger(), time.Hour, func(r Resolution) {
			mu.Lock()
			resolutions = append(resolutions, r)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("scheduler init failed: %v", err)
		}

		const rounds = 100
		for i := 0; i < rounds; i++ {
			if err := s.Arm(pendingFor("unit-1")); err != nil {
				t.Fatalf("arm failed: %v", err)
			}
			w := windowFor(t, s, "unit-1")
			w.timer.Stop()

			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				if overrideFirst {
					s.Override("unit-1")
				} else {
					s.expire(w)
				}
			}()
			go func() {
				defer wg.Done()
				<-start
				if overrideFirst {
					s.expire(w)
				} else {
					s.Override("unit-1")
				}
			}()
			close(start)
			wg.Wait()
		}

		total, _ := store.Counters("unit-1")
		if total != rounds {
			t.Fatalf("overrideFirst=%v: rewards applied = %d, want exactly %d", overrideFirst, total, rounds)
		}
		mu.Lock()
		if len(resolutions) != rounds {
			t.Fatalf("overrideFirst=%v: resolutions = %d, want %d", overrideFirst, len(resolutions), rounds)
		}
		for _, r := range resolutions {
			if r.Outcome != OutcomeAccepted && r.Outcome != OutcomeOverridden {
				t.Fatalf("unexpected outcome %q in race", r.Outcome)
			}
		}
		mu.Unlock()
	}
}

func TestArmSupersedesPriorWindow(t *testing.T) {
	store := newTestSink(t)

	var resolutions []Resolution
	s, err := NewScheduler(store, testLogger(), time.Hour, func(r Resolution) {
		resolutions = append(resolutions, r)
	})
	if err != nil {
		t.Fatalf("scheduler init failed: %v", err)
	}

	first := pendingFor("unit-1")
	first.RecommendationID = "rec-first"
	if err := s.Arm(first); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	firstWindow := windowFor(t, s, "unit-1")

	second := pendingFor("unit-1")
	second.RecommendationID = "rec-second"
	if err := s.Arm(second); err != nil {
		t.Fatalf("arm failed: %v", err)
	}

	if len(resolutions) != 1 || resolutions[0].Outcome != OutcomeSuperseded {
		t.Fatalf("expected one superseded resolution, got %+v", resolutions)
	}
	if resolutions[0].Pending.RecommendationID != "rec-first" {
		t.Fatalf("superseded window = %q, want rec-first", resolutions[0].Pending.RecommendationID)
	}

	// No reward for the superseded window, and its stale timer callback
	// must not resolve anything.
	s.expire(firstWindow)
	total, _ := store.Counters("unit-1")
	if total != 0 {
		t.Fatalf("rewards applied = %d, want 0 after supersession", total)
	}
	if s.ActiveCount() != 1 {
		t.Fatalf("active windows = %d, want the superseding one", s.ActiveCount())
	}
}

func TestCancelAllBeforeReset(t *testing.T) {
	store := newTestSink(t)
	s, err := NewScheduler(store, testLogger(), time.Hour, nil)
	if err != nil {
		t.Fatalf("scheduler init failed: %v", err)
	}

	for _, id := range []string{"unit-1", "unit-2", "unit-3"} {
		if err := s.Arm(pendingFor(id)); err != nil {
			t.Fatalf("arm failed: %v", err)
		}
	}
	if n := s.CancelAll(); n != 3 {
		t.Fatalf("cancelled = %d, want 3", n)
	}
	if s.ActiveCount() != 0 {
		t.Fatalf("active windows = %d, want 0", s.ActiveCount())
	}
	total, _ := store.Counters("unit-1")
	if total != 0 {
		t.Fatalf("cancellation must not apply rewards, got %d", total)
	}
	// Idempotent.
	if n := s.CancelAll(); n != 0 {
		t.Fatalf("second cancel-all = %d, want 0", n)
	}
}

func TestTimerFiresForShortWindows(t *testing.T) {
	store := newTestSink(t)
	done := make(chan Resolution, 1)
	s, err := NewScheduler(store, testLogger(), 10*time.Millisecond, func(r Resolution) {
		done <- r
	})
	if err != nil {
		t.Fatalf("scheduler init failed: %v", err)
	}

	if err := s.Arm(pendingFor("unit-1")); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	select {
	case r := <-done:
		if r.Outcome != OutcomeAccepted {
			t.Fatalf("outcome = %q, want accepted", r.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never fired")
	}
}

func TestArmValidation(t *testing.T) {
	s, err := NewScheduler(newTestSink(t), testLogger(), time.Hour, nil)
	if err != nil {
		t.Fatalf("scheduler init failed: %v", err)
	}
	if err := s.Arm(Pending{}); err == nil {
		t.Fatal("expected error for empty entity id")
	}
	p := pendingFor("unit-1")
	p.Adjustment = 9
	if err := s.Arm(p); err == nil {
		t.Fatal("expected error for adjustment outside the action space")
	}
}
