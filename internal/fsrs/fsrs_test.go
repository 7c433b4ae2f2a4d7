package fsrs

import (
	"errors"
	"math"
	"testing"
)

func mustModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(DefaultWeights)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewRejectsOutOfBoundsWeights(t *testing.T) {
	w := DefaultWeights
	w[0] = -1
	if _, err := New(w); !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("New with bad weights: err = %v, want ErrInvalidWeights", err)
	}
}

func TestBootstrapUsesGradeConstants(t *testing.T) {
	m := mustModel(t)
	for _, r := range []Rating{Again, Hard, Good, Easy} {
		state := m.Update(nil, 0, r)
		if got, want := state.Stability, DefaultWeights[r-1]; got != want {
			t.Errorf("%s: bootstrap stability = %v, want %v", r, got, want)
		}
		if state.Difficulty < 1 || state.Difficulty > 10 {
			t.Errorf("%s: bootstrap difficulty = %v, want within [1, 10]", r, state.Difficulty)
		}
	}
}

func TestBootstrapDifficultyOrdering(t *testing.T) {
	// Harder grades must bootstrap to higher difficulty.
	m := mustModel(t)
	again := m.Update(nil, 0, Again).Difficulty
	easy := m.Update(nil, 0, Easy).Difficulty
	if again <= easy {
		t.Errorf("difficulty(Again) = %v, difficulty(Easy) = %v, want Again > Easy", again, easy)
	}
}

func TestUpdateGrowsStabilityOnRecall(t *testing.T) {
	m := mustModel(t)
	prior := MemoryState{Stability: 10, Difficulty: 5}
	for _, r := range []Rating{Good, Easy} {
		next := m.Update(&prior, 10, r)
		if next.Stability <= prior.Stability {
			t.Errorf("%s: stability %v -> %v, want growth", r, prior.Stability, next.Stability)
		}
	}
}

func TestUpdateShrinksStabilityOnLapse(t *testing.T) {
	m := mustModel(t)
	prior := MemoryState{Stability: 50, Difficulty: 5}
	next := m.Update(&prior, 50, Again)
	if next.Stability >= prior.Stability {
		t.Errorf("Again: stability %v -> %v, want shrink", prior.Stability, next.Stability)
	}
	if next.Difficulty <= prior.Difficulty {
		t.Errorf("Again: difficulty %v -> %v, want increase", prior.Difficulty, next.Difficulty)
	}
}

func TestUpdateClampsNegativeElapsed(t *testing.T) {
	m := mustModel(t)
	prior := MemoryState{Stability: 10, Difficulty: 5}
	skewed := m.Update(&prior, -30, Good)
	clamped := m.Update(&prior, 0, Good)
	if skewed != clamped {
		t.Errorf("Update with negative elapsed = %+v, want same as elapsed 0 (%+v)", skewed, clamped)
	}
}

func TestUpdateNeverProducesInvalidState(t *testing.T) {
	m := mustModel(t)
	priors := []MemoryState{
		{Stability: 0, Difficulty: 0},
		{Stability: -3, Difficulty: 42},
		{Stability: math.NaN(), Difficulty: math.NaN()},
		{Stability: 1e9, Difficulty: 10},
	}
	for _, prior := range priors {
		for _, r := range []Rating{Again, Hard, Good, Easy} {
			next := m.Update(&prior, 5, r)
			if math.IsNaN(next.Stability) || next.Stability <= 0 {
				t.Errorf("prior %+v %s: stability = %v", prior, r, next.Stability)
			}
			if math.IsNaN(next.Difficulty) || next.Difficulty < 1 || next.Difficulty > 10 {
				t.Errorf("prior %+v %s: difficulty = %v", prior, r, next.Difficulty)
			}
		}
	}
}

func TestNextIntervalAtLeastOneDay(t *testing.T) {
	m := mustModel(t)
	retentions := []float64{0.01, 0.5, 0.8, 0.9, 0.95, 1.0}
	states := []MemoryState{
		{Stability: 0.001, Difficulty: 1},
		{Stability: 0.4, Difficulty: 5},
		{Stability: 3, Difficulty: 9},
		{Stability: 365, Difficulty: 10},
	}
	for _, ret := range retentions {
		for _, state := range states {
			days, err := m.NextInterval(state, ret)
			if err != nil {
				t.Fatalf("NextInterval(%+v, %v): %v", state, ret, err)
			}
			if days < 1 {
				t.Errorf("NextInterval(%+v, %v) = %d, want >= 1", state, ret, days)
			}
		}
	}
}

func TestNextIntervalRejectsInvalidRetention(t *testing.T) {
	m := mustModel(t)
	state := MemoryState{Stability: 10, Difficulty: 5}
	for _, ret := range []float64{0, -0.5, 1.01, 2} {
		if _, err := m.NextInterval(state, ret); !errors.Is(err, ErrInvalidRetention) {
			t.Errorf("NextInterval retention %v: err = %v, want ErrInvalidRetention", ret, err)
		}
	}
}

func TestNextIntervalMonotonicInRetention(t *testing.T) {
	// Lower retention targets must wait at least as long between reviews.
	m := mustModel(t)
	state := MemoryState{Stability: 20, Difficulty: 5}
	ivl90, _ := m.NextInterval(state, 0.9)
	ivl70, _ := m.NextInterval(state, 0.7)
	if ivl70 < ivl90 {
		t.Errorf("interval at 0.7 retention = %d, at 0.9 = %d, want 0.7 >= 0.9", ivl70, ivl90)
	}
}

func TestRetrievabilityDecays(t *testing.T) {
	m := mustModel(t)
	r0 := m.Retrievability(0, 10)
	r10 := m.Retrievability(10, 10)
	r100 := m.Retrievability(100, 10)
	if !(r0 > r10 && r10 > r100) {
		t.Errorf("retrievability not decreasing: %v, %v, %v", r0, r10, r100)
	}
	if math.Abs(r0-1) > 1e-9 {
		t.Errorf("retrievability at t=0 = %v, want 1", r0)
	}
	// At t = S the definition of stability gives R = 0.9.
	if got := m.Retrievability(10, 10); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("retrievability at t=S = %v, want 0.9", got)
	}
}
