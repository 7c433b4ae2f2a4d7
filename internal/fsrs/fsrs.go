// Package fsrs implements the memory model used to schedule flashcard
// reviews: the published FSRS formulas over a two-scalar memory state
// (stability, difficulty). The package is pure math and does no I/O.
package fsrs

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRetention indicates a desired retention outside (0, 1].
	ErrInvalidRetention = errors.New("desired retention must be in (0, 1]")
	// ErrInvalidWeights indicates a parameter vector outside the published bounds.
	ErrInvalidWeights = errors.New("weights out of bounds")
)

// MemoryState is the scheduling state of one flashcard.
type MemoryState struct {
	Stability  float64 `json:"stability"`
	Difficulty float64 `json:"difficulty"`
}

// Rating grades the outcome of a single review.
type Rating int

const (
	Again Rating = iota + 1 // failed to recall
	Hard                    // recalled with significant difficulty
	Good                    // recalled with some effort
	Easy                    // recalled effortlessly
)

// IsValid reports whether r is one of the four review grades.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	switch r {
	case Again:
		return "Again"
	case Hard:
		return "Hard"
	case Good:
		return "Good"
	case Easy:
		return "Easy"
	default:
		return fmt.Sprintf("Rating(%d)", int(r))
	}
}

// Weights is the FSRS parameter vector (v6, 21 weights).
type Weights [21]float64

// DefaultWeights are the published FSRS-6 default parameters.
var DefaultWeights = Weights{
	0.212, 1.2931, 2.3065, 8.2956, // initial stability per grade
	6.4133, 0.8334, 3.0194, 0.001, // difficulty
	1.8722, 0.1666, 0.796, 1.4835, // recall stability
	0.0614, 0.2629, 1.6483, 0.6014, // forget stability
	1.8729, 0.5425, 0.0912, 0.0658, // easy bonus / short-term
	0.1542, // decay exponent
}

var (
	weightLowerBounds = Weights{
		0.001, 0.001, 0.001, 0.001,
		1.0, 0.001, 0.001, 0.001,
		0.0, 0.0, 0.001, 0.001,
		0.001, 0.001, 0.0, 0.0,
		1.0, 0.0, 0.0, 0.0,
		0.1,
	}
	weightUpperBounds = Weights{
		100.0, 100.0, 100.0, 100.0,
		10.0, 4.0, 4.0, 0.75,
		4.5, 0.8, 3.5, 5.0,
		0.25, 0.9, 4.0, 1.0,
		6.0, 2.0, 2.0, 0.8,
		0.8,
	}
)

// Validate checks every weight against the published bounds.
func (w Weights) Validate() error {
	for i := range w {
		if w[i] < weightLowerBounds[i] || w[i] > weightUpperBounds[i] {
			return fmt.Errorf("%w: w[%d] = %v, bounds [%v, %v]",
				ErrInvalidWeights, i, w[i], weightLowerBounds[i], weightUpperBounds[i])
		}
	}
	return nil
}

// Model evaluates the FSRS formulas for one parameter vector.
type Model struct {
	w      Weights
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
}

// New builds a Model after validating the weights.
func New(w Weights) (*Model, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	decay := -w[20]
	return &Model{
		w:      w,
		decay:  decay,
		factor: math.Pow(0.9, 1.0/decay) - 1.0,
	}, nil
}

// Default returns a Model with the published default weights.
func Default() *Model {
	m, err := New(DefaultWeights)
	if err != nil {
		panic(err) // defaults are within bounds
	}
	return m
}

// Retrievability is the modeled probability of recall after elapsedDays
// against the given stability: R(t, S) = (1 + FACTOR*t/S)^DECAY.
func (m *Model) Retrievability(elapsedDays int64, stability float64) float64 {
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	stability = clampStability(stability)
	return math.Pow(1+m.factor*float64(elapsedDays)/stability, m.decay)
}

// Update advances a card's memory state after one review. A nil prior state
// bootstraps the card from the grade-specific initial constants. Negative
// elapsedDays (clock skew) is clamped to zero.
func (m *Model) Update(prior *MemoryState, elapsedDays int64, r Rating) MemoryState {
	if !r.IsValid() {
		r = Again
	}
	if prior == nil {
		return MemoryState{
			Stability:  m.initStability(r),
			Difficulty: m.initDifficulty(r, true),
		}
	}
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	s := clampStability(prior.Stability)
	d := clampDifficulty(prior.Difficulty)
	retr := m.Retrievability(elapsedDays, s)
	return MemoryState{
		Stability:  m.nextStability(d, s, retr, r),
		Difficulty: m.nextDifficulty(d, r),
	}
}

// NextInterval is the number of days until retrievability decays to the
// desired retention: I = (S / FACTOR) * (r^(1/DECAY) - 1), rounded, floor 1.
func (m *Model) NextInterval(state MemoryState, desiredRetention float64) (int64, error) {
	if desiredRetention <= 0 || desiredRetention > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRetention, desiredRetention)
	}
	s := clampStability(state.Stability)
	ivl := s / m.factor * (math.Pow(desiredRetention, 1.0/m.decay) - 1)
	days := int64(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	return days, nil
}

// initStability is S0(G) = w[G-1].
func (m *Model) initStability(r Rating) float64 {
	return clampStability(m.w[r-1])
}

// initDifficulty is D0(G) = w[4] - e^(w[5]*(G-1)) + 1.
// The mean-reversion target uses the unclamped value.
func (m *Model) initDifficulty(r Rating, clamp bool) float64 {
	d := m.w[4] - math.Exp(m.w[5]*float64(r-1)) + 1
	if clamp {
		return clampDifficulty(d)
	}
	return d
}

// nextDifficulty applies linear damping then mean reversion toward D0(Easy).
func (m *Model) nextDifficulty(d float64, r Rating) float64 {
	deltaD := -m.w[6] * (float64(r) - 3)
	damped := d + (10-d)*deltaD/9
	reverted := m.w[7]*m.initDifficulty(Easy, false) + (1-m.w[7])*damped
	return clampDifficulty(reverted)
}

func (m *Model) nextStability(d, s, retr float64, r Rating) float64 {
	if r == Again {
		return clampStability(m.forgetStability(d, s, retr))
	}
	return clampStability(m.recallStability(d, s, retr, r))
}

// recallStability grows stability after a successful review, with the Hard
// penalty and Easy bonus multipliers.
func (m *Model) recallStability(d, s, retr float64, r Rating) float64 {
	hardPenalty := 1.0
	if r == Hard {
		hardPenalty = m.w[15]
	}
	easyBonus := 1.0
	if r == Easy {
		easyBonus = m.w[16]
	}
	return s * (1 + math.Exp(m.w[8])*
		(11-d)*
		math.Pow(s, -m.w[9])*
		(math.Exp((1-retr)*m.w[10])-1)*
		hardPenalty*easyBonus)
}

// forgetStability shrinks stability after a lapse; the short-term branch
// keeps the result below the pre-lapse stability.
func (m *Model) forgetStability(d, s, retr float64) float64 {
	long := m.w[11] *
		math.Pow(d, -m.w[12]) *
		(math.Pow(s+1, m.w[13]) - 1) *
		math.Exp((1-retr)*m.w[14])
	short := s / math.Exp(m.w[17]*m.w[18])
	return math.Min(long, short)
}

// clampStability keeps stability positive and finite.
func clampStability(s float64) float64 {
	if math.IsNaN(s) {
		return 0.001
	}
	return math.Max(s, 0.001)
}

// clampDifficulty keeps difficulty in [1, 10].
func clampDifficulty(d float64) float64 {
	if math.IsNaN(d) {
		return 1
	}
	return math.Min(math.Max(d, 1), 10)
}
