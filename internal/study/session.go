// Package study builds the ordered list of cards for one study session and
// tracks the learner's position in it. Sessions hold no persisted state and
// are rebuilt each time studying starts.
package study

import (
	"math/rand"
	"sort"

	"memoru/internal/models"
)

// Session is an ordered run through a set of flashcards.
type Session struct {
	cards []models.Flashcard
	pos   int
}

// NewDueSession selects the cards in a folder that are due today, ordered by
// ascending due date with id as the tie-breaker so the order is
// deterministic. An empty session is valid: there is nothing to study.
func NewDueSession(cards []models.Flashcard, today int64) *Session {
	due := make([]models.Flashcard, 0, len(cards))
	for _, card := range cards {
		if card.IsDue(today) {
			due = append(due, card)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		di, dj := due[i].DueDate, due[j].DueDate
		// Never-reviewed cards have no due date and sort first.
		if di.Valid != dj.Valid {
			return !di.Valid
		}
		if di.Valid && di.Int64 != dj.Int64 {
			return di.Int64 < dj.Int64
		}
		return due[i].ID < due[j].ID
	})
	return &Session{cards: due}
}

// NewFullSession selects every card in the folder regardless of due date,
// shuffled once with the caller's RNG. Used for free-form drilling.
func NewFullSession(cards []models.Flashcard, rng *rand.Rand) *Session {
	all := make([]models.Flashcard, len(cards))
	copy(all, cards)
	rng.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	return &Session{cards: all}
}

// Current returns the card at the session position, or false once the
// session is complete.
func (s *Session) Current() (models.Flashcard, bool) {
	if s.pos >= len(s.cards) {
		return models.Flashcard{}, false
	}
	return s.cards[s.pos], true
}

// Advance moves to the next card. Advancing past the end is a no-op.
func (s *Session) Advance() {
	if s.pos < len(s.cards) {
		s.pos++
	}
}

// Done reports whether every card has been seen.
func (s *Session) Done() bool {
	return s.pos >= len(s.cards)
}

// Position is the 0-indexed session position.
func (s *Session) Position() int {
	return s.pos
}

// Total is the number of cards in the session.
func (s *Session) Total() int {
	return len(s.cards)
}

// Cards returns the session order. The slice is the session's own; callers
// must not mutate it.
func (s *Session) Cards() []models.Flashcard {
	return s.cards
}
