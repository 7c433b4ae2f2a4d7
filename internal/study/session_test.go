package study

import (
	"database/sql"
	"math/rand"
	"testing"

	"memoru/internal/fsrs"
	"memoru/internal/models"
)

const today = int64(20000)

func card(id int64, due int64) models.Flashcard {
	c := models.Flashcard{ID: id, Status: models.StatusGood}
	c.SetMemoryState(fsrs.MemoryState{Stability: 1, Difficulty: 5})
	c.DueDate = sql.NullInt64{Int64: due, Valid: true}
	c.LastReviewed = sql.NullInt64{Int64: due - 1, Valid: true}
	return c
}

func newCard(id int64) models.Flashcard {
	return models.Flashcard{ID: id, Status: models.StatusNotStudied}
}

func TestDueSessionFiltersAndOrders(t *testing.T) {
	cards := []models.Flashcard{
		card(1, today+5),  // not due
		card(2, today),    // due today
		card(3, today-10), // overdue
		card(4, today-2),
		newCard(5), // never reviewed: always due, sorts first
	}
	s := NewDueSession(cards, today)

	if s.Total() != 4 {
		t.Fatalf("Total = %d, want 4", s.Total())
	}
	wantOrder := []int64{5, 3, 4, 2}
	for i, want := range wantOrder {
		if got := s.Cards()[i].ID; got != want {
			t.Errorf("position %d: card %d, want %d", i, got, want)
		}
	}
	for _, c := range s.Cards() {
		if c.DueDate.Valid && c.DueDate.Int64 > today {
			t.Errorf("card %d with due %d > today selected", c.ID, c.DueDate.Int64)
		}
	}
}

func TestDueSessionTieBreaksOnID(t *testing.T) {
	cards := []models.Flashcard{card(9, today-1), card(2, today-1), card(4, today-1)}
	s := NewDueSession(cards, today)
	want := []int64{2, 4, 9}
	for i, id := range want {
		if got := s.Cards()[i].ID; got != id {
			t.Errorf("position %d: card %d, want %d", i, got, id)
		}
	}
}

func TestDueSessionEmptyIsTerminal(t *testing.T) {
	s := NewDueSession([]models.Flashcard{card(1, today+1)}, today)
	if !s.Done() {
		t.Error("empty session should be done immediately")
	}
	if _, ok := s.Current(); ok {
		t.Error("Current on empty session returned a card")
	}
}

func TestFullSessionIsPermutation(t *testing.T) {
	var cards []models.Flashcard
	for i := int64(1); i <= 50; i++ {
		cards = append(cards, card(i, today+i))
	}
	s := NewFullSession(cards, rand.New(rand.NewSource(42)))

	if s.Total() != len(cards) {
		t.Fatalf("Total = %d, want %d", s.Total(), len(cards))
	}
	seen := make(map[int64]int)
	for !s.Done() {
		c, ok := s.Current()
		if !ok {
			t.Fatal("Current returned no card before Done")
		}
		seen[c.ID]++
		s.Advance()
	}
	for _, c := range cards {
		if seen[c.ID] != 1 {
			t.Errorf("card %d seen %d times, want exactly once", c.ID, seen[c.ID])
		}
	}
}

func TestFullSessionShuffleIsSeeded(t *testing.T) {
	var cards []models.Flashcard
	for i := int64(1); i <= 20; i++ {
		cards = append(cards, card(i, today))
	}
	a := NewFullSession(cards, rand.New(rand.NewSource(7)))
	b := NewFullSession(cards, rand.New(rand.NewSource(7)))
	for i := range a.Cards() {
		if a.Cards()[i].ID != b.Cards()[i].ID {
			t.Fatal("same seed produced different orders")
		}
	}
}

func TestAdvancePastEndIsNoOp(t *testing.T) {
	s := NewDueSession([]models.Flashcard{card(1, today)}, today)
	s.Advance()
	if !s.Done() {
		t.Fatal("session should be done")
	}
	s.Advance()
	s.Advance()
	if s.Position() != 1 {
		t.Errorf("Position = %d, want 1 after advancing past end", s.Position())
	}
}
