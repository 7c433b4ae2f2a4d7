// Package models defines the persisted domain types: study sets own
// folders, folders own flashcards.
package models

import (
	"database/sql"
	"fmt"
	"strings"

	"memoru/internal/fsrs"
)

// StudySet is a named top-level grouping of folders.
type StudySet struct {
	ID   int64
	Name string
}

// Folder is a deck of flashcards with its own scheduling target.
type Folder struct {
	ID               int64
	Name             string
	DesiredRetention float64
	StudySetID       int64
}

// Status is the outcome of a flashcard's most recent review.
type Status int

const (
	StatusNotStudied Status = iota + 1
	StatusBad
	StatusOk
	StatusGood
	StatusEasy
)

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	return s >= StatusNotStudied && s <= StatusEasy
}

// IsOutcome reports whether s is a review outcome (anything but NotStudied).
func (s Status) IsOutcome() bool {
	return s > StatusNotStudied && s <= StatusEasy
}

func (s Status) String() string {
	switch s {
	case StatusNotStudied:
		return "NotStudied"
	case StatusBad:
		return "Bad"
	case StatusOk:
		return "Ok"
	case StatusGood:
		return "Good"
	case StatusEasy:
		return "Easy"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus maps a user-facing name to a Status.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "notstudied", "none":
		return StatusNotStudied, nil
	case "bad", "again":
		return StatusBad, nil
	case "ok", "hard":
		return StatusOk, nil
	case "good":
		return StatusGood, nil
	case "easy":
		return StatusEasy, nil
	default:
		return 0, fmt.Errorf("unknown status %q", raw)
	}
}

// Rating maps a review outcome onto the memory model's grade scale.
func (s Status) Rating() (fsrs.Rating, error) {
	switch s {
	case StatusBad:
		return fsrs.Again, nil
	case StatusOk:
		return fsrs.Hard, nil
	case StatusGood:
		return fsrs.Good, nil
	case StatusEasy:
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("status %s is not a review outcome", s)
	}
}

// Flashcard is the reviewable unit. Dates are day-granularity, counted in
// days since the Unix epoch. Scheduling fields are present together or not
// at all: a NotStudied card carries none of them.
type Flashcard struct {
	ID           int64
	Front        string
	Back         string
	Status       Status
	Stability    sql.NullFloat64
	Difficulty   sql.NullFloat64
	DueDate      sql.NullInt64
	LastReviewed sql.NullInt64
	FolderID     int64
}

// MemoryState returns the card's scheduling state, or nil before the first
// review.
func (f *Flashcard) MemoryState() *fsrs.MemoryState {
	if !f.Stability.Valid || !f.Difficulty.Valid {
		return nil
	}
	return &fsrs.MemoryState{
		Stability:  f.Stability.Float64,
		Difficulty: f.Difficulty.Float64,
	}
}

// SetMemoryState records a new scheduling state on the card.
func (f *Flashcard) SetMemoryState(state fsrs.MemoryState) {
	f.Stability = sql.NullFloat64{Float64: state.Stability, Valid: true}
	f.Difficulty = sql.NullFloat64{Float64: state.Difficulty, Valid: true}
}

// ClearScheduling returns the card to the never-studied baseline.
func (f *Flashcard) ClearScheduling() {
	f.Status = StatusNotStudied
	f.Stability = sql.NullFloat64{}
	f.Difficulty = sql.NullFloat64{}
	f.DueDate = sql.NullInt64{}
	f.LastReviewed = sql.NullInt64{}
}

// IsDue reports whether the card should be studied today. Cards that were
// never reviewed are always due; reviewed cards are due once their due date
// arrives.
func (f *Flashcard) IsDue(today int64) bool {
	if !f.DueDate.Valid {
		return f.MemoryState() == nil
	}
	return f.DueDate.Int64 <= today
}
