// Package scheduler applies review outcomes to flashcards: it feeds the
// memory model and writes the resulting state and due date back onto the
// card. Persistence is the caller's job.
package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"memoru/internal/fsrs"
	"memoru/internal/models"
)

// Engine schedules flashcards against one memory model.
type Engine struct {
	model *fsrs.Model
}

// New wraps a memory model in an Engine.
func New(model *fsrs.Model) *Engine {
	return &Engine{model: model}
}

// NewDefault builds an Engine on the published default weights.
func NewDefault() *Engine {
	return New(fsrs.Default())
}

// Today converts a wall-clock time to day granularity (days since the Unix
// epoch). Callers pass the result in explicitly so reviews are reproducible.
func Today(now time.Time) int64 {
	return now.Unix() / 86400
}

// Review records one review outcome on the card: status, memory state,
// due date and last-reviewed day are all updated in place. The desired
// retention is validated before anything is touched; on error the card is
// unchanged.
func (e *Engine) Review(card *models.Flashcard, outcome models.Status, today int64, desiredRetention float64) error {
	if desiredRetention <= 0 || desiredRetention > 1 {
		return fmt.Errorf("folder retention %v: %w", desiredRetention, fsrs.ErrInvalidRetention)
	}
	rating, err := outcome.Rating()
	if err != nil {
		return err
	}

	elapsed := int64(0)
	if card.LastReviewed.Valid {
		elapsed = today - card.LastReviewed.Int64
		if elapsed < 0 {
			// Clock skew: a last_reviewed in the future counts as today.
			elapsed = 0
		}
	}

	state := e.model.Update(card.MemoryState(), elapsed, rating)
	interval, err := e.model.NextInterval(state, desiredRetention)
	if err != nil {
		return err
	}

	card.Status = outcome
	card.SetMemoryState(state)
	card.DueDate = sql.NullInt64{Int64: today + interval, Valid: true}
	card.LastReviewed = sql.NullInt64{Int64: today, Valid: true}
	return nil
}

// Reset returns a card to the never-studied baseline. Idempotent.
func (e *Engine) Reset(card *models.Flashcard) {
	card.ClearScheduling()
}
