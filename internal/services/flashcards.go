package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"memoru/internal/models"
	"memoru/internal/scheduler"
)

const flashcardColumns = `id, front, back, status, stability, difficulty, due_date, last_reviewed, folder_id`

// FlashcardService orchestrates card persistence and review scheduling.
type FlashcardService struct {
	db     *sql.DB
	engine *scheduler.Engine
}

func NewFlashcardService(db *sql.DB, engine *scheduler.Engine) *FlashcardService {
	return &FlashcardService{db: db, engine: engine}
}

// Create inserts a new flashcard in the NotStudied baseline.
func (s *FlashcardService) Create(ctx context.Context, folderID int64, front, back string) (models.Flashcard, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO flashcards (front, back, status, folder_id) VALUES (?, ?, ?, ?);`,
		front, back, int(models.StatusNotStudied), folderID)
	if err != nil {
		return models.Flashcard{}, fmt.Errorf("insert flashcard: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Flashcard{}, fmt.Errorf("flashcard id: %w", err)
	}
	return models.Flashcard{ID: id, Front: front, Back: back, Status: models.StatusNotStudied, FolderID: folderID}, nil
}

// UpdateContent changes a card's front/back text without touching its
// scheduling state.
func (s *FlashcardService) UpdateContent(ctx context.Context, id int64, front, back string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flashcards SET front = ?, back = ? WHERE id = ?;`, front, back, id)
	if err != nil {
		return fmt.Errorf("update flashcard %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes one flashcard.
func (s *FlashcardService) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flashcards WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete flashcard %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Get returns one flashcard by id.
func (s *FlashcardService) Get(ctx context.Context, id int64) (models.Flashcard, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards WHERE id = ?;`, id)
	card, err := scanFlashcard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Flashcard{}, fmt.Errorf("flashcard %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Flashcard{}, fmt.Errorf("load flashcard %d: %w", id, err)
	}
	return card, nil
}

// ListByFolder returns every flashcard in a folder ordered by id.
func (s *FlashcardService) ListByFolder(ctx context.Context, folderID int64) ([]models.Flashcard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards WHERE folder_id = ? ORDER BY id ASC;`, folderID)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}
	defer rows.Close()

	var cards []models.Flashcard
	for rows.Next() {
		card, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flashcard: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flashcards: %w", err)
	}
	return cards, nil
}

// Review records a review outcome on one card, scheduling it with the
// folder's desired retention, and persists the result atomically. On error
// the stored row is unchanged.
func (s *FlashcardService) Review(ctx context.Context, cardID int64, outcome models.Status, today int64) (models.Flashcard, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Flashcard{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+flashcardColumns+` FROM flashcards WHERE id = ?;`, cardID)
	card, err := scanFlashcard(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("flashcard %d: %w", cardID, ErrNotFound)
		return models.Flashcard{}, err
	}
	if err != nil {
		err = fmt.Errorf("load flashcard %d: %w", cardID, err)
		return models.Flashcard{}, err
	}

	var retention float64
	if err = tx.QueryRowContext(ctx,
		`SELECT desired_retention FROM folders WHERE id = ?;`, card.FolderID).Scan(&retention); err != nil {
		err = fmt.Errorf("load folder %d retention: %w", card.FolderID, err)
		return models.Flashcard{}, err
	}

	if err = s.engine.Review(&card, outcome, today, retention); err != nil {
		return models.Flashcard{}, err
	}

	if err = persistScheduling(ctx, tx, &card); err != nil {
		return models.Flashcard{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Flashcard{}, fmt.Errorf("commit review: %w", err)
	}
	return card, nil
}

// Reset returns one card to the NotStudied baseline and persists it.
func (s *FlashcardService) Reset(ctx context.Context, cardID int64) (models.Flashcard, error) {
	card, err := s.Get(ctx, cardID)
	if err != nil {
		return models.Flashcard{}, err
	}
	s.engine.Reset(&card)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Flashcard{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = persistScheduling(ctx, tx, &card); err != nil {
		return models.Flashcard{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Flashcard{}, fmt.Errorf("commit reset: %w", err)
	}
	return card, nil
}

// ResetFolder returns every card in a folder to the NotStudied baseline.
func (s *FlashcardService) ResetFolder(ctx context.Context, folderID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE flashcards
		SET status = ?, stability = NULL, difficulty = NULL, due_date = NULL, last_reviewed = NULL
		WHERE folder_id = ?;`,
		int(models.StatusNotStudied), folderID)
	if err != nil {
		return fmt.Errorf("reset folder %d: %w", folderID, err)
	}
	return nil
}

// BulkInsert writes a batch of flashcards into one folder inside a single
// transaction. Either every card lands or none do; import relies on this.
func (s *FlashcardService) BulkInsert(ctx context.Context, folderID int64, cards []models.Flashcard) error {
	if len(cards) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flashcards (front, back, status, stability, difficulty, due_date, last_reviewed, folder_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("prepare flashcard insert: %w", err)
	}
	defer stmt.Close()

	for i := range cards {
		card := &cards[i]
		status := card.Status
		if !status.IsValid() {
			status = models.StatusNotStudied
		}
		if _, err = stmt.ExecContext(ctx,
			card.Front,
			card.Back,
			int(status),
			card.Stability,
			card.Difficulty,
			card.DueDate,
			card.LastReviewed,
			folderID,
		); err != nil {
			return fmt.Errorf("insert flashcard %q: %w", card.Front, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}
	return nil
}

// DueCount returns how many cards in the folder are due on the given day.
func (s *FlashcardService) DueCount(ctx context.Context, folderID int64, today int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flashcards
		WHERE folder_id = ? AND (due_date <= ? OR (due_date IS NULL AND stability IS NULL));`,
		folderID, today).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count due flashcards: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlashcard(row rowScanner) (models.Flashcard, error) {
	var card models.Flashcard
	var status int
	err := row.Scan(
		&card.ID,
		&card.Front,
		&card.Back,
		&status,
		&card.Stability,
		&card.Difficulty,
		&card.DueDate,
		&card.LastReviewed,
		&card.FolderID,
	)
	if err != nil {
		return models.Flashcard{}, err
	}
	card.Status = models.Status(status)
	return card, nil
}

func persistScheduling(ctx context.Context, tx *sql.Tx, card *models.Flashcard) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE flashcards
		SET status = ?, stability = ?, difficulty = ?, due_date = ?, last_reviewed = ?
		WHERE id = ?;`,
		int(card.Status),
		card.Stability,
		card.Difficulty,
		card.DueDate,
		card.LastReviewed,
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("update flashcard %d: %w", card.ID, err)
	}
	return requireRow(res, card.ID)
}
