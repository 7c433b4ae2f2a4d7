package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"memoru/internal/models"
)

// ErrNotFound indicates that a requested row does not exist.
var ErrNotFound = errors.New("not found")

// StudySetService manages the top-level study set rows.
type StudySetService struct {
	db *sql.DB
}

func NewStudySetService(db *sql.DB) *StudySetService {
	return &StudySetService{db: db}
}

// Create inserts a study set and returns it with its assigned id.
func (s *StudySetService) Create(ctx context.Context, name string) (models.StudySet, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO studysets (name) VALUES (?);`, name)
	if err != nil {
		return models.StudySet{}, fmt.Errorf("insert studyset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.StudySet{}, fmt.Errorf("studyset id: %w", err)
	}
	return models.StudySet{ID: id, Name: name}, nil
}

// Rename updates a study set's name.
func (s *StudySetService) Rename(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE studysets SET name = ? WHERE id = ?;`, name, id)
	if err != nil {
		return fmt.Errorf("rename studyset %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes a study set. Folders and flashcards cascade.
func (s *StudySetService) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM studysets WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete studyset %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Get returns one study set by id.
func (s *StudySetService) Get(ctx context.Context, id int64) (models.StudySet, error) {
	var set models.StudySet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM studysets WHERE id = ?;`, id).Scan(&set.ID, &set.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StudySet{}, fmt.Errorf("studyset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.StudySet{}, fmt.Errorf("load studyset %d: %w", id, err)
	}
	return set, nil
}

// List returns every study set ordered by id.
func (s *StudySetService) List(ctx context.Context) ([]models.StudySet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM studysets ORDER BY id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list studysets: %w", err)
	}
	defer rows.Close()

	var sets []models.StudySet
	for rows.Next() {
		var set models.StudySet
		if err := rows.Scan(&set.ID, &set.Name); err != nil {
			return nil, fmt.Errorf("scan studyset: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studysets: %w", err)
	}
	return sets, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("row %d: %w", id, ErrNotFound)
	}
	return nil
}
