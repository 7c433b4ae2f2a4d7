package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"memoru/internal/models"
)

// FolderService manages deck folders and their scheduling targets.
type FolderService struct {
	db       *sql.DB
	validate *validator.Validate
}

func NewFolderService(db *sql.DB) *FolderService {
	return &FolderService{db: db, validate: validator.New()}
}

func (s *FolderService) checkRetention(retention float64) error {
	// Scheduling is undefined outside (0, 1]; reject at creation time.
	if err := s.validate.Var(retention, "gt=0,lte=1"); err != nil {
		return fmt.Errorf("desired retention %v out of range (0, 1]: %w", retention, err)
	}
	return nil
}

// Create inserts a folder under a study set.
func (s *FolderService) Create(ctx context.Context, studySetID int64, name string, desiredRetention float64) (models.Folder, error) {
	if err := s.checkRetention(desiredRetention); err != nil {
		return models.Folder{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (name, desired_retention, studyset_id) VALUES (?, ?, ?);`,
		name, desiredRetention, studySetID)
	if err != nil {
		return models.Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Folder{}, fmt.Errorf("folder id: %w", err)
	}
	return models.Folder{ID: id, Name: name, DesiredRetention: desiredRetention, StudySetID: studySetID}, nil
}

// GetOrCreate returns the folder with the given name inside the study set,
// creating it when absent. Import uses this to map foreign decks onto
// folders.
func (s *FolderService) GetOrCreate(ctx context.Context, studySetID int64, name string, desiredRetention float64) (models.Folder, error) {
	var folder models.Folder
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, desired_retention, studyset_id FROM folders WHERE studyset_id = ? AND name = ? LIMIT 1;`,
		studySetID, name).
		Scan(&folder.ID, &folder.Name, &folder.DesiredRetention, &folder.StudySetID)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Folder{}, fmt.Errorf("find folder %q: %w", name, err)
	}
	return s.Create(ctx, studySetID, name, desiredRetention)
}

// Update renames a folder and adjusts its desired retention.
func (s *FolderService) Update(ctx context.Context, id int64, name string, desiredRetention float64) error {
	if err := s.checkRetention(desiredRetention); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE folders SET name = ?, desired_retention = ? WHERE id = ?;`,
		name, desiredRetention, id)
	if err != nil {
		return fmt.Errorf("update folder %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes a folder. Flashcards cascade.
func (s *FolderService) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete folder %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Get returns one folder by id.
func (s *FolderService) Get(ctx context.Context, id int64) (models.Folder, error) {
	var folder models.Folder
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, desired_retention, studyset_id FROM folders WHERE id = ?;`, id).
		Scan(&folder.ID, &folder.Name, &folder.DesiredRetention, &folder.StudySetID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Folder{}, fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Folder{}, fmt.Errorf("load folder %d: %w", id, err)
	}
	return folder, nil
}

// ListByStudySet returns the folders of one study set ordered by id.
func (s *FolderService) ListByStudySet(ctx context.Context, studySetID int64) ([]models.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, desired_retention, studyset_id FROM folders WHERE studyset_id = ? ORDER BY id ASC;`,
		studySetID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		var folder models.Folder
		if err := rows.Scan(&folder.ID, &folder.Name, &folder.DesiredRetention, &folder.StudySetID); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return folders, nil
}
