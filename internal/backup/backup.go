package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"memoru/internal/models"
)

// Snapshot is the on-disk backup format: the whole studyset tree as one JSON
// document, scheduling state included. Row ids are not part of the format;
// restore assigns fresh ones.
type Snapshot struct {
	ExportedAt int64      `json:"exported_at"`
	StudySets  []StudySet `json:"studysets"`
}

type StudySet struct {
	Name    string   `json:"name"`
	Folders []Folder `json:"folders"`
}

type Folder struct {
	Name             string      `json:"name"`
	DesiredRetention float64     `json:"desired_retention"`
	Flashcards       []Flashcard `json:"flashcards"`
}

type Flashcard struct {
	Front        string   `json:"front"`
	Back         string   `json:"back"`
	Status       int      `json:"status"`
	Stability    *float64 `json:"stability,omitempty"`
	Difficulty   *float64 `json:"difficulty,omitempty"`
	DueDate      *int64   `json:"due_date,omitempty"`
	LastReviewed *int64   `json:"last_reviewed,omitempty"`
}

// Service reads and writes whole-tree backups directly against the store.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Export collects every studyset, folder and flashcard into a snapshot.
func (s *Service) Export(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{ExportedAt: time.Now().Unix()}

	setRows, err := s.db.QueryContext(ctx, `SELECT id, name FROM studysets ORDER BY id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("read studysets: %w", err)
	}
	defer setRows.Close()

	type setRef struct {
		id    int64
		index int
	}
	var sets []setRef
	for setRows.Next() {
		var id int64
		var name string
		if err := setRows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan studyset: %w", err)
		}
		snapshot.StudySets = append(snapshot.StudySets, StudySet{Name: name})
		sets = append(sets, setRef{id: id, index: len(snapshot.StudySets) - 1})
	}
	if err := setRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studysets: %w", err)
	}

	for _, ref := range sets {
		folders, err := s.exportFolders(ctx, ref.id)
		if err != nil {
			return nil, err
		}
		snapshot.StudySets[ref.index].Folders = folders
	}
	return snapshot, nil
}

func (s *Service) exportFolders(ctx context.Context, studySetID int64) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, desired_retention FROM folders
		WHERE studyset_id = ? ORDER BY id ASC;`, studySetID)
	if err != nil {
		return nil, fmt.Errorf("read folders: %w", err)
	}
	defer rows.Close()

	type folderRef struct {
		id    int64
		index int
	}
	var folders []Folder
	var refs []folderRef
	for rows.Next() {
		var id int64
		var folder Folder
		if err := rows.Scan(&id, &folder.Name, &folder.DesiredRetention); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, folder)
		refs = append(refs, folderRef{id: id, index: len(folders) - 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}

	for _, ref := range refs {
		cards, err := s.exportFlashcards(ctx, ref.id)
		if err != nil {
			return nil, err
		}
		folders[ref.index].Flashcards = cards
	}
	return folders, nil
}

func (s *Service) exportFlashcards(ctx context.Context, folderID int64) ([]Flashcard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT front, back, status, stability, difficulty, due_date, last_reviewed
		FROM flashcards WHERE folder_id = ? ORDER BY id ASC;`, folderID)
	if err != nil {
		return nil, fmt.Errorf("read flashcards: %w", err)
	}
	defer rows.Close()

	var cards []Flashcard
	for rows.Next() {
		var card Flashcard
		var stability, difficulty sql.NullFloat64
		var due, reviewed sql.NullInt64
		if err := rows.Scan(&card.Front, &card.Back, &card.Status,
			&stability, &difficulty, &due, &reviewed); err != nil {
			return nil, fmt.Errorf("scan flashcard: %w", err)
		}
		if stability.Valid {
			card.Stability = &stability.Float64
		}
		if difficulty.Valid {
			card.Difficulty = &difficulty.Float64
		}
		if due.Valid {
			card.DueDate = &due.Int64
		}
		if reviewed.Valid {
			card.LastReviewed = &reviewed.Int64
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flashcards: %w", err)
	}
	return cards, nil
}

// Restore inserts the snapshot's tree alongside existing data in a single
// transaction. Invalid status values fail the whole restore.
func (s *Service) Restore(ctx context.Context, snapshot *Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cardStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flashcards (folder_id, front, back, status, stability, difficulty, due_date, last_reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("prepare flashcard insert: %w", err)
	}
	defer cardStmt.Close()

	for _, set := range snapshot.StudySets {
		res, err := tx.ExecContext(ctx, `INSERT INTO studysets (name) VALUES (?);`, set.Name)
		if err != nil {
			return fmt.Errorf("restore studyset %q: %w", set.Name, err)
		}
		setID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("restore studyset %q: %w", set.Name, err)
		}

		for _, folder := range set.Folders {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO folders (studyset_id, name, desired_retention)
				VALUES (?, ?, ?);`, setID, folder.Name, folder.DesiredRetention)
			if err != nil {
				return fmt.Errorf("restore folder %q: %w", folder.Name, err)
			}
			folderID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("restore folder %q: %w", folder.Name, err)
			}

			for _, card := range folder.Flashcards {
				status := models.Status(card.Status)
				if !status.IsValid() {
					return fmt.Errorf("restore folder %q: invalid status %d", folder.Name, card.Status)
				}
				if _, err := cardStmt.ExecContext(ctx, folderID, card.Front, card.Back, card.Status,
					nullFloat(card.Stability), nullFloat(card.Difficulty),
					nullInt(card.DueDate), nullInt(card.LastReviewed)); err != nil {
					return fmt.Errorf("restore flashcard in %q: %w", folder.Name, err)
				}
			}
		}
	}
	return tx.Commit()
}

// WriteFile exports the tree to a JSON file.
func (s *Service) WriteFile(ctx context.Context, path string) error {
	snapshot, err := s.Export(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// RestoreFile restores the tree from a JSON file written by WriteFile.
func (s *Service) RestoreFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}
	return s.Restore(ctx, &snapshot)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
