// Package db opens the application's SQLite database and keeps the schema
// up to date.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer: SQLite with one connection avoids SQLITE_BUSY and keeps
	// the foreign_keys pragma in effect for every statement.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS studysets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			desired_retention REAL NOT NULL DEFAULT 0.9,
			studyset_id INTEGER NOT NULL,
			FOREIGN KEY(studyset_id) REFERENCES studysets(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS flashcards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			front TEXT NOT NULL,
			back TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 1,
			stability REAL,
			difficulty REAL,
			due_date INTEGER,
			last_reviewed INTEGER,
			folder_id INTEGER NOT NULL,
			FOREIGN KEY(folder_id) REFERENCES folders(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_folders_studyset ON folders(studyset_id);`,
		`CREATE INDEX IF NOT EXISTS idx_flashcards_folder ON flashcards(folder_id);`,
		`CREATE INDEX IF NOT EXISTS idx_flashcards_due ON flashcards(due_date);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}
