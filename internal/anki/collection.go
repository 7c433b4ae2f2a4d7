package anki

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// FieldSeparator joins the fields of an Anki note (US, 0x1f).
const FieldSeparator = "\x1f"

// defaultDeckName buckets notes whose deck cannot be determined.
const defaultDeckName = "Default"

// foreignNote is one row of the embedded notes table, with the deck name
// already resolved through the note's first card.
type foreignNote struct {
	ID     int64
	Fields string // raw field blob, FieldSeparator-joined
	Deck   string
}

// readCollection loads deck names and notes from an extracted collection
// database. Newer collections carry a decks table; legacy ones embed the
// deck map as JSON in the col row, so the table is tried first.
func readCollection(dbPath string) ([]foreignNote, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, fmt.Errorf("%w: open collection: %v", ErrBadArchive, err)
	}
	defer conn.Close()

	decks, err := readDecks(conn)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(`
		SELECT n.id, n.flds,
		       (SELECT c.did FROM cards c WHERE c.nid = n.id ORDER BY c.ord ASC LIMIT 1)
		FROM notes n
		ORDER BY n.id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("%w: read notes: %v", ErrBadArchive, err)
	}
	defer rows.Close()

	var notes []foreignNote
	for rows.Next() {
		var note foreignNote
		var deckID sql.NullInt64
		if err := rows.Scan(&note.ID, &note.Fields, &deckID); err != nil {
			return nil, fmt.Errorf("%w: scan note: %v", ErrBadArchive, err)
		}
		note.Deck = defaultDeckName
		if deckID.Valid {
			if name, ok := decks[deckID.Int64]; ok && name != "" {
				note.Deck = name
			}
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate notes: %v", ErrBadArchive, err)
	}
	return notes, nil
}

func readDecks(conn *sql.DB) (map[int64]string, error) {
	decks, err := readDecksTable(conn)
	if err == nil {
		return decks, nil
	}
	// Legacy schema: no decks table, the deck map lives in col.decks.
	decks, jsonErr := readDecksJSON(conn)
	if jsonErr != nil {
		return nil, fmt.Errorf("%w: no decks table (%v) and no col decks (%v)", ErrBadArchive, err, jsonErr)
	}
	return decks, nil
}

func readDecksTable(conn *sql.DB) (map[int64]string, error) {
	rows, err := conn.Query(`SELECT id, name FROM decks;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decks := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		decks[id] = name
	}
	return decks, rows.Err()
}

func readDecksJSON(conn *sql.DB) (map[int64]string, error) {
	var raw string
	if err := conn.QueryRow(`SELECT decks FROM col LIMIT 1;`).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[int64]string{}, nil
		}
		return nil, err
	}

	var parsed map[string]struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode deck map: %w", err)
	}

	decks := make(map[int64]string, len(parsed))
	for key, deck := range parsed {
		var id int64
		if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
			continue
		}
		decks[id] = deck.Name
	}
	return decks, nil
}
