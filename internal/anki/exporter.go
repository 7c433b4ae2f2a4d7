package anki

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"memoru/internal/models"
	"memoru/internal/services"
)

// Exporter builds Anki-compatible deck packages from local folders.
type Exporter struct {
	folders  *services.FolderService
	cards    *services.FlashcardService
	mediaDir string
}

func NewExporter(folders *services.FolderService, cards *services.FlashcardService, mediaDir string) *Exporter {
	return &Exporter{folders: folders, cards: cards, mediaDir: mediaDir}
}

// ExportPackage writes one folder as a legacy-layout deck package: an
// embedded collection database with a single synthetic deck, the referenced
// local media as numbered members, and a JSON media index. The result
// round-trips through ImportPackage.
func (ex *Exporter) ExportPackage(ctx context.Context, folderID int64, outPath string) error {
	folder, err := ex.folders.Get(ctx, folderID)
	if err != nil {
		return err
	}
	cards, err := ex.cards.ListByFolder(ctx, folderID)
	if err != nil {
		return err
	}

	tempDir, err := os.MkdirTemp("", "memoru-export-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, collectionLegacy)
	if err := ex.writeCollection(ctx, dbPath, folder.Name, cards); err != nil {
		return err
	}

	// Collect referenced media. Missing local files are skipped; the card
	// text keeps its reference.
	index := make(map[string]string)
	var mediaPaths []string
	seen := make(map[string]bool)
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, name := range append(referencedMedia(card.Front), referencedMedia(card.Back)...) {
			if seen[name] {
				continue
			}
			seen[name] = true
			local := filepath.Join(ex.mediaDir, name)
			if _, err := os.Stat(local); err != nil {
				continue
			}
			index[strconv.Itoa(len(mediaPaths))] = name
			mediaPaths = append(mediaPaths, local)
		}
	}

	return writeArchive(outPath, dbPath, index, mediaPaths)
}

// writeCollection builds the embedded database: the legacy schema with the
// deck map serialized into the col row and one note + one card per
// flashcard, fields joined by the field separator.
func (ex *Exporter) writeCollection(ctx context.Context, dbPath, deckName string, cards []models.Flashcard) error {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE col (
			id INTEGER PRIMARY KEY,
			crt INTEGER, mod INTEGER, scm INTEGER, ver INTEGER, dty INTEGER,
			usn INTEGER, ls INTEGER,
			conf TEXT, models TEXT, decks TEXT, dconf TEXT, tags TEXT
		);`,
		`CREATE TABLE notes (
			id INTEGER PRIMARY KEY,
			guid TEXT, mid INTEGER, mod INTEGER, usn INTEGER,
			tags TEXT, flds TEXT, sfld TEXT, csum INTEGER, flags INTEGER, data TEXT
		);`,
		`CREATE TABLE cards (
			id INTEGER PRIMARY KEY,
			nid INTEGER, did INTEGER, ord INTEGER, mod INTEGER, usn INTEGER,
			type INTEGER, queue INTEGER, due INTEGER, ivl INTEGER, factor INTEGER,
			reps INTEGER, lapses INTEGER, left INTEGER, odue INTEGER, odid INTEGER,
			flags INTEGER, data TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create collection schema: %w", err)
		}
	}

	const exportDeckID = 1
	deckMap, err := json.Marshal(map[string]any{
		strconv.Itoa(exportDeckID): map[string]any{"id": exportDeckID, "name": deckName},
	})
	if err != nil {
		return fmt.Errorf("encode deck map: %w", err)
	}
	now := time.Now().Unix()
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		VALUES (1, ?, ?, ?, 11, 0, 0, 0, '{}', '{}', ?, '{}', '{}');`,
		now, now, now, string(deckMap)); err != nil {
		return fmt.Errorf("insert col row: %w", err)
	}

	noteStmt, err := conn.PrepareContext(ctx, `
		INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, 1, ?, -1, '', ?, ?, 0, 0, '');`)
	if err != nil {
		return fmt.Errorf("prepare note insert: %w", err)
	}
	defer noteStmt.Close()
	cardStmt, err := conn.PrepareContext(ctx, `
		INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor,
		                   reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, 0, ?, -1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, '');`)
	if err != nil {
		return fmt.Errorf("prepare card insert: %w", err)
	}
	defer cardStmt.Close()

	for i, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		rowID := int64(i + 1)
		flds := card.Front + FieldSeparator + card.Back
		if _, err := noteStmt.ExecContext(ctx, rowID, uuid.NewString(), now, flds, card.Front); err != nil {
			return fmt.Errorf("insert note %d: %w", rowID, err)
		}
		if _, err := cardStmt.ExecContext(ctx, rowID, rowID, exportDeckID, now); err != nil {
			return fmt.Errorf("insert card %d: %w", rowID, err)
		}
	}
	return nil
}

// writeArchive packages the collection, media files and index into a zip
// with the member layout Anki-compatible importers expect.
func writeArchive(outPath, dbPath string, index map[string]string, mediaPaths []string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	if err := addFileMember(zw, collectionLegacy, dbPath); err != nil {
		return err
	}

	manifest, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode media index: %w", err)
	}
	w, err := zw.Create(mediaManifest)
	if err != nil {
		return fmt.Errorf("add media index: %w", err)
	}
	if _, err := w.Write(manifest); err != nil {
		return fmt.Errorf("write media index: %w", err)
	}

	for i, path := range mediaPaths {
		if err := addFileMember(zw, strconv.Itoa(i), path); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish package: %w", err)
	}
	return out.Close()
}

func addFileMember(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add member %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write member %s: %w", name, err)
	}
	return nil
}
