package anki

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"memoru/internal/models"
	"memoru/internal/services"
)

// Importer ingests Anki deck packages into local folders and flashcards.
type Importer struct {
	folders          *services.FolderService
	cards            *services.FlashcardService
	mediaDir         string
	defaultRetention float64
}

func NewImporter(folders *services.FolderService, cards *services.FlashcardService, mediaDir string, defaultRetention float64) *Importer {
	return &Importer{
		folders:          folders,
		cards:            cards,
		mediaDir:         mediaDir,
		defaultRetention: defaultRetention,
	}
}

// ImportPackage imports a deck package into the given study set. One local
// folder is created (or reused) per foreign deck. Notes are processed
// independently: a malformed note or an unresolvable media reference skips
// that note only, and the reasons are collected in the report. Archive and
// store failures abort the run. Imported cards always start NotStudied;
// foreign scheduling state is discarded.
//
// Nothing is written until every surviving note is fully resolved, so a
// cancelled run leaves the store untouched.
func (im *Importer) ImportPackage(ctx context.Context, studySetID int64, path string) (*Report, error) {
	pkg, err := OpenPackage(path)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	dbPath, err := pkg.CollectionPath()
	if err != nil {
		return nil, err
	}
	notes, err := readCollection(dbPath)
	if err != nil {
		return nil, err
	}
	index, err := pkg.MediaIndex()
	if err != nil {
		return nil, err
	}
	resolver := newMediaResolver(pkg, index, im.mediaDir)

	report := &Report{}
	byDeck := make(map[string][]models.Flashcard)
	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		card, err := im.convertNote(note, resolver)
		if err != nil {
			report.Skipped = append(report.Skipped, RowError{NoteID: note.ID, Reason: err.Error()})
			continue
		}
		byDeck[note.Deck] = append(byDeck[note.Deck], card)
	}

	// Deterministic folder creation order.
	decks := make([]string, 0, len(byDeck))
	for deck := range byDeck {
		decks = append(decks, deck)
	}
	sort.Strings(decks)

	for _, deck := range decks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		folder, err := im.folders.GetOrCreate(ctx, studySetID, deck, im.defaultRetention)
		if err != nil {
			return nil, fmt.Errorf("folder for deck %q: %w", deck, err)
		}
		if err := im.cards.BulkInsert(ctx, folder.ID, byDeck[deck]); err != nil {
			return nil, fmt.Errorf("insert deck %q: %w", deck, err)
		}
		report.Imported += len(byDeck[deck])
	}
	return report, nil
}

// convertNote maps one foreign note to a local flashcard: field 0 is the
// front, field 1 the back, extra fields are ignored.
func (im *Importer) convertNote(note foreignNote, resolver *mediaResolver) (models.Flashcard, error) {
	fields := strings.Split(note.Fields, FieldSeparator)
	if len(fields) < 2 {
		return models.Flashcard{}, fmt.Errorf("want at least 2 fields, have %d", len(fields))
	}
	front, err := resolver.rewrite(fields[0])
	if err != nil {
		return models.Flashcard{}, err
	}
	back, err := resolver.rewrite(fields[1])
	if err != nil {
		return models.Flashcard{}, err
	}
	if strings.TrimSpace(front) == "" || strings.TrimSpace(back) == "" {
		return models.Flashcard{}, fmt.Errorf("empty front or back")
	}
	return models.Flashcard{
		Front:  front,
		Back:   back,
		Status: models.StatusNotStudied,
	}, nil
}
