package anki

import (
	"errors"
	"fmt"
)

var (
	// ErrBadArchive indicates a package that cannot be opened or is missing
	// its embedded collection. Fatal for the whole run.
	ErrBadArchive = errors.New("unreadable anki package")
	// ErrMediaMissing indicates a media reference with no entry in the
	// package's media index. Recoverable per note.
	ErrMediaMissing = errors.New("media file not in package index")
)

// RowError records why a single note was skipped during import. Row errors
// never abort the batch; they are collected and reported.
type RowError struct {
	NoteID int64  `json:"noteId"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("note %d: %s", e.NoteID, e.Reason)
}

// Report summarizes an import run: how many cards landed and which notes
// were skipped, with reasons.
type Report struct {
	Imported int        `json:"imported"`
	Skipped  []RowError `json:"skipped,omitempty"`
}
