package anki

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"memoru/internal/models"
)

// ParseDelimited splits a pasted text block into flashcards using the
// user's delimiters: cardDelim separates cards, termDelim separates a
// card's front from its back. Segments without both halves are dropped.
func ParseDelimited(content, termDelim, cardDelim string) []models.Flashcard {
	var cards []models.Flashcard
	for _, segment := range strings.Split(content, cardDelim) {
		front, back, ok := strings.Cut(segment, termDelim)
		if !ok {
			continue
		}
		cards = append(cards, models.Flashcard{
			Front:  front,
			Back:   back,
			Status: models.StatusNotStudied,
		})
	}
	return cards
}

// textFileHeaderLines is the metadata prelude of an Anki text export
// (#separator, #html, blank line).
const textFileHeaderLines = 3

// ParseTextFile reads an Anki tab-separated text export. The three metadata
// lines are skipped; every remaining line with exactly two fields becomes a
// flashcard.
func ParseTextFile(path string) ([]models.Flashcard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text export: %w", err)
	}
	defer file.Close()

	var cards []models.Flashcard
	scanner := bufio.NewScanner(file)
	for line := 0; scanner.Scan(); line++ {
		if line < textFileHeaderLines {
			continue
		}
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) != 2 {
			continue
		}
		cards = append(cards, models.Flashcard{
			Front:  parts[0],
			Back:   parts[1],
			Status: models.StatusNotStudied,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text export: %w", err)
	}
	return cards, nil
}

// WriteTextFile writes the Anki tab-separated text format that
// ParseTextFile reads back.
func WriteTextFile(path string, cards []models.Flashcard) error {
	var buf bytes.Buffer
	buf.WriteString("#separator:tab\n")
	buf.WriteString("#html:false\n")
	buf.WriteString("\n")
	for _, card := range cards {
		fmt.Fprintf(&buf, "%s\t%s\n", card.Front, card.Back)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write text export: %w", err)
	}
	return nil
}

// ExtractPDF returns the plain text of a PDF so it can be fed through
// ParseDelimited.
func ExtractPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
