package anki

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDelimited(t *testing.T) {
	cards := ParseDelimited("cat|gato;dog|perro", "|", ";")
	if len(cards) != 2 {
		t.Fatalf("len = %d, want 2", len(cards))
	}
	if cards[0].Front != "cat" || cards[0].Back != "gato" {
		t.Errorf("card 0 = %q/%q, want cat/gato", cards[0].Front, cards[0].Back)
	}
	if cards[1].Front != "dog" || cards[1].Back != "perro" {
		t.Errorf("card 1 = %q/%q, want dog/perro", cards[1].Front, cards[1].Back)
	}
}

func TestParseDelimitedSkipsIncompleteSegments(t *testing.T) {
	cards := ParseDelimited("cat|gato;incomplete;dog|perro;", "|", ";")
	if len(cards) != 2 {
		t.Fatalf("len = %d, want 2 (incomplete segments dropped)", len(cards))
	}
}

func TestParseDelimitedEmptyContent(t *testing.T) {
	if cards := ParseDelimited("", "|", ";"); len(cards) != 0 {
		t.Errorf("len = %d, want 0", len(cards))
	}
}

func TestTextFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.txt")
	want := ParseDelimited("cat|gato;dog|perro;bird|pájaro", "|", ";")

	if err := WriteTextFile(path, want); err != nil {
		t.Fatalf("WriteTextFile: %v", err)
	}
	got, err := ParseTextFile(path)
	if err != nil {
		t.Fatalf("ParseTextFile: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Front != want[i].Front || got[i].Back != want[i].Back {
			t.Errorf("card %d = %q/%q, want %q/%q",
				i, got[i].Front, got[i].Back, want[i].Front, want[i].Back)
		}
	}
}

func TestParseTextFileSkipsHeaderAndBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.txt")
	content := "#separator:tab\n#html:false\n\ncat\tgato\nno tab here\ndog\tperro\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cards, err := ParseTextFile(path)
	if err != nil {
		t.Fatalf("ParseTextFile: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("len = %d, want 2", len(cards))
	}
	if cards[0].Front != "cat" || cards[1].Back != "perro" {
		t.Errorf("unexpected cards: %+v", cards)
	}
}
