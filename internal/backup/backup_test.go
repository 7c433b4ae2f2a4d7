package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"memoru/internal/db"
	"memoru/internal/models"
	"memoru/internal/scheduler"
	"memoru/internal/services"
)

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	sets := services.NewStudySetService(src)
	folders := services.NewFolderService(src)
	cards := services.NewFlashcardService(src, scheduler.NewDefault())

	set, err := sets.Create(ctx, "Languages")
	if err != nil {
		t.Fatalf("create set: %v", err)
	}
	folder, err := folders.Create(ctx, set.ID, "Spanish", 0.85)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if err := cards.BulkInsert(ctx, folder.ID, []models.Flashcard{
		{Front: "cat", Back: "gato", Status: models.StatusNotStudied},
		{Front: "dog", Back: "perro", Status: models.StatusNotStudied},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	listed, err := cards.ListByFolder(ctx, folder.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	today := scheduler.Today(time.Now())
	if _, err := cards.Review(ctx, listed[0].ID, models.StatusGood, today); err != nil {
		t.Fatalf("review: %v", err)
	}

	path := filepath.Join(t.TempDir(), "backup.json")
	if err := NewService(src).WriteFile(ctx, path); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open dst: %v", err)
	}
	defer dst.Close()
	if err := NewService(dst).RestoreFile(ctx, path); err != nil {
		t.Fatalf("restore: %v", err)
	}

	snapshot, err := NewService(dst).Export(ctx)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if len(snapshot.StudySets) != 1 || snapshot.StudySets[0].Name != "Languages" {
		t.Fatalf("studysets = %+v", snapshot.StudySets)
	}
	restored := snapshot.StudySets[0].Folders
	if len(restored) != 1 || restored[0].Name != "Spanish" || restored[0].DesiredRetention != 0.85 {
		t.Fatalf("folders = %+v", restored)
	}
	got := restored[0].Flashcards
	if len(got) != 2 {
		t.Fatalf("flashcards = %+v", got)
	}

	// The reviewed card keeps its scheduling state across the round trip.
	reviewed := got[0]
	if reviewed.Front != "cat" || reviewed.Status != int(models.StatusGood) {
		t.Errorf("reviewed card = %+v", reviewed)
	}
	if reviewed.Stability == nil || reviewed.Difficulty == nil || reviewed.DueDate == nil || reviewed.LastReviewed == nil {
		t.Errorf("scheduling state lost: %+v", reviewed)
	}
	if got[1].Stability != nil || got[1].DueDate != nil {
		t.Errorf("unreviewed card gained state: %+v", got[1])
	}
}

func TestRestoreRejectsInvalidStatus(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	snapshot := &Snapshot{StudySets: []StudySet{{
		Name: "Set",
		Folders: []Folder{{
			Name:             "Folder",
			DesiredRetention: 0.9,
			Flashcards:       []Flashcard{{Front: "a", Back: "b", Status: 99}},
		}},
	}}}
	if err := NewService(conn).Restore(ctx, snapshot); err == nil {
		t.Fatal("restore with invalid status should fail")
	}

	// Transactional: the studyset insert must have rolled back too.
	check, err := NewService(conn).Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(check.StudySets) != 0 {
		t.Errorf("partial restore left data: %+v", check.StudySets)
	}
}
