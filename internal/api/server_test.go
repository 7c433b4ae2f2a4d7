package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memoru/internal/anki"
	"memoru/internal/backup"
	"memoru/internal/db"
	"memoru/internal/scheduler"
	"memoru/internal/services"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	folders := services.NewFolderService(conn)
	flashcards := services.NewFlashcardService(conn, scheduler.NewDefault())
	mediaDir := t.TempDir()
	server := NewServer(
		services.NewStudySetService(conn),
		folders,
		flashcards,
		anki.NewImporter(folders, flashcards, mediaDir, 0.9),
		anki.NewExporter(folders, flashcards, mediaDir),
		backup.NewService(conn),
	)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) map[string]any {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		t.Fatalf("POST %s: status %d", url, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func seedFolder(t *testing.T, ts *httptest.Server) (setID, folderID int64) {
	t.Helper()
	set := postJSON(t, ts.URL+"/api/studysets", map[string]any{"name": "Languages"})
	setID = int64(set["id"].(float64))
	folder := postJSON(t, fmt.Sprintf("%s/api/studysets/%d/folders", ts.URL, setID),
		map[string]any{"name": "Spanish", "desiredRetention": 0.9})
	folderID = int64(folder["id"].(float64))
	return setID, folderID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	out := getJSON(t, ts.URL+"/api/health")
	if out["status"] != "ok" {
		t.Fatalf("health = %v", out)
	}
}

func TestStudySetAndFolderLifecycle(t *testing.T) {
	ts := newTestServer(t)
	setID, folderID := seedFolder(t, ts)

	sets := getJSON(t, ts.URL+"/api/studysets")
	if len(sets["studysets"].([]any)) != 1 {
		t.Fatalf("studysets = %v", sets)
	}

	folders := getJSON(t, fmt.Sprintf("%s/api/studysets/%d/folders", ts.URL, setID))
	list := folders["folders"].([]any)
	if len(list) != 1 {
		t.Fatalf("folders = %v", folders)
	}
	got := list[0].(map[string]any)
	if got["name"] != "Spanish" || int64(got["id"].(float64)) != folderID {
		t.Errorf("folder = %v", got)
	}
	if got["dueCount"].(float64) != 0 {
		t.Errorf("dueCount = %v, want 0", got["dueCount"])
	}
}

func TestReviewThroughAPI(t *testing.T) {
	ts := newTestServer(t)
	_, folderID := seedFolder(t, ts)

	card := postJSON(t, fmt.Sprintf("%s/api/folders/%d/flashcards", ts.URL, folderID),
		map[string]any{"front": "cat", "back": "gato"})
	cardID := int64(card["id"].(float64))
	if card["status"] != "notstudied" || card["dueDate"] != nil {
		t.Fatalf("new card = %v", card)
	}

	reviewed := postJSON(t, fmt.Sprintf("%s/api/flashcards/%d/review", ts.URL, cardID),
		map[string]any{"outcome": "good"})
	if reviewed["status"] != "good" {
		t.Errorf("status = %v, want good", reviewed["status"])
	}
	if reviewed["dueDate"] == nil || reviewed["stability"] == nil {
		t.Errorf("scheduling state missing: %v", reviewed)
	}

	reset := postJSON(t, fmt.Sprintf("%s/api/flashcards/%d/reset", ts.URL, cardID), map[string]any{})
	if reset["status"] != "notstudied" || reset["dueDate"] != nil {
		t.Errorf("reset card = %v", reset)
	}
}

func TestReviewRejectsUnknownOutcome(t *testing.T) {
	ts := newTestServer(t)
	_, folderID := seedFolder(t, ts)
	card := postJSON(t, fmt.Sprintf("%s/api/folders/%d/flashcards", ts.URL, folderID),
		map[string]any{"front": "cat", "back": "gato"})
	cardID := int64(card["id"].(float64))

	body, _ := json.Marshal(map[string]any{"outcome": "amazing"})
	resp, err := http.Post(fmt.Sprintf("%s/api/flashcards/%d/review", ts.URL, cardID),
		"application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStudySessionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, folderID := seedFolder(t, ts)
	for i := 0; i < 3; i++ {
		postJSON(t, fmt.Sprintf("%s/api/folders/%d/flashcards", ts.URL, folderID),
			map[string]any{"front": fmt.Sprintf("f%d", i), "back": fmt.Sprintf("b%d", i)})
	}

	due := getJSON(t, fmt.Sprintf("%s/api/folders/%d/study?mode=due", ts.URL, folderID))
	if due["total"].(float64) != 3 {
		t.Errorf("due total = %v, want 3 (new cards are due)", due["total"])
	}

	all := getJSON(t, fmt.Sprintf("%s/api/folders/%d/study?mode=all", ts.URL, folderID))
	if all["total"].(float64) != 3 {
		t.Errorf("all total = %v, want 3", all["total"])
	}
}

func TestTextImportJob(t *testing.T) {
	ts := newTestServer(t)
	_, folderID := seedFolder(t, ts)

	job := postJSON(t, ts.URL+"/api/import/text", map[string]any{
		"folderId":      folderID,
		"content":       "cat|gato;dog|perro",
		"termDelimiter": "|",
		"cardDelimiter": ";",
	})
	jobID := job["jobId"].(string)

	final := pollJob(t, ts, jobID)
	if final["status"] != JobStatusComplete {
		t.Fatalf("job = %v", final)
	}
	report := final["report"].(map[string]any)
	if report["imported"].(float64) != 2 {
		t.Errorf("imported = %v, want 2", report["imported"])
	}

	cards := getJSON(t, fmt.Sprintf("%s/api/folders/%d/flashcards", ts.URL, folderID))
	if len(cards["flashcards"].([]any)) != 2 {
		t.Errorf("flashcards = %v", cards)
	}
}

func pollJob(t *testing.T, ts *httptest.Server, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job := getJSON(t, ts.URL+"/api/jobs/"+jobID)
		switch job["status"] {
		case JobStatusComplete, JobStatusFailed:
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not finish: %v", jobID, job)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobNotFound(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/jobs/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
