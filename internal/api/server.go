package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"memoru/internal/anki"
	"memoru/internal/backup"
	"memoru/internal/fsrs"
	"memoru/internal/models"
	"memoru/internal/scheduler"
	"memoru/internal/services"
	"memoru/internal/study"
)

const maxMultipartMemory = 32 << 20 // 32 MB, packages carry media

type Server struct {
	mux        *http.ServeMux
	studysets  *services.StudySetService
	folders    *services.FolderService
	flashcards *services.FlashcardService
	importer   *anki.Importer
	exporter   *anki.Exporter
	backups    *backup.Service
	jobs       *JobManager
}

func NewServer(
	studysets *services.StudySetService,
	folders *services.FolderService,
	flashcards *services.FlashcardService,
	importer *anki.Importer,
	exporter *anki.Exporter,
	backups *backup.Service,
) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		studysets:  studysets,
		folders:    folders,
		flashcards: flashcards,
		importer:   importer,
		exporter:   exporter,
		backups:    backups,
		jobs:       NewJobManager(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/studysets", s.handleStudySets)
	s.mux.HandleFunc("/api/studysets/", s.handleStudySetActions)
	s.mux.HandleFunc("/api/folders/", s.handleFolderActions)
	s.mux.HandleFunc("/api/flashcards/", s.handleFlashcardActions)
	s.mux.HandleFunc("/api/import/anki", s.handleImportAnki)
	s.mux.HandleFunc("/api/import/text", s.handleImportText)
	s.mux.HandleFunc("/api/export/anki", s.handleExportAnki)
	s.mux.HandleFunc("/api/export/text", s.handleExportText)
	s.mux.HandleFunc("/api/backup", s.handleBackup)
	s.mux.HandleFunc("/api/backup/restore", s.handleRestore)
	s.mux.HandleFunc("/api/jobs/", s.handleJobStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStudySets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sets, err := s.studysets.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]map[string]any, 0, len(sets))
		for _, set := range sets {
			out = append(out, map[string]any{"id": set.ID, "name": set.Name})
		}
		writeJSON(w, http.StatusOK, map[string]any{"studysets": out})
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		set, err := s.studysets.Create(r.Context(), payload.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": set.ID, "name": set.Name})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleStudySetActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitAction(r.URL.Path, "/api/studysets/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		s.handleStudySet(w, r, id)
	case "folders":
		s.handleStudySetFolders(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleStudySet(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		set, err := s.studysets.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": set.ID, "name": set.Name})
	case http.MethodPut:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if err := s.studysets.Rename(r.Context(), id, payload.Name); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "name": payload.Name})
	case http.MethodDelete:
		if err := s.studysets.Delete(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleStudySetFolders(w http.ResponseWriter, r *http.Request, studySetID int64) {
	switch r.Method {
	case http.MethodGet:
		folders, err := s.folders.ListByStudySet(r.Context(), studySetID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		today := scheduler.Today(time.Now())
		out := make([]map[string]any, 0, len(folders))
		for _, folder := range folders {
			due, err := s.flashcards.DueCount(r.Context(), folder.ID, today)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			out = append(out, folderJSON(folder, due))
		}
		writeJSON(w, http.StatusOK, map[string]any{"folders": out})
	case http.MethodPost:
		var payload struct {
			Name             string  `json:"name"`
			DesiredRetention float64 `json:"desiredRetention"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		folder, err := s.folders.Create(r.Context(), studySetID, payload.Name, payload.DesiredRetention)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, folderJSON(folder, 0))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleFolderActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitAction(r.URL.Path, "/api/folders/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		s.handleFolder(w, r, id)
	case "flashcards":
		s.handleFolderFlashcards(w, r, id)
	case "study":
		s.handleFolderStudy(w, r, id)
	case "reset":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		if err := s.flashcards.ResetFolder(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleFolder(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		folder, err := s.folders.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		due, err := s.flashcards.DueCount(r.Context(), id, scheduler.Today(time.Now()))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, folderJSON(folder, due))
	case http.MethodPut:
		var payload struct {
			Name             string  `json:"name"`
			DesiredRetention float64 `json:"desiredRetention"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if err := s.folders.Update(r.Context(), id, payload.Name, payload.DesiredRetention); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		if err := s.folders.Delete(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleFolderFlashcards(w http.ResponseWriter, r *http.Request, folderID int64) {
	switch r.Method {
	case http.MethodGet:
		cards, err := s.flashcards.ListByFolder(r.Context(), folderID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"flashcards": cardsJSON(cards)})
	case http.MethodPost:
		var payload struct {
			Front string `json:"front"`
			Back  string `json:"back"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if strings.TrimSpace(payload.Front) == "" || strings.TrimSpace(payload.Back) == "" {
			writeError(w, http.StatusBadRequest, "front and back are required")
			return
		}
		card, err := s.flashcards.Create(r.Context(), folderID, payload.Front, payload.Back)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cardJSON(card))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleFolderStudy returns the ordered card list for a study session:
// mode=due (default) filters to due cards in urgency order, mode=all shuffles
// the whole folder.
func (s *Server) handleFolderStudy(w http.ResponseWriter, r *http.Request, folderID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	cards, err := s.flashcards.ListByFolder(r.Context(), folderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var session *study.Session
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "due":
		session = study.NewDueSession(cards, scheduler.Today(time.Now()))
	case "all":
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		session = study.NewFullSession(cards, rng)
	default:
		writeError(w, http.StatusBadRequest, "mode must be 'due' or 'all'")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cards": cardsJSON(session.Cards()),
		"total": session.Total(),
	})
}

func (s *Server) handleFlashcardActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitAction(r.URL.Path, "/api/flashcards/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		s.handleFlashcard(w, r, id)
	case "review":
		s.handleReview(w, r, id)
	case "reset":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		card, err := s.flashcards.Reset(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cardJSON(card))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleFlashcard(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		card, err := s.flashcards.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cardJSON(card))
	case http.MethodPut:
		var payload struct {
			Front string `json:"front"`
			Back  string `json:"back"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if err := s.flashcards.UpdateContent(r.Context(), id, payload.Front, payload.Back); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		if err := s.flashcards.Delete(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	outcome, err := models.ParseStatus(payload.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, err := s.flashcards.Review(r.Context(), id, outcome, scheduler.Today(time.Now()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardJSON(card))
}

func (s *Server) handleImportAnki(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	studySetID, err := strconv.ParseInt(r.FormValue("studySetId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "studySetId is required")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// Stash the upload so the job outlives the request body.
	tmp, err := os.CreateTemp("", "memoru-upload-*.apkg")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	jobID, snapshot := s.jobs.CreateJob(JobKindImportAnki)
	go s.runAnkiImport(context.Background(), jobID, studySetID, tmp.Name())
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runAnkiImport(ctx context.Context, jobID string, studySetID int64, path string) {
	defer os.Remove(path)

	s.jobs.MarkProcessing(jobID)
	report, err := s.importer.ImportPackage(ctx, studySetID, path)
	if err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.MarkCompleted(jobID, report, "")
}

func (s *Server) handleImportText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		FolderID      int64  `json:"folderId"`
		Content       string `json:"content"`
		TermDelimiter string `json:"termDelimiter"`
		CardDelimiter string `json:"cardDelimiter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.TermDelimiter == "" || payload.CardDelimiter == "" {
		writeError(w, http.StatusBadRequest, "termDelimiter and cardDelimiter are required")
		return
	}

	jobID, snapshot := s.jobs.CreateJob(JobKindImportText)
	go s.runTextImport(context.Background(), jobID, payload.FolderID,
		payload.Content, payload.TermDelimiter, payload.CardDelimiter)
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runTextImport(ctx context.Context, jobID string, folderID int64, content, termDelim, cardDelim string) {
	s.jobs.MarkProcessing(jobID)
	cards := anki.ParseDelimited(content, termDelim, cardDelim)
	if err := s.flashcards.BulkInsert(ctx, folderID, cards); err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.MarkCompleted(jobID, &anki.Report{Imported: len(cards)}, "")
}

func (s *Server) handleExportAnki(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		FolderID int64  `json:"folderId"`
		Path     string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Path == "" {
		writeError(w, http.StatusBadRequest, "folderId and path are required")
		return
	}

	jobID, snapshot := s.jobs.CreateJob(JobKindExportAnki)
	go s.runAnkiExport(context.Background(), jobID, payload.FolderID, payload.Path)
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runAnkiExport(ctx context.Context, jobID string, folderID int64, path string) {
	s.jobs.MarkProcessing(jobID)
	if err := s.exporter.ExportPackage(ctx, folderID, path); err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.MarkCompleted(jobID, nil, path)
}

func (s *Server) handleExportText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		FolderID int64  `json:"folderId"`
		Path     string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Path == "" {
		writeError(w, http.StatusBadRequest, "folderId and path are required")
		return
	}

	cards, err := s.flashcards.ListByFolder(r.Context(), payload.FolderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := anki.WriteTextFile(payload.Path, cards); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": payload.Path, "exported": len(cards)})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := s.backups.WriteFile(r.Context(), payload.Path); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": payload.Path})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := s.backups.RestoreFile(r.Context(), payload.Path); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// splitAction parses "/prefix/{id}" and "/prefix/{id}/{action}" paths.
func splitAction(path, prefix string) (int64, string, bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return 0, "", false
	}
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, action, true
}

func folderJSON(folder models.Folder, dueCount int) map[string]any {
	return map[string]any{
		"id":               folder.ID,
		"name":             folder.Name,
		"desiredRetention": folder.DesiredRetention,
		"studySetId":       folder.StudySetID,
		"dueCount":         dueCount,
	}
}

func cardJSON(card models.Flashcard) map[string]any {
	return map[string]any{
		"id":           card.ID,
		"front":        card.Front,
		"back":         card.Back,
		"status":       strings.ToLower(card.Status.String()),
		"stability":    nullFloat(card.Stability),
		"difficulty":   nullFloat(card.Difficulty),
		"dueDate":      nullInt(card.DueDate),
		"lastReviewed": nullInt(card.LastReviewed),
		"folderId":     card.FolderID,
	}
}

func cardsJSON(cards []models.Flashcard) []map[string]any {
	out := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		out = append(out, cardJSON(card))
	}
	return out
}

func nullFloat(v sql.NullFloat64) *float64 {
	if v.Valid {
		f := v.Float64
		return &f
	}
	return nil
}

func nullInt(v sql.NullInt64) *int64 {
	if v.Valid {
		i := v.Int64
		return &i
	}
	return nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fsrs.ErrInvalidRetention):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
