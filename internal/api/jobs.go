package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memoru/internal/anki"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"

	JobKindImportAnki = "import-anki"
	JobKindImportText = "import-text"
	JobKindExportAnki = "export-anki"
)

// TransferJob tracks one background import or export that the frontend polls.
type TransferJob struct {
	ID        string       `json:"jobId"`
	Kind      string       `json:"kind"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Report    *anki.Report `json:"report,omitempty"`
	Path      string       `json:"path,omitempty"`
	Error     string       `json:"error,omitempty"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*TransferJob
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*TransferJob),
	}
}

func (m *JobManager) CreateJob(kind string) (string, *TransferJob) {
	job := &TransferJob{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*TransferJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *TransferJob) {
		job.Status = JobStatusProcessing
	})
}

func (m *JobManager) MarkCompleted(id string, report *anki.Report, path string) {
	m.withJob(id, func(job *TransferJob) {
		job.Status = JobStatusComplete
		job.Report = cloneReport(report)
		job.Path = path
	})
}

func (m *JobManager) MarkFailed(id string, msg string) {
	m.withJob(id, func(job *TransferJob) {
		job.Status = JobStatusFailed
		job.Error = strings.TrimSpace(msg)
	})
}

func (m *JobManager) withJob(id string, fn func(job *TransferJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *TransferJob) clone() *TransferJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	copyJob.Report = cloneReport(job.Report)
	return &copyJob
}

func cloneReport(report *anki.Report) *anki.Report {
	if report == nil {
		return nil
	}
	copyReport := &anki.Report{Imported: report.Imported}
	if len(report.Skipped) > 0 {
		copyReport.Skipped = append([]anki.RowError(nil), report.Skipped...)
	}
	return copyReport
}
