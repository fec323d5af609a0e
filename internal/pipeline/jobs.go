package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/testbook/internal/chunker"
	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/testbook"
	"github.com/google/uuid"
)

// JobStatus represents the state of a testbook job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusParsing     JobStatus = "parsing"
	StatusStructuring JobStatus = "structuring"
	StatusIndexing    JobStatus = "indexing"
	StatusGenerating  JobStatus = "generating"
	StatusValidating  JobStatus = "validating"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusPartial     JobStatus = "partial"
	StatusDupSkipped  JobStatus = "duplicate_skipped"
)

// Terminal reports whether no further work will happen for the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusDupSkipped:
		return true
	}
	return false
}

// JobOptions are per-upload overrides.
type JobOptions struct {
	Title    string          // Replaces the derived document title.
	Chunking *chunker.Config // Nil uses the orchestrator's settings.
	Features []string        // Feature ids to generate for; empty means all.
}

// Result is the output of a finished job.
type Result struct {
	Document *document.Structured `json:"document"`
	Testbook *testbook.Testbook   `json:"testbook"`
	Report   testbook.Report      `json:"validation"`
}

// Job tracks one document on its way to a testbook.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	opts     JobOptions
	fileData []byte
	result   *Result
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalChunks       int      `json:"total_chunks"`
	ChunksIndexed     int      `json:"chunks_indexed"`
	TotalFeatures     int      `json:"total_features"`
	FeaturesGenerated int      `json:"features_generated"`
	Procedures        int      `json:"procedures"`
	ProceduresDropped int      `json:"procedures_dropped"`
	Errors            []string `json:"errors"`
}

// NewJob creates a queued job for an uploaded file.
func NewJob(filename string, data []byte, opts JobOptions) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
		opts:      opts,
		fileData:  data,
	}
}

// Options returns the job's upload overrides.
func (j *Job) Options() JobOptions {
	return j.opts
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Delete removes a job and returns it, or nil if it was unknown.
func (s *JobStore) Delete(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	delete(s.jobs, id)
	return job
}

func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs not updated within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetDocument records the structured document's id and chunk count.
func (j *Job) SetDocument(doc *document.Structured) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DocID = doc.ID
	j.Progress.TotalChunks = len(doc.Chunks)
	j.UpdatedAt = time.Now()
}

// IncrChunksIndexed atomically increments chunks indexed.
func (j *Job) IncrChunksIndexed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksIndexed++
	j.UpdatedAt = time.Now()
}

// SetTotalFeatures records how many features will be generated for.
func (j *Job) SetTotalFeatures(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalFeatures = n
	j.UpdatedAt = time.Now()
}

// AddGenerated records one finished feature and its normalized output.
func (j *Job) AddGenerated(procedures, dropped int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FeaturesGenerated++
	j.Progress.Procedures += procedures
	j.Progress.ProceduresDropped += dropped
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

func (j *Job) setHash(hash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = hash
}

// finish stores the job's result and moves it to a terminal status.
func (j *Job) finish(r *Result, status JobStatus, duplicateOf string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = r
	j.DuplicateOf = duplicateOf
	if r != nil && r.Document != nil && j.DocID == "" {
		j.DocID = r.Document.ID
	}
	j.Status = status
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// Result returns the job's output, or nil before it finishes.
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title,omitempty"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress := j.Progress
	progress.Errors = append([]string{}, j.Progress.Errors...)

	title := j.opts.Title
	if j.result != nil && j.result.Document != nil {
		title = j.result.Document.Title
	}
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Title:       title,
		DuplicateOf: j.DuplicateOf,
		Progress:    progress,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
