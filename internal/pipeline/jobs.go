package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a guide generation job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusGenerating JobStatus = "generating"
	StatusParsing    JobStatus = "parsing"
	StatusStoring    JobStatus = "storing"
	StatusRendering  JobStatus = "rendering"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// Job tracks the generation of one study guide. The job ID doubles as the
// guide ID of the stored chapters.
type Job struct {
	mu sync.Mutex

	ID         uuid.UUID `json:"job_id"`
	GuideTitle string    `json:"guide_title"`
	Topics     []string  `json:"topics"`
	Model      string    `json:"model"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	reference  string
	outputDir  string
	chapterIDs []uuid.UUID
	errors     []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalChapters     int      `json:"total_chapters"`
	ChaptersGenerated int      `json:"chapters_generated"`
	ChaptersStored    int      `json:"chapters_stored"`
	Tokens            int      `json:"tokens"`
	CostUSD           float64  `json:"cost_usd"`
	Errors            []string `json:"errors"`
}

// NewJob creates a queued job for the given topics, one chapter per topic.
func NewJob(guideTitle string, topics []string, model string) *Job {
	now := time.Now()
	return &Job{
		ID:         uuid.New(),
		GuideTitle: guideTitle,
		Topics:     topics,
		Model:      model,
		Status:     StatusQueued,
		Phase:      "queued",
		Progress:   Progress{TotalChapters: len(topics)},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[uuid.UUID]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id uuid.UUID) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs not updated within the TTL.
func (s *JobStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// CurrentStatus returns the status under the job lock.
func (j *Job) CurrentStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// IncrGenerated counts a chapter that parsed successfully.
func (j *Job) IncrGenerated() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChaptersGenerated++
	j.UpdatedAt = time.Now()
}

// AddUsage records billed tokens and their cost.
func (j *Job) AddUsage(tokens int, costUSD float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Tokens += tokens
	j.Progress.CostUSD += costUSD
	j.UpdatedAt = time.Now()
}

// AddChapter records a stored chapter.
func (j *Job) AddChapter(id uuid.UUID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chapterIDs = append(j.chapterIDs, id)
	j.Progress.ChaptersStored++
	j.UpdatedAt = time.Now()
}

// SetReference attaches reference material for the prompts.
func (j *Job) SetReference(text string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reference = text
}

// Reference returns the attached reference material.
func (j *Job) Reference() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reference
}

// SetOutputDir records where the rendered guide was written.
func (j *Job) SetOutputDir(dir string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outputDir = dir
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID         uuid.UUID   `json:"job_id"`
	GuideTitle string      `json:"guide_title"`
	Topics     []string    `json:"topics"`
	Model      string      `json:"model"`
	Status     JobStatus   `json:"status"`
	Phase      string      `json:"phase"`
	Progress   Progress    `json:"progress"`
	ChapterIDs []uuid.UUID `json:"chapter_ids"`
	OutputDir  string      `json:"output_dir,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	ids := append([]uuid.UUID{}, j.chapterIDs...)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:         j.ID,
		GuideTitle: j.GuideTitle,
		Topics:     append([]string(nil), j.Topics...),
		Model:      j.Model,
		Status:     j.Status,
		Phase:      j.Phase,
		Progress:   p,
		ChapterIDs: ids,
		OutputDir:  j.outputDir,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}
