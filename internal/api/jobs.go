package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/musicxml"
	"github.com/FocuswithJustin/ScoreShift/core/shift"
	"github.com/FocuswithJustin/ScoreShift/internal/archive"
	"github.com/FocuswithJustin/ScoreShift/internal/batch"
	"github.com/FocuswithJustin/ScoreShift/internal/logging"
	"github.com/FocuswithJustin/ScoreShift/internal/validation"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ErrJobFinished is returned when cancelling a job that already ended.
var ErrJobFinished = errors.New("job already finished")

// JobRequest is the body of POST /jobs. Paths are relative to the jobs
// directory. Output defaults to "<input>-transposed" with the input's
// bundle extension.
type JobRequest struct {
	Input      string `json:"input"`
	Output     string `json:"output,omitempty"`
	Shift      string `json:"shift"`
	DropStems  bool   `json:"drop_stems,omitempty"`
	Instrument string `json:"instrument,omitempty"`
}

// Job is an asynchronous batch transposition.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"` // 0-100
	Done        int            `json:"done"`
	Total       int            `json:"total"`
	Request     JobRequest     `json:"request"`
	Summary     *batch.Summary `json:"summary,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	CompletedAt string         `json:"completed_at,omitempty"`

	ctx    context.Context
	cancel context.CancelFunc
}

// JobStore keeps jobs in memory.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job), now: time.Now}
}

func (s *JobStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Create registers a pending job whose context derives from parent.
func (s *JobStore) Create(parent context.Context, req JobRequest) Job {
	ctx, cancel := context.WithCancel(parent)
	now := s.stamp()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job
}

// Get returns a snapshot of the job with the given ID.
func (s *JobStore) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, scerrors.NewNotFound("job", id)
	}
	return *job, nil
}

// List returns snapshots of all jobs, oldest first.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt != jobs[k].CreatedAt {
			return jobs[i].CreatedAt < jobs[k].CreatedAt
		}
		return jobs[i].ID < jobs[k].ID
	})
	return jobs
}

// update applies fn to a live job unless it has already ended.
func (s *JobStore) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.terminal() {
		return
	}
	fn(job)
	job.UpdatedAt = s.stamp()
	if job.Status.terminal() {
		job.CompletedAt = job.UpdatedAt
		job.cancel()
	}
}

func (s *JobStore) setRunning(id string) {
	s.update(id, func(j *Job) { j.Status = JobStatusRunning })
}

func (s *JobStore) setProgress(id string, p batch.Progress) {
	s.update(id, func(j *Job) {
		j.Done, j.Total = p.Done, p.Total
		j.Progress = percent(p.Done, p.Total)
	})
}

func (s *JobStore) finish(id string, status JobStatus, summary *batch.Summary, errMsg string) {
	s.update(id, func(j *Job) {
		j.Status = status
		j.Summary = summary
		j.Error = errMsg
		if status == JobStatusCompleted {
			j.Progress = 100
		}
	})
}

// Cancel stops a pending or running job.
func (s *JobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return scerrors.NewNotFound("job", id)
	}
	if job.Status.terminal() {
		return ErrJobFinished
	}
	job.cancel()
	job.Status = JobStatusCancelled
	job.UpdatedAt = s.stamp()
	job.CompletedAt = job.UpdatedAt
	return nil
}

// CancelAll stops every live job.
func (s *JobStore) CancelAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.jobs))
	for id, j := range s.jobs {
		if !j.Status.terminal() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.Cancel(id)
	}
}

// Delete removes a job, cancelling it first if it is still live.
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return scerrors.NewNotFound("job", id)
	}
	job.cancel()
	delete(s.jobs, id)
	return nil
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// jobPlan is a validated JobRequest.
type jobPlan struct {
	in, out string
	opts    batch.Options
}

func (s *Server) planJob(req JobRequest) (jobPlan, error) {
	if req.Input == "" {
		return jobPlan{}, scerrors.NewValidation("input", "input bundle is required")
	}
	if !archive.IsBundle(req.Input) {
		return jobPlan{}, scerrors.NewUnsupported("bundle format", req.Input)
	}
	in, err := validation.SanitizePath(s.cfg.JobsDir, req.Input)
	if err != nil {
		return jobPlan{}, scerrors.NewValidation("input", err.Error())
	}

	output := req.Output
	if output == "" {
		base := filepath.Base(in)
		ext := strings.TrimPrefix(base, archive.BundleID(base))
		output = filepath.Join(filepath.Dir(in), archive.BundleID(base)+"-transposed"+ext)
	}
	if !archive.IsBundle(output) {
		return jobPlan{}, scerrors.NewUnsupported("bundle format", output)
	}
	out, err := validation.SanitizePath(s.cfg.JobsDir, output)
	if err != nil {
		return jobPlan{}, scerrors.NewValidation("output", err.Error())
	}
	if out == in {
		return jobPlan{}, scerrors.NewValidation("output", "output must differ from input")
	}

	if req.Shift == "" {
		return jobPlan{}, scerrors.NewValidation("shift", "shift is required")
	}
	expr, err := shift.Parse(req.Shift)
	if err != nil {
		return jobPlan{}, err
	}
	program, err := musicxml.ParseInstrument(req.Instrument)
	if err != nil {
		return jobPlan{}, err
	}

	return jobPlan{
		in:  filepath.Join(s.cfg.JobsDir, in),
		out: filepath.Join(s.cfg.JobsDir, out),
		opts: batch.Options{
			Shift:          expr,
			DropStemLayout: req.DropStems,
			MIDIProgram:    program,
		},
	}, nil
}

// runJob executes a batch job in a goroutine, reporting progress to the
// job store and to WebSocket clients.
func (s *Server) runJob(job Job, plan jobPlan) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.jobs.setRunning(job.ID)
		logging.JobEvent(job.ID, string(JobStatusRunning), "input", job.Request.Input)

		summary, err := batch.Run(job.ctx, plan.in, plan.out, plan.opts, func(p batch.Progress) {
			s.jobs.setProgress(job.ID, p)
			s.hub.Broadcast(ProgressMessage{
				Type:     "progress",
				JobID:    job.ID,
				Entry:    p.Entry,
				Done:     p.Done,
				Total:    p.Total,
				Progress: percent(p.Done, p.Total),
			})
		})

		switch {
		case err == nil:
			s.jobs.finish(job.ID, JobStatusCompleted, summary, "")
			logging.JobEvent(job.ID, string(JobStatusCompleted), "scores", len(summary.Scores))
			s.hub.Broadcast(ProgressMessage{
				Type:     "complete",
				JobID:    job.ID,
				Progress: 100,
				Message:  "batch finished",
				Data:     map[string]any{"scores": len(summary.Scores), "copied": summary.Copied},
			})
		case job.ctx.Err() != nil:
			s.jobs.finish(job.ID, JobStatusCancelled, nil, "job cancelled")
			logging.JobEvent(job.ID, string(JobStatusCancelled))
			s.hub.Broadcast(ProgressMessage{Type: "cancelled", JobID: job.ID, Message: "job cancelled"})
		default:
			s.jobs.finish(job.ID, JobStatusFailed, nil, err.Error())
			logging.JobEvent(job.ID, string(JobStatusFailed), "error", err)
			s.hub.Broadcast(ProgressMessage{Type: "error", JobID: job.ID, Message: err.Error()})
		}
	}()
}

// handleJobs handles GET /jobs (list) and POST /jobs (create).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		respondList(w, jobs, len(jobs))
	case http.MethodPost:
		s.createJob(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", scerrors.NewParse("JSON", "request body", err.Error()).Error())
		return
	}

	plan, err := s.planJob(req)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	job := s.jobs.Create(s.ctx, req)
	logging.JobEvent(job.ID, string(JobStatusPending), "input", req.Input, "shift", plan.opts.Shift.String())
	s.runJob(job, plan)

	respond(w, http.StatusAccepted, job)
}

// handleJobByID handles GET /jobs/{id} (status) and DELETE /jobs/{id} (cancel).
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Job ID must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.jobs.Get(id)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		respond(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.jobs.Cancel(id); err != nil {
			if errors.Is(err, ErrJobFinished) {
				respondError(w, http.StatusConflict, "JOB_FINISHED", err.Error())
				return
			}
			respondErr(w, r, err)
			return
		}
		logging.JobEvent(id, string(JobStatusCancelled), "by", "request")
		job, _ := s.jobs.Get(id)
		respond(w, http.StatusOK, job)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}
