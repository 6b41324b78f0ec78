package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/internal/archive"
	"github.com/FocuswithJustin/ScoreShift/internal/batch"
)

// writeJobBundle writes a two-score bundle into the jobs directory.
func writeJobBundle(t *testing.T, s *Server, name string) {
	t.Helper()
	w, err := archive.NewWriter(filepath.Join(s.cfg.JobsDir, name))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []struct{ name, xml string }{
		{"lesson/a-grand-staff.musicxml", score(0, "C")},
		{"lesson/b-grand-staff.musicxml", score(1, "G")},
	} {
		if err := w.Add(e.name, []byte(e.xml)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func postJob(t *testing.T, h http.Handler, body string) (int, Job, string) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/jobs", strings.NewReader(body))
	var resp struct {
		Data  Job       `json:"data"`
		Error *APIError `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	code := ""
	if resp.Error != nil {
		code = resp.Error.Code
	}
	return w.Code, resp.Data, code
}

// waitJob polls until the job reaches a terminal status.
func waitJob(t *testing.T, h http.Handler, id string) Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := do(t, h, http.MethodGet, "/jobs/"+id, nil)
		var resp struct {
			Data Job `json:"data"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Data.Status.terminal() {
			return resp.Data
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	writeJobBundle(t, s, "lesson.tar.gz")
	h := s.Handler()

	status, job, _ := postJob(t, h, `{"input":"lesson.tar.gz","shift":"up 2","drop_stems":true}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d", status)
	}
	if job.ID == "" || job.Status != JobStatusPending {
		t.Fatalf("job = %+v", job)
	}

	done := waitJob(t, h, job.ID)
	if done.Status != JobStatusCompleted {
		t.Fatalf("job ended %s: %s", done.Status, done.Error)
	}
	if done.Progress != 100 || done.Done != 2 || done.Total != 2 {
		t.Errorf("progress = %d (%d/%d)", done.Progress, done.Done, done.Total)
	}
	if done.Summary == nil || len(done.Summary.Scores) != 2 || done.CompletedAt == "" {
		t.Errorf("summary = %+v", done.Summary)
	}

	out := filepath.Join(s.cfg.JobsDir, "lesson-transposed.tar.gz")
	data, err := archive.ReadFile(out, "lesson/b-grand-staff.musicxml")
	if err != nil {
		t.Fatalf("output bundle: %v", err)
	}
	if !bytes.Contains(data, []byte("<step>A</step>")) || bytes.Contains(data, []byte("<stem>")) {
		t.Errorf("transposed entry:\n%s", data)
	}

	w := do(t, h, http.MethodGet, "/jobs", nil)
	if resp := decode(t, w); resp.Meta == nil || resp.Meta.Total != 1 {
		t.Errorf("list = %+v", resp)
	}

	// Cancelling a finished job conflicts.
	w = do(t, h, http.MethodDelete, "/jobs/"+job.ID, nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "JOB_FINISHED" {
		t.Errorf("DELETE finished job status = %d", w.Code)
	}
}

func TestJobFailure(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	status, job, _ := postJob(t, h, `{"input":"missing.tar.xz","shift":"+1"}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d", status)
	}
	done := waitJob(t, h, job.ID)
	if done.Status != JobStatusFailed || done.Error == "" {
		t.Errorf("job = %+v", done)
	}
}

func TestCreateJobValidation(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad json", `{`, http.StatusBadRequest, "INVALID_JSON"},
		{"unknown field", `{"input":"a.tar.gz","shift":"+1","extra":1}`, http.StatusBadRequest, "INVALID_JSON"},
		{"missing input", `{"shift":"+1"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing shift", `{"input":"a.tar.gz"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad shift", `{"input":"a.tar.gz","shift":"sideways"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"not a bundle", `{"input":"a.zip","shift":"+1"}`, http.StatusBadRequest, "UNSUPPORTED"},
		{"traversal", `{"input":"../a.tar.gz","shift":"+1"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"output is input", `{"input":"a.tar.gz","output":"a.tar.gz","shift":"+1"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad instrument", `{"input":"a.tar.gz","shift":"+1","instrument":"kazoo"}`, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, code := postJob(t, h, tt.body)
			if status != tt.status || code != tt.code {
				t.Errorf("got %d %s, want %d %s", status, code, tt.status, tt.code)
			}
		})
	}
	if n := len(s.jobs.List()); n != 0 {
		t.Errorf("rejected requests created %d jobs", n)
	}
}

func TestHandleJobByID(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	if w := do(t, h, http.MethodGet, "/jobs/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/jobs/6f1c1f3e-8a55-4b9c-9c3e-1d2f3a4b5c6d", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", w.Code)
	}

	job := s.jobs.Create(context.Background(), JobRequest{Input: "a.tar.gz", Shift: "+1"})
	w := do(t, h, http.MethodDelete, "/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	got, _ := s.jobs.Get(job.ID)
	if got.Status != JobStatusCancelled || got.ctx.Err() == nil {
		t.Errorf("job after cancel = %+v", got)
	}

	if w := do(t, h, http.MethodPut, "/jobs/"+job.ID, nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d", w.Code)
	}
}

func TestJobStore(t *testing.T) {
	store := NewJobStore()
	clock := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return clock }

	a := store.Create(context.Background(), JobRequest{Input: "a.tar.gz"})
	clock = clock.Add(time.Second)
	b := store.Create(context.Background(), JobRequest{Input: "b.tar.gz"})

	if list := store.List(); len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("List order wrong: %+v", list)
	}

	store.setRunning(a.ID)
	store.setProgress(a.ID, batch.Progress{Done: 1, Total: 4})
	if got, _ := store.Get(a.ID); got.Status != JobStatusRunning || got.Progress != 25 {
		t.Errorf("running job = %+v", got)
	}

	// A cancelled job ignores a late completion.
	if err := store.Cancel(a.ID); err != nil {
		t.Fatal(err)
	}
	store.finish(a.ID, JobStatusCompleted, &batch.Summary{}, "")
	if got, _ := store.Get(a.ID); got.Status != JobStatusCancelled || got.Summary != nil {
		t.Errorf("cancelled job = %+v", got)
	}
	if err := store.Cancel(a.ID); !errors.Is(err, ErrJobFinished) {
		t.Errorf("second Cancel error = %v", err)
	}

	store.CancelAll()
	if got, _ := store.Get(b.ID); got.Status != JobStatusCancelled {
		t.Errorf("CancelAll left %s", got.Status)
	}

	if err := store.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(a.ID); !errors.Is(err, scerrors.ErrNotFound) {
		t.Errorf("Get after Delete error = %v", err)
	}
	if err := store.Delete(a.ID); !errors.Is(err, scerrors.ErrNotFound) {
		t.Errorf("second Delete error = %v", err)
	}
}

func TestPercent(t *testing.T) {
	for _, tt := range []struct{ done, total, want int }{
		{0, 0, 0}, {1, 3, 33}, {3, 3, 100},
	} {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}
