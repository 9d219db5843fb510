//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/engine"
	"scribe/internal/job"
	"scribe/internal/testutil"
)

// fakeBackend is an in-process stand-in for the transcription server. Jobs
// advance one lifecycle step per status fetch: pending, then processing,
// then completed with a canned transcript.
type fakeBackend struct {
	mu      sync.Mutex
	version string
	seq     int
	jobs    map[string]*backendJob
	hits    map[string]int
}

type backendJob struct {
	id      string
	status  job.Status
	size    int
	created time.Time
}

func newFakeBackend(version string) *fakeBackend {
	return &fakeBackend{
		version: version,
		jobs:    make(map[string]*backendJob),
		hits:    make(map[string]int),
	}
}

func (b *fakeBackend) setVersion(v string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version = v
}

func (b *fakeBackend) hitCount(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[endpoint]
}

func (b *fakeBackend) addJob(id string, status job.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[id] = &backendJob{id: id, status: status, created: time.Now().UTC()}
}

func (b *fakeBackend) render(j *backendJob) map[string]any {
	out := map[string]any{
		"id":         j.id,
		"status":     j.status,
		"created_at": j.created.Format(time.RFC3339),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	switch j.status {
	case job.StatusPending:
		out["progress"] = 0
	case job.StatusProcessing:
		out["progress"] = 50
	case job.StatusCompleted:
		out["progress"] = 100
		out["completed_at"] = time.Now().UTC().Format(time.RFC3339)
		out["result"] = fmt.Sprintf("transcript of %d bytes", j.size)
		out["annotations"] = map[string]any{
			"tags":       []string{"meeting"},
			"sentiment":  "neutral",
			"confidence": 0.9,
		}
	case job.StatusFailed:
		out["progress"] = 100
		out["completed_at"] = time.Now().UTC().Format(time.RFC3339)
		out["error"] = "unsupported codec"
	}
	return out
}

// advance moves a job one lifecycle step. Called on each status fetch so
// tests see the full pending/processing/completed progression.
func (b *fakeBackend) advance(j *backendJob) {
	switch j.status {
	case job.StatusPending:
		j.status = job.StatusProcessing
	case job.StatusProcessing:
		j.status = job.StatusCompleted
	}
}

func (b *fakeBackend) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits["/version"]++
		v := b.version
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"version": v})
	})

	mux.HandleFunc("GET /identity", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits["/identity"]++
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"user_id": "e2e-user"})
	})

	checkVersion := func(w http.ResponseWriter, r *http.Request) bool {
		b.mu.Lock()
		v := b.version
		b.mu.Unlock()
		if got := r.Header.Get("X-Client-Version"); got != v {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":           "Version mismatch",
				"message":         fmt.Sprintf("client version %s is not supported", got),
				"backend_version": v,
			})
			return false
		}
		return true
	}

	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits["/transcribe"]++
		b.mu.Unlock()
		if !checkVersion(w, r) {
			return
		}
		var size int
		buf := make([]byte, 1024)
		for {
			n, err := r.Body.Read(buf)
			size += n
			if err != nil {
				break
			}
		}
		b.mu.Lock()
		b.seq++
		id := fmt.Sprintf("job-%d", b.seq)
		b.jobs[id] = &backendJob{id: id, status: job.StatusPending, size: size, created: time.Now().UTC()}
		v := b.version
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id":  id,
			"status":  "pending",
			"version": v,
		})
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits["/jobs/{id}"]++
		b.mu.Unlock()
		if !checkVersion(w, r) {
			return
		}
		b.mu.Lock()
		j, ok := b.jobs[r.PathValue("id")]
		if !ok {
			b.mu.Unlock()
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
			return
		}
		out := b.render(j)
		b.advance(j)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits["/jobs"]++
		b.mu.Unlock()
		if !checkVersion(w, r) {
			return
		}
		b.mu.Lock()
		jobs := make([]map[string]any, 0, len(b.jobs))
		for _, j := range b.jobs {
			jobs = append(jobs, b.render(j))
		}
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	})

	return mux
}

func startEngine(t *testing.T, backend *fakeBackend, onComplete job.CompletionFunc) *engine.Engine {
	t.Helper()

	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	cfg := &config.ClientConfig{
		ServerURL:       srv.URL,
		RequestTimeout:  5 * time.Second,
		PollInterval:    20 * time.Millisecond,
		VersionInterval: time.Hour,
		IdentityPath:    filepath.Join(t.TempDir(), "identity"),
	}

	eng, err := engine.New(context.Background(), cfg, onComplete)
	if err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func TestClient_SubmitPollComplete(t *testing.T) {
	backend := newFakeBackend(config.ClientVersion)

	type completion struct{ id, result string }
	done := make(chan completion, 1)
	eng := startEngine(t, backend, func(jobID, result string) {
		done <- completion{jobID, result}
	})

	if eng.Identity.ID != "e2e-user" {
		t.Fatalf("Expected server-issued identity, got %q", eng.Identity.ID)
	}

	payload := "RIFF pretend this is audio"
	resp, err := eng.Submit(context.Background(), strings.NewReader(payload), "audio/wav")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case got := <-done:
		if got.id != resp.JobID {
			t.Errorf("Completion for %q, want %q", got.id, resp.JobID)
		}
		want := fmt.Sprintf("transcript of %d bytes", len(payload))
		if got.result != want {
			t.Errorf("Result %q, want %q", got.result, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Completion callback never fired")
	}

	// The poller goes idle once nothing is pending or processing.
	testutil.MustWaitFor(t, func() bool { return !eng.Poller.Active() })

	rec, ok := eng.Poller.Job(resp.JobID)
	if !ok {
		t.Fatal("Completed job evicted from local state")
	}
	if rec.Status != job.StatusCompleted {
		t.Errorf("Status %q, want completed", rec.Status)
	}
	if rec.Annotations == nil || rec.Annotations.Sentiment != job.SentimentNeutral {
		t.Errorf("Annotations not carried through: %+v", rec.Annotations)
	}

	if n := eng.Poller.ClearCompleted(); n != 1 {
		t.Errorf("ClearCompleted removed %d jobs, want 1", n)
	}
	if _, ok := eng.Poller.Job(resp.JobID); ok {
		t.Error("Job still present after ClearCompleted")
	}
}

func TestClient_VersionMismatchBlocksCalls(t *testing.T) {
	backend := newFakeBackend(config.ClientVersion)
	eng := startEngine(t, backend, nil)

	var mu sync.Mutex
	var notified []string
	eng.Gate.Subscribe(func(remote, local string) {
		mu.Lock()
		notified = append(notified, remote)
		mu.Unlock()
	})

	// The server upgrades underneath the client.
	backend.setVersion("9.9.9")

	_, err := eng.Submit(context.Background(), strings.NewReader("x"), "audio/wav")
	if err == nil {
		t.Fatal("Expected a version mismatch error")
	}
	if !eng.Gate.Mismatch() {
		t.Fatal("Gate did not latch the mismatch")
	}

	mu.Lock()
	if len(notified) != 1 || notified[0] != "9.9.9" {
		t.Errorf("Subscriber notifications %v, want [9.9.9]", notified)
	}
	mu.Unlock()

	// Subsequent gated calls are refused locally.
	before := backend.hitCount("/transcribe")
	if _, err := eng.Submit(context.Background(), strings.NewReader("x"), "audio/wav"); err == nil {
		t.Fatal("Expected the gate to refuse the call")
	}
	if after := backend.hitCount("/transcribe"); after != before {
		t.Errorf("Gated call reached the server (%d -> %d hits)", before, after)
	}

	// Exempt endpoints still work, and a rollback clears the gate.
	backend.setVersion(config.ClientVersion)
	remote, err := eng.Client.ProbeVersion(context.Background())
	if err != nil {
		t.Fatalf("Version probe failed: %v", err)
	}
	eng.Gate.Observe(remote)
	if eng.Gate.Mismatch() {
		t.Fatal("Gate still latched after versions re-aligned")
	}

	if _, err := eng.Submit(context.Background(), strings.NewReader("x"), "audio/wav"); err != nil {
		t.Fatalf("Submit after recovery failed: %v", err)
	}
}

func TestClient_ResumeAdoptsServerJobs(t *testing.T) {
	backend := newFakeBackend(config.ClientVersion)
	backend.addJob("old-1", job.StatusProcessing)
	backend.addJob("old-2", job.StatusFailed)

	done := make(chan string, 2)
	eng := startEngine(t, backend, func(jobID, result string) {
		done <- jobID
	})

	if err := eng.Poller.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool {
		rec, ok := eng.Poller.Job("old-1")
		return ok && rec.Status == job.StatusCompleted
	})

	select {
	case id := <-done:
		if id != "old-1" {
			t.Errorf("Completion for %q, want old-1", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Adopted job never completed")
	}

	// old-2 was already failed at adoption: tracked, but no callback owed.
	rec, ok := eng.Poller.Job("old-2")
	if !ok {
		t.Fatal("Failed job not adopted")
	}
	if rec.Status != job.StatusFailed {
		t.Errorf("Status %q, want failed", rec.Status)
	}
	select {
	case id := <-done:
		t.Errorf("Unexpected completion callback for %q", id)
	default:
	}
}
