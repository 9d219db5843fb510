package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/config"
	"scribe/internal/job"
	"scribe/internal/testutil"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": config.ClientVersion})
	})
	mux.HandleFunc("GET /identity", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"user_id": "user-from-server"})
	})
	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"job_id":  "job-1",
			"status":  "pending",
			"version": config.ClientVersion,
		})
	})
	mux.HandleFunc("GET /jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "job-1",
			"status":     "completed",
			"progress":   100,
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"updated_at": time.Now().UTC().Format(time.RFC3339),
			"result":     "hello world",
		})
	})
	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"jobs": []any{}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, serverURL string) *config.ClientConfig {
	t.Helper()
	return &config.ClientConfig{
		ServerURL:       serverURL,
		RequestTimeout:  5 * time.Second,
		PollInterval:    10 * time.Millisecond,
		VersionInterval: time.Hour,
		IdentityPath:    filepath.Join(t.TempDir(), "identity"),
	}
}

func TestNewResolvesIdentity(t *testing.T) {
	srv := newFakeServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := New(ctx, testConfig(t, srv.URL), nil)
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, "user-from-server", eng.Identity.ID)
	assert.False(t, eng.Gate.Mismatch())
	assert.Nil(t, eng.MetricsHandler())
}

func TestSubmitTracksAndCompletes(t *testing.T) {
	srv := newFakeServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var completed job.CompletionFunc
	done := make(chan [2]string, 1)
	completed = func(jobID, result string) {
		done <- [2]string{jobID, result}
	}

	eng, err := New(ctx, testConfig(t, srv.URL), completed)
	require.NoError(t, err)
	defer eng.Close()

	resp, err := eng.Submit(ctx, strings.NewReader("fake audio"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)

	select {
	case got := <-done:
		assert.Equal(t, "job-1", got[0])
		assert.Equal(t, "hello world", got[1])
	case <-time.After(5 * time.Second):
		t.Fatal("completion callback never fired")
	}

	testutil.MustWaitFor(t, func() bool { return !eng.Poller.Active() })

	rec, ok := eng.Poller.Job("job-1")
	require.True(t, ok)
	assert.Equal(t, job.StatusCompleted, rec.Status)
}

func TestCloseStopsEngine(t *testing.T) {
	srv := newFakeServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := New(ctx, testConfig(t, srv.URL), nil)
	require.NoError(t, err)

	eng.Close()

	_, err = eng.Submit(ctx, strings.NewReader("x"), "audio/wav")
	assert.ErrorIs(t, err, job.ErrClosed)
}

func TestNewWithMetrics(t *testing.T) {
	srv := newFakeServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t, srv.URL)
	cfg.MetricsPort = "0"

	eng, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer eng.Close()

	require.NotNil(t, eng.MetricsHandler())

	rr := httptest.NewRecorder()
	eng.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
