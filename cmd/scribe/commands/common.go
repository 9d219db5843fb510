package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"scribe/internal/config"
	"scribe/internal/engine"
	"scribe/internal/job"
)

// newEngine loads the environment file (when present), resolves the client
// configuration, and starts an engine. Callers own the returned engine's
// Close.
func newEngine(ctx context.Context, envFile string, onComplete job.CompletionFunc) (*engine.Engine, *config.ClientConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, nil, err
		}
	}

	cfg := config.LoadClientConfig()
	eng, err := engine.New(ctx, cfg, onComplete)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

// serveMetrics starts a Prometheus scrape endpoint and shuts it down when
// ctx is cancelled. A nil handler or empty port is a no-op.
func serveMetrics(ctx context.Context, port string, handler http.Handler) {
	if port == "" || handler == nil {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting metrics server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// setEnvIfEmpty lets a command line flag act as a default for an
// environment-driven setting without overriding an explicit value.
func setEnvIfEmpty(key, value string) {
	if os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}

// contentTypeFor maps an audio filename to its MIME type. Unknown
// extensions fall back to application/octet-stream; the server sniffs the
// payload itself either way.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
