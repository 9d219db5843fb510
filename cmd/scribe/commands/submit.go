package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"scribe/internal/apperrors"
	"scribe/internal/engine"
	"scribe/internal/job"
	"scribe/pkg/backoff"
)

const submitAttempts = 3

// SubmitAction uploads one audio file and prints the assigned job id.
// With --wait it keeps polling until the job finishes.
func SubmitAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: scribe submit <audio-file>")
	}

	contentType := cmd.String("content-type")
	if contentType == "" {
		contentType = contentTypeFor(path)
	}

	done := make(chan string, 1)
	eng, _, err := newEngine(ctx, cmd.String("env"), func(jobID, result string) {
		done <- result
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	resp, err := submitWithRetry(ctx, eng, path, contentType)
	if err != nil {
		return err
	}

	fmt.Printf("job %s submitted (status: %s)\n", resp.JobID, resp.Status)

	if !cmd.Bool("wait") {
		return nil
	}

	select {
	case result := <-done:
		fmt.Println(result)
		return nil
	case <-waitForFailure(ctx, eng, resp.JobID):
		rec, _ := eng.Poller.Job(resp.JobID)
		return fmt.Errorf("job %s failed: %s", resp.JobID, rec.Error)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submitWithRetry retries the upload on transport and server failures.
// Version mismatches and client-side errors are returned immediately.
func submitWithRetry(ctx context.Context, eng submitEngine, path, contentType string) (*job.CreateResponse, error) {
	var lastErr error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff.ExponentialJitter(attempt-1, nil)
			slog.Warn("Retrying submission", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		// Reopen per attempt: the previous one may have consumed the reader.
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		resp, err := eng.Submit(ctx, f, contentType)
		f.Close()
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, apperrors.ErrTransport) && !errors.Is(err, apperrors.ErrServer) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

type submitEngine interface {
	Submit(ctx context.Context, audio io.Reader, contentType string) (*job.CreateResponse, error)
}

// waitForFailure yields once the tracked job lands in the failed state.
func waitForFailure(ctx context.Context, eng *engine.Engine, jobID string) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rec, ok := eng.Poller.Job(jobID); ok && rec.Status == job.StatusFailed {
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}
