package job

import (
	"context"
	"io"
	"log/slog"

	"scribe/internal/observability"
)

// Creator starts a new job on the remote service. Implemented by the
// transport client.
type Creator interface {
	CreateJob(ctx context.Context, audio io.Reader, contentType string) (*CreateResponse, error)
}

// Submitter starts transcription jobs. It holds no job state: callers
// register the returned id with the Poller themselves.
type Submitter struct {
	creator Creator
	metrics *observability.Metrics
}

// NewSubmitter creates a new job submitter.
func NewSubmitter(creator Creator, metrics *observability.Metrics) *Submitter {
	return &Submitter{
		creator: creator,
		metrics: metrics,
	}
}

// Submit uploads an audio payload and returns the server-assigned job
// handle. The payload is passed through untouched; contentType may be empty
// for raw binary bodies.
func (s *Submitter) Submit(ctx context.Context, audio io.Reader, contentType string) (*CreateResponse, error) {
	resp, err := s.creator.CreateJob(ctx, audio, contentType)
	if err != nil {
		slog.Error("Job submission failed", "error", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted(ctx)
	}

	slog.Info("Job submitted", "jobId", resp.JobID, "status", resp.Status)
	return resp, nil
}
