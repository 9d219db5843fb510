// Package job defines the transcription job model and the client-side
// poller that tracks submitted jobs to completion.
package job

import (
	"sort"
	"time"
)

// Status is the server-reported lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether the job still needs polling.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Sentiment classifies the overall tone of a transcription.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Annotations holds optional enrichment attached by the server once a
// transcription completes.
type Annotations struct {
	Tags       []string  `json:"tags,omitempty"`
	Sentiment  Sentiment `json:"sentiment,omitempty"`
	Confidence float64   `json:"confidence,omitempty"` // 0..1
}

// Job is one transcription job as reported by the server. The server owns
// every field; local records are replaced wholesale on reconciliation, never
// merged field by field.
type Job struct {
	ID          string       `json:"id"`
	Status      Status       `json:"status"`
	Progress    int          `json:"progress"` // 0..100, server-enforced monotonic
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"` // set iff terminal
	Result      string       `json:"result,omitempty"`       // set iff completed
	Error       string       `json:"error,omitempty"`        // set iff failed
	Annotations *Annotations `json:"annotations,omitempty"`
}

// CreateResponse is the server's response to a job submission.
type CreateResponse struct {
	JobID   string `json:"job_id"`
	Status  Status `json:"status"`
	Version string `json:"version,omitempty"` // server version, piggybacked
}

// BackendVersion returns the piggybacked server version for passive
// version learning at the transport layer.
func (r *CreateResponse) BackendVersion() string {
	return r.Version
}

// ListResponse is the server's response to a full job listing.
type ListResponse struct {
	Jobs []Job `json:"jobs"`
}

// statusRank orders statuses for presentation: jobs needing attention first.
func statusRank(s Status) int {
	switch s {
	case StatusProcessing:
		return 0
	case StatusPending:
		return 1
	case StatusCompleted:
		return 2
	case StatusFailed:
		return 3
	default:
		return 4
	}
}

// SortForDisplay orders jobs Processing < Pending < Completed < Failed,
// preserving the original order within each status. This is a read-time
// projection for consumers; the stored set is unordered.
func SortForDisplay(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return statusRank(jobs[i].Status) < statusRank(jobs[j].Status)
	})
}
