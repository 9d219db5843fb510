// Package transport is the single entry point for all calls to the
// transcription server. Every request flows through Client.do, which
// enforces the version gate, attaches identity headers, and folds
// version observations back into the gate.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"scribe/internal/apperrors"
	"scribe/internal/job"
	"scribe/internal/observability"
	"scribe/internal/version"
)

// Endpoint paths.
const (
	endpointVersion    = "/version"
	endpointIdentity   = "/identity"
	endpointTranscribe = "/transcribe"
	endpointJobs       = "/jobs"
)

// Headers attached to outgoing requests.
const (
	headerClientVersion = "X-Client-Version"
	headerClientID      = "X-Client-ID"
)

// gateExempt lists endpoints that must remain reachable during a version
// mismatch: the probe (so the client can observe recovery) and the identity
// bootstrap (needed before anything else).
var gateExempt = map[string]bool{
	endpointVersion:  true,
	endpointIdentity: true,
}

// backendVersioner is implemented by response types that piggyback the
// server version, enabling passive version learning.
type backendVersioner interface {
	BackendVersion() string
}

// Config holds configuration for the client.
type Config struct {
	ServerURL     string                 // base URL of the transcription server
	ClientVersion string                 // version reported in headers
	Timeout       time.Duration          // per-request timeout (default 30s)
	Gate          *version.Gate          // required
	Metrics       *observability.Metrics // optional
}

// Client makes HTTP calls against the transcription server.
type Client struct {
	baseURL       string
	clientVersion string
	gate          *version.Gate
	metrics       *observability.Metrics
	httpClient    *http.Client
	logger        *slog.Logger

	identity atomic.Value // string, empty until bootstrap completes
}

// NewClient creates a client for the given server.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Gate == nil {
		return nil, fmt.Errorf("version gate is required")
	}
	parsed, err := url.Parse(cfg.ServerURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", cfg.ServerURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.ServerURL, "/"),
		clientVersion: cfg.ClientVersion,
		gate:          cfg.Gate,
		metrics:       cfg.Metrics,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.With("component", "transport"),
	}, nil
}

// SetIdentity sets the client identity attached to gated calls. The
// identity is resolved after the client exists because resolving it may
// itself require a call through this client.
func (c *Client) SetIdentity(id string) {
	c.identity.Store(id)
}

// mismatchBody is the 409 rejection payload sent by an incompatible server.
type mismatchBody struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	BackendVersion string `json:"backend_version"`
}

// do performs one request and decodes the JSON response into out.
// contentType is set only when non-empty, so binary payloads pass through
// untouched. Nothing escapes as a panic; every failure path returns a
// classified error.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	if c.gate.Mismatch() && !gateExempt[endpoint] {
		if c.metrics != nil {
			c.metrics.RecordGateBlocked(ctx, endpoint)
		}
		state := c.gate.State()
		return apperrors.VersionMismatch(state.Remote, state.Local)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return apperrors.Transport(endpoint, err)
	}

	req.Header.Set(headerClientVersion, c.clientVersion)
	if endpoint != endpointIdentity {
		if id, _ := c.identity.Load().(string); id != "" {
			req.Header.Set(headerClientID, id)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordRequest(ctx, method, endpoint, 0, start, true)
		return apperrors.Transport(endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordRequest(ctx, method, endpoint, resp.StatusCode, start, true)
		return apperrors.Transport(endpoint, err)
	}

	failed := resp.StatusCode < 200 || resp.StatusCode >= 300
	c.recordRequest(ctx, method, endpoint, resp.StatusCode, start, failed)

	if resp.StatusCode == http.StatusConflict {
		var mb mismatchBody
		if jsonErr := json.Unmarshal(respBody, &mb); jsonErr == nil && mb.Error == "Version mismatch" {
			// The server's declaration is authoritative; record it even if
			// the probe loop has not observed the new version yet.
			c.gate.Observe(mb.BackendVersion)
			return apperrors.VersionMismatch(mb.BackendVersion, c.clientVersion)
		}
	}

	if failed {
		return apperrors.FromStatus(endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperrors.Decode(endpoint, err)
		}
		if v, ok := out.(backendVersioner); ok {
			c.gate.Observe(v.BackendVersion())
		}
	}

	return nil
}

func (c *Client) recordRequest(ctx context.Context, method, endpoint string, status int, start time.Time, failed bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRequest(ctx, method, endpoint, status, time.Since(start).Seconds(), failed)
}

// versionResponse is the version probe payload.
type versionResponse struct {
	Version string `json:"version"`
}

func (r *versionResponse) BackendVersion() string {
	return r.Version
}

// identityResponse is the identity bootstrap payload.
type identityResponse struct {
	UserID string `json:"user_id"`
}

// ProbeVersion asks the server for its version. Exempt from the gate so a
// mismatched client can observe recovery.
func (c *Client) ProbeVersion(ctx context.Context) (string, error) {
	var out versionResponse
	if err := c.do(ctx, http.MethodGet, endpointVersion, nil, "", &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// BootstrapIdentity asks the server for a client identity. Exempt from the
// gate; the identity header is omitted on this call.
func (c *Client) BootstrapIdentity(ctx context.Context) (string, error) {
	var out identityResponse
	if err := c.do(ctx, http.MethodGet, endpointIdentity, nil, "", &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

// CreateJob submits an audio payload for transcription. The payload is sent
// as-is; pass contentType only for structured bodies such as multipart.
func (c *Client) CreateJob(ctx context.Context, audio io.Reader, contentType string) (*job.CreateResponse, error) {
	var out job.CreateResponse
	if err := c.do(ctx, http.MethodPost, endpointTranscribe, audio, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob fetches the current state of one job.
func (c *Client) GetJob(ctx context.Context, id string) (*job.Job, error) {
	var out job.Job
	if err := c.do(ctx, http.MethodGet, endpointJobs+"/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs fetches all jobs known to the server for this client.
func (c *Client) ListJobs(ctx context.Context) ([]job.Job, error) {
	var out job.ListResponse
	if err := c.do(ctx, http.MethodGet, endpointJobs, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}
