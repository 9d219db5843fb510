// Package engine wires the client components into one explicitly
// constructed object with a documented init/teardown lifecycle. One engine
// per process is the expected usage, but nothing here is global.
package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"scribe/internal/config"
	"scribe/internal/identity"
	"scribe/internal/job"
	"scribe/internal/observability"
	"scribe/internal/transport"
	"scribe/internal/version"
)

// Engine owns the version gate, transport client, identity, submitter, and
// poller for one transcription server.
type Engine struct {
	cfg            *config.ClientConfig
	metrics        *observability.Metrics
	metricsHandler http.Handler

	Gate      *version.Gate
	Client    *transport.Client
	Identity  identity.Identity
	Submitter *job.Submitter
	Poller    *job.Poller
}

// New constructs and starts an engine: metrics (when configured), version
// gate with its probe loop, transport client, and resolved identity.
// The poller starts idle; it activates on the first Submit or Watch.
func New(ctx context.Context, cfg *config.ClientConfig, onComplete job.CompletionFunc) (*Engine, error) {
	var metrics *observability.Metrics
	var metricsHandler http.Handler
	if cfg.MetricsPort != "" {
		var err error
		metrics, metricsHandler, err = observability.NewMetrics(ctx)
		if err != nil {
			return nil, err
		}
	}

	// A typed nil *Metrics must not become a non-nil interface.
	var recorder version.MismatchRecorder
	if metrics != nil {
		recorder = metrics
	}
	gate := version.NewGate(config.ClientVersion, recorder)

	client, err := transport.NewClient(transport.Config{
		ServerURL:     cfg.ServerURL,
		ClientVersion: config.ClientVersion,
		Timeout:       cfg.RequestTimeout,
		Gate:          gate,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}

	ident := identity.Resolve(ctx, client, cfg.IdentityPath)
	client.SetIdentity(ident.ID)

	gate.Start(ctx, client, cfg.VersionInterval)

	poller := job.NewPoller(client, job.PollerConfig{
		Interval:   cfg.PollInterval,
		OnComplete: onComplete,
		Metrics:    metrics,
	})

	slog.Info("Client engine ready", "server", cfg.ServerURL, "clientVersion", config.ClientVersion)

	return &Engine{
		cfg:            cfg,
		metrics:        metrics,
		metricsHandler: metricsHandler,
		Gate:           gate,
		Client:         client,
		Identity:       ident,
		Submitter:      job.NewSubmitter(client, metrics),
		Poller:         poller,
	}, nil
}

// Submit uploads an audio payload and registers the resulting job with the
// poller, activating the polling cycle if it was idle.
func (e *Engine) Submit(ctx context.Context, audio io.Reader, contentType string) (*job.CreateResponse, error) {
	resp, err := e.Submitter.Submit(ctx, audio, contentType)
	if err != nil {
		return nil, err
	}
	if err := e.Poller.Track(resp.JobID); err != nil {
		return nil, err
	}
	return resp, nil
}

// MetricsHandler returns the Prometheus scrape handler, or nil when
// metrics are not configured.
func (e *Engine) MetricsHandler() http.Handler {
	return e.metricsHandler
}

// Close tears the engine down: the poller and the version probe loop stop,
// and no further network activity originates from the engine.
func (e *Engine) Close() {
	e.Poller.Close()
	e.Gate.Stop()
}
