package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// WatchAction adopts the server's current job set and keeps polling,
// printing each transcription as it completes, until interrupted.
func WatchAction(ctx context.Context, cmd *cli.Command) error {
	if port := cmd.String("metrics-port"); port != "" {
		// The engine only builds its metrics pipeline when a port is
		// configured, so the flag has to land before construction.
		setEnvIfEmpty("SCRIBE_METRICS_PORT", port)
	}

	eng, cfg, err := newEngine(ctx, cmd.String("env"), func(jobID, result string) {
		fmt.Printf("%s: %s\n", jobID, result)
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	serveMetrics(ctx, cfg.MetricsPort, eng.MetricsHandler())

	unsubscribe := eng.Gate.Subscribe(func(remote, local string) {
		slog.Warn("Server version incompatible, polling suspended for gated calls",
			"serverVersion", remote, "clientVersion", local)
	})
	defer unsubscribe()

	if err := eng.Poller.Resume(); err != nil {
		return err
	}
	slog.Info("Watching jobs", "server", cfg.ServerURL, "interval", cfg.PollInterval)

	<-ctx.Done()
	return nil
}
