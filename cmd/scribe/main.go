// scribe is the command line client for the transcription service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"scribe/cmd/scribe/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "Path to an environment file",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "scribe",
		Usage: "Submit audio to the transcription service and track jobs",
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Upload an audio file for transcription",
				ArgsUsage: "<audio-file>",
				Flags: []cli.Flag{
					envFlag,
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Block until the job reaches a terminal state",
					},
					&cli.StringFlag{
						Name:  "content-type",
						Usage: "Override the detected audio content type",
					},
				},
				Action: commands.SubmitAction,
			},
			{
				Name:      "status",
				Usage:     "Show one job",
				ArgsUsage: "<job-id>",
				Flags:     []cli.Flag{envFlag},
				Action:    commands.StatusAction,
			},
			{
				Name:   "list",
				Usage:  "List all jobs known to the server",
				Flags:  []cli.Flag{envFlag},
				Action: commands.ListAction,
			},
			{
				Name:  "watch",
				Usage: "Adopt the server's jobs and poll until interrupted",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:  "metrics-port",
						Usage: "Serve Prometheus metrics on this port",
					},
				},
				Action: commands.WatchAction,
			},
			{
				Name:   "version",
				Usage:  "Show client and server versions",
				Flags:  []cli.Flag{envFlag},
				Action: commands.VersionAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
