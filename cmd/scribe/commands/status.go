package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// StatusAction fetches one job from the server and prints it.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: scribe status <job-id>")
	}

	eng, _, err := newEngine(ctx, cmd.String("env"), nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	rec, err := eng.Client.GetJob(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("id:       %s\n", rec.ID)
	fmt.Printf("status:   %s\n", rec.Status)
	fmt.Printf("progress: %d%%\n", rec.Progress)
	if rec.Result != "" {
		fmt.Printf("result:   %s\n", rec.Result)
	}
	if rec.Error != "" {
		fmt.Printf("error:    %s\n", rec.Error)
	}
	if rec.Annotations != nil {
		fmt.Printf("sentiment: %s (%.2f)\n", rec.Annotations.Sentiment, rec.Annotations.Confidence)
		if len(rec.Annotations.Tags) > 0 {
			fmt.Printf("tags:      %v\n", rec.Annotations.Tags)
		}
	}
	return nil
}
