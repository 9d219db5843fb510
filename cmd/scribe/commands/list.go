package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"scribe/internal/job"
)

// ListAction prints every job the server knows about, active jobs first.
func ListAction(ctx context.Context, cmd *cli.Command) error {
	eng, _, err := newEngine(ctx, cmd.String("env"), nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	jobs, err := eng.Client.ListJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	job.SortForDisplay(jobs)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tUPDATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\n", j.ID, j.Status, j.Progress, j.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
