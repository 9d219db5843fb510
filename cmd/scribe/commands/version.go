package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"scribe/internal/config"
)

// VersionAction prints the client version and, when the server is
// reachable, the server version and compatibility verdict.
func VersionAction(ctx context.Context, cmd *cli.Command) error {
	fmt.Printf("client: %s\n", config.ClientVersion)

	eng, _, err := newEngine(ctx, cmd.String("env"), nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	remote, err := eng.Client.ProbeVersion(ctx)
	if err != nil {
		fmt.Println("server: unreachable")
		return nil
	}
	fmt.Printf("server: %s\n", remote)

	eng.Gate.Observe(remote)
	if eng.Gate.Mismatch() {
		fmt.Println("compatibility: MISMATCH")
	} else {
		fmt.Println("compatibility: ok")
	}
	return nil
}
