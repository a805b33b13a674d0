// Command mktreplay runs the market data ring buffer, recorder, and
// client pipeline, or inspects a sealed log file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mktdata/replayfabric/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SetContext(context.Background())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
