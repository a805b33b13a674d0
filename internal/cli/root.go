package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand builds the mktreplay command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mktreplay",
		Short: "mktreplay - market data ring buffer, recorder and replay harness",
		Long: `mktreplay runs a single-host market data pipeline: a synthetic feed
publishes into a lock-free ring buffer, a recorder durably persists it to an
append-only log, and a client consumes it live, recovering by replaying the
log whenever it is lapped.`,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose (debug-level) logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newReplayCommand(opts))

	return cmd
}
