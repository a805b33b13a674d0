package cli

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mktdata/replayfabric/affinity"
	"github.com/mktdata/replayfabric/client"
	"github.com/mktdata/replayfabric/config"
	"github.com/mktdata/replayfabric/feed"
	"github.com/mktdata/replayfabric/internal/telemetry"
	"github.com/mktdata/replayfabric/recorder"
	"github.com/mktdata/replayfabric/ring"
)

// cpuSlot indexes the --cpu=c0,c1,c2,c3 assignment order: main thread,
// feed, client, recorder. Unspecified trailing slots are left unpinned.
type cpuSlot int

const (
	slotMain cpuSlot = iota
	slotFeed
	slotClient
	slotRecorder
	slotCount
)

// RunOptions holds flags for the run subcommand.
type RunOptions struct {
	*RootOptions

	Mode         string
	Messages     int64
	Rate         int64
	FaultAt      int64
	DataDir      string
	Output       string
	CPU          string
	ArchiveAfter time.Duration
}

func newRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the feed/recorder/client harness",
		Long: `Run starts the synthetic feed, the durable recorder, and the live
client against a shared ring buffer, then reports whether the client's
accumulator matches the recorder's.

Modes:
  test           basic functionality: run to completion, compare sums
  recovery_test  inject a CLIENT_CRASH fault at --fault-at and verify recovery
  stress         same as test; --messages and --rate are used as given`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "test", "run mode: test|recovery_test|stress")
	cmd.Flags().Int64Var(&opts.Messages, "messages", 10000, "message count")
	cmd.Flags().Int64Var(&opts.Rate, "rate", 1000, "messages per second (0 = unthrottled)")
	cmd.Flags().Int64Var(&opts.FaultAt, "fault-at", -1, "sequence at which to trigger a fault (recovery_test; default messages/2)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "data", "output directory (ignored if --output is set)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "output log file path, overrides --data-dir")
	cmd.Flags().StringVar(&opts.CPU, "cpu", "", "comma-separated CPU cores for main,feed,client,recorder")
	cmd.Flags().DurationVar(&opts.ArchiveAfter, "archive-max-age", 0, "ignored: run does not compress or retire any segment")

	return cmd
}

func runHarness(ctx context.Context, opts *RunOptions, cmd *cobra.Command) error {
	level := "info"
	if opts.Verbose {
		level = "debug"
	}
	log := telemetry.NewDefault(level)

	outputPath := opts.Output
	if outputPath == "" {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create data dir", err)
		}
		outputPath = filepath.Join(opts.DataDir, fmt.Sprintf("mktdata_%s.bin", time.Now().Format("20060102")))
	}

	cores, err := parseCPUCores(opts.CPU)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --cpu", err)
	}
	if err := affinity.Pin(cores[slotMain], "main"); err != nil {
		log.Warn("cpu pin failed", "thread", "main", "err", err)
	}

	cfg := config.Default()
	cfg.Feed.MessageCount = opts.Messages
	cfg.Feed.RatePerSec = opts.Rate
	cfg.Feed.CPUCore = cores[slotFeed]
	cfg.Client.CPUCore = cores[slotClient]
	cfg.Recorder.CPUCore = cores[slotRecorder]
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Market Data Replay Harness\n==========================\n\n")
	fmt.Fprintf(cmd.OutOrStdout(), "mode=%s messages=%d rate=%d output=%s\n\n", opts.Mode, opts.Messages, opts.Rate, outputPath)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-runCtx.Done():
		}
	}()

	buffer, err := ring.New(cfg.Ring.Capacity)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create ring buffer", err)
	}

	rec, err := recorder.New(buffer, outputPath, log.With("component", "recorder"))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create recorder", err)
	}
	rec.SetBatchSize(cfg.Recorder.BatchSize)

	c := client.New(buffer, outputPath, log.With("component", "client"))
	c.SetCatchUpThreshold(cfg.Client.CatchUpThreshold)

	f := feed.New(buffer, cfg.Feed.MessageCount, cfg.Feed.RatePerSec, nil, log.With("component", "feed"))

	faultAt := opts.FaultAt
	if opts.Mode == "recovery_test" && faultAt < 0 {
		faultAt = opts.Messages / 2
	}

	rec.Start(runCtx, func() error { return affinity.Pin(cfg.Recorder.CPUCore, "recorder") })
	c.Start(runCtx, func() error { return affinity.Pin(cfg.Client.CPUCore, "client") })

	start := time.Now()

	feedDone := make(chan error, 1)
	feedStop := make(chan struct{})
	go func() {
		feedDone <- f.Run(runCtx, feedStop, func() error { return affinity.Pin(cfg.Feed.CPUCore, "feed") })
	}()

	if opts.Mode == "recovery_test" {
		for c.LastSeq() < faultAt && f.SentCount() < cfg.Feed.MessageCount {
			select {
			case <-runCtx.Done():
				break
			default:
			}
			time.Sleep(10 * time.Millisecond)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Triggering fault...")
		c.TriggerFault(client.FaultClientCrash)
		for c.InRecovery() {
			time.Sleep(10 * time.Millisecond)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Recovery complete")
	}

	<-feedDone
	close(feedStop)

	time.Sleep(500 * time.Millisecond)

	c.Stop()
	rec.Stop()

	duration := time.Since(start)

	clientSum := c.Sum()
	recorderSum := rec.ExpectedSum()
	diff := math.Abs(clientSum - recorderSum)
	passed := diff < 1e-9

	fmt.Fprintf(cmd.OutOrStdout(), "\n=== Results ===\n")
	fmt.Fprintf(cmd.OutOrStdout(), "duration: %s\n", duration)
	fmt.Fprintf(cmd.OutOrStdout(), "feed sent: %d\n", f.SentCount())
	fmt.Fprintf(cmd.OutOrStdout(), "client processed: %d\n", c.ProcessedCount())
	fmt.Fprintf(cmd.OutOrStdout(), "recorder recorded: %d\n", rec.RecordedCount())
	fmt.Fprintf(cmd.OutOrStdout(), "client sum: %.6f\n", clientSum)
	fmt.Fprintf(cmd.OutOrStdout(), "recorder expected sum: %.6f\n", recorderSum)
	fmt.Fprintf(cmd.OutOrStdout(), "\nverification: %s\n", verdict(passed))

	if !passed {
		return NewExitError(ExitFailure, fmt.Sprintf("client/recorder sums diverge by %g", diff))
	}
	return nil
}

func verdict(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "FAILED"
}

// parseCPUCores parses a comma-separated "--cpu=c0,c1,c2,c3" string into
// the four fixed slots (main, feed, client, recorder). Missing trailing
// entries default to affinity.Unset.
func parseCPUCores(s string) ([slotCount]int, error) {
	var cores [slotCount]int
	for i := range cores {
		cores[i] = affinity.Unset
	}
	if s == "" {
		return cores, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > int(slotCount) {
		return cores, fmt.Errorf("too many cores specified: got %d, want at most %d", len(parts), slotCount)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return cores, fmt.Errorf("invalid core %q: %w", p, err)
		}
		cores[i] = v
	}
	return cores, nil
}
