// Package cli wires configuration, the sampler, the engine and the
// dashboard into the omnimon command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/omnimon/internal/config"
	"github.com/Dicklesworthstone/omnimon/internal/engine"
	"github.com/Dicklesworthstone/omnimon/internal/errors"
	"github.com/Dicklesworthstone/omnimon/internal/logger"
	"github.com/Dicklesworthstone/omnimon/internal/metrics"
	"github.com/Dicklesworthstone/omnimon/internal/sampler"
	"github.com/Dicklesworthstone/omnimon/internal/ui"
)

// newProvider is swapped out in tests.
var newProvider = func() sampler.Provider { return sampler.NewHostProvider() }

// isTerminal reports whether stdout can host the dashboard.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// NewRootCmd builds the omnimon command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "omnimon",
		Short: "Live system telemetry dashboard",
		Long: `omnimon samples CPU and memory at a fast cadence and processes, network,
disks and sensors at a slower one, and shows the aggregated history as a
terminal dashboard.

Examples:
  omnimon
  omnimon --sort mem --filter '^go'
  omnimon --json
  omnimon --json-stream --aggregation-interval 1s`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	config.RegisterFlags(root.Flags())

	root.AddCommand(newConfigCmd(&configPath), newVersionCmd())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// printError writes err so that it always ends in exactly one newline;
// structured errors carry their own, cobra's do not.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, strings.TrimRight(err.Error(), "\n"))
}

func run(ctx context.Context, out io.Writer, cfg config.Config) error {
	logger.SetDebug(cfg.Debug)
	if cfg.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	tui := !cfg.JSON && !cfg.JSONStream
	if tui {
		if !isTerminal() {
			return errors.New(errors.ErrConfig,
				"stdout is not a terminal",
				"Use --json or --json-stream for non-interactive output")
		}
		closeLog, err := redirectLogs(cfg.LogFile)
		if err != nil {
			return err
		}
		defer closeLog()
	}

	sortKey, err := cfg.SortKey()
	if err != nil {
		return err
	}
	filter, err := cfg.FilterRegexp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rec := metrics.New()
	if cfg.MetricsAddr != "" {
		mlog := logger.NewEnvLogger("[metrics]")
		go func() {
			if err := rec.Serve(ctx, cfg.MetricsAddr, mlog); err != nil {
				mlog.Error("metrics server: %v", err)
			}
		}()
	}

	sched := sampler.New(newProvider(), sampler.Options{
		Fast:   cfg.FastInterval,
		Slow:   cfg.SlowInterval,
		Poll:   cfg.PollInterval,
		Buffer: cfg.ChannelCapacity,
	}, logger.NewEnvLogger("[sampler]"), rec)

	eng := engine.New(engine.Options{
		HistoryCapacity:      cfg.HistoryCapacity,
		HeatmapWidth:         cfg.HeatmapWidth,
		AggregationInterval:  cfg.AggregationInterval,
		MovingAverageSamples: cfg.MovingAverageSamples,
		SortKey:              sortKey,
		Filter:               filter,
	}, logger.NewEnvLogger("[engine]"), rec)

	stream := sched.Stream(ctx)

	switch {
	case cfg.JSON:
		return exportOnce(ctx, out, eng, stream, cfg.ProcessLimit)
	case cfg.JSONStream:
		return exportStream(ctx, out, eng, stream, cfg.ProcessLimit)
	}
	return ui.RunTUI(ui.New(cfg, eng, stream, cancel, nil))
}

// redirectLogs keeps log output off the alternate screen: into path when
// set, otherwise discarded.
func redirectLogs(path string) (func(), error) {
	if path == "" {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(os.Stderr) }, nil
	}
	f, err := tea.LogToFile(path, "omnimon")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot open log file "+path,
			"Check the directory exists and is writable")
	}
	return func() {
		_ = f.Close()
		log.SetOutput(os.Stderr)
	}, nil
}
