// Package main implements the hybridrace CLI.
//
// hybridrace replays access traces through the hybrid happens-before and
// lockset race detector and manages the race log that deduplicates reports
// across runs.
//
// Usage:
//
//	hybridrace replay app.trace          # Report races in a trace
//	hybridrace races                     # List racing pairs seen so far
//	hybridrace reset                     # Forget every reported pair
//	hybridrace version
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kolkov/hybridrace/race"
)

const exitError = 1

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hybridrace: %v\n", err)
		stop()
		os.Exit(exitError)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "hybridrace",
		Short: "Hybrid happens-before and lockset data race detector",
		Long: `hybridrace reports data races in recorded access traces. A race is
reported once per pair of program points; the pairs already reported are kept
in a race log between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newReplayCmd(g),
		newRacesCmd(g),
		newResetCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration and applies the --log-level override.
func (g *globalFlags) loadConfig() (race.Config, error) {
	cfg, err := race.LoadConfig(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.logLevel == "" {
		return cfg, nil
	}
	cfg.LogLevel = g.logLevel
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, cfg race.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// openSession loads the configuration and starts a session that logs to the
// command's stderr.
func (g *globalFlags) openSession(cmd *cobra.Command, adjust func(*race.Config), opts ...race.Option) (*race.Session, *slog.Logger, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)
	opts = append([]race.Option{race.WithLogger(logger)}, opts...)
	s, err := race.NewSession(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := race.GetInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "hybridrace version %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "algorithm: %s\n", info.Algorithm)
			fmt.Fprintf(cmd.OutOrStdout(), "race log format: %s\n", info.LogFormat)
			fmt.Fprintf(cmd.OutOrStdout(), "built with: %s\n", info.GoVersion)
		},
	}
}
