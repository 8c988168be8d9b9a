package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kolkov/hybridrace/internal/race/trace"
	"github.com/kolkov/hybridrace/race"
)

type parsedTrace struct {
	path   string
	events []trace.Event
}

func newReplayCmd(g *globalFlags) *cobra.Command {
	var window int

	cmd := &cobra.Command{
		Use:   "replay <trace>...",
		Short: "Replay access traces and report data races",
		Long: `replay feeds every trace through one detector session, in order. The
race log is loaded before the first trace and saved after the last, so a pair
reported by an earlier run is not reported again. A race log that cannot be
saved is logged; replay still succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			traces, table, err := parseTraces(args)
			if err != nil {
				return err
			}

			var adjust func(*race.Config)
			if cmd.Flags().Changed("window") {
				adjust = func(cfg *race.Config) { cfg.WindowSize = window }
			}
			s, logger, err := g.openSession(cmd, adjust,
				race.WithSink(race.NewWriterSink(cmd.OutOrStdout())),
				race.WithDescriber(table))
			if err != nil {
				return err
			}

			events, reports := 0, 0
			for _, t := range traces {
				r := trace.NewReplayer(s, t.path, logger)
				if err := r.Replay(cmd.Context(), t.events); err != nil {
					_ = s.Close()
					return err
				}
				events += len(t.events)
				reports += r.Reports()
			}

			st := s.Stats()
			saved := "saved"
			if err := s.Close(); err != nil {
				// The reports are already printed; a later run reports them again.
				logger.Warn("race log not saved", "error", err)
				saved = "not saved"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d events, %d threads, %d new races, %d already reported, race log %s\n",
				events, st.Threads, reports, st.Detector.Duplicates, saved)
			return nil
		},
	}
	cmd.Flags().IntVar(&window, "window", 0, "ticks kept per thread and access kind (overrides config)")
	return cmd
}

func parseTraces(paths []string) ([]parsedTrace, *trace.LocationTable, error) {
	table := trace.NewLocationTable()
	traces := make([]parsedTrace, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		events, locs, err := trace.Parse(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		table.Merge(locs)
		traces = append(traces, parsedTrace{path: path, events: events})
	}
	return traces, table, nil
}
