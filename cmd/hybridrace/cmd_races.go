package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kolkov/hybridrace/race"
)

func newRacesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "races",
		Short: "List the racing program-point pairs reported so far",
		Long: `races prints the persisted race log. It only reads the log: a log that
cannot be read is reported as an error and left as it is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			pairs, err := race.ReadRaceLog(cfg, newLogger(cmd.ErrOrStderr(), cfg))
			if err != nil {
				return err
			}

			for _, p := range pairs {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "races: %d\n", len(pairs))
			return nil
		},
	}
}

func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every reported pair so races are reported again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, logger, err := g.openSession(cmd, nil, race.WithSink(race.NewWriterSink(cmd.ErrOrStderr())))
			if err != nil {
				return err
			}
			n := len(s.Seen())
			s.ClearSeen()
			if err := s.Close(); err != nil {
				return err
			}
			logger.Info("race log reset", "forgotten", n)
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %d races\n", n)
			return nil
		},
	}
}
