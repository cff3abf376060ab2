package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/presentation"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize coordination state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			return formatter(cmd).Status(s.engine.Status())
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [reason]",
	Short: "Halt every command until resume",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := command.NewPauseSystemCommand(command.SourceHuman, strings.Join(args, " "))
		c.SetActor(operator())
		return runSystemCommand(cmd, c)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Lift a pause",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := command.NewResumeSystemCommand(command.SourceHuman)
		c.SetActor(operator())
		return runSystemCommand(cmd, c)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save a snapshot of the current state",
	Long: `Save a snapshot so the next open replays only the events after it.
Snapshots are also saved automatically every snapshots.interval events.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			seq, err := s.engine.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return formatter(cmd).JSON(map[string]uint64{"sequence": seq})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "snapshot saved at sequence %d\n", seq)
			return err
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that replaying the log reproduces the current state",
	Long: `Rebuild state from the full event log and from the latest snapshot plus
its tail, and compare both with the recovered state. Exits non-zero on any
mismatch and prints the difference.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			report, err := s.engine.VerifyReplay(cmd.Context())
			if report != nil {
				if ferr := formatter(cmd).Report(presentation.FromReplayReport(report)); ferr != nil {
					return ferr
				}
			}
			return err
		})
	},
}

func runSystemCommand(cmd *cobra.Command, c command.Command) error {
	return withSession(cmd.Context(), func(s *session) error {
		if _, err := s.engine.Run(cmd.Context(), c); err != nil {
			return err
		}
		return formatter(cmd).Status(s.engine.Status())
	})
}

func init() {
	rootCmd.AddCommand(statusCmd, pauseCmd, resumeCmd, snapshotCmd, verifyCmd)
}
