package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/presentation"
)

var (
	threadsAll      bool
	threadsState    string
	threadDesc      string
	threadParent    string
	threadID        string
	threadPriority  float64
	threadMeta      []string
	threadReason    string
	expectedVersion uint64
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List available threads, hottest first",
	Long: `List threads that are open and unclaimed, ordered by current temperature.

Examples:
  impel threads
  impel threads --all
  impel threads --all --state review
  impel threads --json | jq '.[0].id'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			var ts []*domain.Thread
			if threadsAll || threadsState != "" {
				ts = s.engine.Threads()
			} else {
				ts = s.engine.AvailableThreads()
			}
			if threadsState != "" {
				want, err := domain.ParseThreadState(threadsState)
				if err != nil {
					return err
				}
				filtered := ts[:0]
				for _, t := range ts {
					if t.State == want {
						filtered = append(filtered, t)
					}
				}
				ts = filtered
			}
			now, halfLife := s.engine.Now(), s.engine.Coefficients().HalfLife
			return formatter(cmd).Threads(presentation.FromDomainThreads(ts, now, halfLife))
		})
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Create and move threads of work",
}

var threadShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show one thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			t, err := s.engine.Thread(domain.ThreadID(args[0]))
			if err != nil {
				return err
			}
			now, halfLife := s.engine.Now(), s.engine.Coefficients().HalfLife
			return formatter(cmd).Thread(presentation.FromDomainThread(t, now, halfLife))
		})
	},
}

var threadCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a thread in the embryo state",
	Long: `Create a thread. Its initial temperature is --priority when given,
otherwise the configured initial value.

Examples:
  impel thread create "survey prior art"
  impel thread create "fix flaky test" --priority 0.9 --meta repo=api
  impel thread create "split parser" --parent 5f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := parseMetadata(threadMeta)
		if err != nil {
			return err
		}
		opts := []command.CreateThreadOption{
			command.WithDescription(threadDesc),
			command.WithParent(domain.ThreadID(threadParent)),
			command.WithMetadata(md),
		}
		if cmd.Flags().Changed("priority") {
			opts = append(opts, command.WithPriority(threadPriority))
		}
		if threadID != "" {
			opts = append(opts, command.WithThreadID(domain.ThreadID(threadID)))
		}
		c := command.NewCreateThreadCommand(command.SourceCLI, args[0], opts...)
		c.SetActor(operator())

		return withSession(cmd.Context(), func(s *session) error {
			res, err := s.engine.Run(cmd.Context(), c)
			if err != nil {
				return err
			}
			return showThread(cmd, s, res.Data.(domain.ThreadID))
		})
	},
}

var threadTransitionCmd = &cobra.Command{
	Use:   "transition <thread-id> <state>",
	Short: "Move a thread along a lifecycle edge",
	Long: `Move a thread to a new state. Legal edges:

  embryo  -> active
  active  -> blocked | review
  blocked -> active
  review  -> complete

Moving to blocked raises an escalation; completing releases the claim.
Use "thread kill" to kill.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := domain.ParseThreadState(args[1])
		if err != nil {
			return types.Invalid("state", "%v", err)
		}
		c := command.NewTransitionThreadCommand(command.SourceCLI, domain.ThreadID(args[0]), to, threadReason)
		c.ExpectedVersion = expectedVersion
		c.SetActor(operator())
		return runThreadCommand(cmd, c, c.ThreadID)
	},
}

var threadKillCmd = &cobra.Command{
	Use:   "kill <thread-id>",
	Short: "Kill a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := command.NewKillThreadCommand(command.SourceCLI, domain.ThreadID(args[0]), threadReason)
		c.ExpectedVersion = expectedVersion
		c.SetActor(operator())
		return runThreadCommand(cmd, c, c.ThreadID)
	},
}

var threadMergeCmd = &cobra.Command{
	Use:   "merge <source-id> <target-id>",
	Short: "Fold a duplicate thread into another",
	Long: `Kill the source thread in favour of the target. Children of the source
move to the target and any claim on the source is released.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := command.NewMergeThreadsCommand(command.SourceCLI, domain.ThreadID(args[0]), domain.ThreadID(args[1]))
		c.SetActor(operator())
		return runThreadCommand(cmd, c, c.TargetID)
	},
}

var threadSetTemperatureCmd = &cobra.Command{
	Use:   "set-temperature <thread-id> <value>",
	Short: "Override a thread's temperature (0.0 to 1.0)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return types.Invalid("temperature", "%q is not a number", args[1])
		}
		c := command.NewSetTemperatureCommand(command.SourceCLI, domain.ThreadID(args[0]), v, threadReason)
		c.ExpectedVersion = expectedVersion
		c.SetActor(operator())
		return runThreadCommand(cmd, c, c.ThreadID)
	},
}

var threadBoostCmd = &cobra.Command{
	Use:   "boost <thread-id> [activity|escalation|human_comment]",
	Short: "Apply a configured temperature boost",
	Long: `Raise a thread's temperature by a configured boost amount. The boost
defaults to human_comment for operators.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := domain.BoostHumanComment
		if len(args) == 2 {
			kind = domain.BoostKind(args[1])
		}
		c := command.NewBoostThreadCommand(command.SourceCLI, domain.ThreadID(args[0]), kind)
		c.SetActor(operator())
		return runThreadCommand(cmd, c, c.ThreadID)
	},
}

// runThreadCommand executes c and shows the affected thread.
func runThreadCommand(cmd *cobra.Command, c command.Command, show domain.ThreadID) error {
	return withSession(cmd.Context(), func(s *session) error {
		if _, err := s.engine.Run(cmd.Context(), c); err != nil {
			return err
		}
		return showThread(cmd, s, show)
	})
}

func showThread(cmd *cobra.Command, s *session, id domain.ThreadID) error {
	t, err := s.engine.Thread(id)
	if err != nil {
		return err
	}
	return formatter(cmd).Thread(presentation.FromDomainThread(t, s.engine.Now(), s.engine.Coefficients().HalfLife))
}

// parseMetadata turns key=value flags into a map.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, types.Invalid("meta", "%q is not key=value", p)
		}
		md[k] = v
	}
	return md, nil
}

func init() {
	threadsCmd.Flags().BoolVarP(&threadsAll, "all", "a", false, "list every thread, terminal ones included")
	threadsCmd.Flags().StringVarP(&threadsState, "state", "s", "", "only threads in this state")

	threadCreateCmd.Flags().StringVar(&threadDesc, "description", "", "thread description")
	threadCreateCmd.Flags().StringVar(&threadParent, "parent", "", "parent thread id")
	threadCreateCmd.Flags().StringVar(&threadID, "id", "", "thread id (default: generated)")
	threadCreateCmd.Flags().Float64Var(&threadPriority, "priority", 0, "initial temperature (0.0 to 1.0)")
	threadCreateCmd.Flags().StringArrayVar(&threadMeta, "meta", nil, "metadata key=value (repeatable)")

	for _, c := range []*cobra.Command{threadTransitionCmd, threadKillCmd, threadSetTemperatureCmd} {
		c.Flags().StringVarP(&threadReason, "reason", "r", "", "reason recorded on the event")
		c.Flags().Uint64Var(&expectedVersion, "expect-version", 0, "fail unless the thread is at this version")
	}

	threadCmd.AddCommand(threadShowCmd, threadCreateCmd, threadTransitionCmd, threadKillCmd,
		threadMergeCmd, threadSetTemperatureCmd, threadBoostCmd)
	rootCmd.AddCommand(threadsCmd, threadCmd)

}
