package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/presentation"
)

// tokenEnv carries an agent token so it stays out of shell history.
const tokenEnv = "IMPEL_AGENT_TOKEN"

var (
	agentToken   string
	agentID      string
	agentMeta    []string
	agentReason  string
	claimVersion uint64
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Register agents and manage their claims",
	Long: `Agent commands authenticate with the token issued at registration, taken
from --token or the IMPEL_AGENT_TOKEN environment variable.`,
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register <agent-type>",
	Short: "Register an agent and print its token",
	Long: `Register an agent. The token is shown once; only its digest is stored.

Examples:
  impel agent register researcher
  export IMPEL_AGENT_TOKEN=$(impel agent register coder --json | jq -r .token)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := parseMetadata(agentMeta)
		if err != nil {
			return err
		}
		c := command.NewRegisterAgentCommand(command.SourceCLI, args[0])
		if agentID != "" {
			c.AgentID = domain.AgentID(agentID)
		}
		c.Metadata = md
		c.SetActor(operator())

		return withSession(cmd.Context(), func(s *session) error {
			res, err := s.engine.Run(cmd.Context(), c)
			if err != nil {
				return err
			}
			reg := res.Data.(command.RegisterAgentResult)
			return formatter(cmd).JSON(struct {
				AgentID string `json:"agent_id"`
				Token   string `json:"token"`
			}{string(reg.AgentID), reg.Token})
		})
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			return formatter(cmd).Agents(presentation.FromDomainAgents(s.engine.Agents()))
		})
	},
}

var agentWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the agent the token belongs to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			id, err := authenticate(cmd.Context(), s)
			if err != nil {
				return err
			}
			a, err := s.engine.Agent(id)
			if err != nil {
				return err
			}
			return formatter(cmd).Agents(presentation.FromDomainAgents([]*domain.Agent{a}))
		})
	},
}

var agentClaimCmd = &cobra.Command{
	Use:   "claim [thread-id]",
	Short: "Claim a thread, the hottest available one by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			id, err := authenticate(cmd.Context(), s)
			if err != nil {
				return err
			}
			var target domain.ThreadID
			if len(args) == 1 {
				target = domain.ThreadID(args[0])
			} else {
				available := s.engine.AvailableThreads()
				if len(available) == 0 {
					return &types.NotFoundError{Entity: "thread", ID: "<available>"}
				}
				target = available[0].ID
			}
			c := command.NewClaimThreadCommand(command.SourceAgent, id, target)
			c.ExpectedVersion = claimVersion
			if _, err := s.engine.Run(cmd.Context(), c); err != nil {
				return err
			}
			return showThread(cmd, s, target)
		})
	},
}

var agentReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the agent's current claim",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			id, err := authenticate(cmd.Context(), s)
			if err != nil {
				return err
			}
			c := command.NewReleaseClaimCommand(command.SourceAgent, id, agentReason)
			res, err := s.engine.Run(cmd.Context(), c)
			if err != nil {
				return err
			}
			return printEvents(cmd, res)
		})
	},
}

var agentDisconnectCmd = &cobra.Command{
	Use:   "disconnect [agent-id]",
	Short: "Mark an agent offline, releasing its claim",
	Long: `Disconnect an agent. With no argument the agent named by the token
disconnects itself; operators pass the agent id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			var c *command.DisconnectAgentCommand
			if len(args) == 1 {
				c = command.NewDisconnectAgentCommand(command.SourceCLI, domain.AgentID(args[0]), agentReason)
				c.SetActor(operator())
			} else {
				id, err := authenticate(cmd.Context(), s)
				if err != nil {
					return err
				}
				c = command.NewDisconnectAgentCommand(command.SourceAgent, id, agentReason)
				c.SetActor(string(id))
			}
			res, err := s.engine.Run(cmd.Context(), c)
			if err != nil {
				return err
			}
			return printEvents(cmd, res)
		})
	},
}

// authenticate resolves the agent token from --token or the environment.
func authenticate(ctx context.Context, s *session) (domain.AgentID, error) {
	token := agentToken
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		return "", types.Invalid("token", "is required (--token or %s)", tokenEnv)
	}
	id, ok := s.engine.Authenticate(ctx, token)
	if !ok {
		return "", types.Invalid("token", "does not belong to an online agent")
	}
	return id, nil
}

// printEvents writes the events a command appended.
func printEvents(cmd *cobra.Command, res *command.Result) error {
	f := formatter(cmd)
	for _, ev := range res.Events {
		if err := f.Event(ev); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	agentCmd.PersistentFlags().StringVar(&agentToken, "token", "", "agent token (default: $"+tokenEnv+")")

	agentRegisterCmd.Flags().StringVar(&agentID, "id", "", "agent id (default: generated)")
	agentRegisterCmd.Flags().StringArrayVar(&agentMeta, "meta", nil, "metadata key=value (repeatable)")
	agentClaimCmd.Flags().Uint64Var(&claimVersion, "expect-version", 0, "fail unless the thread is at this version")
	agentReleaseCmd.Flags().StringVarP(&agentReason, "reason", "r", "", "reason recorded on the event")
	agentDisconnectCmd.Flags().StringVarP(&agentReason, "reason", "r", "", "reason recorded on the event")

	agentCmd.AddCommand(agentRegisterCmd, agentListCmd, agentWhoamiCmd, agentClaimCmd, agentReleaseCmd, agentDisconnectCmd)
	rootCmd.AddCommand(agentCmd)
}
