package cmd

import (

	"github.com/spf13/cobra"

	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/registry"
	"github.com/impel-dev/impel/internal/coordination/types"
	"github.com/impel-dev/impel/internal/presentation"
)

var (
	escCategory    string
	escPriority    string
	escThread      string
	escDesc        string
	escOptions     []string
	escResolution  string
	escSelected    int
	escStatus      string
	escMinPriority string
)

var escalationCmd = &cobra.Command{
	Use:     "escalation",
	Aliases: []string{"esc"},
	Short:   "Raise and resolve requests for human attention",
}

var escalationRaiseCmd = &cobra.Command{
	Use:   "raise <title>",
	Short: "Open an escalation",
	Long: `Open an escalation. Linking it to a thread boosts that thread.

Examples:
  impel escalation raise "need API credentials" --thread 5f1c... --priority high
  impel escalation raise "pick a storage engine" --option sqlite --option postgres`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := domain.ParseEscalationPriority(escPriority)
		if err != nil {
			return types.Invalid("priority", "%v", err)
		}
		opts := []command.RaiseEscalationOption{command.WithEscalationDescription(escDesc)}
		if escThread != "" {
			opts = append(opts, command.AboutThread(domain.ThreadID(escThread)))
		}
		if len(escOptions) > 0 {
			choices := make([]domain.EscalationOption, 0, len(escOptions))
			for _, label := range escOptions {
				choices = append(choices, domain.EscalationOption{Label: label})
			}
			opts = append(opts, command.WithOptions(choices...))
		}
		c := command.NewRaiseEscalationCommand(command.SourceCLI, escCategory, priority, args[0], opts...)
		c.SetActor(operator())

		return withSession(cmd.Context(), func(s *session) error {
			res, err := s.engine.Run(cmd.Context(), c)
			if err != nil {
				return err
			}
			return showEscalation(cmd, s, res.Data.(domain.EscalationID))
		})
	},
}

var escalationAckCmd = &cobra.Command{
	Use:   "ack <escalation-id>",
	Short: "Acknowledge an open escalation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := domain.EscalationID(args[0])
		c := command.NewAcknowledgeEscalationCommand(command.SourceHuman, id, operator())
		return withSession(cmd.Context(), func(s *session) error {
			if _, err := s.engine.Run(cmd.Context(), c); err != nil {
				return err
			}
			return showEscalation(cmd, s, id)
		})
	},
}

var escalationResolveCmd = &cobra.Command{
	Use:   "resolve <escalation-id>",
	Short: "Resolve an acknowledged escalation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := domain.EscalationID(args[0])
		var selected *int
		if cmd.Flags().Changed("option") {
			selected = &escSelected
		}
		c := command.NewResolveEscalationCommand(command.SourceHuman, id, operator(), escResolution, selected)
		return withSession(cmd.Context(), func(s *session) error {
			if _, err := s.engine.Run(cmd.Context(), c); err != nil {
				return err
			}
			return showEscalation(cmd, s, id)
		})
	},
}

var escalationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalations, most urgent first",
	Long: `List escalations ordered by priority, then age. Resolved escalations are
hidden unless --status resolved is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter := registry.EscalationFilter{
			Status:   domain.EscalationStatus(escStatus),
			ThreadID: domain.ThreadID(escThread),
		}
		if escMinPriority != "" {
			p, err := domain.ParseEscalationPriority(escMinPriority)
			if err != nil {
				return types.Invalid("min-priority", "%v", err)
			}
			filter.MinPriority = p
		}
		return withSession(cmd.Context(), func(s *session) error {
			list := s.engine.Escalations(filter)
			if escStatus == "" {
				unresolved := list[:0]
				for _, e := range list {
					if e.Status != domain.EscalationResolved {
						unresolved = append(unresolved, e)
					}
				}
				list = unresolved
			}
			return formatter(cmd).Escalations(presentation.FromDomainEscalations(list))
		})
	},
}

func showEscalation(cmd *cobra.Command, s *session, id domain.EscalationID) error {
	e, err := s.engine.Escalation(id)
	if err != nil {
		return err
	}
	return formatter(cmd).Escalations(presentation.FromDomainEscalations([]*domain.Escalation{e}))
}

func init() {
	escalationRaiseCmd.Flags().StringVar(&escCategory, "category", "question", "escalation category")
	escalationRaiseCmd.Flags().StringVarP(&escPriority, "priority", "p", domain.PriorityNormal.String(),
		"low, normal, high or critical")
	escalationRaiseCmd.Flags().StringVarP(&escThread, "thread", "t", "", "thread the escalation is about")
	escalationRaiseCmd.Flags().StringVar(&escDesc, "description", "", "escalation body")
	escalationRaiseCmd.Flags().StringArrayVar(&escOptions, "option", nil, "choice offered to the resolver (repeatable)")

	escalationResolveCmd.Flags().StringVar(&escResolution, "resolution", "", "resolution text")
	escalationResolveCmd.Flags().IntVar(&escSelected, "option", 0, "index of the chosen option")

	escalationListCmd.Flags().StringVar(&escStatus, "status", "", "open, acknowledged or resolved")
	escalationListCmd.Flags().StringVar(&escMinPriority, "min-priority", "", "hide escalations below this priority")
	escalationListCmd.Flags().StringVarP(&escThread, "thread", "t", "", "only escalations about this thread")

	escalationCmd.AddCommand(escalationRaiseCmd, escalationAckCmd, escalationResolveCmd, escalationListCmd)
	rootCmd.AddCommand(escalationCmd)
}

