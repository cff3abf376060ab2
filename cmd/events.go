package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/repository"
	"github.com/impel-dev/impel/internal/log"
	"github.com/impel-dev/impel/internal/presentation"
	"github.com/impel-dev/impel/internal/watcher"
)

var (
	eventsSince  uint64
	eventsEntity string
	eventsID     string
	eventsKinds  []string
	eventsFollow bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the event log",
	Long: `Print events in sequence order. With --follow, keep printing events as
any process appends them.

Examples:
  impel events
  impel events --since 120 --entity thread
  impel events --kind thread.claimed --kind thread.released
  impel events --follow --json | jq .payload.kind`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter := events.Filter{
			EntityType:    events.EntityType(eventsEntity),
			EntityID:      eventsID,
			AfterSequence: eventsSince,
		}
		for _, k := range eventsKinds {
			filter.Kinds = append(filter.Kinds, events.Kind(k))
		}

		return withSession(cmd.Context(), func(s *session) error {
			f := formatter(cmd)
			last, err := printEventsAfter(cmd.Context(), s.repo, f, filter, eventsSince)
			if err != nil || !eventsFollow {
				return err
			}
			return follow(cmd.Context(), s, f, filter, last)
		})
	},
}

// printEventsAfter prints matching events after seq straight from storage,
// so appends by other processes are seen. It returns the last sequence read.
func printEventsAfter(ctx context.Context, repo repository.Repository, f *presentation.Formatter, filter events.Filter, seq uint64) (uint64, error) {
	evs, err := repo.LoadEventsAfter(ctx, seq)
	if err != nil {
		return seq, err
	}
	for _, ev := range evs {
		seq = ev.Sequence
		if !filter.Matches(ev) {
			continue
		}
		if err := f.Event(ev); err != nil {
			return seq, err
		}
	}
	return seq, nil
}

// follow prints new events whenever the database file changes until ctx is
// cancelled.
func follow(ctx context.Context, s *session, f *presentation.Formatter, filter events.Filter, last uint64) error {
	w, err := watcher.New(watcher.DefaultConfig(s.path))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return fmt.Errorf("watcher stopped")
			}
			next, err := printEventsAfter(ctx, s.repo, f, filter, last)
			if err != nil {
				log.ErrorErr(log.CatWatcher, "reading appended events", err, "after", last)
				return err
			}
			last = next
		}
	}
}

func init() {
	eventsCmd.Flags().Uint64Var(&eventsSince, "since", 0, "only events after this sequence")
	eventsCmd.Flags().StringVarP(&eventsEntity, "entity", "e", "", "thread, agent, escalation or system")
	eventsCmd.Flags().StringVar(&eventsID, "id", "", "only events about this entity id")
	eventsCmd.Flags().StringArrayVarP(&eventsKinds, "kind", "k", nil, "only events of this kind (repeatable)")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "keep printing new events")
	rootCmd.AddCommand(eventsCmd)
}
