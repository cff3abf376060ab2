package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/engine"
	"github.com/impel-dev/impel/internal/coordination/events"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// titleWidth bounds thread and escalation titles in text listings.
const titleWidth = 48

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	json   bool
}

// NewFormatter creates a new formatter. With asJSON every method writes
// indented JSON instead of text.
func NewFormatter(writer io.Writer, asJSON bool) *Formatter {
	return &Formatter{
		writer: writer,
		json:   asJSON,
	}
}

// JSON writes v as indented JSON regardless of mode.
func (f *Formatter) JSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Status renders the system summary.
func (f *Formatter) Status(s engine.Status) error {
	if f.json {
		return f.JSON(s)
	}
	state := okStyle.Render("running")
	if s.Paused {
		state = pausedStyle.Render("paused")
		if s.PauseReason != "" {
			state += mutedStyle.Render(" (" + s.PauseReason + ")")
		}
	}
	_, err := fmt.Fprintf(f.writer, "%s %s\n%s %d\n%s %d\n%s %d\n%s %d\n",
		headerStyle.Render("state:      "), state,
		headerStyle.Render("sequence:   "), s.Sequence,
		headerStyle.Render("threads:    "), s.ThreadCount,
		headerStyle.Render("agents:     "), s.AgentCount,
		headerStyle.Render("escalations:"), s.OpenEscalations,
	)
	return err
}

// Threads renders a thread listing.
func (f *Formatter) Threads(ts []ThreadDTO) error {
	if f.json {
		return f.JSON(ts)
	}
	if len(ts) == 0 {
		_, err := fmt.Fprintln(f.writer, mutedStyle.Render("no threads"))
		return err
	}
	var b strings.Builder
	for _, t := range ts {
		st := domain.ThreadState(t.State)
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			stateStyle(st).Render(t.State),
			" ",
			temperatureStyle(t.Temperature).Render(fmt.Sprintf("%.3f", t.Temperature)),
			"  ",
			t.ID,
			"  ",
			TruncateString(t.Title, titleWidth),
		)
		if t.ClaimedBy != "" {
			line += mutedStyle.Render("  @" + t.ClaimedBy)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// Thread renders a single thread in detail.
func (f *Formatter) Thread(t ThreadDTO) error {
	if f.json {
		return f.JSON(t)
	}
	st := domain.ThreadState(t.State)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render(t.Title), mutedStyle.Render(t.ID))
	fmt.Fprintf(&b, "state:       %s\n", stateStyle(st).UnsetWidth().Render(t.State))
	fmt.Fprintf(&b, "temperature: %s\n", temperatureStyle(t.Temperature).Render(fmt.Sprintf("%.3f", t.Temperature)))
	fmt.Fprintf(&b, "version:     %d\n", t.Version)
	if t.ClaimedBy != "" {
		fmt.Fprintf(&b, "claimed by:  %s\n", t.ClaimedBy)
	}
	if t.ParentID != "" {
		fmt.Fprintf(&b, "parent:      %s\n", t.ParentID)
	}
	if t.SupersededBy != "" {
		fmt.Fprintf(&b, "merged into: %s\n", t.SupersededBy)
	}
	if t.KillReason != "" {
		fmt.Fprintf(&b, "killed:      %s\n", t.KillReason)
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", t.Description)
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// Agents renders an agent listing.
func (f *Formatter) Agents(as []AgentDTO) error {
	if f.json {
		return f.JSON(as)
	}
	if len(as) == 0 {
		_, err := fmt.Fprintln(f.writer, mutedStyle.Render("no agents"))
		return err
	}
	var b strings.Builder
	for _, a := range as {
		fmt.Fprintf(&b, "%-8s %s  %s  completed=%d", a.Status, a.ID, a.AgentType, a.ThreadsCompleted)
		if a.CurrentThread != "" {
			b.WriteString(mutedStyle.Render("  on " + a.CurrentThread))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// Escalations renders an escalation listing.
func (f *Formatter) Escalations(es []EscalationDTO) error {
	if f.json {
		return f.JSON(es)
	}
	if len(es) == 0 {
		_, err := fmt.Fprintln(f.writer, mutedStyle.Render("no escalations"))
		return err
	}
	var b strings.Builder
	for _, e := range es {
		fmt.Fprintf(&b, "%s %-12s %s  %s",
			priorityStyle(e.Priority).Width(8).Render(e.Priority),
			e.Status, e.ID, TruncateString(e.Title, titleWidth))
		if e.ThreadID != "" {
			b.WriteString(mutedStyle.Render("  thread " + e.ThreadID))
		}
		b.WriteByte('\n')
		for i, o := range e.Options {
			fmt.Fprintf(&b, "    [%d] %s\n", i, o)
		}
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// Event renders one event. JSON mode writes one compact object per line so
// a followed stream can be piped to jq.
func (f *Formatter) Event(e events.Event) error {
	if f.json {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(f.writer, "%s\n", data)
		return err
	}
	line := lipgloss.JoinHorizontal(lipgloss.Top,
		sequenceStyle.Render(fmt.Sprintf("%d", e.Sequence)),
		"  ",
		mutedStyle.Render(e.Timestamp.Format("2006-01-02T15:04:05Z")),
		"  ",
		eventKindStyle.Render(string(e.Kind())),
		entityIDStyle.Render(e.EntityID),
		eventSummary(e),
	)
	_, err := fmt.Fprintln(f.writer, strings.TrimRight(line, " "))
	return err
}

// Report renders a replay verification report.
func (f *Formatter) Report(r ReportDTO) error {
	if f.json {
		return f.JSON(r)
	}
	mark := func(ok bool) string {
		if ok {
			return okStyle.Render("ok")
		}
		return failStyle.Render("MISMATCH")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "verified through sequence %d\n", r.Sequence)
	fmt.Fprintf(&b, "full replay:   %s\n", mark(r.FullReplayMatches))
	if r.SnapshotSequence > 0 {
		fmt.Fprintf(&b, "snapshot @%-4d %s\n", r.SnapshotSequence, mark(r.SnapshotMatches))
	} else {
		fmt.Fprintf(&b, "snapshot:      %s\n", mutedStyle.Render("none"))
	}
	if r.Diff != "" {
		fmt.Fprintf(&b, "\n%s\n", r.Diff)
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// Error renders a command failure with its kind, so scripts can branch on
// the JSON "kind" field.
func (f *Formatter) Error(err error) error {
	kind := "internal"
	if k := types.Kind(err); k != nil {
		kind = k.Error()
	}
	if f.json {
		return f.JSON(map[string]string{"kind": kind, "error": err.Error()})
	}
	_, werr := fmt.Fprintf(f.writer, "%s %s\n", failStyle.Render("error:"), err.Error())
	return werr
}
