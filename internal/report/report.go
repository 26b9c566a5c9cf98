// Package report renders run summaries, plan previews and run history for
// the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/dcvprov/internal/engine"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
)

type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	applied lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
}

func colorStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		applied: lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		added:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		removed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func plainStyles() styles {
	plain := lipgloss.NewStyle()
	return styles{plain, plain, plain, plain, plain, plain, plain, plain}
}

// Printer writes human or JSON reports.
type Printer struct {
	w     io.Writer
	json  bool
	style styles
}

// Option configures a Printer.
type Option func(*Printer)

// WithColor enables terminal styling.
func WithColor(enabled bool) Option {
	return func(p *Printer) {
		if enabled {
			p.style = colorStyles()
		} else {
			p.style = plainStyles()
		}
	}
}

// WithJSON switches every report to indented JSON.
func WithJSON(enabled bool) Option {
	return func(p *Printer) {
		p.json = enabled
	}
}

// NewPrinter returns a plain-text printer writing to w.
func NewPrinter(w io.Writer, opts ...Option) *Printer {
	p := &Printer{w: w, style: plainStyles()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) icon(outcome model.Outcome) string {
	switch outcome {
	case model.OutcomeApplied:
		return p.style.applied.Render("~")
	case model.OutcomeAlreadySatisfied:
		return p.style.ok.Render("✓")
	case model.OutcomeFailed:
		return p.style.failed.Render("✗")
	default:
		return " "
	}
}

// Summary prints the result of a run.
func (p *Printer) Summary(s *model.RunSummary) error {
	if s == nil {
		return nil
	}
	if p.json {
		return p.writeJSON(s)
	}

	var b strings.Builder
	fmt.Fprintln(&b, p.style.title.Render(fmt.Sprintf("%s (run %s)", recipeName(s.Recipe), s.RunID)))

	if s.Skipped() {
		fmt.Fprintln(&b, p.style.muted.Render("Gate closed: this node is not a target, nothing to do."))
		_, err := io.WriteString(p.w, b.String())
		return err
	}

	for _, r := range s.Results() {
		line := fmt.Sprintf(" %s %s", p.icon(r.Outcome), r.StepName)
		if r.Message != "" {
			line += ": " + r.Message
		}
		if r.Attempts > 1 {
			line += fmt.Sprintf(" [%d attempts]", r.Attempts)
		}
		if r.Duration > 0 {
			line += " " + p.style.muted.Render("("+r.Duration.Truncate(time.Millisecond).String()+")")
		}
		fmt.Fprintln(&b, line)
		if r.Error != "" {
			fmt.Fprintln(&b, "     "+p.style.failed.Render(r.Error))
		}
	}

	fmt.Fprintln(&b)
	totals := fmt.Sprintf("%d applied, %d already satisfied, %d failed in %s",
		s.Count(model.OutcomeApplied),
		s.Count(model.OutcomeAlreadySatisfied),
		s.Count(model.OutcomeFailed),
		s.Duration().Truncate(time.Millisecond))
	if s.Outcome == model.RunSuccess {
		fmt.Fprintln(&b, p.style.ok.Render("Run succeeded: ")+totals)
	} else {
		fmt.Fprintln(&b, p.style.failed.Render("Run aborted: ")+totals)
	}

	_, err := io.WriteString(p.w, b.String())
	return err
}

// Preview prints what a plan found, including content diffs.
func (p *Printer) Preview(recipe string, preview *engine.Preview) error {
	if preview == nil {
		return nil
	}
	if p.json {
		return p.writeJSON(preview)
	}

	var b strings.Builder
	fmt.Fprintln(&b, p.style.title.Render("Plan for "+recipeName(recipe)))
	if !preview.GateOpen {
		fmt.Fprintln(&b, p.style.muted.Render("Gate closed: this node is not a target, nothing would run."))
		_, err := io.WriteString(p.w, b.String())
		return err
	}

	for _, s := range preview.Steps {
		var marker string
		switch {
		case s.Error != "":
			marker = p.style.muted.Render("?")
		case s.RequiresAction:
			marker = p.style.applied.Render("~")
		default:
			marker = p.style.ok.Render("✓")
		}
		line := fmt.Sprintf(" %s %s", marker, s.StepName)
		if s.Message != "" {
			line += ": " + s.Message
		}
		fmt.Fprintln(&b, line)
		if s.Error != "" {
			fmt.Fprintln(&b, "     "+p.style.muted.Render("cannot probe yet: "+s.Error))
		}
		if s.Diff != "" {
			b.WriteString(p.diff(s.Diff))
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, p.style.section.Render(fmt.Sprintf("%d of %d steps would change", preview.Pending(), len(preview.Steps))))

	_, err := io.WriteString(p.w, b.String())
	return err
}

func (p *Printer) diff(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			line = p.style.muted.Render(line)
		case strings.HasPrefix(line, "+"):
			line = p.style.added.Render(line)
		case strings.HasPrefix(line, "-"):
			line = p.style.removed.Render(line)
		}
		b.WriteString("     " + line + "\n")
	}
	return b.String()
}

type historyEntry struct {
	RunID      string           `json:"run_id"`
	Recipe     string           `json:"recipe"`
	State      model.RunState   `json:"state"`
	Outcome    model.RunOutcome `json:"outcome"`
	StartedAt  time.Time        `json:"started_at"`
	Duration   string           `json:"duration"`
	Applied    int              `json:"applied"`
	Satisfied  int              `json:"already_satisfied"`
	FailedStep string           `json:"failed_step,omitempty"`
}

// History prints recorded runs as a table.
func (p *Printer) History(runs []*model.RunSummary) error {
	entries := make([]historyEntry, 0, len(runs))
	for _, r := range runs {
		e := historyEntry{
			RunID:     r.RunID,
			Recipe:    r.Recipe,
			State:     r.State,
			Outcome:   r.Outcome,
			StartedAt: r.StartedAt,
			Duration:  r.Duration().Truncate(time.Millisecond).String(),
			Applied:   r.Count(model.OutcomeApplied),
			Satisfied: r.Count(model.OutcomeAlreadySatisfied),
		}
		if failed, ok := r.FailedStep(); ok {
			e.FailedStep = failed.StepName
		}
		entries = append(entries, e)
	}

	if p.json {
		return p.writeJSON(entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(p.w, "No runs recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tRECIPE\tSTARTED\tSTATE\tAPPLIED\tSATISFIED\tDURATION\tFAILED STEP")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.RunID,
			e.Recipe,
			e.StartedAt.Local().Format(time.DateTime),
			e.State,
			e.Applied,
			e.Satisfied,
			e.Duration,
			valueOr(e.FailedStep, "-"),
		)
	}
	return tw.Flush()
}

func recipeName(name string) string {
	return valueOr(name, "(unnamed recipe)")
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
