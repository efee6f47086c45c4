package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/pagetrace/pkg/replay"
	"github.com/entrhq/pagetrace/pkg/session"
)

// Color Palette
var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	amber      = lipgloss.Color("#FFD59E")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(mintGreen)

	warnStyle = lipgloss.NewStyle().
			Foreground(amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)
)

func statusStyle(status session.Status) lipgloss.Style {
	switch status {
	case session.StatusOK:
		return okStyle
	case session.StatusRetryable:
		return warnStyle
	default:
		return errorStyle
	}
}

// renderResult prints one action line.
func renderResult(w io.Writer, res *session.ActionResult) {
	label := string(res.Kind)
	if res.Target != nil && res.Target.Label != "" {
		label += " " + res.Target.Label
	}
	line := fmt.Sprintf("%3d  %-18s %s", res.Index, statusStyle(res.Status).Render(string(res.Status)), label)
	if res.Retry != nil && res.Retry.Attempts > 1 {
		line += mutedStyle.Render(fmt.Sprintf("  (%d attempts)", res.Retry.Attempts))
	}
	line += mutedStyle.Render(fmt.Sprintf("  %dms", res.DurationMs))
	fmt.Fprintln(w, line)
	if res.Error != "" {
		fmt.Fprintln(w, "     "+errorStyle.Render(res.Error))
	}
}

// renderRunSummary prints the box shown after a script finishes.
func renderRunSummary(w io.Writer, name string, results []*session.ActionResult, tracePath string) {
	counts := map[session.Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	lines := []string{
		headerStyle.Render(name),
		fmt.Sprintf("%s ok  %s retryable  %s fatal",
			okStyle.Render(fmt.Sprint(counts[session.StatusOK])),
			warnStyle.Render(fmt.Sprint(counts[session.StatusRetryable])),
			errorStyle.Render(fmt.Sprint(counts[session.StatusFatal]))),
	}
	if tracePath != "" {
		lines = append(lines, mutedStyle.Render("trace: "+tracePath))
	}
	fmt.Fprintln(w, summaryBoxStyle.Render(strings.Join(lines, "\n")))
}

// renderReplay prints a replay report.
func renderReplay(w io.Writer, r *replay.Report) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("replay (%s)", r.Mode)))
	for _, m := range r.Mismatches {
		fmt.Fprintf(w, "%3d  %-12s %s  expected %s, got %s\n",
			m.Index, m.Kind, warnStyle.Render(m.Reason), quoteOrDash(m.Expected), quoteOrDash(m.Actual))
	}
	verdict := okStyle.Render("reproduced")
	if !r.OK() {
		verdict = errorStyle.Render("diverged")
	}
	body := fmt.Sprintf("%s\n%d/%d matched  %d mismatched", verdict, r.Matched, r.Total, r.Mismatched)
	if r.Mode == replay.ModeRelaxed {
		body += mutedStyle.Render(fmt.Sprintf("\nselector checks %d, skipped %d", r.SelectorChecks, r.SelectorSkipped))
	}
	body += mutedStyle.Render(fmt.Sprintf("\n%dms", r.DurationMs))
	fmt.Fprintln(w, summaryBoxStyle.Render(body))
}

// renderFlakes prints a flake ranking.
func renderFlakes(w io.Writer, r *replay.FlakeReport) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("flakes (%s, %d runs)", r.Mode, r.Runs)))
	if len(r.Flakes) == 0 {
		fmt.Fprintln(w, okStyle.Render("no flaky actions"))
		return
	}
	for _, f := range r.Flakes {
		style := warnStyle
		if f.MismatchRuns == r.Runs {
			style = errorStyle
		}
		fmt.Fprintf(w, "%3d  %-12s %s  %s\n", f.Index, f.Kind,
			style.Render(fmt.Sprintf("%d/%d", f.MismatchRuns, r.Runs)), strings.Join(f.Reasons, ","))
	}
}

func quoteOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return fmt.Sprintf("%q", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
