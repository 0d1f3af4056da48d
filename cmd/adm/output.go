package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/breeze-rmm/adm/internal/reconcile"
)

var (
	colorOK   = lipgloss.Color("#9ece6a")
	colorWarn = lipgloss.Color("#e0af68")
	colorErr  = lipgloss.Color("#f7768e")
	colorDim  = lipgloss.Color("#565f89")

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	errStyle    = lipgloss.NewStyle().Foreground(colorErr)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func paint(w io.Writer, style lipgloss.Style, s string) string {
	if !isTerminal(w) {
		return s
	}
	return style.Render(s)
}

// renderTable draws rows under headers. On a terminal the table gets a
// rounded border and the status column is colored by colorCol.
func renderTable(w io.Writer, headers []string, rows [][]string, colorCol int) string {
	tty := isTerminal(w)
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if tty && col == colorCol && row >= 0 && row < len(rows) {
				return cellStyle.Inherit(statusStyle(rows[row][col]))
			}
			return cellStyle
		})
	if tty {
		t = t.Border(lipgloss.RoundedBorder()).BorderStyle(dimStyle)
	} else {
		t = t.Border(lipgloss.HiddenBorder()).BorderTop(false).BorderBottom(false).BorderLeft(false).BorderRight(false)
	}
	return t.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running", "ok":
		return okStyle
	case "disabled", "error":
		return errStyle
	case "stopped", "not_running", "skipped":
		return warnStyle
	}
	return dimStyle
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome reports a batch as "<verb>: N succeeded, M failed" followed
// by the targets. It never fails the command; per-target failures are
// reported, not propagated.
func printOutcome(w io.Writer, verb string, out reconcile.Outcome) {
	fmt.Fprintf(w, "%s: %s\n", verb, out.Summary())
	for _, s := range out.Successes {
		fmt.Fprintf(w, "  %s %s\n", paint(w, okStyle, "ok  "), s)
	}
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s %s: %v\n", paint(w, errStyle, "fail"), e.Target, e.Err)
	}
	for _, e := range out.Warnings {
		fmt.Fprintf(w, "  %s %s: %v\n", paint(w, warnStyle, "warn"), e.Target, e.Err)
	}
	if n := len(out.Skipped); n > 0 {
		fmt.Fprintf(w, "  %s %d target(s) without a descriptor\n", paint(w, dimStyle, "skip"), n)
		for _, s := range out.Skipped {
			fmt.Fprintf(w, "       %s\n", s)
		}
	}
}
