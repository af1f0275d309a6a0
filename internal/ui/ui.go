// Package ui prints the terminal summary of a run.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jfcarrano/brunnhilde/internal/stats"
)

// Colors
var (
	Primary = lipgloss.Color("#7D56F4")
	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(Primary).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(22)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	OKStyle   = lipgloss.NewStyle().Foreground(Success)
	WarnStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)
	FailStyle = lipgloss.NewStyle().Foreground(Error).Bold(true)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(Primary).
			Padding(0, 1)
)

// Completion describes a finished run.
type Completion struct {
	Basename   string
	ReportPath string
	Summary    *stats.Summary

	// Infected is the antivirus count, or -1 when unknown.
	Infected int
	Elapsed  time.Duration
}

// PrintSummary writes a boxed run summary to w.
func PrintSummary(w io.Writer, c Completion) {
	var b strings.Builder
	row := func(label, value string, style lipgloss.Style) {
		b.WriteString(LabelStyle.Render(label))
		b.WriteString(style.Render(value))
		b.WriteString("\n")
	}

	s := c.Summary
	if s == nil {
		s = &stats.Summary{}
	}
	row("Total files:", fmt.Sprintf("%d", s.Files), ValueStyle)
	row("Total size:", s.Size, ValueStyle)
	row("Identified files:", fmt.Sprintf("%d", s.Identified()), ValueStyle)
	row("Identified formats:", fmt.Sprintf("%d", s.Formats), ValueStyle)

	unidentified := OKStyle
	if s.Unidentified > 0 {
		unidentified = WarnStyle
	}
	row("Unidentified files:", fmt.Sprintf("%d", s.Unidentified), unidentified)

	if s.Hashing {
		row("Duplicate copies:", fmt.Sprintf("%d", s.DuplicateCopies), ValueStyle)
	}

	errs := OKStyle
	if s.Errors > 0 {
		errs = FailStyle
	}
	row("Siegfried errors:", fmt.Sprintf("%d", s.Errors), errs)

	switch {
	case c.Infected > 0:
		row("Infected files:", fmt.Sprintf("%d", c.Infected), FailStyle)
	case c.Infected == 0:
		row("Infected files:", "0", OKStyle)
	}

	if c.Elapsed > 0 {
		row("Elapsed:", c.Elapsed.Round(time.Millisecond).String(), ValueStyle)
	}
	row("Report:", c.ReportPath, ValueStyle)

	fmt.Fprintln(w, TitleStyle.Render("Brunnhilde: "+c.Basename))
	fmt.Fprintln(w, BoxStyle.Render(strings.TrimSuffix(b.String(), "\n")))
}
