package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"ingest/internal/conformance"
	"ingest/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

type statusStyle struct {
	label string
	color string
}

var statusStyles = map[statusKind]statusStyle{
	statusInfo:  {label: "INFO", color: ansiBlue},
	statusOK:    {label: "OK", color: ansiGreen},
	statusWarn:  {label: "WARN", color: ansiYellow},
	statusError: {label: "ERROR", color: ansiRed},
}

func (k statusKind) style() statusStyle {
	if style, ok := statusStyles[k]; ok {
		return style
	}
	return statusStyles[statusInfo]
}

// renderStatusLine pads label to a fixed column and appends "[KIND] message".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := kind.style()
	var b strings.Builder
	fmt.Fprintf(&b, "%s%-*s [%s]", statusIndent, statusLabelWidth, label+":", style.label)
	if message != "" {
		b.WriteByte(' ')
		b.WriteString(message)
	}
	if colorize {
		return style.color + b.String() + ansiReset
	}
	return b.String()
}

// renderSectionHeader underlines title with a rule of the same width.
func renderSectionHeader(title string, colorize bool) []string {
	title = strings.TrimSpace(title)
	rule := strings.Repeat("=", max(len(title), 3))
	if colorize {
		title = ansiBlue + title + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{title, rule}
}

func writeLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	return lines
}

func traceLines(report conformance.Report, colorize bool) []string {
	var lines []string
	if report.TraceErr != nil {
		lines = append(lines, renderStatusLine("Event order", statusError, report.TraceErr.Error(), colorize))
	} else {
		lines = append(lines, renderStatusLine("Event order", statusOK, fmt.Sprintf("%d events", len(report.Events)), colorize))
	}
	if err := conformance.CheckProgress(report.Progress); err != nil {
		lines = append(lines, renderStatusLine("Progress", statusError, err.Error(), colorize))
	} else if len(report.Progress) == 0 {
		lines = append(lines, renderStatusLine("Progress", statusWarn, "never available", colorize))
	} else {
		lines = append(lines, renderStatusLine("Progress", statusOK, fmt.Sprintf("%d polls, last %d%%", len(report.Progress), report.Progress[len(report.Progress)-1]), colorize))
	}
	if report.Err != nil {
		lines = append(lines, renderStatusLine("Session", statusError, report.Err.Error(), colorize))
	} else {
		lines = append(lines, renderStatusLine("Session", statusOK, fmt.Sprintf("%d tracks negotiated", len(report.Outcomes)), colorize))
	}
	return lines
}
