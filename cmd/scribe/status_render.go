package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// statusTone selects the label and color of a status line. The CLI only
// distinguishes informational, healthy, and degraded output.
type statusTone int

const (
	statusInfo statusTone = iota
	statusOK
	statusWarn
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var toneStyles = map[statusTone]struct {
	label string
	color string
}{
	statusInfo: {label: "INFO", color: ansiBlue},
	statusOK:   {label: "OK", color: ansiGreen},
	statusWarn: {label: "WARN", color: ansiYellow},
}

// renderStatusLine formats one aligned "Label: [TONE] message" line.
func renderStatusLine(label string, tone statusTone, message string, colorize bool) string {
	style := toneStyles[tone]
	value := "[" + style.label + "]"
	if message != "" {
		value += " " + message
	}
	line := fmt.Sprintf("  %-20s %s", label+":", value)
	if colorize && style.color != "" {
		return style.color + line + ansiReset
	}
	return line
}

// renderSectionHeader returns the section title and a rule of matching width.
func renderSectionHeader(title string, colorize bool) []string {
	header := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(header))
	if colorize {
		return []string{ansiBlue + header + ansiReset, ansiBlue + rule + ansiReset}
	}
	return []string{header, rule}
}

// shouldColorize enables ANSI colors only when writing to a terminal.
func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
