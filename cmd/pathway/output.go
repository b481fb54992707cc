package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kalambet/pathway/internal/catalog"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Status lines go to stderr so stdout stays clean for JSON output and, under
// `start --mcp`, for the MCP transport.
var statusOut io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printLine(color, symbol, format string, args ...any) {
	fmt.Fprintln(statusOut, colorize(color, symbol+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printLine(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { printLine(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { printLine(colorYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { printLine(colorCyan, "→", format, args...) }

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(statusOut, "  %s %s\n", colorize(colorBold, label+":"), val)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printQuestions lists each question followed by its indented options, the
// ids being what `pathway quiz answer` takes.
func printQuestions(w io.Writer, questions []catalog.Question) {
	for _, q := range questions {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, q.ID), q.Text)
		for _, o := range q.Options {
			fmt.Fprintf(w, "    %s  %s\n", colorize(colorCyan, o.ID), o.Label)
		}
	}
}

func printStreams(w io.Writer, streams []catalog.Category) {
	for i, c := range streams {
		fmt.Fprintf(w, "%d. %s %s\n", i+1, colorize(colorBold, c.Title), colorize(colorCyan, "("+c.ID+")"))
		if c.Description != "" {
			fmt.Fprintf(w, "   %s\n", c.Description)
		}
	}
}
