package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI color codes
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// termStyle provides terminal styling helpers with automatic color detection
type termStyle struct {
	out       io.Writer
	useColors bool
}

func newTermStyle() *termStyle {
	return &termStyle{
		out:       os.Stdout,
		useColors: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// plainStyle writes uncolored output to w.
func plainStyle(w io.Writer) *termStyle {
	return &termStyle{out: w}
}

func (t *termStyle) colorize(code, text string) string {
	if !t.useColors {
		return text
	}
	return code + text + ansiReset
}

// Header prints a section header with divider bars
func (t *termStyle) Header(title string) {
	bar := strings.Repeat("━", 72)
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, t.colorize(ansiCyan, bar))
	fmt.Fprintln(t.out, t.colorize(ansiBold+ansiCyan, "  "+title))
	fmt.Fprintln(t.out, t.colorize(ansiCyan, bar))
	fmt.Fprintln(t.out)
}

// Success prints a success message with green checkmark
func (t *termStyle) Success(msg string) {
	fmt.Fprintln(t.out, t.colorize(ansiGreen, "✓ "+msg))
}

// Warn prints a warning message with yellow warning symbol
func (t *termStyle) Warn(msg string) {
	fmt.Fprintln(t.out, t.colorize(ansiYellow, "⚠ "+msg))
}

// Error prints an error message with red X
func (t *termStyle) Error(msg string) {
	fmt.Fprintln(t.out, t.colorize(ansiRed, "✗ "+msg))
}

// Dim returns dimmed text
func (t *termStyle) Dim(text string) string {
	return t.colorize(ansiDim, text)
}

// Bold returns bold text
func (t *termStyle) Bold(text string) string {
	return t.colorize(ansiBold, text)
}

// Cyan returns cyan text (for URLs, commands, paths)
func (t *termStyle) Cyan(text string) string {
	return t.colorize(ansiCyan, text)
}

// Yellow returns yellow text (hashes)
func (t *termStyle) Yellow(text string) string {
	return t.colorize(ansiYellow, text)
}

// Green returns green text
func (t *termStyle) Green(text string) string {
	return t.colorize(ansiGreen, text)
}

// Red returns red text
func (t *termStyle) Red(text string) string {
	return t.colorize(ansiRed, text)
}

// Println prints normal text with newline
func (t *termStyle) Println(text string) {
	fmt.Fprintln(t.out, text)
}

// Printf prints formatted text
func (t *termStyle) Printf(format string, args ...interface{}) {
	fmt.Fprintf(t.out, format, args...)
}

// KeyValue prints a key-value pair for summaries
func (t *termStyle) KeyValue(key, value string) {
	fmt.Fprintf(t.out, "  %s  %s\n", t.Bold(fmt.Sprintf("%-12s", key+":")), value)
}

// Code prints a code block or command (indented and cyan)
func (t *termStyle) Code(lines ...string) {
	for _, line := range lines {
		fmt.Fprintf(t.out, "     %s\n", t.Cyan(line))
	}
}

// Blank prints a blank line
func (t *termStyle) Blank() {
	fmt.Fprintln(t.out)
}
