package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/sokinpui/dgtool/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PromptColor  = color.New(color.FgMagenta)
)

// Output receives every message. Tests swap it for a buffer.
var Output io.Writer = os.Stderr

func init() {
	if !IsTerminal(os.Stderr) {
		color.NoColor = true
	}
}

// IsTerminal reports whether f is a terminal, including Cygwin ptys.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// --- Summaries ---

// PrintSummary prints what a command did under the given title.
func PrintSummary(title string, s model.Summary) {
	Header("\n--- %s ---", title)
	if s.Message != "" {
		Success("%s", s.Message)
	}
	if s.Empty() {
		Info("Nothing to do.")
		return
	}
	printList(SuccessColor, "Done", s.Done)
	printList(WarningColor, "Skipped", s.Skipped)
	printList(ErrorColor, "Failed", s.Failed)
}

func printList(c *color.Color, label string, items []string) {
	if len(items) == 0 {
		return
	}
	c.Fprintf(Output, "%s (%d):\n", label, len(items))
	for _, item := range items {
		fmt.Fprintf(Output, "  - %s\n", item)
	}
}

// --- Progress Bar ---

// ProgressBar renders how many of a command's stages have finished.
type ProgressBar struct {
	total   int
	current int
}

func NewProgressBar(total int) *ProgressBar {
	return &ProgressBar{total: total}
}

// Set records that current of total stages are done.
func (p *ProgressBar) Set(current, total int) {
	p.current, p.total = current, total
}

func (p *ProgressBar) String() string {
	const barLength = 20
	percent := 0.0
	if p.total > 0 {
		percent = float64(p.current) / float64(p.total)
	}
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)
	return fmt.Sprintf("|%s| [%d/%d] %.0f%%", bar, p.current, p.total, percent*100)
}
