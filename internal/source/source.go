package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"

	"github.com/sokinpui/dgtool/internal/ui"
)

// SourceProvider determines and retrieves patch text.
type SourceProvider struct {
	// File, when set, is read instead of stdin or the clipboard. "-" means stdin.
	File string

	stdin     *os.File
	readClip  func() (string, error)
	writeClip func(string) error
}

// New creates a new SourceProvider.
func New(file string) *SourceProvider {
	return &SourceProvider{
		File:      file,
		stdin:     os.Stdin,
		readClip:  clipboard.ReadAll,
		writeClip: clipboard.WriteAll,
	}
}

func (sp *SourceProvider) piped() bool {
	fd := sp.stdin.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// GetContent retrieves content from File, stdin (if piped) or the clipboard.
func (sp *SourceProvider) GetContent() (string, error) {
	if sp.File != "" && sp.File != "-" {
		data, err := os.ReadFile(sp.File)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", sp.File, err)
		}
		return string(data), nil
	}

	if sp.File == "-" || sp.piped() {
		ui.Header("--- Reading from stdin ---")
		content, err := io.ReadAll(sp.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := sp.readClip()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}

// Copy puts text on the clipboard.
func (sp *SourceProvider) Copy(text string) error {
	if err := sp.writeClip(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}
