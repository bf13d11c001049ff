package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/dgtool/cli"
	"github.com/sokinpui/dgtool/internal/app"
	"github.com/sokinpui/dgtool/internal/runner"
	"github.com/sokinpui/dgtool/internal/tui"
	"github.com/sokinpui/dgtool/internal/ui"
	"github.com/sokinpui/dgtool/model"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return 0
		}
		var ue *cli.UsageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", ue.Err, ue.Usage)
			return exitUsage
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return exitFailure
	}

	var summary model.Summary
	if cfg.Interactive() && ui.IsTerminal(os.Stdout) && ui.IsTerminal(os.Stdin) {
		// Prompts must happen before the view takes over the terminal.
		if err := application.Prepare(); err != nil {
			return report(err)
		}
		m := tui.New(ctx, application, "dgtool "+string(cfg.Command))
		p := tea.NewProgram(m, tea.WithContext(ctx))
		m.SetProgram(p)
		if _, err := p.Run(); err != nil && m.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
			return exitFailure
		}
		if err := m.Err(); err != nil {
			return report(err)
		}
		return 0
	}

	application.Stream = os.Stderr
	bar := ui.NewProgressBar(0)
	application.SetProgressCallback(func(current, total int, name string) {
		bar.Set(current-1, total)
		ui.Info("%s %s ...", bar, name)
	})
	summary, err = application.Execute(ctx)
	if !summary.Empty() || summary.Message != "" {
		ui.PrintSummary("dgtool "+string(cfg.Command), summary)
	}
	if err != nil {
		return report(err)
	}
	return 0
}

func report(err error) int {
	ui.Error("\nfailed: %v", err)
	if h := hint(err); h != "" {
		ui.Warning("%s", h)
	}
	var de *app.DetailedError
	if errors.As(err, &de) {
		fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", de.Stack)
	}
	return exitFailure
}

// hint suggests a fix for errors the user can usually resolve alone.
func hint(err error) string {
	var te *runner.ToolError
	if !errors.As(err, &te) || te.Result.Status != runner.StatusToolNotFound {
		return ""
	}
	name := te.Result.Command.Name
	if filepath.IsAbs(name) {
		return fmt.Sprintf("hint: %s is missing or not executable; check --ndk and the project's scripts", name)
	}
	return fmt.Sprintf("hint: %s is not installed or not in PATH", name)
}
