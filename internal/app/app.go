package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/sokinpui/dgtool/cli"
	"github.com/sokinpui/dgtool/internal/fs"
	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/runner"
	"github.com/sokinpui/dgtool/internal/source"
	"github.com/sokinpui/dgtool/model"
)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	runner           *runner.Runner
	sourceProvider   *source.SourceProvider
	progressCallback model.ProgressUpdate

	// Stdin answers confirmation prompts.
	Stdin io.Reader
	// Stdout receives command output meant for pipes.
	Stdout io.Writer
	// Stream receives external tool output as it runs. It stays nil under
	// the spinner view, where tool output is only shown on failure.
	Stream io.Writer

	prepared  bool
	setupDest string
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// New creates a new App instance.
func New(cfg *cli.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("no configuration")
	}
	return &App{
		cfg:            cfg,
		runner:         runner.New(cfg.ToolTimeout),
		sourceProvider: source.New(cfg.Patch.File),
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
	}, nil
}

// SetProgressCallback sets a function to be called as each stage starts.
func (a *App) SetProgressCallback(cb model.ProgressUpdate) {
	a.progressCallback = cb
}

// Prepare performs the interactive part of a command, such as confirming an
// overwrite, so that Execute can run without a terminal. Calling it is
// optional; Execute prepares on its own if needed.
func (a *App) Prepare() error {
	if a.prepared {
		return nil
	}
	a.prepared = true
	if a.cfg.Command == cli.CmdSetup {
		return a.prepareSetup()
	}
	return nil
}

// Execute runs the configured command.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery to provide stack traces for unexpected errors.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	if err := a.Prepare(); err != nil {
		return model.Summary{}, err
	}

	switch a.cfg.Command {
	case cli.CmdSetup:
		return a.setup(ctx)
	case cli.CmdPatchCreate:
		return a.createPatches(ctx)
	case cli.CmdPatchApply:
		return a.applyPatches(ctx, false)
	case cli.CmdPatchRevert:
		return a.applyPatches(ctx, true)
	case cli.CmdPatchShow:
		return a.showPatch()
	case cli.CmdPatchFix:
		return a.fixPatch()
	case cli.CmdPatchVerify:
		return a.verifyPatches(ctx)
	case cli.CmdPatchStatus:
		return a.patchStatus()
	case cli.CmdBuild:
		return a.build(ctx)
	case cli.CmdMakeTemplate:
		return a.makeTemplate(ctx)
	default:
		return model.Summary{}, fmt.Errorf("unknown command %q", a.cfg.Command)
	}
}

// projectRoot locates the project containing dir.
func projectRoot(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	return fs.FindRoot(dir, manifest.FileName, "LIBS_VER")
}

// loadProject locates the project containing dir and loads its manifest.
func loadProject(dir string) (string, *manifest.Manifest, error) {
	root, err := projectRoot(dir)
	if err != nil {
		return "", nil, err
	}
	m, err := manifest.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, m, nil
}

// runIfPresent runs a project-relative script when it exists.
func (a *App) runIfPresent(ctx context.Context, dir string, argv []string) (bool, error) {
	if len(argv) == 0 || argv[0] == "" {
		return false, nil
	}
	script := filepath.Join(dir, filepath.FromSlash(argv[0]))
	if _, err := os.Stat(script); err != nil {
		return false, nil
	}
	_, err := a.runner.MustSucceed(ctx, runner.Command{
		Name:   script,
		Args:   argv[1:],
		Dir:    dir,
		Stream: a.Stream,
	})
	return true, err
}
