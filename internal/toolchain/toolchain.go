// Package toolchain builds the standalone cross-compilation toolchain with
// the NDK's own generator script.
package toolchain

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/runner"
)

// Options for Generate.
type Options struct {
	NDK        string
	ProjectDir string
	API        string
	// Arch overrides the manifest's architecture when set.
	Arch   string
	Config manifest.Toolchain
	// Stream receives the generator's output as it runs.
	Stream io.Writer
}

// InstallDir returns the absolute directory the toolchain is installed into.
func (o Options) InstallDir() string {
	return filepath.Join(o.ProjectDir, filepath.FromSlash(o.Config.InstallDir))
}

// Command returns the generator invocation.
func (o Options) Command() runner.Command {
	arch := o.Arch
	if arch == "" {
		arch = o.Config.Arch
	}
	args := append([]string(nil), o.Config.ExtraArgs...)
	args = append(args,
		"--arch", arch,
		"--api", o.API,
		"--install-dir", o.InstallDir(),
	)
	return runner.Command{
		Name:   filepath.Join(o.NDK, filepath.FromSlash(o.Config.Script)),
		Args:   args,
		Dir:    o.ProjectDir,
		Stream: o.Stream,
	}
}

// Generate runs the NDK's toolchain script. A missing script is reported as
// a *runner.ToolError with StatusToolNotFound.
func Generate(ctx context.Context, r *runner.Runner, opts Options) (string, error) {
	if strings.TrimSpace(opts.API) == "" {
		return "", fmt.Errorf("toolchain: API level is required")
	}
	if opts.Config.Script == "" {
		return "", fmt.Errorf("toolchain: no generator script configured")
	}
	if r == nil {
		r = &runner.Runner{}
	}
	if _, err := r.MustSucceed(ctx, opts.Command()); err != nil {
		return "", fmt.Errorf("create standalone toolchain: %w", err)
	}
	return opts.InstallDir(), nil
}
