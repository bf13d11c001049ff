// Package build drives the vendor build scripts of a set-up project.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/sokinpui/dgtool/internal/buildenv"
	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/runner"
	"github.com/sokinpui/dgtool/model"
)

// Options select what a build run does.
type Options struct {
	// Target is "all", a group name or a component name.
	Target string
	// Clean runs "make clean" in each component before building it.
	Clean bool
	// MakeOnly runs make directly instead of the component's build script.
	MakeOnly bool
	// Jobs is passed to make -j. Zero means the number of CPUs.
	Jobs int
}

// Driver builds a project's components in manifest order.
type Driver struct {
	Runner     *runner.Runner
	ProjectDir string
	Manifest   *manifest.Manifest
	// Env is exported to build scripts. It may be nil for make-only runs.
	Env *buildenv.Env
	// Stream receives tool output as it is produced.
	Stream io.Writer
	// Make defaults to "make".
	Make string
}

// Stages returns one stage per selected component.
func (d *Driver) Stages(opts Options, summary *model.Summary) ([]model.Stage, error) {
	comps, err := d.Manifest.SelectComponents(opts.Target)
	if err != nil {
		return nil, err
	}
	if !opts.MakeOnly && d.Env == nil {
		return nil, buildenv.ErrNotFound
	}

	stages := make([]model.Stage, 0, len(comps))
	for _, c := range comps {
		c := c
		stages = append(stages, model.Stage{
			Name: "build " + c.Name,
			Run: func(ctx context.Context) error {
				if err := d.buildComponent(ctx, c, opts, summary); err != nil {
					summary.Failed = append(summary.Failed, c.Name)
					return fmt.Errorf("build %s: %w", c.Name, err)
				}
				summary.Done = append(summary.Done, c.Name)
				return nil
			},
		})
	}
	return stages, nil
}

// Run builds the selected components. The first failure stops the run.
func (d *Driver) Run(ctx context.Context, opts Options, progress model.ProgressUpdate) (model.Summary, error) {
	var summary model.Summary
	stages, err := d.Stages(opts, &summary)
	if err != nil {
		return summary, err
	}
	err = model.RunStages(ctx, stages, progress)
	return summary, err
}

func (d *Driver) buildComponent(ctx context.Context, c manifest.Component, opts Options, summary *model.Summary) error {
	dir := filepath.Join(d.ProjectDir, filepath.FromSlash(c.Source))
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	if opts.Clean {
		if hasMakefile(dir) {
			if _, err := d.run(ctx, d.makeTool(), []string{"clean"}, dir); err != nil {
				return err
			}
		} else {
			summary.Skipped = append(summary.Skipped, c.Name+": no Makefile to clean")
		}
	}

	if opts.MakeOnly {
		_, err := d.run(ctx, d.makeTool(), []string{"-j" + strconv.Itoa(jobs(opts.Jobs))}, dir)
		return err
	}

	if c.Script == "" {
		return errors.New("no build script configured")
	}
	script := filepath.Join(d.ProjectDir, filepath.FromSlash(c.Script))
	_, err = d.run(ctx, script, nil, dir)
	return err
}

func (d *Driver) run(ctx context.Context, name string, args []string, dir string) (runner.Result, error) {
	r := d.Runner
	if r == nil {
		r = &runner.Runner{}
	}
	cmd := runner.Command{Name: name, Args: args, Dir: dir, Stream: d.Stream}
	if d.Env != nil {
		cmd.Env = d.Env.Environ()
	}
	return r.MustSucceed(ctx, cmd)
}

func (d *Driver) makeTool() string {
	if d.Make != "" {
		return d.Make
	}
	return "make"
}

func hasMakefile(dir string) bool {
	for _, name := range []string{"GNUmakefile", "makefile", "Makefile"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func jobs(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}
