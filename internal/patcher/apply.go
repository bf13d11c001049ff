package patcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sokinpui/dgtool/internal/runner"
)

// patchedFileRegex extracts target names from patch's progress output.
var patchedFileRegex = regexp.MustCompile(`(?m)^(?:patching|checking) file '?(.*?)'?$`)

// ApplyError reports a patch that did not apply cleanly. The target tree is
// left untouched because every application is preceded by a dry run.
type ApplyError struct {
	PatchFile string
	Dir       string
	Strip     int
	Reverse   bool
	Err       error
}

func (e *ApplyError) Error() string {
	verb := "apply"
	if e.Reverse {
		verb = "revert"
	}
	return fmt.Sprintf("failed to %s %s in %s (-p%d): %v", verb, e.PatchFile, e.Dir, e.Strip, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ApplyOptions control a single application.
type ApplyOptions struct {
	Strip   int
	Reverse bool
	// DryRun stops after the check pass.
	DryRun bool
}

// ApplyResult describes a successful application.
type ApplyResult struct {
	Files []string
	// Empty is set when the patch had no hunks and nothing was run.
	Empty bool
}

// Applier applies patch files with the external patch tool.
type Applier struct {
	Runner *runner.Runner
	// PatchTool defaults to "patch".
	PatchTool string
}

// Apply applies patchFile inside dir. It refuses to double-apply: patch
// runs with --forward so an already-applied hunk is an error.
func (a *Applier) Apply(ctx context.Context, patchFile, dir string, opts ApplyOptions) (*ApplyResult, error) {
	data, err := os.ReadFile(patchFile)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	return a.ApplyText(ctx, string(data), patchFile, dir, opts)
}

// ApplyText is Apply for patch text already in memory. name is used in
// errors only.
func (a *Applier) ApplyText(ctx context.Context, text, name, dir string, opts ApplyOptions) (*ApplyResult, error) {
	fail := func(err error) error {
		return &ApplyError{PatchFile: name, Dir: dir, Strip: opts.Strip, Reverse: opts.Reverse, Err: err}
	}

	files, err := ParsePatch(text)
	if err != nil {
		return nil, fail(err)
	}
	hunks := 0
	for _, f := range files {
		hunks += len(f.Hunks)
	}
	if hunks == 0 {
		if hasBinaryNotice(text) {
			return nil, fail(ErrBinaryDiff)
		}
		return &ApplyResult{Empty: true}, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fail(err)
	}
	if !info.IsDir() {
		return nil, fail(fmt.Errorf("%s is not a directory", dir))
	}
	if opts.Strip < 0 {
		return nil, fail(errors.New("negative strip depth"))
	}

	check, err := a.run(ctx, text, dir, opts, true)
	if err != nil {
		return nil, fail(err)
	}
	if opts.DryRun {
		return &ApplyResult{Files: patchedFiles(check.Stdout)}, nil
	}

	res, err := a.run(ctx, text, dir, opts, false)
	if err != nil {
		return nil, fail(err)
	}
	return &ApplyResult{Files: patchedFiles(res.Stdout)}, nil
}

func (a *Applier) run(ctx context.Context, text, dir string, opts ApplyOptions, dryRun bool) (runner.Result, error) {
	args := []string{
		"-p" + strconv.Itoa(opts.Strip),
		"--forward",
		"--batch",
		"--no-backup-if-mismatch",
		"--reject-file=-",
	}
	if opts.Reverse {
		args = append(args, "--reverse")
	}
	if dryRun {
		args = append(args, "--dry-run")
	}

	r := a.Runner
	if r == nil {
		r = &runner.Runner{}
	}
	tool := a.PatchTool
	if tool == "" {
		tool = "patch"
	}
	return r.MustSucceed(ctx, runner.Command{
		Name:  tool,
		Args:  args,
		Dir:   dir,
		Stdin: strings.NewReader(text),
	})
}

func patchedFiles(out string) []string {
	var files []string
	for _, m := range patchedFileRegex.FindAllStringSubmatch(out, -1) {
		files = append(files, filepath.ToSlash(strings.TrimSpace(m[1])))
	}
	return files
}

// hasBinaryNotice reports whether text carries diff's note for files it
// could not express as hunks.
func hasBinaryNotice(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Binary files ") && strings.HasSuffix(strings.TrimSpace(line), " differ") {
			return true
		}
	}
	return false
}
