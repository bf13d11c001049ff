package patcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/runner"
)

// ErrBinaryDiff marks a file that differs but has no textual hunks, such as
// a binary file. patch cannot recreate it.
var ErrBinaryDiff = errors.New("file differs but has no text hunks")

// Roots are the two sides of every diff.
type Roots struct {
	Template string
	Instance string
}

// FileDiff is one tracked file's contribution to a patch.
type FileDiff struct {
	File  string // Relative to the library source.
	Text  string // Empty when the two sides are identical.
	Err   error  // Set when the file was skipped.
	Hunks int
}

// LibraryPatch is the generated patch of one library.
type LibraryPatch struct {
	Library manifest.Library
	Files   []FileDiff
	Text    string
	// Path is where Text was written; empty for in-memory generation.
	Path string
}

// Skipped returns the files whose diff failed under AllowPartial.
func (p *LibraryPatch) Skipped() []FileDiff {
	var out []FileDiff
	for _, f := range p.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Generator produces one unified-diff patch per library by running the
// external diff tool over every tracked file.
type Generator struct {
	Runner *runner.Runner
	// DiffTool defaults to "diff".
	DiffTool string
	// AllowPartial keeps going when an individual file cannot be diffed and
	// skips root validation. Skipped files are reported in LibraryPatch.
	AllowPartial bool
}

// Diff builds the library's patch text in memory.
func (g *Generator) Diff(ctx context.Context, roots Roots, lib manifest.Library) (*LibraryPatch, error) {
	if !g.AllowPartial {
		if err := checkRoots(roots); err != nil {
			return nil, err
		}
	}

	tplBase := filepath.Base(filepath.Clean(roots.Template))
	instBase := filepath.Base(filepath.Clean(roots.Instance))
	if tplBase == instBase {
		// Headers would be indistinguishable; patch would still apply but
		// the file would not say which side is which.
		instBase += ".new"
	}

	out := &LibraryPatch{Library: lib}
	var buf bytes.Buffer
	for _, file := range lib.Files {
		rel := path.Join(filepath.ToSlash(lib.Source), filepath.ToSlash(file))
		fd := FileDiff{File: file}

		res := g.runner().Run(ctx, runner.Command{
			Name: g.diffTool(),
			Args: []string{
				"-urN",
				"--label", path.Join(tplBase, rel),
				"--label", path.Join(instBase, rel),
				filepath.Join(roots.Template, filepath.FromSlash(rel)),
				filepath.Join(roots.Instance, filepath.FromSlash(rel)),
			},
		})

		switch {
		case res.Status == runner.StatusToolNotFound:
			return nil, &runner.ToolError{Result: res}
		case res.Status == runner.StatusSuccess:
			// Identical: empty contribution.
		case res.ExitCode == 1:
			fd.Text = res.Stdout
		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			err := &runner.ToolError{Result: res}
			if !g.AllowPartial {
				return nil, fmt.Errorf("diff %s/%s: %w", lib.Name, file, err)
			}
			fd.Err = err
		}

		if fd.Text != "" {
			fps, err := ParsePatch(fd.Text)
			if err != nil {
				return nil, fmt.Errorf("diff %s/%s produced unparsable output: %w", lib.Name, file, err)
			}
			for _, fp := range fps {
				fd.Hunks += len(fp.Hunks)
			}
			if fd.Hunks == 0 {
				err := fmt.Errorf("%w: %s", ErrBinaryDiff, strings.TrimSpace(fd.Text))
				if !g.AllowPartial {
					return nil, fmt.Errorf("diff %s/%s: %w", lib.Name, file, err)
				}
				fd.Text, fd.Err = "", err
			}
			buf.WriteString(fd.Text)
		}
		out.Files = append(out.Files, fd)
	}
	out.Text = buf.String()
	return out, nil
}

// Generate diffs the library and rewrites dest with the result. On error
// dest is left as it was.
func (g *Generator) Generate(ctx context.Context, roots Roots, lib manifest.Library, dest string) (*LibraryPatch, error) {
	p, err := g.Diff(ctx, roots, lib)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(dest, []byte(p.Text)); err != nil {
		return nil, fmt.Errorf("write patch for %s: %w", lib.Name, err)
	}
	p.Path = dest
	return p, nil
}

func (g *Generator) runner() *runner.Runner {
	if g.Runner == nil {
		return &runner.Runner{}
	}
	return g.Runner
}

func (g *Generator) diffTool() string {
	if g.DiffTool == "" {
		return "diff"
	}
	return g.DiffTool
}

func checkRoots(roots Roots) error {
	for _, r := range []struct{ name, dir string }{
		{"template", roots.Template},
		{"instance", roots.Instance},
	} {
		info, err := os.Stat(r.dir)
		if err != nil {
			return fmt.Errorf("%s root: %w", r.name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s root %s is not a directory", r.name, r.dir)
		}
	}
	return nil
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
