// Package verify checks that a library's generated patch, applied to the
// template's files, reproduces the instance's files exactly.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/patcher"
)

// Mismatch is a tracked file whose round trip differs from the instance.
type Mismatch struct {
	File string
	// Diff shows instance lines as "-" and round-trip lines as "+".
	Diff string
}

// Report is the outcome of one library's round trip.
type Report struct {
	Library    string
	Files      int
	Patch      *patcher.LibraryPatch
	Mismatches []Mismatch
}

// OK reports whether every tracked file matched.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

// Verifier runs round trips with the given generator and applier.
type Verifier struct {
	Generator *patcher.Generator
	Applier   *patcher.Applier
	// TempDir is the parent of scratch trees. Empty means os.TempDir.
	TempDir string
}

// RoundTrip generates lib's patch in memory, applies it to a scratch copy
// of the template's tracked files and compares the result with the
// instance.
func (v *Verifier) RoundTrip(ctx context.Context, roots patcher.Roots, lib manifest.Library) (*Report, error) {
	p, err := v.Generator.Diff(ctx, roots, lib)
	if err != nil {
		return nil, err
	}
	if skipped := p.Skipped(); len(skipped) > 0 {
		return nil, fmt.Errorf("%s: %d file(s) could not be diffed", lib.Name, len(skipped))
	}

	scratch, err := os.MkdirTemp(v.TempDir, "dgtool-verify-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	src := filepath.Join(scratch, filepath.FromSlash(lib.Source))
	if err := os.MkdirAll(src, 0o755); err != nil {
		return nil, err
	}
	for _, f := range lib.Files {
		from := filepath.Join(roots.Template, filepath.FromSlash(lib.Source), filepath.FromSlash(f))
		if err := copyIfExists(from, filepath.Join(src, filepath.FromSlash(f))); err != nil {
			return nil, err
		}
	}

	if _, err := v.Applier.ApplyText(ctx, p.Text, lib.Name+" (generated)", src, patcher.ApplyOptions{Strip: lib.StripDepth()}); err != nil {
		return nil, err
	}

	rep := &Report{Library: lib.Name, Files: len(lib.Files), Patch: p}
	for _, f := range lib.Files {
		want, wantOK, err := readOptional(filepath.Join(roots.Instance, filepath.FromSlash(lib.Source), filepath.FromSlash(f)))
		if err != nil {
			return nil, err
		}
		got, gotOK, err := readOptional(filepath.Join(src, filepath.FromSlash(f)))
		if err != nil {
			return nil, err
		}
		switch {
		case wantOK != gotOK:
			state := "missing after round trip"
			if gotOK {
				state = "present after round trip but absent in instance"
			}
			rep.Mismatches = append(rep.Mismatches, Mismatch{File: f, Diff: state})
		case want != got:
			rep.Mismatches = append(rep.Mismatches, Mismatch{File: f, Diff: LineDiff(want, got)})
		}
	}
	return rep, nil
}

// LineDiff renders a line-level diff of a against b.
func LineDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix + line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteString("\n\\ No newline at end of file\n")
			}
		}
	}
	return out.String()
}

func readOptional(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func copyIfExists(from, to string) error {
	data, ok, err := readOptional(from)
	if err != nil || !ok {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return os.WriteFile(to, []byte(data), 0o644)
}
