package patcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// contextBlock builds the search pattern for a hunk: lines guaranteed to be
// present in the base file (context and removed lines), skipping blank ones
// so that whitespace-only drift does not prevent a match.
func contextBlock(hunk []string) []string {
	var block []string
	for _, line := range hunk {
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, " ") {
			continue
		}
		if content := line[1:]; strings.TrimSpace(content) != "" {
			block = append(block, content)
		}
	}
	return block
}

// normalizeLine collapses all whitespace runs to a single space.
func normalizeLine(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// findBlock returns the 1-based line in source where block begins, or -1.
// Blank lines in source are ignored and comparison is whitespace-normalized;
// the returned number refers to the unfiltered source.
func findBlock(source, block []string) int {
	if len(block) == 0 {
		return -1
	}

	want := make([]string, len(block))
	for i, line := range block {
		want[i] = normalizeLine(line)
	}

	var filtered []string
	var lineNumbers []int
	for i, line := range source {
		if n := normalizeLine(line); n != "" {
			filtered = append(filtered, n)
			lineNumbers = append(lineNumbers, i+1)
		}
	}

	for i := 0; i <= len(filtered)-len(want); i++ {
		match := true
		for j := range want {
			if filtered[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return lineNumbers[i]
		}
	}
	return -1
}

func hunkHeader(oldStart, oldLines, newStart, newLines int, section string) string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@%s\n", oldStart, oldLines, newStart, newLines, section)
}

// repairFile recomputes every hunk header of fp against the base file's
// lines. Hunks with no context (file creation) keep a zero old range.
func repairFile(fp FilePatch, source []string) (string, error) {
	var b strings.Builder
	for _, l := range fp.Preamble {
		b.WriteString(l + "\n")
	}
	b.WriteString(fp.OldHeader + "\n")
	b.WriteString(fp.NewHeader + "\n")

	offset := 0
	for i, h := range fp.Hunks {
		added, removed := h.Added(), h.Removed()
		context := 0
		for _, l := range h.Lines {
			if strings.HasPrefix(l, " ") {
				context++
			}
		}
		oldLines := context + removed
		newLines := context + added

		var oldStart int
		if oldLines == 0 {
			oldStart = 0
		} else {
			oldStart = findBlock(source, contextBlock(h.Lines))
			if oldStart == -1 {
				return "", fmt.Errorf("hunk %d: context not found in base file", i+1)
			}
		}
		newStart := oldStart + offset
		if oldLines == 0 && newStart == 0 {
			newStart = 1
		}

		b.WriteString(hunkHeader(oldStart, oldLines, newStart, newLines, h.Section))
		for _, l := range h.Lines {
			b.WriteString(l + "\n")
		}
		offset += newLines - oldLines
	}
	return b.String(), nil
}

// parseLoose splits a patch whose hunk headers cannot be trusted. Hunk
// bodies run until the next "@@" or file header regardless of the counts
// the header declares. Blank lines inside a hunk are context lines whose
// leading space was stripped, unless nothing but headers follows them.
func parseLoose(text string) []FilePatch {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var files []FilePatch
	var preamble []string
	var cur *FilePatch
	var hunk *Hunk
	blanks := 0
	flush := func() {
		blanks = 0
		if hunk != nil && cur != nil {
			cur.Hunks = append(cur.Hunks, *hunk)
		}
		hunk = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			flush()
			if cur != nil {
				files = append(files, *cur)
			}
			cur = &FilePatch{
				Preamble:  preamble,
				OldHeader: line,
				NewHeader: lines[i+1],
				OldPath:   headerPath(line[4:]),
				NewPath:   headerPath(lines[i+1][4:]),
			}
			preamble = nil
			i++
		case strings.HasPrefix(line, "diff "):
			flush()
			if cur != nil {
				files = append(files, *cur)
				cur = nil
			}
			preamble = append(preamble, line)
		case cur != nil && strings.HasPrefix(line, "@@"):
			flush()
			h := Hunk{}
			if m := hunkHeaderRegex.FindStringSubmatch(line); m != nil {
				h.Section = m[5]
			}
			hunk = &h
		case hunk != nil && line == "":
			blanks++
		case hunk != nil && (strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") ||
			strings.HasPrefix(line, " ") || strings.HasPrefix(line, `\`)):
			for ; blanks > 0; blanks-- {
				hunk.Lines = append(hunk.Lines, " ")
			}
			hunk.Lines = append(hunk.Lines, line)
		case cur == nil:
			if line != "" {
				preamble = append(preamble, line)
			}
		}
	}
	flush()
	if cur != nil {
		files = append(files, *cur)
	}
	return files
}

// RepairPatch rewrites the hunk headers of a hand-edited patch so that the
// start lines and counts match the hunk bodies and the files under baseDir.
// Paths are resolved by stripping strip leading segments, as patch -p does.
func RepairPatch(text, baseDir string, strip int) (string, error) {
	files := parseLoose(text)
	if len(files) == 0 {
		return "", fmt.Errorf("no file headers found")
	}

	var out strings.Builder
	for _, fp := range files {
		target := fp.OldPath
		if target == "/dev/null" {
			target = fp.NewPath
		}
		rel, ok := StripPath(target, strip)
		if !ok {
			return "", fmt.Errorf("%s: too few path segments for -p%d", target, strip)
		}

		var source []string
		if data, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(rel))); err == nil {
			source = strings.Split(string(data), "\n")
		}

		fixed, err := repairFile(fp, source)
		if err != nil {
			return "", fmt.Errorf("%s: %w", rel, err)
		}
		out.WriteString(fixed)
	}
	return out.String(), nil
}
