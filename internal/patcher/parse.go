package patcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// hunkHeaderRegex matches "@@ -l[,s] +l[,s] @@" with an optional section name.
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// Hunk is one "@@" section of a unified diff.
type Hunk struct {
	OldStart, OldLines int
	NewStart, NewLines int
	Section            string
	// Lines keep their ' ', '+', '-' or '\' prefix.
	Lines []string
}

// Added counts '+' lines.
func (h Hunk) Added() int { return h.count('+') }

// Removed counts '-' lines.
func (h Hunk) Removed() int { return h.count('-') }

func (h Hunk) count(prefix byte) int {
	n := 0
	for _, l := range h.Lines {
		if len(l) > 0 && l[0] == prefix {
			n++
		}
	}
	return n
}

// FilePatch is the part of a patch concerning one file.
type FilePatch struct {
	// Preamble holds lines preceding the "---" header, such as the
	// "diff -urN ..." command line.
	Preamble  []string
	OldHeader string // Full "--- ..." line.
	NewHeader string // Full "+++ ..." line.
	OldPath   string
	NewPath   string
	Hunks     []Hunk
}

// Added counts '+' lines across hunks.
func (f FilePatch) Added() int {
	n := 0
	for _, h := range f.Hunks {
		n += h.Added()
	}
	return n
}

// Removed counts '-' lines across hunks.
func (f FilePatch) Removed() int {
	n := 0
	for _, h := range f.Hunks {
		n += h.Removed()
	}
	return n
}

// ParsePatch splits concatenated unified-diff text into per-file sections.
// Hunk bodies are consumed by their declared line counts so that content
// lines beginning with "---" are not mistaken for headers.
func ParsePatch(text string) ([]FilePatch, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var files []FilePatch
	var preamble []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		if !strings.HasPrefix(line, "--- ") || i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
			preamble = append(preamble, line)
			i++
			continue
		}

		fp := FilePatch{
			Preamble:  preamble,
			OldHeader: line,
			NewHeader: lines[i+1],
			OldPath:   headerPath(line[4:]),
			NewPath:   headerPath(lines[i+1][4:]),
		}
		preamble = nil
		i += 2

		for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
			h, next, err := parseHunk(lines, i)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fp.NewPath, err)
			}
			fp.Hunks = append(fp.Hunks, h)
			i = next
		}
		files = append(files, fp)
	}
	return files, nil
}

func parseHunk(lines []string, i int) (Hunk, int, error) {
	m := hunkHeaderRegex.FindStringSubmatch(lines[i])
	if m == nil {
		return Hunk{}, 0, fmt.Errorf("line %d: malformed hunk header %q", i+1, lines[i])
	}
	h := Hunk{
		OldStart: atoi(m[1]),
		OldLines: atoiDefault(m[2], 1),
		NewStart: atoi(m[3]),
		NewLines: atoiDefault(m[4], 1),
		Section:  m[5],
	}
	i++

	oldLeft, newLeft := h.OldLines, h.NewLines
	for i < len(lines) && (oldLeft > 0 || newLeft > 0) {
		l := lines[i]
		switch {
		case strings.HasPrefix(l, "+"):
			newLeft--
		case strings.HasPrefix(l, "-"):
			oldLeft--
		case strings.HasPrefix(l, " "), l == "":
			// GNU diff may emit an empty context line without the leading space.
			oldLeft--
			newLeft--
			if l == "" {
				l = " "
			}
		case strings.HasPrefix(l, `\`):
		default:
			return Hunk{}, 0, fmt.Errorf("line %d: unexpected line in hunk: %q", i+1, l)
		}
		h.Lines = append(h.Lines, l)
		i++
	}
	if oldLeft != 0 || newLeft != 0 {
		return Hunk{}, 0, fmt.Errorf("line %d: truncated hunk", i)
	}
	// "\ No newline at end of file" trails the last line it refers to.
	for i < len(lines) && strings.HasPrefix(lines[i], `\`) {
		h.Lines = append(h.Lines, lines[i])
		i++
	}
	return h, i, nil
}

// headerPath strips the tab-separated timestamp from a "---"/"+++" value.
func headerPath(v string) string {
	if tab := strings.IndexByte(v, '\t'); tab >= 0 {
		v = v[:tab]
	}
	return strings.TrimSpace(v)
}

// StripPath removes n leading segments from a header path, mirroring
// patch -pN. It reports false when the path has too few segments.
func StripPath(p string, n int) (string, bool) {
	segs := strings.Split(p, "/")
	var kept []string
	for _, s := range segs {
		if s != "" {
			kept = append(kept, s)
		}
	}
	if strings.HasPrefix(p, "/") {
		// "/a/b" has an empty first segment that -p counts.
		n--
	}
	if n < 0 {
		n = 0
	}
	if n >= len(kept) {
		return "", false
	}
	return strings.Join(kept[n:], "/"), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	return atoi(s)
}
