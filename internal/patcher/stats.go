package patcher

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// FileStat summarizes one file section of a patch.
type FileStat struct {
	Path    string
	Hunks   int
	Added   int
	Removed int
}

// Stats summarizes each file in a parsed patch. The path reported is the
// new side unless the file is being deleted.
func Stats(files []FilePatch) []FileStat {
	out := make([]FileStat, 0, len(files))
	for _, f := range files {
		p := f.NewPath
		if p == "/dev/null" {
			p = f.OldPath
		}
		out = append(out, FileStat{Path: p, Hunks: len(f.Hunks), Added: f.Added(), Removed: f.Removed()})
	}
	return out
}

// WriteStats prints a table of stats followed by a total line.
func WriteStats(w io.Writer, stats []FileStat) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tHUNKS\t+\t-")
	var hunks, added, removed int
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Path, s.Hunks, s.Added, s.Removed)
		hunks += s.Hunks
		added += s.Added
		removed += s.Removed
	}
	fmt.Fprintf(tw, "%d file(s)\t%d\t%d\t%d\n", len(stats), hunks, added, removed)
	return tw.Flush()
}
