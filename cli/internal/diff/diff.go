// Package diff reads the unified diff text produced by git and reports what it
// touches: files, hunks and changed line counts. The numbers feed status
// messages and the diagnostic log; the diff text itself is sent to the model
// unchanged.
package diff

import (
	"fmt"
	"strings"
)

// File is one file section of a unified diff.
type File struct {
	// Path is relative to the repo root; the new side wins for renames.
	Path   string
	Binary bool
	Hunks  []Hunk
}

// Hunk is one @@ block of a file section.
type Hunk struct {
	Header  string
	Added   int
	Removed int
}

// Summary counts what a diff changes.
type Summary struct {
	Files   int
	Binary  int
	Hunks   int
	Added   int
	Removed int
}

// Empty reports whether the summary describes no file at all.
func (s Summary) Empty() bool { return s.Files == 0 }

// String renders the summary for a status line, e.g. "3 files, +12 -4".
func (s Summary) String() string {
	files := "files"
	if s.Files == 1 {
		files = "file"
	}
	out := fmt.Sprintf("%d %s, +%d -%d", s.Files, files, s.Added, s.Removed)
	if s.Binary > 0 {
		out += fmt.Sprintf(" (%d binary)", s.Binary)
	}
	return out
}

// Summarize parses text and totals it. Unparseable input yields a zero Summary.
func Summarize(text string) Summary {
	return SummarizeFiles(Parse(text))
}

// SummarizeFiles totals already parsed files.
func SummarizeFiles(files []File) Summary {
	var s Summary
	for _, f := range files {
		s.Files++
		if f.Binary {
			s.Binary++
		}
		s.Hunks += len(f.Hunks)
		for _, h := range f.Hunks {
			s.Added += h.Added
			s.Removed += h.Removed
		}
	}
	return s
}

// Paths returns the file paths in diff order.
func Paths(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

// isBinaryNotice matches git's "Binary files a/x and b/x differ" line.
func isBinaryNotice(line string) bool {
	return strings.HasPrefix(line, binaryMarker) && strings.HasSuffix(line, " differ")
}
