package diff

import (
	"bufio"
	"regexp"
	"strings"
)

const (
	fileHeader   = "diff --git "
	binaryMarker = "Binary files "
)

// hunkHeaderRegex matches @@ -oldStart,oldCount +newStart,newCount @@ optional
var hunkHeaderRegex = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+\d+(?:,\d+)? @@`)

// Parse splits the output of `git diff --no-color` into file sections. Text
// before the first "diff --git " line is ignored. Empty input produces nil.
func Parse(text string) []File {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var (
		files []File
		cur   *File
		hunk  *Hunk
	)
	closeHunk := func() {
		if cur != nil && hunk != nil {
			cur.Hunks = append(cur.Hunks, *hunk)
		}
		hunk = nil
	}
	closeFile := func() {
		closeHunk()
		if cur != nil {
			files = append(files, *cur)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, fileHeader):
			closeFile()
			a, b := parseDiffGitLine(line)
			cur = &File{Path: firstNonEmpty(b, a)}
			continue
		case cur == nil:
			continue
		case hunk == nil && strings.HasPrefix(line, "--- "):
			if cur.Path == "" {
				cur.Path = parsePathLine(line, "--- ")
			}
			continue
		case hunk == nil && strings.HasPrefix(line, "+++ "):
			if p := parsePathLine(line, "+++ "); p != "" && p != "/dev/null" {
				cur.Path = p
			}
			continue
		case isBinaryNotice(line):
			cur.Binary = true
			continue
		case hunkHeaderRegex.MatchString(line):
			closeHunk()
			hunk = &Hunk{Header: line}
			continue
		}
		if hunk == nil || line == "" {
			continue
		}
		switch line[0] {
		case '+':
			hunk.Added++
		case '-':
			hunk.Removed++
		}
	}
	closeFile()
	return files
}

func parseDiffGitLine(line string) (a, b string) {
	// "diff --git a/path b/path"
	parts := strings.Fields(strings.TrimPrefix(line, fileHeader))
	if len(parts) >= 2 {
		a = trimDiffPath(parts[0])
		b = trimDiffPath(parts[len(parts)-1])
	}
	return a, b
}

func trimDiffPath(s string) string {
	if len(s) >= 2 && (s[0] == 'a' || s[0] == 'b') && s[1] == '/' {
		return s[2:]
	}
	return s
}

func parsePathLine(line, prefix string) string {
	s := strings.TrimPrefix(line, prefix)
	if idx := strings.Index(s, "\t"); idx >= 0 {
		s = s[:idx]
	}
	return trimDiffPath(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
