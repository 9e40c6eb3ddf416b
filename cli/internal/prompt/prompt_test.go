package prompt

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var placeholders = []string{
	PlaceholderLanguage, PlaceholderTone, PlaceholderDocType,
	PlaceholderRules, PlaceholderExamples, PlaceholderGitChanges,
}

func TestBuild_containsDiffOnceAndNoPlaceholders(t *testing.T) {
	t.Parallel()
	diffs := []string{
		"+ added login validation",
		"diff --git a/main.go b/main.go\n@@ -1 +1 @@\n-old\n+new\n",
		"  \n+ unicode: héllo 世界 😀\n",
	}
	for _, d := range diffs {
		got := Build(d)
		assert.Equal(t, 1, strings.Count(got, d), "diff %q must appear exactly once", d)
		for _, p := range placeholders {
			assert.NotContains(t, got, p)
		}
	}
}

func TestBuild_includesStaticSections(t *testing.T) {
	t.Parallel()
	got := Build("+ x")
	assert.Contains(t, got, "- Use English with casual tone")
	assert.Contains(t, got, "- Write the message in markdown")
	assert.Contains(t, got, "**Examples:**")
	assert.Contains(t, got, "- fix: login form validation error")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(got), "**Code Changes:**\n+ x"))
}

func TestDefaultRules_listEveryPrefix(t *testing.T) {
	t.Parallel()
	want := "(" + strings.Join(Prefixes, ", ") + ")"
	assert.Contains(t, Default.Rules, want)
}

func TestDefaultRules_subjectLimitMatchesConstant(t *testing.T) {
	t.Parallel()
	assert.Contains(t, Default.Rules, fmt.Sprintf("Maximum %d characters for the subject line", MaxSubjectChars))
}

func TestRender_placeholderInDiffIsNotExpanded(t *testing.T) {
	t.Parallel()
	d := "+ template uses {{language}} literally"
	got := Build(d)
	assert.Contains(t, got, d)
	assert.Equal(t, 1, strings.Count(got, "{{language}}"))
}

func TestRender_customTemplate(t *testing.T) {
	t.Parallel()
	tmpl := Template{
		Language: "German",
		Tone:     "formal",
		DocType:  "plain text",
		Rules:    "- r",
		Examples: "- e",
		Body:     "{{language}}|{{tone}}|{{docType}}|{{rules}}|{{examples}}|{{gitChanges}}",
	}
	assert.Equal(t, "German|formal|plain text|- r|- e|D", tmpl.Render("D"))
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.in), "EstimateTokens(len %d)", len(tt.in))
	}
}

func TestCheckContext(t *testing.T) {
	t.Parallel()
	assert.Empty(t, CheckContext("small", 32768, 0.9))
	assert.Empty(t, CheckContext(strings.Repeat("x", 1<<20), 0, 0.9), "limit 0 disables the check")

	w := CheckContext(strings.Repeat("x", 4*4000), 4096, 0.9)
	require.NotEmpty(t, w)
	assert.Contains(t, w, "context limit 4096")
}

func TestTruncateDiff(t *testing.T) {
	t.Parallel()
	got, cut := TruncateDiff("short", 0)
	assert.Equal(t, "short", got)
	assert.False(t, cut)

	got, cut = TruncateDiff("short", 100)
	assert.Equal(t, "short", got)
	assert.False(t, cut)

	got, cut = TruncateDiff("0123456789", 4)
	assert.True(t, cut)
	assert.True(t, strings.HasPrefix(got, "0123\n\n[truncated"))
}

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"ascii", "hello world", 5, "hello"},
		{"no truncation", "short", 100, "short"},
		{"exact", "exact", 5, "exact"},
		{"mid two-byte rune", "café", 4, "caf"},
		{"before two-byte rune", "café", 3, "caf"},
		{"mid three-byte rune", "a世b", 3, "a"},
		{"after three-byte rune", "a世b", 4, "a世"},
		{"mid four-byte rune", "x😀y", 4, "x"},
		{"zero limit", "hello", 0, ""},
		{"empty", "", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateUTF8(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
