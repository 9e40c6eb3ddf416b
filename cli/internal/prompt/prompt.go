// Package prompt builds the commit-message prompt sent to the generation
// endpoint: a fixed markdown template with style rules, examples and the diff.
package prompt

import (
	"strings"
)

// MaxSubjectChars is the subject-line limit stated in the default rules.
const MaxSubjectChars = 150

// Placeholders recognized in Template.Body. Each is substituted once.
const (
	PlaceholderLanguage   = "{{language}}"
	PlaceholderTone       = "{{tone}}"
	PlaceholderDocType    = "{{docType}}"
	PlaceholderRules      = "{{rules}}"
	PlaceholderExamples   = "{{examples}}"
	PlaceholderGitChanges = "{{gitChanges}}"
)

// Prefixes are the conventional-commit prefixes a generated message must start with.
var Prefixes = []string{
	"feat", "fix", "docs", "style", "refactor", "test",
	"perf", "build", "ci", "chore", "revert", "security",
}

// Template is the static prompt structure. Body holds the placeholders.
type Template struct {
	Language string
	Tone     string
	DocType  string
	Rules    string
	Examples string
	Body     string
}

const defaultRules = `- Start with conventional commit prefix (feat, fix, docs, style, refactor, test, perf, build, ci, chore, revert, security)
- Focus only on the actual code changes
- Be concise and direct
- Avoid hallucinations or unrelated content
- No unnecessary symbols or characters
- Maximum 150 characters for the subject line`

const defaultExamples = `- fix: login form validation error
- docs: update API usage examples in README
- style: format code with prettier
- refactor: optimize calculateTotal function
- test: add unit tests for userService
- feat: implement user profile feature
- perf: optimize database queries in report module
- chore: update dependencies in package.json`

const defaultBody = `Follow the rules and examples to generate a commit message based on code changes.

**Rules:**
- Use {{language}} with {{tone}} tone
- Write the message in {{docType}}
{{rules}}

**Examples:**
{{examples}}

**Code Changes:**
{{gitChanges}}
`

// Default is the template used for every generation.
var Default = Template{
	Language: "English",
	Tone:     "casual",
	DocType:  "markdown",
	Rules:    defaultRules,
	Examples: defaultExamples,
	Body:     defaultBody,
}

// Render substitutes every placeholder in t.Body. All substitutions happen in
// one pass, so placeholder-like text inside diff (or inside the rules and
// examples) is copied through literally and never expanded.
func (t Template) Render(diff string) string {
	r := strings.NewReplacer(
		PlaceholderLanguage, t.Language,
		PlaceholderTone, t.Tone,
		PlaceholderDocType, t.DocType,
		PlaceholderRules, t.Rules,
		PlaceholderExamples, t.Examples,
		PlaceholderGitChanges, diff,
	)
	return r.Replace(t.Body)
}

// Build returns the full prompt for diff using the Default template.
func Build(diff string) string {
	return Default.Render(diff)
}
